package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cloo-solutions/kbpipe/internal/repository"
	"github.com/spf13/cobra"
)

// VariableCmd returns the variable command
func VariableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variable",
		Short: "Manage organization variables",
		Long:  "Set and list the {{key}} values substituted into knowledge content",
	}

	cmd.AddCommand(VariableSetCmd())
	cmd.AddCommand(VariableListCmd())

	return cmd
}

func VariableSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <org-id> <key> <value>",
		Short: "Set a variable and rematerialize the items that use it",
		Args:  cobra.ExactArgs(3),
		RunE:  runVariableSet,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runVariableSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	orgID, key, value := args[0], args[1], args[2]
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := newApp(ctx, cfg, pool)
	if err != nil {
		return err
	}

	updated, err := a.knowledge.SetVariable(ctx, orgID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set variable: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(map[string]any{
			"key":           key,
			"value":         value,
			"updated_items": updated,
		}, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Variable %s set, %d items rematerialized\n", key, updated)
	}

	return nil
}

func VariableListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <org-id>",
		Short: "List the variables of an organization",
		Args:  cobra.ExactArgs(1),
		RunE:  runVariableList,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runVariableList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	vars, err := repository.NewVariableRepository(pool).ListByOrg(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to list variables: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(vars, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	if len(vars) == 0 {
		fmt.Println("No variables found")
		return nil
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("Variables:")
	for _, k := range keys {
		fmt.Printf("  %s = %s\n", k, vars[k])
	}
	return nil
}
