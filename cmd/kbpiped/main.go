package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/kbpipe/internal/cli"
	"github.com/cloo-solutions/kbpipe/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kbpiped",
		Short: "kbpipe daemon and admin CLI",
		Long:  "kbpipe daemon for running the knowledge pipeline API and maintaining its database",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.ReindexCmd())
	rootCmd.AddCommand(admin.VariableCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if handled, err := cli.HandleHelpJSON(os.Stdout, rootCmd, os.Args[1:]); handled {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
