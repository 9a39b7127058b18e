package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/kbpipe/internal/cli"
	"github.com/cloo-solutions/kbpipe/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "kbpipe",
		Short: "kbpipe CLI - feed and edit the knowledge base",
		Long: `kbpipe CLI calls the knowledge pipeline API.

Environment variables:
  KBPIPE_SERVICE_TOKEN   Service token for authentication (required)
  KBPIPE_API_URL         API base URL (default: http://localhost:8080)
  KBPIPE_ORG_ID          Default organization id`,
		Version: version,
	}

	rootCmd.PersistentFlags().StringP("output", "o", "text", "Output format (text or json)")
	rootCmd.PersistentFlags().String("token", "", "Service token (overrides env)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	rootCmd.PersistentFlags().String("org", "", "Organization id (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.ImportCmd())
	rootCmd.AddCommand(client.EditCmd())
	rootCmd.AddCommand(client.ReprocessCmd())
	rootCmd.AddCommand(client.GetCmd())
	rootCmd.AddCommand(client.ListCmd())

	if handled, err := cli.HandleHelpJSON(os.Stdout, rootCmd, os.Args[1:]); handled {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
