package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/healthbridge/platform/pkg/app"
	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/common/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "healthbridge",
		Short:         "Medical document extraction and normalization",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.InitWithOutput(os.Stderr)
		},
	}

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(servicesCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "Show configured extraction providers and fallback chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := app.NewPipeline(config.Load())
			return printJSON(cmd, map[string]interface{}{
				"services": p.AvailableServices(),
				"chains":   p.Chains(),
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New(config.Load(), false)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer application.Close()

			if err := application.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
