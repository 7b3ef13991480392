// Package cli implements the vendorctl command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rpattn/vendorflow/internal/app"
	"github.com/rpattn/vendorflow/internal/config"
	"github.com/rpattn/vendorflow/internal/logger"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if output, _ := rootCmd.PersistentFlags().GetString("output"); output == "json" {
			_ = printJSON(os.Stdout, map[string]string{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// session holds what the subcommands share once the root has loaded the
// configuration.
type session struct {
	app *app.App
}

func NewRootCmd() *cobra.Command {
	var (
		configDir string
		vendor    string
		output    string
		s         session
	)

	rootCmd := &cobra.Command{
		Use:           "vendorctl",
		Short:         "Map, validate and review vendor data files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
			}
			_ = godotenv.Load()

			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			if vendor != "" {
				cfg.Pipeline.Vendor = vendor
			}
			log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
			if err != nil {
				return err
			}
			s.app, err = app.New(cmd.Context(), cfg, log)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if s.app != nil {
				s.app.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "Directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&vendor, "vendor", "", "Vendor whose rules to apply (overrides pipeline.vendor)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table or json")

	rootCmd.AddCommand(
		newRunCmd(&s),
		newWatchCmd(&s),
		newFlaggedCmd(&s),
		newRowCmd(&s),
		newDecisionCmd(&s, "approve"),
		newDecisionCmd(&s, "reject"),
		newSummaryCmd(&s),
		newExportFlaggedCmd(&s),
		newSuggestCmd(&s),
	)
	return rootCmd
}

func isJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
