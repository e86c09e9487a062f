// Command scanctl runs scans, validation and history queries from a shell.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gradescan/api/internal/config"
	"gradescan/api/internal/logger"
)

type cli struct {
	cfgFile    string
	outputJSON bool
	verbose    bool

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "scanctl",
		Short: "Scan report cards and manage the grade records",
		Long: `scanctl reads report card photos with the same pipeline as the API.

Use it to:
- scan an image and optionally save the result
- check a raw model response or a record file
- list the scan history and class rankings

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			level := "warn"
			if c.verbose {
				level = "debug"
			}
			c.log = logger.New(logger.Config{Level: level, Format: "console", Output: cmd.ErrOrStderr(), Service: "scanctl"})
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	root.PersistentFlags().BoolVar(&c.outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(c.newScanCmd())
	root.AddCommand(c.newInspectCmd())
	root.AddCommand(c.newValidateCmd())
	root.AddCommand(c.newHistoryCmd())
	root.AddCommand(c.newRankingsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
