package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"gradescan/api/internal/app"
	"gradescan/api/internal/ocr/types"
	"gradescan/api/internal/parse"
	"gradescan/api/internal/scan"
	"gradescan/api/internal/service"
	"gradescan/api/internal/validate"
)

type scanPurger interface {
	PurgeScansOlderThan(ctx context.Context, olderThan time.Duration) (int64, error)
}

func (c *cli) build(ctx context.Context) (*app.App, error) {
	return app.Build(ctx, c.cfg, c.log)
}

func (c *cli) newScanCmd() *cobra.Command {
	var (
		multi     bool
		save      bool
		link      bool
		className string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Scan a report card image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := c.build(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			mode := types.ModeSingle
			if multi {
				mode = types.ModeMulti
			}
			out, err := a.Pipeline.Scan(ctx, service.ScanRequest{
				Image:     scan.Image{Data: data, Name: filepath.Base(args[0])},
				Mode:      mode,
				ClassName: className,
			})
			if err != nil {
				return err
			}

			var sum *service.SaveSummary
			if save {
				s, err := a.Saver.Save(ctx, out.Record, service.SaveOptions{DefaultClass: className, LinkExisting: link})
				if err != nil {
					return err
				}
				sum = &s
			}

			w := cmd.OutOrStdout()
			if c.outputJSON {
				return writeJSON(w, struct {
					service.ScanOutcome
					Saved *service.SaveSummary `json:"saved,omitempty"`
				}{out, sum})
			}
			printOutcome(w, out)
			if sum != nil {
				fmt.Fprintln(w)
				printSummary(w, *sum)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&multi, "multi", false, "the image lists several students")
	cmd.Flags().BoolVar(&save, "save", false, "save the record after the scan")
	cmd.Flags().BoolVar(&link, "link", true, "reuse stored students with a similar name when saving")
	cmd.Flags().StringVar(&className, "class", "", "class to use when none is detected")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "overall scan timeout")
	return cmd
}

func (c *cli) newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <response.txt>",
		Short: "Check a raw model response against the expected JSON shapes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			d := parse.Inspect(string(text))
			w := cmd.OutOrStdout()
			if c.outputJSON {
				return writeJSON(w, d)
			}
			if d.Success {
				okColor.Fprintln(w, "✓ JSON valide")
			} else {
				errColor.Fprintln(w, "✗ JSON invalide")
			}
			for _, e := range d.Errors {
				errColor.Fprintf(w, "  erreur: %s\n", e)
			}
			for _, e := range d.Warnings {
				warnColor.Fprintf(w, "  avertissement: %s\n", e)
			}
			return nil
		},
	}
}

func (c *cli) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <record.json>",
		Short: "Validate a record file and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var ext types.Extraction
			if err := ext.UnmarshalJSON(raw); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			res := validate.Extraction(ext)
			w := cmd.OutOrStdout()
			if c.outputJSON {
				return writeJSON(w, res)
			}
			fmt.Fprintln(w, validate.Report(res))
			return nil
		},
	}
}

func (c *cli) newHistoryCmd() *cobra.Command {
	var (
		limit      int
		purgeOlder time.Duration
		clearAll   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, purge or clear the scan history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.build(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			w := cmd.OutOrStdout()

			switch {
			case clearAll:
				if err := a.Store.ClearScans(ctx); err != nil {
					return err
				}
				okColor.Fprintln(w, "✓ Historique effacé")
				return nil
			case purgeOlder > 0:
				p, ok := a.Store.(scanPurger)
				if !ok {
					return errors.New("this store does not support purging")
				}
				n, err := p.PurgeScansOlderThan(ctx, purgeOlder)
				if err != nil {
					return err
				}
				okColor.Fprintf(w, "✓ %d scan(s) supprimé(s)\n", n)
				return nil
			}

			list, err := a.Store.ListScans(ctx, limit)
			if err != nil {
				return err
			}
			if c.outputJSON {
				return writeJSON(w, list)
			}
			printHistory(w, list)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to list (0 for all)")
	cmd.Flags().DurationVar(&purgeOlder, "purge-older", 0, "delete entries older than this (e.g. 720h)")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete the whole history")
	cmd.MarkFlagsMutuallyExclusive("purge-older", "clear")
	return cmd
}

func (c *cli) newRankingsCmd() *cobra.Command {
	var className string

	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "Rank students by their average grade",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.build(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := service.Rankings(ctx, a.Store, className)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if c.outputJSON {
				return writeJSON(w, list)
			}
			printRankings(w, list)
			return nil
		},
	}

	cmd.Flags().StringVar(&className, "class", "", "only rank this class")
	return cmd
}
