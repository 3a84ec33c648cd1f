package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crossref-matcher/internal/audit"
	"github.com/crossref-matcher/internal/export"
	import_pkg "github.com/crossref-matcher/internal/import"
	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/matcher"
)

// sideFlags select where a catalogue's values live in its file.
type sideFlags struct {
	sheet    string
	column   string
	idColumn string
}

func (s *sideFlags) register(cmd *cobra.Command, side string, withID bool) {
	cmd.Flags().StringVar(&s.sheet, side+"-sheet", "", "Sheet of the "+side+" workbook (default: first sheet)")
	cmd.Flags().StringVar(&s.column, side+"-column", "", "Description column of the "+side+" file (default: common ERP headers)")
	if withID {
		cmd.Flags().StringVar(&s.idColumn, side+"-id-column", "", "Identifier column of the "+side+" file (default: common ERP headers)")
	}
}

func (s sideFlags) descSpec() import_pkg.ColumnSpec {
	if s.column == "" {
		return import_pkg.DescriptionColumn
	}
	return import_pkg.ColumnSpec{Name: s.column, Aliases: []string{s.column}}
}

func (s sideFlags) idSpec() import_pkg.ColumnSpec {
	if s.idColumn == "" {
		return import_pkg.IDColumn
	}
	return import_pkg.ColumnSpec{Name: s.idColumn, Aliases: []string{s.idColumn}}
}

// runFlags are shared by the matching commands.
type runFlags struct {
	threshold float64
	label     string
	save      bool
	output    string
	quiet     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.threshold, "threshold", -1, "Minimum overall score for a match (default: configured threshold)")
	cmd.Flags().StringVar(&f.label, "label", "", "Label for this matching run")
	cmd.Flags().BoolVar(&f.save, "save", false, "Record the run in the audit database")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write results to a .csv or .xlsx file ('-' for CSV on stdout)")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print the summary report")
}

func (f runFlags) resolvedThreshold() float64 {
	if f.threshold < 0 {
		return cfg.Threshold
	}
	return f.threshold
}

func createMatchCmd() *cobra.Command {
	var (
		source, target sideFlags
		flags          runFlags
	)

	cmd := &cobra.Command{
		Use:   "match [source-file] [target-file]",
		Short: "Match item descriptions between two catalogue files",
		Long: `Reads the description column of two CSV or Excel files and finds, for every
source description, the most similar target description.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := readValues(args[0], source)
			if err != nil {
				return err
			}
			targets, err := readValues(args[1], target)
			if err != nil {
				return err
			}

			bp, closeFn, err := newProcessor(cmd.Context(), flags.save)
			if err != nil {
				return err
			}
			defer closeFn()

			out, err := bp.ProcessValues(cmd.Context(), matcher.Job{
				Label:     labelOr(flags.label, args),
				Threshold: flags.resolvedThreshold(),
				Sources:   sources,
				Targets:   targets,
				Save:      flags.save,
			})
			if err != nil {
				return err
			}
			return finish(cmd, flags, out)
		},
	}

	source.register(cmd, "source", false)
	target.register(cmd, "target", false)
	flags.register(cmd)
	return cmd
}

func createMatchIDsCmd() *cobra.Command {
	var (
		source, target sideFlags
		flags          runFlags
	)

	cmd := &cobra.Command{
		Use:   "match-ids [source-file] [target-file]",
		Short: "Match catalogue records by identifier and verify their descriptions",
		Long: `Pairs records of two catalogue files by item code, scores the paired
descriptions and flags missing or unknown codes for review.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := readRecords(args[0], source)
			if err != nil {
				return err
			}
			targets, err := readRecords(args[1], target)
			if err != nil {
				return err
			}

			bp, closeFn, err := newProcessor(cmd.Context(), flags.save)
			if err != nil {
				return err
			}
			defer closeFn()

			out, err := bp.ProcessIdentifiers(cmd.Context(), matcher.Job{
				Label:         labelOr(flags.label, args),
				Threshold:     flags.resolvedThreshold(),
				SourceRecords: sources,
				TargetRecords: targets,
				Save:          flags.save,
			})
			if err != nil {
				return err
			}
			return finish(cmd, flags, out)
		},
	}

	source.register(cmd, "source", true)
	target.register(cmd, "target", true)
	flags.register(cmd)
	return cmd
}

func createCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare [value-a] [value-b]",
		Short: "Score a single pair of values and print every algorithm",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, closeFn, err := newProcessor(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeFn()

			res := bp.Engine().CompareValues(args[0], args[1])
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func labelOr(label string, args []string) string {
	if label != "" {
		return label
	}
	return filepath.Base(args[0]) + " -> " + filepath.Base(args[1])
}

func readValues(path string, side sideFlags) ([]any, error) {
	table, err := import_pkg.ReadFile(path, side.sheet)
	if err != nil {
		return nil, err
	}
	values, err := import_pkg.Values(table, side.descSpec())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("values loaded", zap.String("file", path), zap.Int("count", len(values)))
	return values, nil
}

func readRecords(path string, side sideFlags) ([]match.Record, error) {
	table, err := import_pkg.ReadFile(path, side.sheet)
	if err != nil {
		return nil, err
	}
	records, err := import_pkg.Records(table, side.idSpec(), side.descSpec())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// finish writes the results file and prints the report.
func finish(cmd *cobra.Command, flags runFlags, out *matcher.Outcome) error {
	if flags.output != "" {
		if err := writeOutput(cmd.OutOrStdout(), flags.output, out); err != nil {
			return err
		}
	}

	if !flags.quiet {
		w := cmd.OutOrStdout()
		if flags.output == "-" {
			w = cmd.ErrOrStderr()
		}
		if err := out.Report.WriteText(w); err != nil {
			return err
		}
		if out.Run != nil {
			fmt.Fprintf(w, "\nRun ID: %s\n", out.Run.ID)
		}
	}
	return nil
}

func writeOutput(stdout io.Writer, path string, out *matcher.Outcome) error {
	rows := export.RowsFromResults(out.Results)
	if path == "-" {
		return export.WriteCSV(stdout, rows)
	}

	run := audit.Run{Report: out.Report}
	if err := writeRows(path, rows, run); err != nil {
		return err
	}
	logger.Info("results written", zap.String("file", path), zap.Int("rows", len(rows)))
	return nil
}

func extension(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}
