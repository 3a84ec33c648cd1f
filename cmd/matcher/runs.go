package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crossref-matcher/internal/audit"
	"github.com/crossref-matcher/internal/export"
)

// createDBCmd creates the database maintenance commands
func createDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Audit database operations",
	}

	dbCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the audit tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeFn, err := openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			fmt.Fprintf(cmd.OutOrStdout(), "Audit schema ready (%s)\n", cfg.Database.Driver)
			return nil
		},
	})

	dbCmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closeFn, err := openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			if err := tracker.Ping(cmd.Context()); err != nil {
				return err
			}
			runs, err := tracker.ListRuns(cmd.Context(), 0)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database connection successful!")
			fmt.Fprintf(cmd.OutOrStdout(), "Stored runs: %d\n", len(runs))
			return nil
		},
	})

	return dbCmd
}

// createRunsCmd creates the commands that inspect and review stored runs
func createRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect, review and export stored matching runs",
	}

	runsCmd.AddCommand(createRunsListCmd())
	runsCmd.AddCommand(createRunsShowCmd())
	runsCmd.AddCommand(createRunsDecideCmd())
	runsCmd.AddCommand(createRunsExportCmd())
	runsCmd.AddCommand(createRunsDeleteCmd())
	return runsCmd
}

func createRunsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closeFn, err := openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := tracker.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMODE\tLABEL\tTOTAL\tMATCHED\tREVIEW")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Mode, r.Label, r.Total, r.Matched, r.NeedsReview)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func createRunsShowCmd() *cobra.Command {
	var (
		asJSON     bool
		onlyReview bool
	)

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a run's report, or its results with --json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closeFn, err := openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			run, err := tracker.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !asJSON {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Run %s (%s, %s)\n", run.ID, run.Mode, run.Label)
				fmt.Fprintf(w, "Created %s, threshold %.2f\n\n", run.CreatedAt.Format("2006-01-02 15:04:05"), run.Threshold)
				return run.Report.WriteText(w)
			}

			results, err := tracker.Results(cmd.Context(), run.ID, audit.ResultFilter{OnlyReview: onlyReview})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"run": run, "results": results})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run and its results as JSON")
	cmd.Flags().BoolVar(&onlyReview, "review", false, "With --json, only results flagged for review")
	return cmd
}

func createRunsDecideCmd() *cobra.Command {
	var d audit.Decision

	cmd := &cobra.Command{
		Use:   "decide [run-id] [result-index] [accepted|rejected|remapped]",
		Short: "Record a reviewer decision on a result",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var index int
			if _, err := fmt.Sscanf(args[1], "%d", &index); err != nil {
				return fmt.Errorf("invalid result index %q", args[1])
			}

			tracker, closeFn, err := openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			d.RunID = args[0]
			d.ResultIndex = index
			d.Decision = args[2]
			if err := tracker.RecordDecision(cmd.Context(), &d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Decision %s recorded\n", d.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&d.TargetValue, "target", "", "Replacement target value (required for remapped)")
	cmd.Flags().StringVar(&d.DecidedBy, "by", os.Getenv("USER"), "Reviewer name")
	cmd.Flags().StringVar(&d.Note, "note", "", "Free-text note")
	return cmd
}

func createRunsExportCmd() *cobra.Command {
	var onlyReview bool

	cmd := &cobra.Command{
		Use:   "export [run-id] [output-file]",
		Short: "Export a run with its decisions to .csv or .xlsx",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closeFn, err := openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			run, err := tracker.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stored, err := tracker.Results(cmd.Context(), run.ID, audit.ResultFilter{OnlyReview: onlyReview})
			if err != nil {
				return err
			}

			rows := make([]export.Row, len(stored))
			for i, s := range stored {
				rows[i] = export.Row{MatchResult: s.MatchResult}
				if s.Decision != nil {
					rows[i].Decision = s.Decision.Decision
					rows[i].DecisionTarget = s.Decision.TargetValue
				}
			}
			return writeRows(args[1], rows, run)
		},
	}

	cmd.Flags().BoolVar(&onlyReview, "review", false, "Only export results flagged for review")
	return cmd
}

func writeRows(path string, rows []export.Row, run audit.Run) error {
	format, err := export.ParseFormat(extension(path))
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if format == export.FormatXLSX {
		err = export.WriteXLSX(f, rows, run.Report)
	} else {
		err = export.WriteCSV(f, rows)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

func createRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete a run with its results and decisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, closeFn, err := openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := tracker.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s deleted\n", args[0])
			return nil
		},
	}
}
