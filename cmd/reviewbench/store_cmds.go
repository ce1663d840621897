package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilhg/reviewbench/pkg/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the results schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.store(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "schema is up to date")
			return nil
		},
	}
}

func newResultsCmd(a *app) *cobra.Command {
	var q store.ResultQuery
	cmd := &cobra.Command{
		Use:   "results",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := st.GetResults(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.render(runs, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tTIMESTAMP\tTOOL\tCASE\tMODEL\tSCORE\tGERRIT\tOUTPUT")
				for _, r := range runs {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						r.ID, r.Timestamp.Format(time.RFC3339), r.ToolName, r.CaseName, r.Model, r.Score,
						gerritCell(r.Metadata), oneLine(r.Output, 48))
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.ToolName, "tool", "", "filter by tool name")
	f.StringVar(&q.CaseName, "case", "", "filter by case name")
	f.StringVar(&q.Model, "model", "", "filter by model")
	f.IntVar(&q.Limit, "limit", store.DefaultResultLimit, "maximum number of runs")
	return cmd
}

func gerritCell(m store.Metadata) string {
	v, ok := m["gerrit_score"]
	if !ok {
		return "-"
	}
	n, ok := v.AsNumber()
	if !ok {
		return "?"
	}
	return fmt.Sprintf("%+d", int(n))
}

func newSummaryCmd(a *app) *cobra.Command {
	var (
		tool    string
		groupBy string
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate scores per model or per case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := st.GetSummary(cmd.Context(), tool, store.GroupBy(groupBy))
			if err != nil {
				return err
			}
			return a.render(rows, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "%s\tAVG\tMIN\tMAX\tCOUNT\n", strings.ToUpper(groupBy))
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%.1f\t%d\t%d\t%d\n", r.Key, r.AvgScore, r.MinScore, r.MaxScore, r.Count)
				}
			})
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "restrict to one tool")
	cmd.Flags().StringVar(&groupBy, "group-by", string(store.GroupByModel), "model or case_name")
	return cmd
}

func newCompareCmd(a *app) *cobra.Command {
	var (
		tool     string
		caseName string
		models   []string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Show the latest run of each model for one tool and case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			latest, err := st.CompareModels(cmd.Context(), tool, caseName, models)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(latest))
			for k := range latest {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return a.render(latest, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "MODEL\tRUN\tSCORE\tTIMESTAMP")
				for _, k := range keys {
					r := latest[k]
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", k, r.ID, r.Score, r.Timestamp.Format(time.RFC3339))
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&tool, "tool", "", "tool name")
	f.StringVar(&caseName, "case", "", "case name")
	f.StringSliceVar(&models, "model", nil, "models to compare (repeatable, default all)")
	_ = cmd.MarkFlagRequired("tool")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func newMetricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics RUN_ID",
		Short: "List the metrics recorded for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			st, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			metrics, err := st.Metrics(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.render(metrics, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "NAME\tVALUE")
				for _, m := range metrics {
					fmt.Fprintf(w, "%s\t%g\n", m.Name, m.Value)
				}
			})
		},
	}
}

