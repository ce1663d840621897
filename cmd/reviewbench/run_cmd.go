package main

import (
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wilhg/reviewbench/pkg/errmodel"
	"github.com/wilhg/reviewbench/pkg/eval"
	"github.com/wilhg/reviewbench/pkg/verdict"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		tool, model, casesDir string
		genCmd, judgeCmd      string
		only                  []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, judge and record every evaluation case for one model",
		Long: `run loads the case directories, pipes each filtered diff to --generator-cmd,
sends the generator output to --judge-cmd as a JSON request on stdin and
records the judged score. Commands run through "sh -c"; the generator sees
REVIEWBENCH_TOOL, REVIEWBENCH_MODEL and REVIEWBENCH_STATUS in its environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tool != eval.ToolCommit && tool != eval.ToolReview {
				return errmodel.InvalidArgument(fmt.Sprintf("tool must be %s or %s", eval.ToolCommit, eval.ToolReview), map[string]any{"tool": tool})
			}
			if casesDir == "" {
				casesDir = a.cfg.Eval.CasesDir
			}
			cases, err := eval.LoadCases(os.DirFS(casesDir), ".")
			if err != nil {
				return err
			}
			if len(only) > 0 {
				cases = slices.DeleteFunc(cases, func(c eval.Case) bool { return !slices.Contains(only, c.Name) })
				if len(cases) == 0 {
					return errmodel.InvalidArgument("no case directory matches --case", map[string]any{"cases": only})
				}
			}

			st, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			opts := []eval.Option{
				eval.WithLogger(a.logger.Named("eval")),
				eval.WithIgnorePatterns(a.cfg.Diff.IgnorePatterns),
				eval.WithJudgeModel(a.cfg.Eval.JudgeModel),
				eval.WithConcurrency(a.cfg.Eval.Concurrency),
				eval.WithVerdictStrategy(verdict.New(a.cfg.Eval.VerdictLines)),
			}
			if counter, err := eval.NewTikTokenCounter(a.cfg.Eval.TokenModel); err != nil {
				a.logger.Warn("token metrics disabled", zap.Error(err))
			} else {
				opts = append(opts, eval.WithTokenCounter(counter))
			}
			runner := eval.NewRunner(st, shellGenerator{command: genCmd}, shellJudge{command: judgeCmd}, opts...)

			report, err := runner.RunAll(cmd.Context(), tool, model, cases)
			if err != nil {
				return err
			}
			return a.render(report, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "CASE\tRUN\tSCORE\tVERDICT\tIGNORED")
				for _, r := range report.Results {
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\n", r.Case, r.RunID, r.Score, verdictCell(r.GerritScore), len(r.IgnoredFiles))
				}
				for _, f := range report.Failures {
					fmt.Fprintf(w, "%s\t-\t-\t-\t%s\n", f.Case, oneLine(f.Error, 60))
				}
				fmt.Fprintf(w, "\nsession %s: %d recorded, %d failed, average %.2f\n",
					report.SessionID, len(report.Results), len(report.Failures), report.AverageScore)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&tool, "tool", eval.ToolCommit, "tool under evaluation (commit_changes, review_changes)")
	f.StringVar(&model, "model", "", "model name recorded with each run")
	f.StringVar(&casesDir, "cases-dir", "", "directory of case folders (default: eval.cases_dir)")
	f.StringSliceVar(&only, "case", nil, "only run the named cases")
	f.StringVar(&genCmd, "generator-cmd", "", "shell command producing the tool output")
	f.StringVar(&judgeCmd, "judge-cmd", "", "shell command producing the judge evaluation")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("generator-cmd")
	_ = cmd.MarkFlagRequired("judge-cmd")
	return cmd
}

func verdictCell(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+d", *v)
}
