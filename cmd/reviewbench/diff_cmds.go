package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wilhg/reviewbench/pkg/gitdiff"
	"github.com/wilhg/reviewbench/pkg/verdict"
)

// readInput reads the named file, or stdin when no file or "-" is given.
func (a *app) readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(a.in)
		return string(b), err
	}
	b, err := os.ReadFile(args[0])
	return string(b), err
}

func newFilterDiffCmd(a *app) *cobra.Command {
	var ignore []string
	cmd := &cobra.Command{
		Use:   "filter-diff [FILE]",
		Short: "Drop lock-file segments from a unified diff",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.readInput(args)
			if err != nil {
				return err
			}
			patterns := a.cfg.Diff.IgnorePatterns
			if cmd.Flags().Changed("ignore") {
				patterns = ignore
			}
			filtered, dropped := gitdiff.FilterReport(doc, patterns)
			for _, p := range dropped {
				a.logger.Debug("suppressed diff segment", zap.String("path", p))
				fmt.Fprintf(a.errOut, "ignored %s\n", p)
			}
			_, err = io.WriteString(a.out, filtered)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "path substrings to suppress (replaces the configured list)")
	return cmd
}

type verdictResult struct {
	Score int  `json:"score" yaml:"score"`
	Found bool `json:"found" yaml:"found"`
}

func newExtractVerdictCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract-verdict [FILE]",
		Short: "Print the -2..+2 verdict embedded in review text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.readInput(args)
			if err != nil {
				return err
			}
			score, found := verdict.New(a.cfg.Eval.VerdictLines)(text)
			f, _ := parseFormat(a.output)
			if f == formatTable {
				fmt.Fprintf(a.out, "%+d\n", score)
				return nil
			}
			return a.render(verdictResult{Score: score, Found: found}, nil)
		},
	}
}
