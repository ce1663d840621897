package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wilhg/reviewbench/pkg/eval"
	"github.com/wilhg/reviewbench/pkg/gitdiff"
)

type caseInfo struct {
	Name     string   `json:"name" yaml:"name"`
	Files    []string `json:"files" yaml:"files"`
	Ignored  []string `json:"ignored,omitempty" yaml:"ignored,omitempty"`
	Expected []string `json:"expected" yaml:"expected"`
}

func newCasesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cases [DIR]",
		Short: "List and validate evaluation case directories",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Eval.CasesDir
			if len(args) == 1 {
				dir = args[0]
			}
			cases, err := eval.LoadCases(os.DirFS(dir), ".")
			if err != nil {
				return err
			}
			infos := make([]caseInfo, 0, len(cases))
			for _, c := range cases {
				_, ignored := gitdiff.FilterReport(c.Diff, a.cfg.Diff.IgnorePatterns)
				infos = append(infos, caseInfo{
					Name:     c.Name,
					Files:    gitdiff.Paths(c.Diff),
					Ignored:  ignored,
					Expected: c.ExpectedElements(),
				})
			}
			return a.render(infos, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "CASE\tFILES\tIGNORED\tEXPECTED")
				for _, i := range infos {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", i.Name, len(i.Files), len(i.Ignored), len(i.Expected))
				}
			})
		},
	}
}
