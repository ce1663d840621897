// Package eval runs evaluation cases end to end: filter the diff, generate
// an output, have it judged, extract the embedded verdict and record the run.
package eval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wilhg/reviewbench/pkg/errmodel"
	"github.com/wilhg/reviewbench/pkg/gitdiff"
	evotel "github.com/wilhg/reviewbench/pkg/otel"
	"github.com/wilhg/reviewbench/pkg/store"
	"github.com/wilhg/reviewbench/pkg/verdict"
)

// Tool names recorded with each run.
const (
	ToolCommit = "commit_changes"
	ToolReview = "review_changes"
)

// Metric names recorded with each run.
const (
	MetricDiffTokens      = "diff_tokens"
	MetricOutputTokens    = "output_tokens"
	MetricElementsPresent = "elements_present"
	MetricElementsMissing = "elements_missing"
	MetricGerritScore     = "gerrit_score"
)

// Runner coordinates generation, judging and recording of evaluation runs.
type Runner struct {
	st    store.Store
	gen   Generator
	judge Judge

	logger      *zap.Logger
	tracer      trace.Tracer
	patterns    []string
	judgeModel  string
	tokens      TokenCounter
	concurrency int
	extract     verdict.Strategy
	sessionID   string
}

// Option configures the Runner at construction time.
type Option func(*Runner)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer overrides the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithIgnorePatterns replaces gitdiff.DefaultIgnorePatterns.
func WithIgnorePatterns(patterns []string) Option {
	return func(r *Runner) { r.patterns = patterns }
}

// WithJudgeModel names the judge model in run metadata.
func WithJudgeModel(model string) Option {
	return func(r *Runner) { r.judgeModel = model }
}

// WithTokenCounter enables the token count metrics.
func WithTokenCounter(c TokenCounter) Option {
	return func(r *Runner) { r.tokens = c }
}

// WithConcurrency bounds the number of cases generated and judged at once.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithVerdictStrategy replaces verdict.Default for review outputs.
func WithVerdictStrategy(s verdict.Strategy) Option {
	return func(r *Runner) {
		if s != nil {
			r.extract = s
		}
	}
}

// WithSessionID fixes the session id stored in run metadata.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.sessionID = id
		}
	}
}

// NewRunner constructs a new Runner.
func NewRunner(st store.Store, gen Generator, judge Judge, opts ...Option) *Runner {
	r := &Runner{
		st:          st,
		gen:         gen,
		judge:       judge,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("eval/runner"),
		patterns:    gitdiff.DefaultIgnorePatterns,
		concurrency: 1,
		extract:     verdict.Default,
		sessionID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SessionID identifies the runs recorded by this Runner.
func (r *Runner) SessionID() string { return r.sessionID }

// CaseResult is the outcome of one recorded case.
type CaseResult struct {
	Case         string     `json:"case"`
	Model        string     `json:"model"`
	RunID        int64      `json:"run_id"`
	Score        int        `json:"score"`
	GerritScore  *int       `json:"gerrit_score,omitempty"`
	Output       string     `json:"output"`
	Evaluation   Evaluation `json:"evaluation"`
	IgnoredFiles []string   `json:"ignored_files,omitempty"`
	JudgeFailed  bool       `json:"judge_failed,omitempty"`
}

// CaseFailure is a case that could not be generated or recorded.
type CaseFailure struct {
	Case  string `json:"case"`
	Error string `json:"error"`
}

// BatchReport summarizes a RunAll call.
type BatchReport struct {
	Tool         string                          `json:"tool"`
	Model        string                          `json:"model"`
	SessionID    string                          `json:"session_id"`
	Results      []CaseResult                    `json:"results"`
	Failures     []CaseFailure                   `json:"failures,omitempty"`
	AverageScore float64                         `json:"average_score"`
	Comparisons  map[string]map[string]store.Run `json:"comparisons,omitempty"`
}

// pending is a generated and judged case waiting to be recorded.
type pending struct {
	c        Case
	output   string
	eval     Evaluation
	judgeErr error
	ignored  []string
	diff     string
}

// RunCase evaluates and records a single case.
func (r *Runner) RunCase(ctx context.Context, tool, model string, c Case) (CaseResult, error) {
	ctx, span := r.tracer.Start(ctx, "eval.Runner.RunCase",
		trace.WithAttributes(evotel.EvalAttributes(tool, c.Name, model)...))
	defer span.End()

	p, err := r.prepare(ctx, tool, model, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return CaseResult{}, err
	}
	res, err := r.record(ctx, tool, model, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record")
		return CaseResult{}, err
	}
	span.SetAttributes(attribute.Int64("eval.run_id", res.RunID), attribute.Int("eval.score", res.Score))
	return res, nil
}

// RunAll generates and judges cases concurrently, then records them one at
// a time in case order. A case whose generation fails is reported and
// skipped; a judge failure is recorded with score 0.
func (r *Runner) RunAll(ctx context.Context, tool, model string, cases []Case) (BatchReport, error) {
	ctx, span := r.tracer.Start(ctx, "eval.Runner.RunAll",
		trace.WithAttributes(append(evotel.EvalAttributes(tool, "", model), attribute.Int("eval.cases", len(cases)))...))
	defer span.End()

	report := BatchReport{Tool: tool, Model: model, SessionID: r.sessionID, Results: []CaseResult{}}
	prepared := make([]*pending, len(cases))
	errs := make([]error, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range cases {
		g.Go(func() error {
			p, err := r.prepare(gctx, tool, model, c)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			prepared[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return report, err
	}

	var total int
	for i, c := range cases {
		if errs[i] != nil {
			r.logger.Error("case failed", zap.String("case", c.Name), zap.Error(errs[i]))
			report.Failures = append(report.Failures, CaseFailure{Case: c.Name, Error: errs[i].Error()})
			continue
		}
		res, err := r.record(ctx, tool, model, prepared[i])
		if err != nil {
			if errmodel.IsCategory(err, errmodel.CategoryStorage) {
				span.RecordError(err)
				return report, err
			}
			report.Failures = append(report.Failures, CaseFailure{Case: c.Name, Error: err.Error()})
			continue
		}
		report.Results = append(report.Results, res)
		total += res.Score
	}
	if n := len(report.Results); n > 0 {
		report.AverageScore = float64(total) / float64(n)
	}

	for _, c := range cases {
		cmp, err := r.st.CompareModels(ctx, tool, c.Name, nil)
		if err != nil {
			return report, err
		}
		if len(cmp) > 1 {
			if report.Comparisons == nil {
				report.Comparisons = make(map[string]map[string]store.Run)
			}
			report.Comparisons[c.Name] = cmp
		}
	}
	r.logger.Info("batch finished",
		zap.String("tool", tool),
		zap.String("model", model),
		zap.Int("recorded", len(report.Results)),
		zap.Int("failed", len(report.Failures)),
		zap.Float64("average_score", report.AverageScore))
	return report, nil
}

// prepare filters the diff, generates the output and has it judged.
func (r *Runner) prepare(ctx context.Context, tool, model string, c Case) (*pending, error) {
	diff, ignored := gitdiff.FilterReport(c.Diff, r.patterns)
	if len(ignored) > 0 {
		r.logger.Debug("suppressed diff segments", zap.String("case", c.Name), zap.Strings("files", ignored))
	}
	r.logger.Info("running case", zap.String("tool", tool), zap.String("case", c.Name), zap.String("model", model))

	output, err := r.gen.Generate(ctx, GenerateRequest{
		Tool:       tool,
		Model:      model,
		Diff:       diff,
		StagedDiff: diff,
		Status:     statusLines(diff),
	})
	if err != nil {
		return nil, errmodel.Generation("generate output", map[string]any{"case": c.Name, "model": model}, err)
	}

	p := &pending{c: c, output: output, ignored: ignored, diff: diff}
	p.eval, p.judgeErr = r.judge.Judge(ctx, JudgeRequest{Tool: tool, Diff: diff, Expected: c.Expected, Output: output})
	if p.judgeErr != nil {
		if errors.Is(p.judgeErr, context.Canceled) || errors.Is(p.judgeErr, context.DeadlineExceeded) {
			return nil, p.judgeErr
		}
		r.logger.Warn("judge evaluation failed", zap.String("case", c.Name), zap.Error(p.judgeErr))
		p.eval = failedEvaluation(p.judgeErr)
	}
	return p, nil
}

// record stores a prepared case and its metrics.
func (r *Runner) record(ctx context.Context, tool, model string, p *pending) (CaseResult, error) {
	meta := store.Metadata{
		"session_id": store.String(r.sessionID),
		"evaluation": p.eval.Value(),
	}
	if r.judgeModel != "" {
		meta["judge_model"] = store.String(r.judgeModel)
	}
	if len(p.ignored) > 0 {
		meta["ignored_files"] = store.Strings(p.ignored...)
	}
	metrics := map[string]float64{
		MetricElementsPresent: float64(len(p.eval.ElementsPresent)),
		MetricElementsMissing: float64(len(p.eval.ElementsMissing)),
	}
	if r.tokens != nil {
		metrics[MetricDiffTokens] = float64(r.tokens(p.diff))
		metrics[MetricOutputTokens] = float64(r.tokens(p.output))
	}

	res := CaseResult{
		Case:         p.c.Name,
		Model:        model,
		Score:        p.eval.Score,
		Output:       p.output,
		Evaluation:   p.eval,
		IgnoredFiles: p.ignored,
		JudgeFailed:  p.judgeErr != nil,
	}
	if tool == ToolReview {
		g, _ := r.extract(p.output)
		res.GerritScore = &g
		meta["gerrit_score"] = store.Int(g)
		metrics[MetricGerritScore] = float64(g)
	}

	id, err := r.st.RecordResult(ctx, store.RunInput{
		ToolName: tool,
		CaseName: p.c.Name,
		Model:    model,
		Score:    p.eval.Score,
		Output:   p.output,
		Metadata: meta,
		Metrics:  metrics,
	})
	if err != nil {
		return CaseResult{}, fmt.Errorf("record case %s: %w", p.c.Name, err)
	}
	res.RunID = id
	return res, nil
}

// statusLines renders a porcelain style status for the files in diff.
func statusLines(diff string) string {
	paths := gitdiff.Paths(diff)
	sort.Strings(paths)
	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			lines = append(lines, "M  "+p)
		}
	}
	return strings.Join(lines, "\n")
}
