package eval

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	_ "github.com/ncruces/go-sqlite3/vfs/memdb"

	"github.com/wilhg/reviewbench/pkg/errmodel"
	"github.com/wilhg/reviewbench/pkg/store"
	"github.com/wilhg/reviewbench/pkg/store/entstore"
)

func openStore(t *testing.T) *entstore.Store {
	t.Helper()
	ctx := context.Background()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	st, err := entstore.Open(ctx, "sqlite:file:/"+name+".db?vfs=memdb&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))
	return st
}

// reviewer echoes a fixed review and remembers the last request.
type reviewer struct {
	text string
	last atomic.Pointer[GenerateRequest]
}

func (r *reviewer) Generate(_ context.Context, req GenerateRequest) (string, error) {
	r.last.Store(&req)
	return r.text, nil
}

func fixedJudge(score int) Judge {
	return JudgeFunc(func(_ context.Context, req JudgeRequest) (Evaluation, error) {
		return Evaluation{
			Score:           score,
			Reasoning:       "judged " + req.Tool,
			ElementsPresent: []string{"summary"},
			ElementsMissing: []string{"tests", "docs"},
		}, nil
	})
}

func testCase(name string) Case {
	return Case{Name: name, Diff: sampleDiff, Expected: []byte(`["summary","tests","docs"]`)}
}

func TestRunCaseReviewRecordsVerdictAndMetadata(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	gen := &reviewer{text: "Solid change.\n\n**Score:** +1\n"}
	r := NewRunner(st, gen, fixedJudge(82),
		WithJudgeModel("judge-1"),
		WithSessionID("session-1"),
		WithTokenCounter(func(s string) int { return len(strings.Fields(s)) }))

	res, err := r.RunCase(ctx, ToolReview, "gpt-4o", testCase("case_1"))
	require.NoError(t, err)
	assert.Positive(t, res.RunID)
	assert.Equal(t, 82, res.Score)
	require.NotNil(t, res.GerritScore)
	assert.Equal(t, 1, *res.GerritScore)
	assert.Equal(t, []string{"poetry.lock"}, res.IgnoredFiles)

	req := gen.last.Load()
	require.NotNil(t, req)
	assert.NotContains(t, req.Diff, "poetry.lock")
	assert.Equal(t, req.Diff, req.StagedDiff)
	assert.Equal(t, "M  app.py", req.Status)

	runs, err := st.GetResults(ctx, store.ResultQuery{ToolName: ToolReview})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	meta := runs[0].Metadata
	assert.True(t, store.String("judge-1").Equal(meta["judge_model"]))
	assert.True(t, store.String("session-1").Equal(meta["session_id"]))
	assert.True(t, store.Int(1).Equal(meta["gerrit_score"]))
	assert.True(t, store.Strings("poetry.lock").Equal(meta["ignored_files"]))
	eval, ok := meta["evaluation"].AsMap()
	require.True(t, ok)
	assert.True(t, store.String("judged review_changes").Equal(eval["reasoning"]))

	metrics, err := st.Metrics(ctx, res.RunID)
	require.NoError(t, err)
	got := map[string]float64{}
	for _, m := range metrics {
		got[m.Name] = m.Value
	}
	assert.Equal(t, 1.0, got[MetricElementsPresent])
	assert.Equal(t, 2.0, got[MetricElementsMissing])
	assert.Equal(t, 1.0, got[MetricGerritScore])
	assert.Contains(t, got, MetricDiffTokens)
	assert.Equal(t, 4.0, got[MetricOutputTokens])
}

func TestRunCaseCommitHasNoVerdict(t *testing.T) {
	st := openStore(t)
	r := NewRunner(st, &reviewer{text: "feat: bump x\n\nScore: 2"}, fixedJudge(90))
	res, err := r.RunCase(context.Background(), ToolCommit, "m", testCase("c"))
	require.NoError(t, err)
	assert.Nil(t, res.GerritScore)
	runs, err := st.GetResults(context.Background(), store.ResultQuery{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotContains(t, runs[0].Metadata, "gerrit_score")
	assert.NotContains(t, runs[0].Metadata, "judge_model")
}

func TestRunCaseJudgeFailureDegradesToZero(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	core, logs := observer.New(zapcore.WarnLevel)
	judge := JudgeFunc(func(context.Context, JudgeRequest) (Evaluation, error) {
		return Evaluation{}, errors.New("rate limited")
	})
	r := NewRunner(st, &reviewer{text: "No verdict here"}, judge, WithLogger(zap.New(core)))

	res, err := r.RunCase(ctx, ToolReview, "m", testCase("c"))
	require.NoError(t, err)
	assert.True(t, res.JudgeFailed)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 0, *res.GerritScore)
	assert.Equal(t, "evaluation error: rate limited", res.Evaluation.Reasoning)
	assert.Equal(t, 1, logs.FilterMessage("judge evaluation failed").Len())

	runs, err := st.GetResults(ctx, store.ResultQuery{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 0, runs[0].Score)
}

func TestRunCaseGeneratorFailureIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	gen := GeneratorFunc(func(context.Context, GenerateRequest) (string, error) {
		return "", errors.New("model unavailable")
	})
	r := NewRunner(st, gen, fixedJudge(50))
	_, err := r.RunCase(ctx, ToolCommit, "m", testCase("c"))
	require.Error(t, err)
	assert.False(t, errmodel.IsCategory(err, errmodel.CategoryJudge))
	assert.Equal(t, errmodel.CodeGeneration, errmodel.From(err).Code)
	runs, err := st.GetResults(ctx, store.ResultQuery{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunAllRecordsInOrderAndReports(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	// An earlier run by another model makes case_a comparable.
	_, err := st.RecordResult(ctx, store.RunInput{ToolName: ToolCommit, CaseName: "case_a", Model: "older", Score: 40})
	require.NoError(t, err)

	var calls atomic.Int32
	gen := GeneratorFunc(func(_ context.Context, req GenerateRequest) (string, error) {
		calls.Add(1)
		if strings.Contains(req.Diff, "broken") {
			return "", errors.New("generator crashed")
		}
		return "feat: change", nil
	})
	scores := map[string]int{"case_a": 80, "case_c": 90}
	judge := JudgeFunc(func(_ context.Context, req JudgeRequest) (Evaluation, error) {
		var expected []string
		for _, c := range []string{"case_a", "case_c"} {
			if strings.Contains(string(req.Expected), c) {
				expected = append(expected, c)
			}
		}
		return Evaluation{Score: scores[expected[0]], Reasoning: "ok"}, nil
	})
	cases := []Case{
		{Name: "case_a", Diff: sampleDiff, Expected: []byte(`["case_a"]`)},
		{Name: "case_b", Diff: "diff --git a/broken b/broken\n", Expected: []byte(`[]`)},
		{Name: "case_c", Diff: sampleDiff, Expected: []byte(`["case_c"]`)},
	}
	r := NewRunner(st, gen, judge, WithConcurrency(3))

	report, err := r.RunAll(ctx, ToolCommit, "new", cases)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, report.Results, 2)
	assert.Equal(t, "case_a", report.Results[0].Case)
	assert.Equal(t, "case_c", report.Results[1].Case)
	assert.Less(t, report.Results[0].RunID, report.Results[1].RunID)
	assert.InDelta(t, 85.0, report.AverageScore, 1e-9)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "case_b", report.Failures[0].Case)
	assert.Equal(t, r.SessionID(), report.SessionID)

	require.Contains(t, report.Comparisons, "case_a")
	assert.NotContains(t, report.Comparisons, "case_c")
	assert.Equal(t, 80, report.Comparisons["case_a"]["new"].Score)
	assert.Equal(t, 40, report.Comparisons["case_a"]["older"].Score)
}

func TestRunAllStopsOnCancel(t *testing.T) {
	st := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	gen := GeneratorFunc(func(ctx context.Context, _ GenerateRequest) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	r := NewRunner(st, gen, fixedJudge(1))
	_, err := r.RunAll(ctx, ToolCommit, "m", []Case{testCase("a"), testCase("b")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStatusLines(t *testing.T) {
	diff := "diff --git a/z.go b/z.go\n+z\ndiff --git a/a.go b/a.go\n+a\n"
	assert.Equal(t, "M  a.go\nM  z.go", statusLines(diff))
	assert.Equal(t, "", statusLines("no diff"))
}
