package eval

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/wilhg/reviewbench/pkg/errmodel"
	"github.com/wilhg/reviewbench/pkg/store"
)

// GenerateRequest is what the tool under test receives. Diff and StagedDiff
// carry the same filtered diff; Status is a synthetic porcelain listing.
type GenerateRequest struct {
	Tool       string
	Model      string
	Diff       string
	StagedDiff string
	Status     string
}

// Generator produces the output being evaluated, such as a commit message
// or a code review.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// JudgeRequest is what the external judge grades.
type JudgeRequest struct {
	Tool     string
	Diff     string
	Expected json.RawMessage
	Output   string
}

// Judge grades an output.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (Evaluation, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, req JudgeRequest) (Evaluation, error)

func (f JudgeFunc) Judge(ctx context.Context, req JudgeRequest) (Evaluation, error) {
	return f(ctx, req)
}

// Evaluation is the judge's verdict on one output.
type Evaluation struct {
	Score           int      `json:"score"`
	Reasoning       string   `json:"reasoning"`
	GerritScore     *int     `json:"gerrit_score,omitempty"`
	ElementsPresent []string `json:"elements_present,omitempty"`
	ElementsMissing []string `json:"elements_missing,omitempty"`
}

// failedEvaluation is recorded when the judge cannot be reached or answers
// with something unusable.
func failedEvaluation(err error) Evaluation {
	return Evaluation{Score: 0, Reasoning: "evaluation error: " + err.Error()}
}

// Value converts e into a metadata value.
func (e Evaluation) Value() store.Value {
	m := map[string]store.Value{
		"score":            store.Int(e.Score),
		"reasoning":        store.String(e.Reasoning),
		"elements_present": store.Strings(e.ElementsPresent...),
		"elements_missing": store.Strings(e.ElementsMissing...),
	}
	if e.GerritScore != nil {
		m["gerrit_score"] = store.Int(*e.GerritScore)
	}
	return store.Map(m)
}

// ParseEvaluation extracts the first JSON object embedded in text, checks
// it against the evaluation schema and decodes it. Fractional scores are
// rounded.
func ParseEvaluation(text string) (Evaluation, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Evaluation{}, errmodel.Judge("no JSON object in judge response", nil, nil)
	}
	raw := []byte(text[start : end+1])
	if err := validateJSON(evaluationSchema, raw); err != nil {
		return Evaluation{}, errmodel.Judge("judge response does not match evaluation schema", nil, err)
	}
	var wire struct {
		Score           float64  `json:"score"`
		Reasoning       string   `json:"reasoning"`
		GerritScore     *float64 `json:"gerrit_score"`
		ElementsPresent []string `json:"elements_present"`
		ElementsMissing []string `json:"elements_missing"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Evaluation{}, errmodel.Judge("decode evaluation", nil, err)
	}
	var gerrit *int
	if wire.GerritScore != nil {
		g := int(math.Round(*wire.GerritScore))
		gerrit = &g
	}
	return Evaluation{
		Score:           int(math.Round(wire.Score)),
		Reasoning:       wire.Reasoning,
		GerritScore:     gerrit,
		ElementsPresent: wire.ElementsPresent,
		ElementsMissing: wire.ElementsMissing,
	}, nil
}
