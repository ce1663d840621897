// Package store defines the evaluation run records and the persistence
// interfaces shared by every backend. Implementations must provide identical
// semantics so reports do not depend on where results were recorded.
package store

import (
	"fmt"
	"time"
)

// DefaultResultLimit applies when a ResultQuery carries no positive limit.
const DefaultResultLimit = 10

// Run is one recorded evaluation outcome.
type Run struct {
	ID        int64     `json:"id" yaml:"id"`
	ToolName  string    `json:"tool_name" yaml:"tool_name"`
	CaseName  string    `json:"case_name" yaml:"case_name"`
	Model     string    `json:"model" yaml:"model"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Score     int       `json:"score" yaml:"score"`
	Output    string    `json:"output" yaml:"output"`
	Metadata  Metadata  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// RunInput carries the caller supplied fields of a new run. Metrics are
// stored as separate rows referencing the run.
type RunInput struct {
	ToolName string
	CaseName string
	Model    string
	Score    int
	Output   string
	Metadata Metadata
	Metrics  map[string]float64
}

// Metric is an auxiliary numeric measurement attached to a run.
type Metric struct {
	ID    int64   `json:"id" yaml:"id"`
	RunID int64   `json:"run_id" yaml:"run_id"`
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// ResultQuery filters GetResults. Empty strings do not filter.
type ResultQuery struct {
	ToolName string
	CaseName string
	Model    string
	Limit    int
}

// EffectiveLimit returns Limit, or DefaultResultLimit when Limit <= 0.
func (q ResultQuery) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultResultLimit
	}
	return q.Limit
}

// GroupBy selects the dimension aggregated by GetSummary.
type GroupBy string

const (
	GroupByModel GroupBy = "model"
	GroupByCase  GroupBy = "case_name"
)

// Column returns the storage column for g.
func (g GroupBy) Column() (string, error) {
	switch g {
	case GroupByModel, GroupByCase:
		return string(g), nil
	default:
		return "", fmt.Errorf("unsupported group_by %q", string(g))
	}
}

// SummaryRow aggregates the scores of one group.
type SummaryRow struct {
	Key      string  `json:"key" yaml:"key"`
	AvgScore float64 `json:"avg_score" yaml:"avg_score"`
	MinScore int     `json:"min_score" yaml:"min_score"`
	MaxScore int     `json:"max_score" yaml:"max_score"`
	Count    int     `json:"count" yaml:"count"`
}
