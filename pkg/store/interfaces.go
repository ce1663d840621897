package store

import "context"

// Recorder persists runs.
type Recorder interface {
	RecordResult(ctx context.Context, in RunInput) (int64, error)
}

// Reader lists recorded runs and their metrics.
type Reader interface {
	GetResults(ctx context.Context, q ResultQuery) ([]Run, error)
	Metrics(ctx context.Context, runID int64) ([]Metric, error)
}

// Reporter answers cross-run aggregation queries.
type Reporter interface {
	GetSummary(ctx context.Context, toolName string, groupBy GroupBy) ([]SummaryRow, error)
	CompareModels(ctx context.Context, toolName, caseName string, models []string) (map[string]Run, error)
}

// Store aggregates the recording, reading and reporting operations.
type Store interface {
	Recorder
	Reader
	Reporter
}
