package entstore

import (
	"context"
	"database/sql"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wilhg/reviewbench/pkg/errmodel"
	evotel "github.com/wilhg/reviewbench/pkg/otel"
	"github.com/wilhg/reviewbench/pkg/store"
)

// RecordResult inserts a run and its metrics in one transaction and returns
// the identity assigned to the run.
func (s *Store) RecordResult(ctx context.Context, in store.RunInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "entstore.RecordResult",
		trace.WithAttributes(evotel.EvalAttributes(in.ToolName, in.CaseName, in.Model)...))
	defer span.End()

	meta, err := store.EncodeMetadata(in.Metadata)
	if err != nil {
		span.RecordError(err)
		return 0, errmodel.New(errmodel.CategoryValidation, errmodel.CodeInvalidArgument, "metadata is not serializable", nil, err)
	}
	if in.Score < 1 || in.Score > 100 {
		s.logger.Warn("score outside 1-100",
			zap.String("tool", in.ToolName), zap.String("case", in.CaseName), zap.Int("score", in.Score))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fail(span, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var metaArg any
	if meta != "" {
		metaArg = meta
	}
	ts := s.now().UTC()
	q, args := s.builder().Insert(tableRuns).
		Columns(colToolName, colCaseName, colModel, colTimestamp, colScore, colOutput, colMetadata).
		Values(in.ToolName, in.CaseName, in.Model, ts.UnixNano(), in.Score, in.Output, metaArg).
		Returning(colID).
		Query()
	var id int64
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
		return 0, fail(span, "insert run", err)
	}

	names := make([]string, 0, len(in.Metrics))
	for name := range in.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		q, args := s.builder().Insert(tableMetrics).
			Columns(colRunID, colMetricName, colValue).
			Values(id, name, in.Metrics[name]).
			Query()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, fail(span, "insert metric", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fail(span, "commit run", err)
	}

	s.logger.Debug("recorded run",
		zap.Int64("run_id", id),
		zap.String("tool", in.ToolName),
		zap.String("case", in.CaseName),
		zap.String("model", in.Model),
		zap.Int("score", in.Score),
		zap.Int("metrics", len(names)))
	return id, nil
}

// Metrics returns the metrics of a run ordered by name.
func (s *Store) Metrics(ctx context.Context, runID int64) ([]store.Metric, error) {
	ctx, span := s.tracer.Start(ctx, "entstore.Metrics")
	defer span.End()

	b := s.builder()
	t := b.Table(tableMetrics)
	q, args := b.Select(t.C(colID), t.C(colRunID), t.C(colMetricName), t.C(colValue)).
		From(t).
		Where(entsql.EQ(t.C(colRunID), runID)).
		OrderBy(entsql.Asc(t.C(colMetricName)), entsql.Asc(t.C(colID))).
		Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fail(span, "query metrics", err)
	}
	defer rows.Close()

	out := []store.Metric{}
	for rows.Next() {
		var m store.Metric
		if err := rows.Scan(&m.ID, &m.RunID, &m.Name, &m.Value); err != nil {
			return nil, fail(span, "scan metric", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, "iterate metrics", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun reads one row selected with runColumns.
func scanRun(sc scanner) (store.Run, error) {
	var (
		r    store.Run
		ts   int64
		meta sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.ToolName, &r.CaseName, &r.Model, &ts, &r.Score, &r.Output, &meta); err != nil {
		return store.Run{}, err
	}
	r.Timestamp = time.Unix(0, ts).UTC()
	if meta.Valid {
		m, err := store.DecodeMetadata(meta.String)
		if err != nil {
			return store.Run{}, err
		}
		r.Metadata = m
	}
	return r, nil
}

func scanRuns(rows *sql.Rows) ([]store.Run, error) {
	out := []store.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
