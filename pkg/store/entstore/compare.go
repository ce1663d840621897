package entstore

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	evotel "github.com/wilhg/reviewbench/pkg/otel"
	"github.com/wilhg/reviewbench/pkg/store"
)

// CompareModels returns, per model, the most recently inserted run for the
// given tool and case. Tool and case always match exactly, so empty names
// only match runs recorded with empty names. Recency is decided by identity,
// not timestamp. An empty models list compares every model that has a
// matching run.
func (s *Store) CompareModels(ctx context.Context, toolName, caseName string, models []string) (map[string]store.Run, error) {
	ctx, span := s.tracer.Start(ctx, "entstore.CompareModels",
		trace.WithAttributes(append(evotel.EvalAttributes(toolName, caseName, ""), attribute.StringSlice("models", models))...))
	defer span.End()

	b := s.builder()
	latest := b.Table(tableRuns).As("latest")
	inner := b.Select(entsql.Max(latest.C(colID))).From(latest)
	inner.Where(entsql.And(
		entsql.EQ(latest.C(colToolName), toolName),
		entsql.EQ(latest.C(colCaseName), caseName),
	))
	if len(models) > 0 {
		args := make([]any, len(models))
		for i, m := range models {
			args[i] = m
		}
		inner.Where(entsql.In(latest.C(colModel), args...))
	}
	inner.GroupBy(latest.C(colModel))

	t := b.Table(tableRuns)
	query, args := b.Select(runColumns(t)...).
		From(t).
		Where(entsql.In(t.C(colID), inner)).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, "query latest runs", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, fail(span, "scan latest runs", err)
	}
	out := make(map[string]store.Run, len(runs))
	for _, r := range runs {
		out[r.Model] = r
	}
	return out, nil
}
