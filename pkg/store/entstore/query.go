package entstore

import (
	"context"

	entsql "entgo.io/ent/dialect/sql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	evotel "github.com/wilhg/reviewbench/pkg/otel"
	"github.com/wilhg/reviewbench/pkg/store"
)

// GetResults lists runs matching every non-empty filter, newest first.
// Runs with the same timestamp are ordered by descending identity.
func (s *Store) GetResults(ctx context.Context, q store.ResultQuery) ([]store.Run, error) {
	limit := q.EffectiveLimit()
	ctx, span := s.tracer.Start(ctx, "entstore.GetResults",
		trace.WithAttributes(append(evotel.EvalAttributes(q.ToolName, q.CaseName, q.Model), attribute.Int("limit", limit))...))
	defer span.End()

	b := s.builder()
	t := b.Table(tableRuns)
	sel := b.Select(runColumns(t)...).From(t)
	for _, p := range filters(t, q.ToolName, q.CaseName, q.Model) {
		sel.Where(p)
	}
	query, args := sel.
		OrderBy(entsql.Desc(t.C(colTimestamp)), entsql.Desc(t.C(colID))).
		Limit(limit).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, "query runs", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, fail(span, "scan runs", err)
	}
	return runs, nil
}

// filters builds equality predicates for the non-empty run filters.
func filters(t *entsql.SelectTable, toolName, caseName, model string) []*entsql.Predicate {
	var preds []*entsql.Predicate
	if toolName != "" {
		preds = append(preds, entsql.EQ(t.C(colToolName), toolName))
	}
	if caseName != "" {
		preds = append(preds, entsql.EQ(t.C(colCaseName), caseName))
	}
	if model != "" {
		preds = append(preds, entsql.EQ(t.C(colModel), model))
	}
	return preds
}
