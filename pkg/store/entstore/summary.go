package entstore

import (
	"context"
	"sort"

	entsql "entgo.io/ent/dialect/sql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/reviewbench/pkg/errmodel"
	"github.com/wilhg/reviewbench/pkg/store"
)

// GetSummary aggregates scores per model or per case, optionally restricted
// to one tool. Rows are ordered by average score descending, then key.
func (s *Store) GetSummary(ctx context.Context, toolName string, groupBy store.GroupBy) ([]store.SummaryRow, error) {
	col, err := groupBy.Column()
	if err != nil {
		return nil, errmodel.InvalidArgument(err.Error(), map[string]any{"group_by": string(groupBy)})
	}
	ctx, span := s.tracer.Start(ctx, "entstore.GetSummary",
		trace.WithAttributes(attribute.String("eval.tool", toolName), attribute.String("group_by", col)))
	defer span.End()

	b := s.builder()
	t := b.Table(tableRuns)
	sel := b.Select(
		t.C(col),
		entsql.Sum(t.C(colScore)),
		entsql.Min(t.C(colScore)),
		entsql.Max(t.C(colScore)),
		entsql.Count(t.C(colID)),
	).From(t).GroupBy(t.C(col))
	if toolName != "" {
		sel.Where(entsql.EQ(t.C(colToolName), toolName))
	}
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, "query summary", err)
	}
	defer rows.Close()

	out := []store.SummaryRow{}
	for rows.Next() {
		var (
			row      store.SummaryRow
			sum, cnt int64
		)
		if err := rows.Scan(&row.Key, &sum, &row.MinScore, &row.MaxScore, &cnt); err != nil {
			return nil, fail(span, "scan summary", err)
		}
		row.Count = int(cnt)
		if cnt > 0 {
			row.AvgScore = float64(sum) / float64(cnt)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, "iterate summary", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AvgScore != out[j].AvgScore {
			return out[i].AvgScore > out[j].AvgScore
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}
