package entstore

import (
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names.
const (
	tableRuns    = "eval_runs"
	tableMetrics = "eval_metrics"

	colID        = "id"
	colToolName  = "tool_name"
	colCaseName  = "case_name"
	colModel     = "model"
	colTimestamp = "timestamp"
	colScore     = "score"
	colOutput    = "output"
	colMetadata  = "metadata_json"

	colRunID      = "run_id"
	colMetricName = "metric_name"
	colValue      = "value"
)

// textSize pushes string columns past the varchar limit so PostgreSQL uses text.
const textSize = 1 << 30

// Tables returns a fresh description of the evaluation schema. The
// timestamp column holds Unix nanoseconds so ordering is exact on every
// backend.
func Tables() []*schema.Table {
	runID := &schema.Column{Name: colID, Type: field.TypeInt64, Increment: true}
	runs := schema.NewTable(tableRuns).
		AddPrimary(runID).
		AddColumn(&schema.Column{Name: colToolName, Type: field.TypeString, Size: 255}).
		AddColumn(&schema.Column{Name: colCaseName, Type: field.TypeString, Size: 255}).
		AddColumn(&schema.Column{Name: colModel, Type: field.TypeString, Size: 255}).
		AddColumn(&schema.Column{Name: colTimestamp, Type: field.TypeInt64}).
		AddColumn(&schema.Column{Name: colScore, Type: field.TypeInt32}).
		AddColumn(&schema.Column{Name: colOutput, Type: field.TypeString, Size: textSize}).
		AddColumn(&schema.Column{Name: colMetadata, Type: field.TypeString, Size: textSize, Nullable: true})
	runs.AddIndex("evalrun_tool_name_case_name_model", false, []string{colToolName, colCaseName, colModel})
	runs.AddIndex("evalrun_model", false, []string{colModel})
	runs.AddIndex("evalrun_timestamp", false, []string{colTimestamp})

	metricRun := &schema.Column{Name: colRunID, Type: field.TypeInt64}
	metrics := schema.NewTable(tableMetrics).
		AddPrimary(&schema.Column{Name: colID, Type: field.TypeInt64, Increment: true}).
		AddColumn(metricRun).
		AddColumn(&schema.Column{Name: colMetricName, Type: field.TypeString, Size: 255}).
		AddColumn(&schema.Column{Name: colValue, Type: field.TypeFloat64})
	metrics.AddForeignKey(&schema.ForeignKey{
		Symbol:     "eval_metrics_eval_runs_metrics",
		Columns:    []*schema.Column{metricRun},
		RefTable:   runs,
		RefColumns: []*schema.Column{runID},
		OnDelete:   schema.NoAction,
	})
	metrics.AddIndex("evalmetric_run_id", false, []string{colRunID})

	return []*schema.Table{runs, metrics}
}

// runColumns lists the eval_runs columns in scanRun order.
func runColumns(t *entsql.SelectTable) []string {
	return []string{
		t.C(colID),
		t.C(colToolName),
		t.C(colCaseName),
		t.C(colModel),
		t.C(colTimestamp),
		t.C(colScore),
		t.C(colOutput),
		t.C(colMetadata),
	}
}
