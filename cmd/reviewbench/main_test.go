package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/ncruces/go-sqlite3/vfs/memdb"

	"github.com/wilhg/reviewbench/pkg/errmodel"
	"github.com/wilhg/reviewbench/pkg/store"
	"github.com/wilhg/reviewbench/pkg/store/entstore"
)

const lockDiff = "diff --git a/app.py b/app.py\n" +
	"+x = 2\n" +
	"diff --git a/uv.lock b/uv.lock\n" +
	"+hash\n"

// execute runs the CLI against a per-test in-memory database.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	name := strings.ReplaceAll(t.Name(), "/", "_")
	url := "sqlite:file:/" + name + ".db?vfs=memdb&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_fk=1"
	t.Setenv("REVIEWBENCH_DATABASE_URL", url)

	// Hold a connection so the in-memory database outlives each command.
	keep, err := entstore.Open(t.Context(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = keep.Close() })
	require.NoError(t, keep.Migrate(t.Context()))
	return run(t, stdin, args...)
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}

func TestFilterDiffFromStdin(t *testing.T) {
	out, errOut, err := execute(t, lockDiff, "filter-diff")
	require.NoError(t, err)
	// The final newline belongs to the dropped uv.lock segment.
	assert.Equal(t, "diff --git a/app.py b/app.py\n+x = 2", out)
	assert.Contains(t, errOut, "ignored uv.lock")
}

func TestFilterDiffIgnoreFlagReplacesDefaults(t *testing.T) {
	out, _, err := execute(t, lockDiff, "filter-diff", "--ignore", "app.py")
	require.NoError(t, err)
	assert.Equal(t, "diff --git a/uv.lock b/uv.lock\n+hash\n", out)
}

func TestExtractVerdict(t *testing.T) {
	out, _, err := execute(t, "Looks good.\n**Score:** +2\n", "extract-verdict")
	require.NoError(t, err)
	assert.Equal(t, "+2\n", out)

	out, _, err = run(t, "nothing here", "extract-verdict", "-o", "json")
	require.NoError(t, err)
	var v verdictResult
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, verdictResult{Score: 0, Found: false}, v)
}

func TestResultsAndSummary(t *testing.T) {
	dir := t.TempDir()
	casesDir := filepath.Join(dir, "cases")
	for _, c := range []string{"case_1", "case_2"} {
		require.NoError(t, os.MkdirAll(filepath.Join(casesDir, c), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(casesDir, c, "diff.txt"), []byte(lockDiff), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(casesDir, c, "expected_elements.json"), []byte(`["summary"]`), 0o644))
	}
	judge := `printf '{"score": 70, "reasoning": "fine", "elements_present": ["summary"], "elements_missing": []}'`

	out, _, err := execute(t, "", "run",
		"--tool", "review_changes",
		"--model", "m1",
		"--cases-dir", casesDir,
		"--generator-cmd", "printf 'Nice.\\nScore: -1\\n'",
		"--judge-cmd", judge,
		"-o", "json")
	require.NoError(t, err)
	var report struct {
		Results []struct {
			Case        string `json:"case"`
			Score       int    `json:"score"`
			GerritScore *int   `json:"gerrit_score"`
		} `json:"results"`
		AverageScore float64 `json:"average_score"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Results, 2)
	assert.Equal(t, "case_1", report.Results[0].Case)
	require.NotNil(t, report.Results[0].GerritScore)
	assert.Equal(t, -1, *report.Results[0].GerritScore)
	assert.InDelta(t, 70.0, report.AverageScore, 1e-9)

	out, _, err = run(t, "", "results", "--case", "case_2", "-o", "json")
	require.NoError(t, err)
	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "m1", runs[0].Model)
	assert.True(t, store.Strings("uv.lock").Equal(runs[0].Metadata["ignored_files"]))

	out, _, err = run(t, "", "summary", "--group-by", "case_name", "-o", "json")
	require.NoError(t, err)
	var rows []store.SummaryRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "case_1", rows[0].Key)
	assert.Equal(t, 1, rows[0].Count)

	out, _, err = run(t, "", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "MODEL")
	assert.Contains(t, out, "m1")
}

func TestSummaryRejectsUnknownGroupBy(t *testing.T) {
	_, _, err := execute(t, "", "summary", "--group-by", "tool_name")
	require.Error(t, err)
	assert.True(t, errmodel.IsInvalidArgument(err), "%v", err)
}

func TestUnknownOutputFormat(t *testing.T) {
	_, _, err := execute(t, "", "results", "-o", "xml")
	require.ErrorContains(t, err, "unknown output format")
}

func TestCasesListsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "only"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "only", "diff.txt"), []byte(lockDiff), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "only", "expected_elements.json"), []byte(`["a","b"]`), 0o644))

	out, _, err := execute(t, "", "cases", dir, "-o", "json")
	require.NoError(t, err)
	var infos []caseInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, caseInfo{
		Name:     "only",
		Files:    []string{"app.py", "uv.lock"},
		Ignored:  []string{"uv.lock"},
		Expected: []string{"a", "b"},
	}, infos[0])
}
