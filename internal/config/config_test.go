package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/reviewbench/pkg/gitdiff"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Contains(t, cfg.Database.URL, "sqlite:file:evals/storage/results.db")
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, gitdiff.DefaultIgnorePatterns, cfg.Diff.IgnorePatterns)
	assert.Equal(t, 1, cfg.Eval.Concurrency)
	assert.Equal(t, 10, cfg.Eval.VerdictLines)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://bench@localhost/bench
log:
  level: debug
diff:
  ignore_patterns: [".lock", "vendor/"]
eval:
  concurrency: 4
`), 0o644))
	t.Setenv("REVIEWBENCH_LOG_FORMAT", "json")
	t.Setenv("REVIEWBENCH_EVAL_CONCURRENCY", "2")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://bench@localhost/bench", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{".lock", "vendor/"}, cfg.Diff.IgnorePatterns)
	assert.Equal(t, 2, cfg.Eval.Concurrency)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REVIEWBENCH_EVAL_CONCURRENCY", "0")
	_, err := Load(viper.New(), "")
	require.Error(t, err)
}
