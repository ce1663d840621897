// Package config loads reviewbench settings from defaults, an optional YAML
// file, REVIEWBENCH_* environment variables and bound command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/wilhg/reviewbench/pkg/gitdiff"
	"github.com/wilhg/reviewbench/pkg/store/entstore"
	"github.com/wilhg/reviewbench/pkg/verdict"
)

// EnvPrefix prefixes every environment override, e.g. REVIEWBENCH_DATABASE_URL.
const EnvPrefix = "REVIEWBENCH"

// FileName is the config file searched for when no path is given.
const FileName = "reviewbench"

// Config is the resolved configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Diff     DiffConfig     `mapstructure:"diff"`
	Eval     EvalConfig     `mapstructure:"eval"`
	Otel     OtelConfig     `mapstructure:"otel"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type DiffConfig struct {
	IgnorePatterns []string `mapstructure:"ignore_patterns"`
}

type EvalConfig struct {
	CasesDir     string `mapstructure:"cases_dir"`
	Concurrency  int    `mapstructure:"concurrency"`
	VerdictLines int    `mapstructure:"verdict_lines"`
	JudgeModel   string `mapstructure:"judge_model"`
	TokenModel   string `mapstructure:"token_model"`
}

type OtelConfig struct {
	Stdout      bool   `mapstructure:"stdout"`
	ServiceName string `mapstructure:"service_name"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "sqlite:"+entstore.DefaultSQLiteDSN)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("diff.ignore_patterns", gitdiff.DefaultIgnorePatterns)
	v.SetDefault("eval.cases_dir", "evals")
	v.SetDefault("eval.concurrency", 1)
	v.SetDefault("eval.verdict_lines", verdict.StandaloneLines)
	v.SetDefault("eval.judge_model", "")
	v.SetDefault("eval.token_model", "gpt-4o")
	v.SetDefault("otel.stdout", false)
	v.SetDefault("otel.service_name", "reviewbench")
}

// Load resolves configuration into a Config. An explicit path must exist;
// otherwise reviewbench.yaml is looked up in the working directory and in
// the user config directory, and a missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "reviewbench"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database.url must not be empty")
	}
	if c.Eval.Concurrency < 1 {
		return fmt.Errorf("eval.concurrency must be at least 1, got %d", c.Eval.Concurrency)
	}
	if c.Eval.VerdictLines < 1 {
		return fmt.Errorf("eval.verdict_lines must be at least 1, got %d", c.Eval.VerdictLines)
	}
	return nil
}
