package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wilhg/reviewbench/internal/config"
	"github.com/wilhg/reviewbench/pkg/logging"
	evotel "github.com/wilhg/reviewbench/pkg/otel"
	"github.com/wilhg/reviewbench/pkg/store/entstore"
)

// app holds what the subcommands share. It is built by the root command's
// PersistentPreRunE and torn down in PersistentPostRunE.
type app struct {
	v       *viper.Viper
	cfgFile string
	output  string

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg      config.Config
	logger   *zap.Logger
	shutdown func(context.Context) error
	st       *entstore.Store
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), in: in, out: out, errOut: errOut, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "reviewbench",
		Short:         "Record, summarize and compare evaluation runs of commit and review tools",
		Version:       fmt.Sprintf("%s (commit=%s, date=%s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./reviewbench.yaml)")
	pf.StringVarP(&a.output, "output", "o", "table", "output format (table, json, yaml)")
	pf.String("database-url", "", "database URL (sqlite:<dsn> or postgres://...)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.Bool("otel-stdout", false, "export trace spans to stderr")
	_ = a.v.BindPFlag("database.url", pf.Lookup("database-url"))
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = a.v.BindPFlag("otel.stdout", pf.Lookup("otel-stdout"))

	root.AddCommand(
		newMigrateCmd(a),
		newResultsCmd(a),
		newSummaryCmd(a),
		newCompareCmd(a),
		newMetricsCmd(a),
		newFilterDiffCmd(a),
		newExtractVerdictCmd(a),
		newCasesCmd(a),
		newRunCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context) error {
	if _, err := parseFormat(a.output); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	a.logger = logger
	shutdown, err := evotel.Init(ctx, evotel.Config{
		ServiceName:    cfg.Otel.ServiceName,
		ServiceVersion: version,
		UseStdout:      cfg.Otel.Stdout,
		Writer:         a.errOut,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

// store opens and migrates the configured database on first use.
func (a *app) store(ctx context.Context) (*entstore.Store, error) {
	if a.st != nil {
		return a.st, nil
	}
	st, err := entstore.Open(ctx, a.cfg.Database.URL, entstore.WithLogger(a.logger.Named("store")))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	a.st = st
	return st, nil
}

func (a *app) close(ctx context.Context) error {
	var firstErr error
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			firstErr = err
		}
		a.st = nil
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		a.shutdown = nil
	}
	_ = a.logger.Sync()
	return firstErr
}
