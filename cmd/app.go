package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/wodify-ap/internal/config"
	"github.com/example/wodify-ap/internal/db"
	"github.com/example/wodify-ap/internal/executor"
	"github.com/example/wodify-ap/internal/ledger"
	"github.com/example/wodify-ap/internal/logging"
	"github.com/example/wodify-ap/internal/metrics"
	"github.com/example/wodify-ap/internal/migrate"
	"github.com/example/wodify-ap/internal/runner"
	"github.com/example/wodify-ap/internal/schedsvc"
	"github.com/example/wodify-ap/internal/strategy"
	"github.com/example/wodify-ap/internal/uisession"
)

func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, log, nil
}

// openLedger connects to Postgres when DATABASE_URL is set and falls back to
// an in-memory ledger otherwise. The returned DB is nil in the fallback case.
func openLedger(ctx context.Context, cfg config.Config, log zerolog.Logger, migrateUp bool) (ledger.Store, *db.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, execution ledger is kept in memory")
		return ledger.NewMemory(0), nil, nil
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if migrateUp {
		if _, err := migrate.Up(ctx, d, log); err != nil {
			d.Close()
			return nil, nil, err
		}
	}
	return ledger.NewPostgres(d), d, nil
}

func newClient(cfg config.Config) *schedsvc.Client {
	return schedsvc.New(cfg.ServerURL, cfg.APName, cfg.APPassword)
}

func newSource(cfg config.Config, client *schedsvc.Client, log zerolog.Logger) *schedsvc.Source {
	return &schedsvc.Source{
		Client:   client,
		Action:   cfg.Action,
		Location: cfg.Location,
		Log:      log,
	}
}

func newRunner(cfg config.Config, log zerolog.Logger, store ledger.Store, m *metrics.Metrics) *runner.Runner {
	client := newClient(cfg)
	browser := uisession.NewChrome(uisession.ChromeOptions{
		Headless:  cfg.Headless,
		RemoteURL: cfg.RemoteURL,
		UserAgent: cfg.Site.UserAgent,
	}, log)
	wod := strategy.NewFetchWOD(cfg.Site.WodURL, cfg.Site.WodSelectors(), cfg.LoginProbe)
	wod.ResultsURL = cfg.Site.ResultsURL
	wod.RequireResult = cfg.RequireWodResult
	strategies := strategy.NewRegistry(
		strategy.NewBookClass(cfg.Site.ScheduleURL, cfg.Site.ScheduleSelectors()),
		wod,
	)
	exec := executor.New(browser, strategies, executor.Config{
		Login:           cfg.Site.LoginForm(),
		LoginProbe:      cfg.LoginProbe,
		WaitGranularity: cfg.WaitGranularity,
		AttemptDeadline: cfg.AttemptDeadline,
		AttemptInterval: cfg.AttemptInterval,
	}, executor.RealClock{}, log)

	return &runner.Runner{
		Source:   newSource(cfg, client, log),
		Executor: exec,
		Reporter: client,
		Sink:     client,
		Ledger:   store,
		Metrics:  m,
		Log:      log,
	}
}
