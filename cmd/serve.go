package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/wodify-ap/internal/auth"
	"github.com/example/wodify-ap/internal/metrics"
	"github.com/example/wodify-ap/internal/web"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine every POLL_SECONDS and serve the operator status UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireStatusUI(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			store, d, err := openLedger(ctx, cfg, log, migrateUp)
			if err != nil {
				return err
			}
			defer d.Close()

			m := metrics.New()
			r := newRunner(cfg, log.With().Str("provider", cfg.APName).Logger(), store, m)
			go func() { _ = r.Loop(ctx, cfg.PollInterval) }()

			ws := &web.Server{
				Auth:    auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey),
				Ledger:  store,
				Metrics: m,
				Health:  d.Ping,
				Log:     log,
			}
			return web.Start(ctx, cfg.ListenAddr, ws.Routes(), log)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}
