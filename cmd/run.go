package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/metrics"
)

func newRunCmd() *cobra.Command {
	var (
		action      string
		interactive bool
		migrateUp   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute every event due in the next 24 hours, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if action != "" {
				a, err := event.ParseAction(action)
				if err != nil {
					return err
				}
				cfg.SetAction(a)
			}
			if interactive {
				cfg.Headless = false
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			store, d, err := openLedger(ctx, cfg, log, migrateUp)
			if err != nil {
				return err
			}
			if d != nil {
				defer d.Close()
			}

			log = log.With().Str("provider", cfg.APName).Logger()
			sum, err := newRunner(cfg, log, store, metrics.New()).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run=%s events=%d succeeded=%d acknowledged=%d report_failed=%d login_failed=%d not_found=%d transient=%d expired=%d skipped=%d\n",
				sum.RunID, sum.Fetched, sum.Succeeded, sum.Acknowledged, sum.ReportFailed, sum.LoginFailed, sum.NotFound, sum.Transient, sum.Expired, sum.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "action type to execute (book-class or fetch-wod); defaults to ACTION")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "show the browser window")
	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}
