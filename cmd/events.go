package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/strategy"
)

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the events the next run would execute (no browser)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			evs, err := newSource(cfg, newClient(cfg), log).Due(ctx)
			if err != nil {
				return err
			}

			lead := time.Duration(0)
			if cfg.Action == event.BookClass {
				lead = strategy.BookingLeadTime
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tACTION\tNAME\tSCHEDULED\tWINDOW OPENS\tUSER")
			for _, ev := range evs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					ev.ID, ev.Action, ev.ActionName,
					ev.ScheduledTime.Format(event.DatetimeLayout),
					ev.ScheduledTime.Add(-lead).Format(event.DatetimeLayout),
					ev.Credentials.Username)
			}
			return w.Flush()
		},
	}
}
