package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/schedsvc"
)

// classTypes are the class names offered as book-class actions.
var classTypes = []string{
	"CrossFit", "Weightlifting", "Open Fridge", "Open Gym",
	"Gymnastics", "Strongmen", "Yoga", "Swim WOD",
}

func providerFor(action event.ActionType, name, password, platform string) schedsvc.Provider {
	p := schedsvc.Provider{
		Platform:   platform,
		Credential: true,
		Name:       name,
		Password:   password,
	}
	const week = 7 * 24
	if action == event.FetchWOD {
		p.Description = "Fetch the workout of the day from Wodify and store it in the diary."
		p.Actions = []schedsvc.ActionDef{{
			Name:         "Metcon",
			Description:  "Fetch and save the metcon description and results for the current day.",
			CreateBefore: week,
			DeleteAfter:  24,
		}}
		return p
	}
	p.Description = "Reserve Wodify classes as soon as registration opens."
	for _, c := range classTypes {
		p.Actions = append(p.Actions, schedsvc.ActionDef{
			Name:         c,
			Description:  fmt.Sprintf("Reserve a spot in a %s class.", c),
			CreateBefore: week,
		})
	}
	return p
}

func newSetupCmd() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the platform, this action provider and its actions with the scheduling service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			reg, err := newClient(cfg).Setup(ctx, providerFor(cfg.Action, cfg.APName, cfg.APPassword, platform))
			if err != nil {
				return err
			}
			log.Info().Int64("platform_id", reg.PlatformID).Int64("provider_id", reg.ProviderID).Msg("registered")

			names := make([]string, 0, len(reg.ActionIDs))
			for n := range reg.ActionIDs {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "action id=%d name=%q\n", reg.ActionIDs[n], n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "wodify", "platform name")
	return cmd
}
