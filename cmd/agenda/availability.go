package main

import (
	"fmt"
	"io"
	"time"

	"agenda/pkg/config"
	"agenda/pkg/model"

	"github.com/spf13/cobra"
)

func newAvailabilityCmd() *cobra.Command {
	var (
		serviceName string
		from        string
		days        int
		durationMin int
	)

	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print the bookable start times of a service on a fresh calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(ServiceName)
			cfg.SetMongo()
			defer cfg.GracefulShutdown()

			mgr, err := newManager(cfg)
			if err != nil {
				return err
			}

			loc := cfg.Location
			start := time.Now().In(loc)
			if from != "" {
				start, err = time.ParseInLocation(time.DateOnly, from, loc)
				if err != nil {
					return fmt.Errorf("invalid --from date: %w", err)
				}
			}
			y, m, d := start.Date()
			start = time.Date(y, m, d, 0, 0, 0, 0, loc)
			end := start.AddDate(0, 0, days).Add(-time.Minute)

			q := &model.AvailabilityQuery{
				ServiceName:  serviceName,
				MinStartTime: start,
				MaxStartTime: &end,
			}
			if durationMin > 0 {
				q.DurationMin = &durationMin
			}

			availability, err := mgr.AvailableDatetimes(cmd.Context(), q)
			if err != nil {
				return err
			}
			printAvailability(cmd.OutOrStdout(), availability, loc)
			return nil
		},
	}

	cmd.Flags().StringVar(&serviceName, "service", "", "service to look up (required)")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&days, "days", 1, "number of days to search")
	cmd.Flags().IntVar(&durationMin, "duration", 0, "override the service duration in minutes")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func printAvailability(w io.Writer, a *model.Availability, loc *time.Location) {
	fmt.Fprintf(w, "default (%d):\n", len(a.Default))
	for _, t := range a.Default {
		fmt.Fprintf(w, "  %s\n", t.In(loc).Format("Mon 2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "special (%d):\n", len(a.Special))
	for _, t := range a.Special {
		fmt.Fprintf(w, "  %s\n", t.In(loc).Format("Mon 2006-01-02 15:04"))
	}
}
