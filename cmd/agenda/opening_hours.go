package main

import (
	"fmt"
	"time"

	"agenda/internal/openinghours"
	"agenda/pkg/config"
	"agenda/pkg/kafka"
	kafka_config "agenda/pkg/kafka/config"
	kafka_middleware "agenda/pkg/kafka/middleware"
	"agenda/pkg/logger"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02T15:04"

// newOpeningHoursCmd publishes opening-hours changes for running services to apply.
func newOpeningHoursCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opening-hours",
		Short: "Publish opening hours changes to Kafka",
	}

	var start, end string
	window := func(action openinghours.Action) *cobra.Command {
		c := &cobra.Command{
			Use:   string(action),
			Short: fmt.Sprintf("Publish an opening window %s", action),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.Load(ServiceName)
				s, err := time.ParseInLocation(timeLayout, start, cfg.Location)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				e, err := time.ParseInLocation(timeLayout, end, cfg.Location)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				return publishChange(cmd, cfg.Log, openinghours.Change{Action: action, Start: s, End: e})
			},
		}
		c.Flags().StringVar(&start, "start", "", "window start, YYYY-MM-DDTHH:MM (required)")
		c.Flags().StringVar(&end, "end", "", "window end, YYYY-MM-DDTHH:MM (required)")
		_ = c.MarkFlagRequired("start")
		_ = c.MarkFlagRequired("end")
		return c
	}

	var from string
	var days int
	extend := &cobra.Command{
		Use:   string(openinghours.ActionExtend),
		Short: "Publish a request to open the default hours for more days",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(ServiceName)
			f, err := time.ParseInLocation(time.DateOnly, from, cfg.Location)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			return publishChange(cmd, cfg.Log, openinghours.Change{Action: openinghours.ActionExtend, From: f, Days: days})
		},
	}
	extend.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (required)")
	extend.Flags().IntVar(&days, "days", 7, "number of days")
	_ = extend.MarkFlagRequired("from")

	cmd.AddCommand(window(openinghours.ActionAdd), window(openinghours.ActionRemove), extend)
	return cmd
}

func publishChange(cmd *cobra.Command, log *logger.Logger, change openinghours.Change) error {
	if err := change.Validate(); err != nil {
		return err
	}
	kcfg, err := kafka_config.Load()
	if err != nil {
		return err
	}
	producer, err := kafka.NewProducer(kcfg, kcfg.OpeningHoursTopic, log)
	if err != nil {
		return err
	}
	defer producer.Close()
	producer.Use(kafka_middleware.LoggingProducerMiddleware(log))

	if err := producer.Publish(cmd.Context(), openinghours.NewMessage(change, ServiceName+"-cli")); err != nil {
		return fmt.Errorf("publish opening hours change: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s for %s\n", change.Action, change.Key())
	return nil
}
