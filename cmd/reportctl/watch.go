package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"research-flowstream/pkg/events"
	pktNats "research-flowstream/pkg/nats"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func watchCMD(defaultNatsURL string) *cobra.Command {
	var natsURL, durable string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print report.saved events from NATS as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if natsURL == "" {
				return fmt.Errorf("no NATS URL: set NATS_URL or pass --nats")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			sub, err := pktNats.NewSubscriber(natsURL)
			if err != nil {
				return err
			}
			defer sub.Close()

			subject := pktNats.Subject(events.TypeReportSaved)
			err = sub.Subscribe(ctx, subject, durable, func(ctx context.Context, subject string, data []byte) error {
				evt, err := events.DecodeReportSaved(data)
				if err != nil {
					color.Red("Skipping message on %s: %v", subject, err)
					return nil
				}
				fmt.Printf("%s %s (%d chars)\n", color.GreenString("%s", evt.ReportID), color.CyanString("%s", evt.Title), evt.Length)
				return nil
			})
			if err != nil {
				return err
			}

			color.Cyan("Watching %s, Ctrl-C to stop", subject)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats", defaultNatsURL, "NATS server URL")
	cmd.Flags().StringVar(&durable, "durable", "", "durable consumer name; empty sees only new events")
	return cmd
}
