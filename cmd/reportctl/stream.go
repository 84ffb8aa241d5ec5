package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"research-flowstream/pkg/client"
	"research-flowstream/pkg/sse"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func streamCMD(backendURL *string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "stream <topic>",
		Short: "Run a research job and print the report as it is written",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			topic := strings.Join(args, " ")
			return runStream(ctx, client.New(*backendURL, nil), topic, outPath)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the report text to this markdown file")
	return cmd
}

func runStream(ctx context.Context, c *client.Client, topic, outPath string) error {
	color.Cyan("Researching %q\n", topic)

	tracker, err := c.StartJobStream(ctx, topic, func(ev sse.Event, t *client.Tracker) error {
		switch ev.Kind {
		case sse.KindStage:
			printBadges(t)
		case sse.KindToken:
			s, _ := ev.Text()
			fmt.Print(s)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Println()

	switch {
	case tracker.Saved():
		color.Green("Saved report %s (%s)", tracker.Final.ReportID, tracker.Final.Title)
	case tracker.Err != nil:
		color.Red("Job failed during %s: %s", tracker.Err.Stage, tracker.Err.Message)
	default:
		color.Yellow("Stream finished without confirmation; the report may not be saved.")
	}

	if outPath != "" && tracker.Text() != "" {
		if err := os.WriteFile(outPath, []byte(tracker.Text()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		color.Green("Wrote %s", outPath)
	}
	return nil
}

func printBadges(t *client.Tracker) {
	parts := make([]string, 0, len(client.Stages))
	for _, stage := range client.Stages {
		parts = append(parts, badge(stage, t.Status(stage)))
	}
	fmt.Fprintln(os.Stderr, strings.Join(parts, "  "))
}

func badge(stage string, status client.StageStatus) string {
	label := fmt.Sprintf("[%s: %s]", stage, status)
	switch status {
	case client.StatusRunning:
		return color.YellowString("%s", label)
	case client.StatusDone:
		return color.GreenString("%s", label)
	default:
		return color.HiBlackString("%s", label)
	}
}
