package main

import (
	"fmt"
	"strings"

	"research-flowstream/pkg/client"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const previewLength = 160

func listCMD(backendURL *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the most recent reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := client.New(*backendURL, nil).ListReports(cmd.Context())
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				color.Yellow("No reports yet.")
				return nil
			}
			if limit > 0 && len(reports) > limit {
				reports = reports[:limit]
			}
			for _, r := range reports {
				color.Cyan("%s", r.Title)
				fmt.Printf("  %s\n  %s\n\n", color.HiBlackString("%s", r.Id), preview(r.Text))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 7, "number of reports to show")
	return cmd
}

func searchCMD(backendURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find reports similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hits, err := client.New(*backendURL, nil).SearchReports(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				color.Yellow("No matches.")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%s  %s\n", color.GreenString("%.3f", h.Score), color.CyanString("%s", h.Title))
				fmt.Printf("       %s\n       %s\n\n", color.HiBlackString("%s", h.Id), preview(h.Text))
			}
			return nil
		},
	}
}

// preview flattens text to one line of at most previewLength runes.
func preview(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= previewLength {
		return flat
	}
	return string(runes[:previewLength]) + "..."
}
