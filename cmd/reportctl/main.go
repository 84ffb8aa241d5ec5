package main

import (
	"os"

	"research-flowstream/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.Load()

	var backendURL string
	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "Run research jobs and browse saved reports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&backendURL, "backend", cfg.Client.BackendURL, "backend base URL")

	root.AddCommand(
		streamCMD(&backendURL),
		listCMD(&backendURL),
		searchCMD(&backendURL),
		watchCMD(cfg.App.NatsURL),
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
