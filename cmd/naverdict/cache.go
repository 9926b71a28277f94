package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"resty.dev/v3"
)

// The cache lives inside the server process, so these commands go through its
// HTTP API instead of instantiating a fresh empty cache.
func newCacheCommand() *cobra.Command {
	var serverURL string

	command := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache of a running server",
	}
	command.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the running server")

	command.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache, rate limit and request statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				client := resty.New().SetBaseURL(serverURL)
				defer func() {
					_ = client.Close()
				}()

				response, err := client.R().SetContext(cmd.Context()).Get("/api/v1/stats")
				if err != nil {
					return fmt.Errorf("client.Get(/api/v1/stats) > %w", err)
				}
				if response.IsError() {
					return fmt.Errorf("unexpected status %d: %s", response.StatusCode(), response.String())
				}
				fmt.Println(response.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Drop every cached response",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				client := resty.New().SetBaseURL(serverURL)
				defer func() {
					_ = client.Close()
				}()

				response, err := client.R().SetContext(cmd.Context()).Post("/api/v1/cache/clear")
				if err != nil {
					return fmt.Errorf("client.Post(/api/v1/cache/clear) > %w", err)
				}
				if response.IsError() {
					return fmt.Errorf("unexpected status %d: %s", response.StatusCode(), response.String())
				}
				fmt.Println(response.String())
				return nil
			},
		},
	)
	return command
}
