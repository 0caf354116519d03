package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/cli"
)

// defaultServer is used when neither --server nor PROMPTCANARY_SERVER is set.
const defaultServer = "127.0.0.1:8080"

var (
	// Global flags
	cfgFile    string
	serverAddr string
	outputFlag string
	apiKey     string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "promptcanary",
	Short: "Canary releases for LLM prompts",
	Long: `promptcanary routes a configurable share of traffic to a candidate prompt
version, aggregates quality scores per version, and promotes or rolls back the
candidate once enough samples are collected.

"run" starts the server. The other commands are operator tools that talk to a
running server over its HTTP API (--server), except "audit", which reads the
configured storage directly.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	server := os.Getenv("PROMPTCANARY_SERVER")
	if server == "" {
		server = defaultServer
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and environment only when empty)")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", server, "API address for operator commands")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "text", "output format: text, json, csv")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("PROMPTCANARY_API_KEY"), "API key for servers with server.auth.keys configured")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", cli.DefaultClientTimeout, "API request timeout")
}

// newClient returns an API client for the --server flag.
func newClient() *cli.Client {
	return cli.NewClient(serverAddr, timeout).WithAPIKey(apiKey)
}

// render writes v to stdout in the --output format.
func render(cmd *cobra.Command, v any) error {
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), v)
}
