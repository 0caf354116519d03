package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/server"
)

var canaryFlags struct {
	percent int
}

var canaryCmd = &cobra.Command{
	Use:   "canary",
	Short: "Start a canary or change its traffic split",
}

var canaryStartCmd = &cobra.Command{
	Use:   "start <release-id> <version-id>",
	Short: "Route a share of traffic to a candidate version",
	Long: `Start a canary for a stable release. The candidate receives --percent of
traffic and a new statistics cycle begins for both versions.

Example:
  promptcanary canary start <release-id> <version-id> --percent 10`,
	Args: cobra.ExactArgs(2),
	RunE: runCanaryStart,
}

var canaryAdjustCmd = &cobra.Command{
	Use:   "adjust <release-id>",
	Short: "Change the traffic share of a running canary",
	Long: `Change the canary percentage. Collected statistics are kept.

Example:
  promptcanary canary adjust <release-id> --percent 50`,
	Args: cobra.ExactArgs(1),
	RunE: runCanaryAdjust,
}

func init() {
	rootCmd.AddCommand(canaryCmd)
	canaryCmd.AddCommand(canaryStartCmd, canaryAdjustCmd)

	for _, c := range []*cobra.Command{canaryStartCmd, canaryAdjustCmd} {
		c.Flags().IntVarP(&canaryFlags.percent, "percent", "p", 0, "canary traffic percentage (1-100)")
		_ = c.MarkFlagRequired("percent")
	}
}

func runCanaryStart(cmd *cobra.Command, args []string) error {
	var rel canary.Release
	req := server.StartCanaryRequest{VersionID: args[1], Percent: canaryFlags.percent}
	if err := newClient().Do(cmd.Context(), http.MethodPost, releasePath(args[0], "canary"), req, &rel); err != nil {
		return err
	}
	return render(cmd, releaseView(rel))
}

func runCanaryAdjust(cmd *cobra.Command, args []string) error {
	var rel canary.Release
	req := server.PercentRequest{Percent: canaryFlags.percent}
	if err := newClient().Do(cmd.Context(), http.MethodPut, releasePath(args[0], "canary/percent"), req, &rel); err != nil {
		return err
	}
	return render(cmd, releaseView(rel))
}
