package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/cli"
	"mercator-hq/promptcanary/pkg/server"
)

var statusFlags struct {
	watch    bool
	interval time.Duration
}

var statusCmd = &cobra.Command{
	Use:   "status <release-id>",
	Short: "Show release statistics and the current recommendation",
	Long: `Show per-version score statistics, routed request counts, the promotion
recommendation and the most recent transitions of a release.

With --watch the command polls the server and draws canary sample progress
against the server's minimum sample count until the recommendation leaves
"collecting" or the canary ends.

Examples:
  promptcanary status <release-id>
  promptcanary status <release-id> --watch --interval 5s`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show the promotion policy and score weights in effect",
	Args:  cobra.NoArgs,
	RunE:  runPolicy,
}

func init() {
	rootCmd.AddCommand(statusCmd, policyCmd)

	statusCmd.Flags().BoolVarP(&statusFlags.watch, "watch", "w", false, "poll until a decision is available")
	statusCmd.Flags().DurationVar(&statusFlags.interval, "interval", 2*time.Second, "poll interval for --watch")
}

func releasePath(id, sub string) string {
	if sub == "" {
		return fmt.Sprintf("/v1/releases/%s", id)
	}
	return fmt.Sprintf("/v1/releases/%s/%s", id, sub)
}

func fetchStatus(ctx context.Context, client *cli.Client, id string) (*canary.Status, error) {
	var st canary.Status
	if err := client.Do(ctx, http.MethodGet, releasePath(id, "status"), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := newClient()
	st, err := fetchStatus(cmd.Context(), client, args[0])
	if err != nil {
		return err
	}
	if !statusFlags.watch || !st.Release.HasCanary() {
		return render(cmd, statusView(*st))
	}

	var policy server.PolicyResponse
	if err := client.Do(cmd.Context(), http.MethodGet, "/v1/policy", nil, &policy); err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	progress := cli.NewSampleProgress(cmd.ErrOrStderr(), policy.MinSamples)
	ticker := time.NewTicker(statusFlags.interval)
	defer ticker.Stop()

	for {
		progress.Update(canarySamples(st), string(st.Recommendation))
		if decided(st) {
			progress.Finish()
			return render(cmd, statusView(*st))
		}

		select {
		case <-ctx.Done():
			progress.Finish()
			return nil
		case <-ticker.C:
		}

		if st, err = fetchStatus(ctx, client, args[0]); err != nil {
			progress.Error(err)
			return err
		}
	}
}

// decided reports whether --watch can stop polling.
func decided(st *canary.Status) bool {
	return !st.Release.HasCanary() || st.Recommendation != canary.RecommendCollecting
}

func canarySamples(st *canary.Status) int64 {
	if st.CanaryStats == nil {
		return 0
	}
	return st.CanaryStats.Count
}

type policyView server.PolicyResponse

func (v policyView) Text(w io.Writer) error {
	fmt.Fprintf(w, "Min samples:    %d\n", v.MinSamples)
	fmt.Fprintf(w, "Threshold:      %s\n", formatScore(v.Threshold))
	fmt.Fprintf(w, "Auto rollback:  %t\n", v.AutoRollback)
	fmt.Fprintf(w, "Auto promote:   %t\n", v.AutoPromote)
	fmt.Fprintln(w, "Weights:")
	for _, c := range sortedKeys(v.Weights) {
		fmt.Fprintf(w, "  %-16s %s\n", c, formatScore(v.Weights[c]))
	}
	return nil
}

func runPolicy(cmd *cobra.Command, args []string) error {
	var policy server.PolicyResponse
	if err := newClient().Do(cmd.Context(), http.MethodGet, "/v1/policy", nil, &policy); err != nil {
		return err
	}
	return render(cmd, policyView(policy))
}
