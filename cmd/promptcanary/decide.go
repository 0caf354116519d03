package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/server"
)

var decideFlags struct {
	force  bool
	reason string
	limit  int
}

var promoteCmd = &cobra.Command{
	Use:   "promote <release-id>",
	Short: "Make the canary version the active version",
	Long: `Promote the running canary. The server refuses while the canary is still
collecting samples unless --force is given; forced promotions are recorded
with the "override" trigger.

Examples:
  promptcanary promote <release-id>
  promptcanary promote <release-id> --force --reason "hotfix"`,
	Args: cobra.ExactArgs(1),
	RunE: runPromote,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <release-id>",
	Short: "Discard the canary and keep the active version",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

var checkCmd = &cobra.Command{
	Use:   "check [release-id]",
	Short: "Run the promotion check now",
	Long: `Evaluate the promotion rule and apply the configured automatic action.
Without a release ID every release with a running canary is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

var eventsCmd = &cobra.Command{
	Use:   "events <release-id>",
	Short: "Show the transition history of a release, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

func init() {
	rootCmd.AddCommand(promoteCmd, rollbackCmd, checkCmd, eventsCmd)

	promoteCmd.Flags().BoolVar(&decideFlags.force, "force", false, "promote before enough samples are collected")
	promoteCmd.Flags().StringVar(&decideFlags.reason, "reason", "", "reason stored in the audit trail")
	rollbackCmd.Flags().StringVar(&decideFlags.reason, "reason", "", "reason stored in the audit trail")
	eventsCmd.Flags().IntVarP(&decideFlags.limit, "limit", "n", 20, "maximum number of events")
}

func runPromote(cmd *cobra.Command, args []string) error {
	var rel canary.Release
	req := server.PromoteRequest{Force: decideFlags.force, Reason: decideFlags.reason}
	if err := newClient().Do(cmd.Context(), http.MethodPost, releasePath(args[0], "promote"), req, &rel); err != nil {
		return err
	}
	return render(cmd, releaseView(rel))
}

func runRollback(cmd *cobra.Command, args []string) error {
	var rel canary.Release
	req := server.RollbackRequest{Reason: decideFlags.reason}
	if err := newClient().Do(cmd.Context(), http.MethodPost, releasePath(args[0], "rollback"), req, &rel); err != nil {
		return err
	}
	return render(cmd, releaseView(rel))
}

func runCheck(cmd *cobra.Command, args []string) error {
	client := newClient()

	ids := args
	if len(ids) == 0 {
		var list server.ReleaseList
		if err := client.Do(cmd.Context(), http.MethodGet, "/v1/releases", nil, &list); err != nil {
			return err
		}
		for _, rel := range list.Releases {
			if rel.HasCanary() {
				ids = append(ids, rel.ID)
			}
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no canaries running")
			return nil
		}
	}

	results := make(checkList, 0, len(ids))
	for _, id := range ids {
		var res canary.CheckResult
		if err := client.Do(cmd.Context(), http.MethodPost, releasePath(id, "check"), nil, &res); err != nil {
			return err
		}
		results = append(results, res)
	}
	return render(cmd, results)
}

func runEvents(cmd *cobra.Command, args []string) error {
	q := url.Values{"limit": {strconv.Itoa(decideFlags.limit)}}
	var list server.EventList
	if err := newClient().Do(cmd.Context(), http.MethodGet, releasePath(args[0], "events")+"?"+q.Encode(), nil, &list); err != nil {
		return err
	}
	return render(cmd, eventList(list.Events))
}
