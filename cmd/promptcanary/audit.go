package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/canary/storage"
	"mercator-hq/promptcanary/pkg/cli"
	"mercator-hq/promptcanary/pkg/config"
)

var auditFlags struct {
	release string
	since   time.Duration
	limit   int
	days    int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the stored audit trail",
	Long: `Read evaluation records and transition events directly from the configured
storage. The server does not need to be running. With the memory backend
there is nothing to read.

Subcommands:
  evaluations - list evaluation records
  events      - list transition events of a release
  summary     - per-version score statistics recomputed from stored evaluations
  prune       - delete evaluation records older than --days

Examples:
  # Export the last day of evaluations as CSV
  promptcanary audit evaluations --since 24h --output csv > evals.csv

  # Transition history as JSON
  promptcanary audit events <release-id> --output json

  # Delete evaluations older than 30 days
  promptcanary audit prune --days 30`,
}

var auditEvaluationsCmd = &cobra.Command{
	Use:   "evaluations",
	Short: "List stored evaluation records, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runAuditEvaluations,
}

var auditEventsCmd = &cobra.Command{
	Use:   "events <release-id>",
	Short: "List stored transition events, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditEvents,
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Recompute per-version score statistics from stored evaluations",
	Args:  cobra.NoArgs,
	RunE:  runAuditSummary,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete evaluation records older than --days",
	Args:  cobra.NoArgs,
	RunE:  runAuditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditEvaluationsCmd, auditEventsCmd, auditSummaryCmd, auditPruneCmd)

	for _, c := range []*cobra.Command{auditEvaluationsCmd, auditSummaryCmd} {
		c.Flags().StringVar(&auditFlags.release, "release", "", "filter by release ID")
		c.Flags().DurationVar(&auditFlags.since, "since", 0, "only records newer than this (e.g. 24h); 0 reads all")
	}
	auditEventsCmd.Flags().IntVarP(&auditFlags.limit, "limit", "n", 0, "maximum number of events (0 for all)")
	auditPruneCmd.Flags().IntVar(&auditFlags.days, "days", 0, "retention in days")
	_ = auditPruneCmd.MarkFlagRequired("days")
}

// openAuditStorage opens the configured storage for offline queries.
func openAuditStorage() (storage.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Backend != config.StorageBackendSQLite {
		return nil, cli.NewConfigError("storage.backend",
			fmt.Sprintf("audit needs durable storage, got %q", cfg.Storage.Backend))
	}
	store, err := openStorage(&cfg.Storage)
	if err != nil {
		return nil, cli.NewCommandError("audit", err)
	}
	return store, nil
}

func sinceFlag() time.Time {
	if auditFlags.since <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-auditFlags.since)
}

func loadEvaluations(cmd *cobra.Command) (evaluationList, error) {
	store, err := openAuditStorage()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	recs, err := store.Evaluations(cmd.Context(), auditFlags.release, sinceFlag())
	if err != nil {
		return nil, cli.NewCommandError("audit", err)
	}
	out := make(evaluationList, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *rec)
	}
	return out, nil
}

func runAuditEvaluations(cmd *cobra.Command, args []string) error {
	evals, err := loadEvaluations(cmd)
	if err != nil {
		return err
	}
	return render(cmd, evals)
}

func runAuditEvents(cmd *cobra.Command, args []string) error {
	store, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Events(cmd.Context(), args[0], auditFlags.limit)
	if err != nil {
		return cli.NewCommandError("audit", err)
	}
	out := make(eventList, 0, len(events))
	for _, evt := range events {
		out = append(out, *evt)
	}
	return render(cmd, out)
}

// versionSummary is one row of "audit summary".
type versionSummary struct {
	ReleaseID string          `json:"release_id"`
	VersionID string          `json:"version_id"`
	Stats     canary.Snapshot `json:"stats"`
}

type summaryList []versionSummary

func (l summaryList) Header() []string {
	return []string{"RELEASE", "VERSION", "COUNT", "MEAN", "STDDEV", "LAST"}
}

func (l summaryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		rows = append(rows, []string{
			s.ReleaseID,
			s.VersionID,
			strconv.FormatInt(s.Stats.Count, 10),
			formatScore(s.Stats.Mean),
			formatScore(s.Stats.StdDev()),
			formatTime(s.Stats.LastUpdated),
		})
	}
	return rows
}

// summarize folds evaluations into per-version statistics in first-seen order.
func summarize(evals evaluationList) summaryList {
	stats := canary.NewStatsStore()
	type key struct{ release, version string }
	var order []key
	seen := make(map[key]bool)

	for _, rec := range evals {
		k := key{rec.ReleaseID, rec.VersionID}
		if !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
		stats.UpdateAt(rec.ReleaseID, rec.VersionID, rec.CompositeScore, rec.Timestamp)
	}

	out := make(summaryList, 0, len(order))
	for _, k := range order {
		out = append(out, versionSummary{
			ReleaseID: k.release,
			VersionID: k.version,
			Stats:     stats.Snapshot(k.release, k.version),
		})
	}
	return out
}

func runAuditSummary(cmd *cobra.Command, args []string) error {
	evals, err := loadEvaluations(cmd)
	if err != nil {
		return err
	}
	return render(cmd, summarize(evals))
}

func runAuditPrune(cmd *cobra.Command, args []string) error {
	if auditFlags.days < 1 {
		return cli.NewConfigError("days", fmt.Sprintf("must be >= 1, got %d", auditFlags.days))
	}

	store, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	cutoff := time.Now().AddDate(0, 0, -auditFlags.days)
	n, err := store.PruneEvaluations(cmd.Context(), cutoff)
	if err != nil {
		return cli.NewCommandError("audit", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d evaluation records older than %s\n", n, cutoff.UTC().Format(timeLayout))
	return nil
}
