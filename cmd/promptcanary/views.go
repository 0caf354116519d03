package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/cli"
)

// View types give API results a text and CSV layout. Each is a named copy
// of the API type so JSON output is unchanged.

const timeLayout = time.RFC3339

type releaseView canary.Release

func (v releaseView) Text(w io.Writer) error {
	fmt.Fprintf(w, "Release:  %s\n", v.ID)
	fmt.Fprintf(w, "Prompt:   %s\n", v.PromptID)
	fmt.Fprintf(w, "State:    %s\n", v.State)
	fmt.Fprintf(w, "Active:   %s\n", v.ActiveVersionID)
	if v.CanaryVersionID != "" {
		fmt.Fprintf(w, "Canary:   %s (%d%%)\n", v.CanaryVersionID, v.CanaryPercent)
	}
	_, err := fmt.Fprintf(w, "Updated:  %s\n", formatTime(v.UpdatedAt))
	return err
}

type releaseList []canary.Release

func (l releaseList) Header() []string {
	return []string{"ID", "PROMPT", "STATE", "ACTIVE", "CANARY", "PERCENT", "UPDATED"}
}

func (l releaseList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			r.ID,
			r.PromptID,
			string(r.State),
			r.ActiveVersionID,
			dash(r.CanaryVersionID),
			strconv.Itoa(r.CanaryPercent),
			formatTime(r.UpdatedAt),
		})
	}
	return rows
}

type versionView canary.PromptVersion

func (v versionView) Text(w io.Writer) error {
	fmt.Fprintf(w, "Version:  %s\n", v.ID)
	fmt.Fprintf(w, "Prompt:   %s (#%d)\n", v.PromptID, v.Number)
	fmt.Fprintf(w, "Active:   %t\n", v.IsActive)
	_, err := fmt.Fprintf(w, "Text:     %s\n", v.Text)
	return err
}

type statusView canary.Status

func (v statusView) Text(w io.Writer) error {
	if err := releaseView(v.Release).Text(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Recommendation: %s\n", v.Recommendation)
	fmt.Fprintf(w, "Routed:         %d active / %d canary\n", v.Routed.Active, v.Routed.Canary)
	fmt.Fprintf(w, "Active stats:   %s\n", formatSnapshot(v.ActiveStats))
	if v.CanaryStats != nil {
		fmt.Fprintf(w, "Canary stats:   %s\n", formatSnapshot(*v.CanaryStats))
	}
	if len(v.RecentEvents) > 0 {
		fmt.Fprintln(w, "\nRecent events:")
		return cli.NewFormatter(cli.FormatText).FormatTo(w, eventList(v.RecentEvents))
	}
	return nil
}

type eventList []canary.TransitionEvent

func (l eventList) Header() []string {
	return []string{"AT", "KIND", "STATE", "TRIGGER", "FROM", "TO", "PERCENT", "RECOMMENDATION", "CANARY_MEAN", "ACTIVE_MEAN", "REASON"}
}

func (l eventList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{
			formatTime(e.At),
			string(e.Kind),
			string(e.State),
			string(e.Trigger),
			dash(e.FromVersionID),
			dash(e.ToVersionID),
			strconv.Itoa(e.Percent),
			dash(string(e.Recommendation)),
			formatScore(e.CanaryMean),
			formatScore(e.ActiveMean),
			dash(e.Reason),
		})
	}
	return rows
}

type checkList []canary.CheckResult

func (l checkList) Header() []string {
	return []string{"RELEASE", "RECOMMENDATION", "ACTION", "REASON"}
}

func (l checkList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{r.ReleaseID, string(r.Recommendation), r.Action, dash(r.Reason)})
	}
	return rows
}

type selectionView canary.Selection

func (v selectionView) Text(w io.Writer) error {
	side := "active"
	if v.IsCanary {
		side = "canary"
	}
	_, err := fmt.Fprintf(w, "Version:  %s (%s)\nText:     %s\n", v.VersionID, side, v.Text)
	return err
}

// evaluationList renders evaluation records with one column per score
// category present in any record.
type evaluationList []canary.EvaluationRecord

func (l evaluationList) categories() []string {
	seen := make(map[string]struct{})
	for _, rec := range l {
		for c := range rec.CategoryScores {
			seen[c] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func (l evaluationList) Header() []string {
	header := []string{"TIMESTAMP", "ID", "RELEASE", "VERSION", "CANARY", "COMPOSITE"}
	for _, c := range l.categories() {
		header = append(header, strings.ToUpper(c))
	}
	return header
}

func (l evaluationList) Rows() [][]string {
	cats := l.categories()
	rows := make([][]string, 0, len(l))
	for _, rec := range l {
		row := []string{
			formatTime(rec.Timestamp),
			rec.ID,
			rec.ReleaseID,
			rec.VersionID,
			strconv.FormatBool(rec.IsCanary),
			formatScore(rec.CompositeScore),
		}
		for _, c := range cats {
			if s, ok := rec.CategoryScores[c]; ok {
				row = append(row, formatScore(s))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatSnapshot(s canary.Snapshot) string {
	if !s.Valid() {
		return "no samples"
	}
	return fmt.Sprintf("n=%d mean=%s stddev=%s", s.Count, formatScore(s.Mean), formatScore(s.StdDev()))
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
