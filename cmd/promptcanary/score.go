package main

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/cli"
	"mercator-hq/promptcanary/pkg/server"
)

var scoreFlags struct {
	versionID string
	prompt    string
	response  string
	rating    int
	scores    map[string]string
	manual    bool
}

var scoreCmd = &cobra.Command{
	Use:   "score <release-id>",
	Short: "Record an evaluation for a version",
	Long: `Score one response served by a version and record the evaluation.

By default the server runs its scorers on the prompt and response; --rating
adds a 1-5 human rating and --score supplies precomputed category scores that
take precedence. With --manual only the --score values are recorded and no
scorer runs.

Examples:
  promptcanary score <release-id> --version <version-id> --response "Sure, here is..." --rating 4
  promptcanary score <release-id> --version <version-id> --manual --score ai_evaluation=0.8 --score ml_metrics=0.7`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&scoreFlags.versionID, "version", "", "version that served the response")
	scoreCmd.Flags().StringVar(&scoreFlags.prompt, "prompt", "", "prompt text (defaults to the version text)")
	scoreCmd.Flags().StringVar(&scoreFlags.response, "response", "", "model response to score")
	scoreCmd.Flags().IntVar(&scoreFlags.rating, "rating", 0, "human rating 1-5")
	scoreCmd.Flags().StringToStringVar(&scoreFlags.scores, "score", nil, "category=score in [0,1] (repeatable)")
	scoreCmd.Flags().BoolVar(&scoreFlags.manual, "manual", false, "record --score values without running scorers")
	_ = scoreCmd.MarkFlagRequired("version")
}

// parseScores converts --score values to floats.
func parseScores(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for category, value := range raw {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid score for %s: %q", category, value)
		}
		out[category] = f
	}
	return out, nil
}

func runScore(cmd *cobra.Command, args []string) error {
	scores, err := parseScores(scoreFlags.scores)
	if err != nil {
		return err
	}

	client := newClient()
	if scoreFlags.manual {
		var rec canary.EvaluationRecord
		req := server.EvaluationRequest{VersionID: scoreFlags.versionID, Scores: scores}
		if err := client.Do(cmd.Context(), http.MethodPost, releasePath(args[0], "evaluations"), req, &rec); err != nil {
			return err
		}
		return render(cmd, evaluationList{rec})
	}

	req := server.ScoreRequest{
		VersionID: scoreFlags.versionID,
		Prompt:    scoreFlags.prompt,
		Response:  scoreFlags.response,
		Scores:    scores,
	}
	if cmd.Flags().Changed("rating") {
		req.Rating = &scoreFlags.rating
	}

	var resp server.ScoreResponse
	if err := client.Do(cmd.Context(), http.MethodPost, releasePath(args[0], "score"), req, &resp); err != nil {
		return err
	}
	return render(cmd, scoreView(resp))
}

type scoreView server.ScoreResponse

func (v scoreView) Text(w io.Writer) error {
	for _, r := range v.Results {
		status := formatScore(r.Score)
		if r.Error != "" {
			status = "failed: " + r.Error
		}
		fmt.Fprintf(w, "%-16s %-16s %s (attempts=%d)\n", r.Scorer, r.Category, status, r.Attempts)
	}
	if v.Evaluation == nil {
		return nil
	}
	fmt.Fprintln(w)
	return cli.NewFormatter(cli.FormatText).FormatTo(w, evaluationList{*v.Evaluation})
}
