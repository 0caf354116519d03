// promptcanary serves prompt versions behind a canary split, scores their
// responses and promotes or rolls back the canary based on the scores.
//
// Usage:
//
//	# Start the server with defaults (in-memory storage, 127.0.0.1:8080)
//	promptcanary run
//
//	# Start with a configuration file
//	promptcanary run --config /etc/promptcanary/config.yaml
//
//	# Create a release and put a new version in canary at 10%
//	promptcanary release create support-bot --text "You are a helpful assistant."
//	promptcanary release add-version <release-id> --text "You are a concise assistant."
//	promptcanary canary start <release-id> <version-id> --percent 10
//
//	# Watch samples accumulate, then decide
//	promptcanary status <release-id> --watch
//	promptcanary promote <release-id>
//	promptcanary rollback <release-id> --reason "tone regression"
//
//	# Query the audit trail stored on disk
//	promptcanary audit evaluations --release <release-id> --output csv
package main

import (
	"fmt"
	"os"

	"mercator-hq/promptcanary/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
