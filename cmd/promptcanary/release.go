package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/server"
)

var releaseFlags struct {
	text string
	file string
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Manage releases and prompt versions",
	Long: `Create releases, register new prompt versions and inspect release state.

Examples:
  # Create a release for a prompt
  promptcanary release create support-bot --text "You are a helpful assistant."

  # Register a candidate version read from a file
  promptcanary release add-version <release-id> --file prompt.txt

  # List releases as CSV
  promptcanary release list --output csv`,
}

var releaseCreateCmd = &cobra.Command{
	Use:   "create <prompt-id>",
	Short: "Create a release with its first active version",
	Args:  cobra.ExactArgs(1),
	RunE:  runReleaseCreate,
}

var releaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List releases",
	Args:  cobra.NoArgs,
	RunE:  runReleaseList,
}

var releaseGetCmd = &cobra.Command{
	Use:   "get <release-id>",
	Short: "Show a release",
	Args:  cobra.ExactArgs(1),
	RunE:  runReleaseGet,
}

var releaseAddVersionCmd = &cobra.Command{
	Use:   "add-version <release-id>",
	Short: "Register a new prompt version for a release",
	Long: `Register a new prompt version. The version is not served until it is
started as a canary.`,
	Args: cobra.ExactArgs(1),
	RunE: runReleaseAddVersion,
}

var releaseRouteCmd = &cobra.Command{
	Use:   "route <release-id>",
	Short: "Route one request and print the selected version",
	Args:  cobra.ExactArgs(1),
	RunE:  runReleaseRoute,
}

func init() {
	rootCmd.AddCommand(releaseCmd)
	releaseCmd.AddCommand(releaseCreateCmd, releaseListCmd, releaseGetCmd, releaseAddVersionCmd, releaseRouteCmd)

	for _, c := range []*cobra.Command{releaseCreateCmd, releaseAddVersionCmd} {
		c.Flags().StringVar(&releaseFlags.text, "text", "", "prompt text")
		c.Flags().StringVarP(&releaseFlags.file, "file", "f", "", "read prompt text from file")
		c.MarkFlagsMutuallyExclusive("text", "file")
		c.MarkFlagsOneRequired("text", "file")
	}
}

// promptText returns the --text value or the contents of --file.
func promptText() (string, error) {
	if releaseFlags.file == "" {
		return releaseFlags.text, nil
	}
	data, err := os.ReadFile(releaseFlags.file)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}
	return string(data), nil
}

func runReleaseCreate(cmd *cobra.Command, args []string) error {
	text, err := promptText()
	if err != nil {
		return err
	}

	var rel canary.Release
	req := server.CreateReleaseRequest{PromptID: args[0], Text: text}
	if err := newClient().Do(cmd.Context(), http.MethodPost, "/v1/releases", req, &rel); err != nil {
		return err
	}
	return render(cmd, releaseView(rel))
}

func runReleaseList(cmd *cobra.Command, args []string) error {
	var list server.ReleaseList
	if err := newClient().Do(cmd.Context(), http.MethodGet, "/v1/releases", nil, &list); err != nil {
		return err
	}
	return render(cmd, releaseList(list.Releases))
}

func runReleaseGet(cmd *cobra.Command, args []string) error {
	var rel canary.Release
	if err := newClient().Do(cmd.Context(), http.MethodGet, releasePath(args[0], ""), nil, &rel); err != nil {
		return err
	}
	return render(cmd, releaseView(rel))
}

func runReleaseAddVersion(cmd *cobra.Command, args []string) error {
	text, err := promptText()
	if err != nil {
		return err
	}

	var v canary.PromptVersion
	req := server.CreateVersionRequest{Text: text}
	if err := newClient().Do(cmd.Context(), http.MethodPost, releasePath(args[0], "versions"), req, &v); err != nil {
		return err
	}
	return render(cmd, versionView(v))
}

func runReleaseRoute(cmd *cobra.Command, args []string) error {
	var sel canary.Selection
	if err := newClient().Do(cmd.Context(), http.MethodGet, releasePath(args[0], "route"), nil, &sel); err != nil {
		return err
	}
	return render(cmd, selectionView(sel))
}
