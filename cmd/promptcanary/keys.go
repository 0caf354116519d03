package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/cli"
)

// apiKeyPrefix marks generated keys so they are recognizable in logs and
// secret scanners.
const apiKeyPrefix = "pc_"

var keysFlags struct {
	name     string
	readOnly bool
	bytes    int
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Generate API keys for server.auth.keys.

Keys are random and only ever printed once. The server stores them in its
configuration file; clients pass them with --api-key or PROMPTCANARY_API_KEY.`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key",
	Long: `Generate a random API key and print the configuration snippet for it.

Examples:
  # Key for the deploy pipeline
  promptcanary keys generate --name deploy

  # Key for a dashboard that may only read status
  promptcanary keys generate --name grafana --read-only`,
	Args: cobra.NoArgs,
	RunE: generateKey,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)

	keysGenerateCmd.Flags().StringVar(&keysFlags.name, "name", "", "key name shown in server logs")
	keysGenerateCmd.Flags().BoolVar(&keysFlags.readOnly, "read-only", false, "restrict the key to GET requests")
	keysGenerateCmd.Flags().IntVar(&keysFlags.bytes, "bytes", 32, "random bytes in the key (at least 16)")
	_ = keysGenerateCmd.MarkFlagRequired("name")
}

func generateKey(cmd *cobra.Command, args []string) error {
	if keysFlags.bytes < 16 {
		return cli.NewConfigError("bytes", fmt.Sprintf("must be at least 16, got %d", keysFlags.bytes))
	}

	key, err := newAPIKey(keysFlags.bytes)
	if err != nil {
		return cli.NewCommandError("keys generate", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API key: %s\n", key)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "⚠️  Warning: this key is not shown again. Store it in your secret manager.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration snippet:")
	fmt.Fprintln(out, "server:")
	fmt.Fprintln(out, "  auth:")
	fmt.Fprintln(out, "    keys:")
	fmt.Fprintf(out, "      - name: %q\n", keysFlags.name)
	fmt.Fprintf(out, "        key: %q\n", key)
	if keysFlags.readOnly {
		fmt.Fprintln(out, "        read_only: true")
	}
	return nil
}

func newAPIKey(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
