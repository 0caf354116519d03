package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/cli"
	"mercator-hq/promptcanary/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a configuration file",
	Long: `Load a configuration file, apply defaults and PROMPTCANARY_* environment
overrides, and report every invalid field. Without an argument the --config
file is validated.

Examples:
  promptcanary validate /etc/promptcanary/config.yaml
  PROMPTCANARY_CANARY_THRESHOLD=1.5 promptcanary validate config.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}

	out := cmd.OutOrStdout()
	if _, err := config.LoadConfigWithEnvOverrides(path); err != nil {
		var verr config.ValidationError
		if !errors.As(err, &verr) {
			return cli.NewConfigError("", err.Error())
		}
		for _, fe := range verr.Errors {
			fmt.Fprintf(out, "✗ %s: %s\n", fe.Field, fe.Message)
		}
		return cli.NewConfigError("", fmt.Sprintf("%d invalid fields", len(verr.Errors)))
	}

	name := path
	if name == "" {
		name = "defaults"
	}
	fmt.Fprintf(out, "✓ Configuration valid (%s)\n", name)
	return nil
}
