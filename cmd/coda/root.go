package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// configPath is bound to the root command's persistent --config flag and
// read by every subcommand via resolveConfigPath.
var configPath string

// defaultConfigName is the project config file coda looks for in the
// working directory when --config and CODA_CONFIG are both unset.
const defaultConfigName = "coda.yaml"

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coda",
		Short: "coda - a terminal-resident coding assistant",
		Long: `coda drives one conversation at a time through a model provider,
a registry of built-in tools (file edit, search, shell), and a lifecycle
hook gate, compacting its own history under token pressure as it goes.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the project config file (default: coda.yaml, or $CODA_CONFIG)")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildConfigCmd(),
		buildHooksCmd(),
		buildToolsCmd(),
	)
	return rootCmd
}

// resolveConfigPath applies the --config > CODA_CONFIG > ./coda.yaml
// precedence used by every subcommand that loads configuration.
func resolveConfigPath() string {
	if p := strings.TrimSpace(configPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("CODA_CONFIG")); p != "" {
		return p
	}
	return defaultConfigName
}

// globalConfigPath returns the user-home config file layered underneath
// the project file, or "" if $HOME can't be resolved.
func globalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.config/coda/config.yaml"
}
