// Command sysprog-shell runs an interactive command-line executor over
// pipelines, logical operator chains, redirection, and background jobs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/olegmenkov/sysprog/internal/logger"
	"github.com/olegmenkov/sysprog/pkg/config"
	"github.com/olegmenkov/sysprog/pkg/shell"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath     string
		logLevel       string
		maxBackground  int
		promptOverride string
	)

	root := &cobra.Command{
		Use:   "sysprog-shell",
		Short: "An interactive pipeline, logical-chain, and redirection shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			logger.SetLevel(cfg.Logging.Level)

			if maxBackground > 0 {
				cfg.Shell.BackgroundRegistryFloor = maxBackground
			}
			prompt := cfg.Shell.Prompt
			if promptOverride != "" {
				prompt = promptOverride
			}

			sh := shell.New(prompt, cfg.Shell.BackgroundRegistryFloor, os.Stdin, os.Stdout, os.Stderr)
			code := sh.Run()
			os.Exit(code)
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to a config file (default: $XDG_CONFIG_HOME/sysprog/config.yaml)")
	root.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (DEBUG, INFO, WARN, ERROR)")
	root.Flags().IntVar(&maxBackground, "max-background", 0, "initial capacity of the background process registry")
	root.Flags().StringVar(&promptOverride, "prompt", "", "override the configured prompt string")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
