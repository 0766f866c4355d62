package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"preflight/internal/config"
	"preflight/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	workspace  string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "preflight",
	Short: "preflight - consult auxiliary agents before the primary agent answers",
	Long: `preflight runs a pipeline of handlers over a turn's conversation before it
reaches the primary agent. Each handler asks an auxiliary agent whether more
context is needed (workspace files, MCP tool results), asks you to confirm
every proposed change, and adds only what you confirmed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".preflight.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: from config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	rootCmd.AddCommand(runCmd, handlersCmd, toolsCmd)
}

// loadConfig reads the config file, applies flag overrides and starts logging.
func loadConfig() (*config.Config, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		c.Workspace = workspace
	}
	if verbose {
		c.Logging.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Initialize(logging.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		Categories: c.Logging.Categories,
	}); err != nil {
		return nil, err
	}
	logging.Boot("Loaded config %s (model=%s, handlers=%d)", configPath, c.Controller.Model, len(c.HandlerEntries()))
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
