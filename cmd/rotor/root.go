package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"spiralcodex/rotor/pkg/engine"
)

var (
	// Global flags
	stateDir  string
	overrides string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "rotor",
	Short: "Provider rotation and quota-aware failover for AI chat",
	Long: `Rotor rotates chat requests across multiple AI providers and fails
over automatically when one runs out of quota or rejects its credential.

It provides:
  - Round-robin rotation with a persistent cursor
  - Per-provider request and token budgets in rolling windows
  - Automatic failover on quota exhaustion and auth failures
  - Encrypted at-rest credential storage
  - A durable request journal for auditing rotation decisions

API keys found in OPENROUTER_API_KEY, HUGGINGFACE_API_KEY, and
TOGETHER_API_KEY register their providers automatically.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&stateDir, "state-dir", "s", defaultStateDir(), "state directory")
	rootCmd.PersistentFlags().StringVar(&overrides, "providers", os.Getenv("ROTOR_PROVIDERS"), "YAML provider overrides file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// defaultStateDir resolves the per-user state directory. ROTOR_STATE_DIR
// overrides the home-relative default.
func defaultStateDir() string {
	if dir := os.Getenv("ROTOR_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rotor"
	}
	return filepath.Join(home, ".rotor")
}

// configureLogging sets up the global slog handler. Default output is
// warnings and errors only; --verbose enables debug logging.
func configureLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// openEngine assembles the engine from the global flags. The state file
// watcher is on so external edits (another rotor process, a hand edit)
// are picked up while a command runs.
func openEngine() (*engine.Engine, error) {
	return engine.Open(engine.Config{
		Dir:           stateDir,
		OverridesFile: overrides,
		WatchState:    true,
	})
}
