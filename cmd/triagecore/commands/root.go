package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"triagecore/internal/config"
	"triagecore/internal/logging"
)

const Version = "0.1.0"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "triagecore",
	Short: "triagecore - incident triage assistant",
	Long: `triagecore proposes root causes and next fixes for incidents from their logs,
tracks the fixes attempted against each incident and learns from resolved
incidents to improve later suggestions.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (TRIAGE_* env vars override it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(incidentsCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// logOptions sends logs to stderr so command output on stdout stays valid JSON.
func logOptions(cfg config.Config) logging.Options {
	return logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
