package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/systemstart/guidedstats/pkg/logging"
	"github.com/systemstart/guidedstats/pkg/processing"
)

var version = "dev"

const (
	_ = iota
	exitCommandFailed
	exitDotenvError
)

const (
	envAddr        = "GUIDEDSTATS_ADDR"
	envDB          = "GUIDEDSTATS_DB"
	envTemplateDir = "GUIDEDSTATS_TEMPLATE_DIR"
)

func main() {
	includeEnv()
	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(exitCommandFailed)
	}
}

func rootCmd() *cobra.Command {
	var (
		loggingType string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:           "guidedstats",
		Short:         "Guided statistical analysis pipelines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Initialize(os.Stderr, loggingType, logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&loggingType, "logging-type", logging.Tint,
		"logging type: "+strings.Join(logging.Types, ", "))
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logging level: debug, info, warn, error")

	cmd.AddCommand(runCmd(), serveCmd(), templatesCmd(), exportCmd())
	return cmd
}

// includeEnv loads a .env file from the working directory when there is one.
func includeEnv() {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "failed to load .env:", err)
		os.Exit(exitDotenvError)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadGlobalContext(contextFile string) (map[string]any, error) {
	if contextFile == "" {
		return nil, nil
	}
	ctx, err := processing.LoadContextFile(contextFile)
	if err != nil {
		return nil, fmt.Errorf("loading context file %s: %w", contextFile, err)
	}
	return ctx, nil
}
