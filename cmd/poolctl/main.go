// Package main implements poolctl, an operator CLI for the study pool API
// and its database.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studypool-backend/internal/config"
	"studypool-backend/internal/logger"
)

var (
	// serverURL is the base URL of the study pool API
	serverURL string
	// token is the bearer access token used for API calls
	token    string
	logLevel string
	version  = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "poolctl",
	Short: "CLI for study pool operations",
	Long: `poolctl talks to the study pool API (canvas commands) and to the
database directly (migrate, db commands).`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("POOL_API_URL", "http://localhost:8080"), "study pool API URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("POOL_TOKEN"), "access token (defaults to $POOL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger() (*zap.Logger, error) {
	return logger.New(config.LogConfig{Level: logLevel, Format: "console"})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
