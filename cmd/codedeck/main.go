// codedeck is a terminal console for a coding-assistant control plane:
// it follows conversation threads live, reconciles the event feed with
// REST snapshots, and lets the operator act on pending approvals.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/codedeck/codedeck/internal/api/gateway"
	"github.com/codedeck/codedeck/internal/config"
)

var (
	flagConfig   string
	flagGateway  string
	flagAPIKey   string
	flagLogLevel string
	flagTrace    bool
)

var rootCmd = &cobra.Command{
	Use:           "codedeck",
	Short:         "Terminal console for the coding-assistant control plane",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "codedeck.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&flagGateway, "gateway", "", "control plane base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagTrace, "trace", false, "emit OpenTelemetry spans to stdout")
}

func setupLogging() {
	var level slog.Level
	switch strings.ToLower(flagLogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig merges .env, the YAML file, environment, and flags.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagGateway != "" {
		cfg.Gateway.BaseURL = flagGateway
	}
	if flagAPIKey != "" {
		cfg.Gateway.APIKey = flagAPIKey
	}
	return cfg, nil
}

func newGatewayClient(cfg *config.Config) *gateway.Client {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return gateway.NewClient(
		gateway.WithBaseURL(cfg.Gateway.BaseURL),
		gateway.WithAPIKey(cfg.Gateway.APIKey),
		gateway.WithHTTPClient(httpClient),
		gateway.WithClientLogger(slog.Default()),
	)
}

func main() {
	cobra.OnInitialize(setupLogging)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
