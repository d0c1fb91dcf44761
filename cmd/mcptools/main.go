package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version 은 빌드 시 -ldflags "-X main.version=..." 로 덮어쓴다.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mcptools",
	Short: "MCP tool servers for tracking-event analysis and API usage statistics",
	Long: `mcptools runs two MCP servers:

  eventanalyzer  validate tracking beacons against their event field definitions
  usagestats     query per-key API usage and cost statistics

Configuration is read from environment variables, among them:

  EVENT_API_BASE_URL, EVENT_CACHE_TTL        field-definition API
  STATS_API_BASE_URL, KEYS_CONFIG_PATH       usage statistics API and key list
  DAILY_COST_LIMIT                           anomaly threshold (USD)
  HTTP_ADDR, MAX_BODY_SIZE                   --transport http
  AUDIT_BUCKET, AWS_REGION                   S3 audit trail (off when unset)
  LOG_LEVEL, LOG_PRETTY                      logging (always stderr)`,
	SilenceUsage: true,
}

func main() {
	// SIGTERM (ECS scale-in / rolling update), SIGINT (Ctrl+C)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
