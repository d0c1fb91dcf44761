package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/upjiang/mcptools/internal/config"
	"github.com/upjiang/mcptools/internal/eventapi"
	"github.com/upjiang/mcptools/internal/logger"
	"github.com/upjiang/mcptools/internal/metrics"
	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/server"
	"github.com/upjiang/mcptools/internal/tools"
	"github.com/upjiang/mcptools/internal/usage"
	"github.com/upjiang/mcptools/internal/worker"
)

const shutdownTimeout = 15 * time.Second

type serveFlags struct {
	transport string
	addr      string
}

// buildFunc 는 MCP server 와 HTTP handler 를 만든다.
// handler 의 source 가 nil 이면 /collect 는 등록되지 않는다.
type buildFunc func(cfg config.Config, m *metrics.Metrics, rec model.Recorder) (*mcp.Server, *server.Handler)

func newServeCmd(use, short string, build buildFunc) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f, build)
		},
	}
	cmd.Flags().StringVar(&f.transport, "transport", "stdio", "MCP transport: stdio or http")
	cmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address (default $HTTP_ADDR)")
	return cmd
}

func init() {
	rootCmd.AddCommand(
		newServeCmd("eventanalyzer", "Run the tracking-event analysis MCP server", buildEventServer),
		newServeCmd("usagestats", "Run the API usage statistics MCP server", buildStatsServer),
	)
}

func buildEventServer(cfg config.Config, m *metrics.Metrics, rec model.Recorder) (*mcp.Server, *server.Handler) {
	source := eventapi.New(cfg.EventAPIBaseURL,
		eventapi.WithTimeout(cfg.EventAPITimeout),
		eventapi.WithRetries(cfg.EventAPIRetries),
		eventapi.WithCache(cfg.EventCacheTTL, cfg.EventCacheSize),
		eventapi.WithMetrics(m),
	)
	s := tools.NewEventServer(source, tools.Options{Version: version, Metrics: m, Recorder: rec})
	return s, server.NewHandler(cfg, m, source, rec)
}

func buildStatsServer(cfg config.Config, m *metrics.Metrics, rec model.Recorder) (*mcp.Server, *server.Handler) {
	client := usage.NewClient(cfg.StatsAPIBaseURL,
		usage.WithRetries(cfg.StatsRetries, cfg.StatsRetryDelay),
		usage.WithConcurrency(cfg.StatsConcurrency),
		usage.WithMetrics(m),
	)
	svc := usage.NewService(client, cfg.KeysConfigPath, cfg.StatsCacheTTL, m)
	s := tools.NewStatsServer(svc, cfg.DailyCostLimit, tools.Options{Version: version, Metrics: m, Recorder: rec})
	return s, server.NewHandler(cfg, m, nil, rec)
}

func runServe(ctx context.Context, f serveFlags, build buildFunc) error {
	if f.transport != "stdio" && f.transport != "http" {
		return fmt.Errorf("unknown transport %q (want stdio or http)", f.transport)
	}

	cfg := config.Load()
	if f.addr != "" {
		cfg.HTTPAddr = f.addr
	}
	logger.Init(cfg)
	m := metrics.New()

	// ====================================================================
	// Audit trail
	// ====================================================================
	// AUDIT_BUCKET 이 있으면 tool 호출 기록을 S3 로 배치 업로드한다.
	// 없으면 기록은 버려진다.
	var rec model.Recorder = model.NopRecorder{}
	var mgr *worker.Manager
	if cfg.AuditEnabled() {
		var err error
		mgr, err = worker.NewManager(ctx, cfg, m)
		if err != nil {
			return fmt.Errorf("audit manager: %w", err)
		}
		mgr.Start()
		rec = mgr
	}

	s, h := build(cfg, m, rec)

	var err error
	switch f.transport {
	case "stdio":
		log.Info().Str("transport", "stdio").Msg("mcp server starting")
		err = s.Run(ctx, &mcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	case "http":
		err = serveHTTP(ctx, cfg, m, s, h)
	}

	// HTTP / stdio 세션이 끝난 뒤 남은 기록을 flush 한다.
	if mgr != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if serr := mgr.Shutdown(sctx); serr != nil {
			log.Error().Err(serr).Msg("audit manager shutdown")
		}
		cancel()
	}
	log.Info().Msg("shutdown complete")
	return err
}

func serveHTTP(ctx context.Context, cfg config.Config, m *metrics.Metrics, s *mcp.Server, h *server.Handler) error {
	reg, err := metrics.NewRegistry(m)
	if err != nil {
		return fmt.Errorf("metrics registry: %w", err)
	}
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)

	// WriteTimeout 은 두지 않는다. streamable HTTP 는 SSE 응답을 길게 유지한다.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewMux(h, mcpHandler, reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       8 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("transport", "http").Msg("mcp server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server terminated: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	// 새 요청을 막고 진행 중인 요청이 끝나기를 기다린다.
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	return nil
}
