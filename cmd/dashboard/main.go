// dashboard runs one outlet's live-order session and serves it to the local UI.
// Usage: go run ./cmd/dashboard --config configs/dashboard.example.yaml
//
// Required environment variables (unless api.token_path is set):
//
//	SELLER_ACCESS_TOKEN - Bearer token for the shop API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tacoza/seller-live/internal/api"
	"github.com/tacoza/seller-live/internal/auth"
	"github.com/tacoza/seller-live/internal/config"
	"github.com/tacoza/seller-live/internal/connection"
	"github.com/tacoza/seller-live/internal/live"
	"github.com/tacoza/seller-live/internal/logging"
	"github.com/tacoza/seller-live/internal/metrics"
	"github.com/tacoza/seller-live/internal/notify"
	"github.com/tacoza/seller-live/internal/server"
	"github.com/tacoza/seller-live/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/dashboard.example.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "dashboard:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Logging, os.Stdout)
	logger.Info("starting dashboard",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"outlet", cfg.Outlet.ID,
	)

	session, err := auth.LoadSession(cfg.API.AccessToken, cfg.API.TokenPath)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	apiClient := api.NewClient(
		cfg.API.RestURL,
		session,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	transport := connection.NewWebSocketTransport(connection.ClientConfig{
		Header:           session.Header(),
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		PingInterval:     cfg.Connection.PingInterval,
		PongTimeout:      cfg.Connection.PongTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
	}, logger)

	var sinks []notify.NamedSink
	if cfg.Notify.AMQPURL != "" {
		publisher, err := notify.DialAMQP(cfg.Notify.AMQPURL, cfg.Notify.Exchange, logger)
		if err != nil {
			return fmt.Errorf("connect notification broker: %w", err)
		}
		defer publisher.Close()
		sinks = append(sinks, notify.NamedSink{Name: "amqp", Sink: publisher})
		logger.Info("publishing notifications", "exchange", cfg.Notify.Exchange)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := live.New(*cfg, apiClient, transport, m, logger, sinks...)
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		MetricsPath: cfg.Metrics.Path,
	}, sess, reg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return sess.Stop(shutdownCtx)
	})

	logger.Info("dashboard running",
		"board_url", fmt.Sprintf("http://localhost:%d/api/board", cfg.Server.Port),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("dashboard stopped")
	return nil
}
