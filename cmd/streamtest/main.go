// streamtest connects to the live-order subscription socket and prints decoded orders.
// Usage: go run ./cmd/streamtest --config configs/dashboard.example.yaml
//
// Required environment variables (unless api.token_path is set):
//
//	SELLER_ACCESS_TOKEN - Bearer token for the shop API
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tacoza/seller-live/internal/api"
	"github.com/tacoza/seller-live/internal/auth"
	"github.com/tacoza/seller-live/internal/config"
	"github.com/tacoza/seller-live/internal/connection"
	"github.com/tacoza/seller-live/internal/feed"
	"github.com/tacoza/seller-live/internal/live"
)

func main() {
	configPath := flag.String("config", "configs/dashboard.example.yaml", "path to config file")
	endpoint := flag.String("endpoint", "", "socket URL to dial instead of resolving the subscription")
	verbose := flag.Bool("verbose", false, "print full order JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := auth.LoadSession(cfg.API.AccessToken, cfg.API.TokenPath)
	if err != nil {
		logger.Error("failed to load session token", "error", err)
		logger.Info("set SELLER_ACCESS_TOKEN or api.token_path")
		os.Exit(1)
	}

	// Resolve the subscription socket unless one was given
	url := *endpoint
	if url == "" {
		apiClient := api.NewClient(cfg.API.RestURL, session, api.WithLogger(logger), api.WithTimeout(cfg.API.Timeout))
		path, err := apiClient.GetSubscriptionURL(ctx)
		if err != nil {
			logger.Error("failed to resolve subscription", "error", err)
			os.Exit(1)
		}
		url = live.SocketEndpoint(cfg.API.SocketURL, path)
	}
	if url == "" {
		logger.Error("session has no live subscription")
		os.Exit(1)
	}

	// Frames are printed off the socket goroutine
	frames := feed.NewQueue[feed.Frame](256)

	transport := connection.NewWebSocketTransport(connection.ClientConfig{
		Header:           session.Header(),
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		PingInterval:     cfg.Connection.PingInterval,
		PongTimeout:      cfg.Connection.PongTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
	}, logger)

	policy := connection.NewPolicy(connection.PolicyConfig{
		BaseDelay: cfg.Connection.ReconnectBaseDelay,
		MaxDelay:  cfg.Connection.ReconnectMaxDelay,
	}, transport, connection.HandlerFuncs{
		Open: func() { logger.Info("socket open", "url", url) },
		Message: func(data []byte) {
			frames.Push(feed.Frame{Data: data, ReceivedAt: time.Now()})
		},
		Closed: func(err error) { logger.Warn("socket closed", "error", err) },
	}, nil, logger)
	policy.OnStateChange(func(c connection.StateChange) {
		logger.Info("connection state", "from", c.From, "to", c.To, "attempt", c.Attempt, "delay", c.Delay)
	})

	policy.SetEndpoint(url)
	policy.Start(ctx)

	go printOrders(ctx, frames, *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := policy.Status()
				qs := frames.Stats()
				logger.Info("stats",
					"state", st.State,
					"attempt", st.Attempt,
					"frames_received", qs.TotalPushed,
					"frames_printed", qs.TotalPopped,
					"queue", qs.Count,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	logger.Info("shutting down...")
	policy.Stop()
	frames.Close()

	logger.Info("shutdown complete")
}

func printOrders(ctx context.Context, frames *feed.Queue[feed.Frame], verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			frame, ok := frames.TryPop()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			order, err := feed.Decode(frame.Data)
			if err != nil {
				fmt.Printf("[UNREADABLE] %v payload=%q\n", err, frame.Data)
				continue
			}

			if verbose {
				data, _ := json.MarshalIndent(order, "", "  ")
				fmt.Printf("[ORDER] %s\n", data)
			} else {
				fmt.Printf("[ORDER] id=%s type=%s table=%s customer=%s items=%d total=%.2f payment=%s\n",
					order.ShortID(), order.OrderType, order.Table, order.User.DisplayName(),
					len(order.Items), order.Total.Float(), order.PaymentStatus)
			}
		}
	}
}
