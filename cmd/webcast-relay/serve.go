package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/streamlab/webcast-relay/relay"
	"github.com/streamlab/webcast-relay/webcast"
)

func serveCmd() *cobra.Command {
	var (
		addr         string
		signerURL    string
		logLevel     string
		pingInterval time.Duration
		baseDelay    time.Duration
		maxAttempts  int
		roomPrecheck bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if signerURL == "" {
				return errors.New("--signer-url is required")
			}
			logger, err := buildLogger(logLevel)
			if err != nil {
				return err
			}

			cfg := webcast.DefaultConfig()
			if pingInterval > 0 {
				cfg.PingInterval = pingInterval
			}
			if baseDelay > 0 {
				cfg.BaseReconnectDelay = baseDelay
			}
			if maxAttempts > 0 {
				cfg.MaxReconnectAttempts = maxAttempts
			}

			provider := webcast.NewHTTPSessionProvider(signerURL, logger)
			factory := func(username string) relay.Connector {
				c := webcast.NewConnector(cfg, provider, logger)
				if roomPrecheck {
					c.RoomInfo = webcast.NewRoomInfoClient(logger)
				}
				return c
			}

			reg := prometheus.NewRegistry()
			metrics := relay.NewMetrics(reg)
			hub := relay.NewHub(factory, metrics, logger)
			server := relay.NewServer(hub, metrics, reg, logger)

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("relay listening", "addr", addr)
				errCh <- httpServer.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				logger.Info("shutting down", "signal", sig.String())
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			hub.Shutdown()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&signerURL, "signer-url", "", "base URL of the session signing service")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&pingInterval, "ping-interval", 0, "upstream keep-alive interval (default 10s)")
	cmd.Flags().DurationVar(&baseDelay, "base-reconnect-delay", 0, "first reconnect delay (default 5s)")
	cmd.Flags().IntVar(&maxAttempts, "max-reconnect-attempts", 0, "reconnect attempts before giving up (default 10)")
	cmd.Flags().BoolVar(&roomPrecheck, "room-precheck", false, "check live status before acquiring a session")
	return cmd
}

func buildLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
