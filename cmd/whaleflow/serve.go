package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mqqz/whaleflow-sub000/service/cluster"
	"github.com/mqqz/whaleflow-sub000/service/config"
	"github.com/mqqz/whaleflow-sub000/service/exchange"
	"github.com/mqqz/whaleflow-sub000/service/feed"
	"github.com/mqqz/whaleflow-sub000/service/metrics"
	natspkg "github.com/mqqz/whaleflow-sub000/service/nats"
	"github.com/mqqz/whaleflow-sub000/service/server"
	"github.com/mqqz/whaleflow-sub000/service/session"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the ingestion service",
		Action: func(c *cli.Context) error {
			return runServe()
		},
	}
}

func runServe() error {
	// Load and validate configuration from environment.
	// This fails fast if any config is invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting whaleflow",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	// Exchange directory, optional.
	var directory *exchange.Directory
	if cfg.ExchangeFile != "" {
		var err error
		directory, err = exchange.LoadFile(cfg.ExchangeFile)
		if err != nil {
			logger.Error("failed to load exchange directory", "file", cfg.ExchangeFile, "error", err)
			os.Exit(1)
		}
		logger.Info("loaded exchange directory", "file", cfg.ExchangeFile, "entries", directory.Size())
	}

	f := feed.New(feed.Config{
		MaxQueue:         cfg.MaxQueue,
		MaxVisible:       cfg.MaxVisible,
		FlushInterval:    cfg.FlushInterval,
		WhaleThresholds:  cfg.WhaleThresholds,
		DefaultThreshold: cfg.DefaultThreshold,
	}, m, logger)

	// Flush loop.
	go f.Run(ctx)

	// Optional JetStream egress.
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		ch, unsub := f.Subscribe()
		defer unsub()
		go natspkg.Forward(ctx, publisher, ch, m, logger)
	}

	sessions := buildSessions(cfg, f, directory, m, logger)
	for _, sess := range sessions {
		sess.Start()
	}

	httpServer := server.New(cfg.ServerAddr, f, sessions, m, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		return err
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Dispose sessions first so nothing mutates the feed during
		// server drain, then drop the backlog they produced.
		for _, sess := range sessions {
			sess.Close()
		}
		f.Reset()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			return err
		}

		logger.Info("shutdown complete")
	}
	return nil
}

// buildSessions creates one session per configured network feed.
func buildSessions(cfg *config.Config, f *feed.Feed, directory *exchange.Directory, m *metrics.Metrics, logger *slog.Logger) []*session.Session {
	networks := []struct {
		network   string
		kind      session.Kind
		endpoints []string
	}{
		{"bitcoin", session.KindBitcoin, cfg.BitcoinWSURLs},
		{"ethereum", session.KindEVM, cfg.EthereumWSURLs},
		{"market", session.KindMarket, cfg.MarketWSURLs},
	}

	var sessions []*session.Session
	for _, nw := range networks {
		if len(nw.endpoints) == 0 {
			continue
		}
		sess, err := session.New(
			session.NetworkConfig{
				Network:   nw.network,
				Kind:      nw.kind,
				Endpoints: nw.endpoints,
			},
			session.Options{
				Feed:             f,
				Directory:        directory,
				Metrics:          m,
				Logger:           logger,
				MaxBackoff:       cfg.MaxBackoff,
				MaxInFlight:      cfg.MaxInFlight,
				MinFetchInterval: cfg.MinFetchInterval,
				Cluster: cluster.Config{
					WindowSize:      cfg.ClusterWindow,
					RepeatThreshold: cfg.RepeatThreshold,
				},
				DominantCap: cfg.DominantCap,
			},
		)
		if err != nil {
			logger.Error("failed to build session", "network", nw.network, "error", err)
			os.Exit(1)
		}
		sessions = append(sessions, sess)
		logger.Info("session configured", "network", nw.network, "endpoints", len(nw.endpoints))
	}
	return sessions
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
