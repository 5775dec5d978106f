// popfetch polls POP3 and IMAP accounts and forwards new mail to an SMTP
// smarthost.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/tracyhatemice/popfetch/internal/config"
	"github.com/tracyhatemice/popfetch/internal/dedup"
	"github.com/tracyhatemice/popfetch/internal/forwarder"
	"github.com/tracyhatemice/popfetch/internal/metrics"
	"github.com/tracyhatemice/popfetch/internal/receiver"
	"github.com/tracyhatemice/popfetch/internal/sender"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	dataDir := flag.String("data-dir", "data", "directory for persistent state")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("popfetch starting", "accounts", len(cfg.Accounts))

	smarthost := sender.New(
		cfg.Delivery.Host,
		cfg.Delivery.Port,
		cfg.Delivery.Username,
		cfg.Delivery.Password,
		cfg.Delivery.UseTLS,
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsListen != "" {
		go serveMetrics(cfg.MetricsListen, logger)
	}

	var wg sync.WaitGroup
	for _, acct := range cfg.Accounts {
		recv := newReceiver(acct, logger)

		statePath := filepath.Join(*dataDir, sanitize(acct.Name)+".seen")
		tracker, err := dedup.NewTracker(statePath)
		if err != nil {
			logger.Error("failed to load tracker state", "account", acct.Name, "error", err)
			continue
		}
		logger.Info("loaded tracker state", "account", acct.Name, "seen_count", tracker.Count())

		fwd := forwarder.New(acct, recv, smarthost, tracker, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fwd.Run(ctx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down, waiting for forwarders to finish...")

	// Force exit on second signal.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Warn("forced shutdown")
		os.Exit(1)
	}()

	wg.Wait()
	logger.Info("popfetch stopped")
}

func newReceiver(acct config.Account, logger *slog.Logger) receiver.Receiver {
	switch acct.Protocol {
	case "imap":
		return receiver.NewIMAP(
			acct.Host, acct.Port,
			acct.Username, acct.Password,
			acct.UseTLS, acct.Folder(), logger,
		)
	default: // "pop3", enforced by config validation
		return receiver.NewPOP3(
			acct.Host, acct.Port,
			acct.Username, acct.Password,
			acct.UseTLS, acct.DeleteForwarded, logger,
		)
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener failed", "error", err)
	}
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for _, b := range []byte(name) {
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9', b == '-', b == '_':
			out = append(out, b)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
