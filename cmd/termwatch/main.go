package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/termbridge/termbridge/client"
	"github.com/termbridge/termbridge/config"
	"github.com/termbridge/termbridge/health"
	"github.com/termbridge/termbridge/quotes"
	"github.com/termbridge/termbridge/terminal/wsrpc"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	symbols := flag.String("symbols", "EURUSD", "comma-separated symbols to stream")
	metricsAddr := flag.String("metrics-addr", "", "serve client metrics on this address (e.g. :9100); leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("termwatch starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"endpoint", cfg.Client.Endpoint,
		"account", cfg.Client.Account,
		"backoff", cfg.Client.Backoff,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialer, err := wsrpc.NewDialer(cfg.Client)
	if err != nil {
		slog.Error("failed to build dialer", "err", err)
		os.Exit(1)
	}

	c := client.New(cfg.Client, dialer)
	defer c.Close()

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		c.WithMetrics(client.NewMetrics(reg))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			slog.Info("metrics listening", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				slog.Error("metrics server failed", "err", err)
			}
		}()
	}

	// Config changes are logged but applied only on restart: the live
	// client keeps the session it was built with.
	go func() {
		if err := config.Watch(ctx, *configPath, func(_ *config.Config) {
			slog.Info("config changed on disk; restart to apply")
		}); err != nil {
			slog.Error("config watch failed", "err", err)
		}
	}()

	if cfg.Health.Endpoint != "" {
		probe, err := health.New(cfg.Health)
		if err != nil {
			slog.Error("failed to build health probe", "err", err)
			os.Exit(1)
		}
		go probe.Run(ctx)
	}

	if err := c.Connect(ctx); err != nil {
		slog.Error("initial connect failed", "err", err)
		os.Exit(1)
	}

	summary, err := c.AccountSummary(ctx)
	if err != nil {
		slog.Error("account summary failed", "err", err)
		os.Exit(1)
	}
	slog.Info("account",
		"currency", summary.Currency,
		"balance", summary.Balance,
		"equity", summary.Equity,
	)

	cache := quotes.New(time.Minute)
	go cache.Run(ctx)

	syms := strings.Split(*symbols, ",")
	sub := c.SubscribeQuotes(ctx, syms)
	defer sub.Close()

	slog.Info("streaming quotes", "symbols", syms)

	for ev := range sub.Events() {
		if err := cache.Apply(ev); err != nil {
			slog.Warn("bad tick", "err", err)
			continue
		}
		var t quotes.Tick
		// Apply validated the payload already; this decode cannot fail.
		_ = json.Unmarshal(ev.Payload, &t)
		slog.Info("tick", "symbol", t.Symbol, "bid", t.Bid, "ask", t.Ask, "seq", ev.Seq)
	}

	if err := sub.Err(); err != nil {
		slog.Error("subscription ended", "err", err)
		os.Exit(1)
	}
	slog.Info("termwatch stopped")
}
