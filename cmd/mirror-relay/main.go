package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/mirror/relay"
	"github.com/zsiec/mirror/transport"
	"github.com/zsiec/mirror/transport/srt"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	addr := envOr("RELAY_ADDR", ":8088")
	latencyMS := envIntOr("RELAY_LATENCY_MS", 0)
	statsEvery := envIntOr("RELAY_STATS_SECONDS", 30)

	defaults := transport.DefaultTransportOptions(transport.Relay(addr))
	if latencyMS > 0 {
		defaults.LatencyMS = latencyMS
	}

	srv := relay.NewServer(relay.Options{
		Addr: addr,
		SRT: srt.Options{
			MTU:               defaults.MTU,
			MaxBandwidth:      defaults.MaxBandwidth,
			LatencyMS:         defaults.LatencyMS,
			TimeoutMS:         defaults.TimeoutMS,
			FlowControlWindow: defaults.FlowControlWindow,
			FEC:               defaults.FEC,
		},
	}, nil)

	slog.Info("mirror-relay starting",
		"version", version,
		"addr", addr,
		"latency_ms", defaults.LatencyMS)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(ctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Duration(statsEvery) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				for _, id := range srv.Registry().StreamIDs() {
					stats, ok := srv.Registry().Stats(id)
					if !ok {
						continue
					}
					slog.Info("route stats",
						"stream_id", stats.StreamID,
						"publishing", stats.Publishing,
						"subscribers", stats.Subscribers,
						"bytes", stats.BytesForwarded,
						"datagrams", stats.Datagrams,
						"dropped_slow", stats.DroppedSlow)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		slog.Error("relay error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring non-numeric env value", "key", key, "value", v)
	}
	return fallback
}
