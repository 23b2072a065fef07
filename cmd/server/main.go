package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/arcgis"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/cache/redisstore"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/cache/resultcache"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/config"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/httpclient"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/observability"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/server"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/engine"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/enrich"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/invalidation/kafkaconsumer"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/layers"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/logger"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	layerFlag := flag.String("layers", "", "layer file path (overrides LAYER_FILE)")
	flag.Parse()

	cfg := config.FromEnv()
	if *layerFlag != "" {
		cfg.LayerFile = strings.TrimSpace(*layerFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)

	reg, err := layers.Load(cfg.LayerFile)
	if err != nil {
		appLog.Error("layer registry load failed", "file", cfg.LayerFile, "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := arcgis.New(appLog, httpclient.NewOutbound(cfg.FetchTimeout),
		arcgis.WithBatchSize(cfg.FetchBatchSize),
		arcgis.WithMaxRecords(cfg.FetchMaxRecords),
		arcgis.WithPageDelay(cfg.FetchDelay),
	)
	coord := engine.New(appLog, fetcher)

	// cache is optional: an unreachable Redis degrades to live queries
	var store enrich.LayerStore
	var rcStore *resultcache.Store
	if cfg.CacheEnabled {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Warn("result cache disabled, redis unavailable", "addr", cfg.RedisAddr, "err", err)
		} else {
			defer func() { _ = rc.Close() }()
			rcStore = resultcache.New(rc, cfg.CellRes, cfg.CacheTTLDefault, cfg.CacheTTLOvr, appLog)
			store = rcStore
		}
	}

	if cfg.Invalidation.Enabled {
		if rcStore == nil {
			appLog.Warn("invalidation enabled without an active cache, consumer not started")
		} else {
			consumer := kafkaconsumer.New(kafkaconsumer.Config{
				Brokers:             splitCSV(cfg.Invalidation.Brokers),
				Topic:               cfg.Invalidation.Topic,
				GroupID:             cfg.Invalidation.GroupID,
				InitialOffsetOldest: true,
			}, appLog, rcStore, nil)
			go func() {
				if err := consumer.Start(ctx); err != nil {
					appLog.Error("invalidation consumer failed", "err", err)
				}
			}()
		}
	}

	if os.Getenv("METRICS_ENABLED") == "true" {
		startAdminMetrics(ctx, len(reg.All()), store != nil)
	}

	handler := enrich.New(appLog, reg, coord, store, cfg.CacheOpTimeout, cfg.MaxLayerWorkers)

	appLog.Info("starting enrichment engine",
		"addr", cfg.Addr,
		"version", Version,
		"layers", len(reg.All()),
		"cache", store != nil,
		"invalidation", cfg.Invalidation.Enabled)

	if err := server.Run(ctx, cfg, appLog, handler, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
