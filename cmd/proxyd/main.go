// Command proxyd runs the caching forward HTTP proxy.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/j-helland/proxy-lab/cache"
	"github.com/j-helland/proxy-lab/metrics/prom"
	"github.com/j-helland/proxy-lab/proxy"
)

func main() {
	var (
		configPath    = pflag.String("config", "", "path to yaml config file")
		listen        = pflag.String("listen", "", "proxy listen address (overrides config)")
		adminListen   = pflag.String("admin-listen", "", "admin listen address (overrides config)")
		maxCacheSize  = pflag.Int64("max-cache-size", 0, "cache byte budget (overrides config)")
		maxObjectSize = pflag.Int64("max-object-size", 0, "max cacheable response size (overrides config)")
		verbose       = pflag.BoolP("verbose", "v", false, "debug logging")
		pretty        = pflag.Bool("pretty", false, "human-readable log output")
	)
	pflag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	var out = os.Stderr
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if *pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out})
	}

	cfg, err := proxy.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *adminListen != "" {
		cfg.AdminListen = *adminListen
	}
	if *maxCacheSize > 0 {
		cfg.MaxCacheSize = *maxCacheSize
	}
	if *maxObjectSize > 0 {
		cfg.MaxObjectSize = *maxObjectSize
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	c := cache.New(cache.Options{
		MaxSize: cfg.MaxCacheSize,
		Metrics: prom.New(nil, "proxyd", "cache", nil),
		OnEvict: func(key, _ []byte, reason cache.EvictReason) {
			logger.Debug().
				Str("key", string(key)).
				Stringer("reason", reason).
				Msg("evicted")
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := proxy.NewServer(cfg, c, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("proxy terminated")
	}

	logger.Info().Msg("shutting down")
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg("cache close failed")
	}
}
