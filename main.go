package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fluxswap/gateway/adapters/lifi"
	"github.com/fluxswap/gateway/adapters/odos"
	"github.com/fluxswap/gateway/adapters/zerox"
	"github.com/fluxswap/gateway/api"
	"github.com/fluxswap/gateway/cache"
	"github.com/fluxswap/gateway/config"
	"github.com/fluxswap/gateway/health"
	"github.com/fluxswap/gateway/orchestrator"
	"github.com/fluxswap/gateway/ratelimit"
	"github.com/fluxswap/gateway/registry"
	"github.com/fluxswap/gateway/routing"
	"github.com/fluxswap/gateway/storage"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	log.Info().Msg("Starting universal swap gateway...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage backend")
	}
	defer store.Close()

	quoteCache := cache.NewSupportedQuoteCache(store)
	monitor := health.NewMonitor(cfg.HealthTTL, cfg.ProbeTimeout)
	reg := registry.New()

	baseURLs := map[string]string{
		"0x":   "https://api.0x.org",
		"odos": "https://api.odos.xyz",
		"lifi": "https://li.quest/v1",
	}
	vault := config.NewAPIKeyVault(cfg.AggregatorAPIKeys, baseURLs)

	zeroxKey, _ := vault.GetCredential(baseURLs["0x"])
	odosKey, _ := vault.GetCredential(baseURLs["odos"])
	lifiKey, _ := vault.GetCredential(baseURLs["lifi"])

	zerox.Register(reg, zeroxKey)
	odos.Register(reg, odosKey)
	lifi.Register(reg, lifiKey)
	reg.OnRegistrationComplete()

	classifier := routing.NewClassifier(reg, quoteCache)
	orch := orchestrator.New(monitor)
	limiter := ratelimit.NewLimiter(cfg.RateLimitRPM)
	defer limiter.Stop()

	server := api.NewServer(cfg, reg, classifier, orch, monitor, quoteCache, limiter, vault)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("gateway API server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("gateway API server failed")
		}
	}()

	log.Info().Msg("universal swap gateway is fully operational")
	<-ctx.Done()

	log.Info().Msg("shutting down gateway...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case "badger":
		return storage.NewBadgerStore(cfg.StoragePath)
	default:
		return storage.NewMapStore(), nil
	}
}
