package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxswap/gateway/adapters/lifi"
	"github.com/fluxswap/gateway/adapters/odos"
	"github.com/fluxswap/gateway/adapters/zerox"
	"github.com/fluxswap/gateway/api"
	"github.com/fluxswap/gateway/cache"
	"github.com/fluxswap/gateway/config"
	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/health"
	"github.com/fluxswap/gateway/orchestrator"
	"github.com/fluxswap/gateway/ratelimit"
	"github.com/fluxswap/gateway/registry"
	"github.com/fluxswap/gateway/routing"
	"github.com/fluxswap/gateway/storage"
)

var envPath string

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Universal swap gateway CLI",
	Long:  "A CLI for operating and exercising the universal swap aggregation gateway.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, reg, classifier, orch, monitor, quoteCache, limiter, vault, store := bootstrap()
		defer store.Close()
		defer limiter.Stop()

		server := api.NewServer(cfg, reg, classifier, orch, monitor, quoteCache, limiter, vault)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		httpServer := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			fmt.Printf("gateway listening on :%s\n", cfg.Port)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "server error: %v\n", err)
				os.Exit(1)
			}
		}()

		<-ctx.Done()
		fmt.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	},
}

var (
	quoteChainID    uint64
	quoteSellToken  string
	quoteBuyToken   string
	quoteSellAmount string
	quoteTaker      string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Fetch and print on-chain quotes from every registered aggregator",
	Run: func(cmd *cobra.Command, args []string) {
		_, reg, _, orch, _, _, _, _, store := bootstrap()
		defer store.Close()

		amount, err := domain.ParseBigInt(quoteSellAmount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid sellAmount: %v\n", err)
			os.Exit(1)
		}

		req := &domain.SwapRequest{
			ChainID:    quoteChainID,
			SellToken:  quoteSellToken,
			BuyToken:   quoteBuyToken,
			SellAmount: amount,
			Taker:      quoteTaker,
		}
		if err := req.Normalize(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		quotes, err := orch.GetMultipleQuotes(ctx, reg.EvmAggregators(), req, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "quote failed: %v\n", err)
			os.Exit(1)
		}

		out, _ := json.MarshalIndent(quotes, "", "  ")
		fmt.Println(string(out))
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every registered aggregator and print its health",
	Run: func(cmd *cobra.Command, args []string) {
		_, reg, _, _, monitor, _, _, _, store := bootstrap()
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		for _, a := range reg.EvmAggregators() {
			h := monitor.Get(ctx, a)
			fmt.Printf("%-8s status=%s healthy=%v\n", a.Name(), h.Status, h.IsHealthy())
		}
		for _, m := range reg.MetaAggregators() {
			h := monitor.Get(ctx, m)
			fmt.Printf("%-8s status=%s healthy=%v\n", m.Name(), h.Status, h.IsHealthy())
		}
	},
}

func bootstrap() (*config.Config, *registry.Registry, *routing.Classifier, *orchestrator.Orchestrator, *health.Monitor, *cache.SupportedQuoteCache, *ratelimit.Limiter, *config.APIKeyVault, storage.Store) {
	cfg, err := config.Load(envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var store storage.Store
	if cfg.StorageDriver == "badger" {
		bs, err := storage.NewBadgerStore(cfg.StoragePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open badger store: %v\n", err)
			os.Exit(1)
		}
		store = bs
	} else {
		store = storage.NewMapStore()
	}

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

	return cfg, reg, classifier, orch, monitor, quoteCache, limiter, vault, store
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "path to a .env file")

	quoteCmd.Flags().Uint64Var(&quoteChainID, "chain", 1, "chain ID")
	quoteCmd.Flags().StringVar(&quoteSellToken, "sell-token", "", "sell token address")
	quoteCmd.Flags().StringVar(&quoteBuyToken, "buy-token", "", "buy token address")
	quoteCmd.Flags().StringVar(&quoteSellAmount, "sell-amount", "0", "sell amount, base units")
	quoteCmd.Flags().StringVar(&quoteTaker, "taker", "", "taker address")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
