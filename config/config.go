// Package config loads the gateway's runtime configuration from the
// environment (optionally seeded by a .env file) through spf13/viper, so
// chain-keyed and provider-keyed settings resolve as structured maps
// rather than one flat variable per chain.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the gateway's fully resolved runtime configuration.
type Config struct {
	Port          string
	CORSOrigin    string
	RateLimitRPM  int
	HealthTTL     time.Duration
	ProbeTimeout  time.Duration
	SpenderTTL    time.Duration
	StorageDriver string // "memory" or "badger"
	StoragePath   string

	// ChainRPCURLs maps a chain ID to its JSON-RPC endpoint.
	ChainRPCURLs map[uint64]string

	// AggregatorAPIKeys maps an aggregator's provider name (e.g. "0x",
	// "odos") to its API key, when one is required.
	AggregatorAPIKeys map[string]string
}

// Load reads configuration from the environment, first attempting to
// seed it from a .env file at path. A missing file is not an error, just
// a warning.
func Load(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		log.Warn().Str("path", envPath).Msg("no .env file found, using environment defaults")
	}

	v := viper.New()
	v.SetEnvPrefix("GATEWAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Un-prefixed aliases kept for operators migrating from the flat
	// variable names (PORT, CORS_ORIGIN, ETHEREUM_RPC_URL, ZEROX_API_KEY,
	// ...). The GATEWAY_-prefixed form wins when both are set.
	v.BindEnv("port", "GATEWAY_PORT", "PORT")
	v.BindEnv("cors_origin", "GATEWAY_CORS_ORIGIN", "CORS_ORIGIN")
	for chainID, name := range chainEnvNames() {
		v.BindEnv(fmt.Sprintf("rpc_%d", chainID), fmt.Sprintf("GATEWAY_RPC_%d", chainID), name+"_RPC_URL")
	}
	for provider, name := range aggregatorEnvNames() {
		v.BindEnv("apikey_"+provider, "GATEWAY_APIKEY_"+strings.ToUpper(provider), name+"_API_KEY")
	}

	v.SetDefault("port", "8080")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("rate_limit_rpm", 100)
	v.SetDefault("health_ttl_seconds", 300)
	v.SetDefault("probe_timeout_seconds", 5)
	v.SetDefault("spender_ttl_hours", 24)
	v.SetDefault("storage_driver", "memory")
	v.SetDefault("storage_path", "./gateway-data")

	cfg := &Config{
		Port:              v.GetString("port"),
		CORSOrigin:        v.GetString("cors_origin"),
		RateLimitRPM:      v.GetInt("rate_limit_rpm"),
		HealthTTL:         time.Duration(v.GetInt("health_ttl_seconds")) * time.Second,
		ProbeTimeout:      time.Duration(v.GetInt("probe_timeout_seconds")) * time.Second,
		SpenderTTL:        time.Duration(v.GetInt("spender_ttl_hours")) * time.Hour,
		StorageDriver:     v.GetString("storage_driver"),
		StoragePath:       v.GetString("storage_path"),
		ChainRPCURLs:      parseChainRPCURLs(v),
		AggregatorAPIKeys: parseAggregatorAPIKeys(v),
	}

	if len(cfg.ChainRPCURLs) == 0 {
		log.Warn().Msg("no GATEWAY_RPC_<chainId> entries found, on-chain reads will fail until configured")
	}

	return cfg, nil
}

// parseChainRPCURLs reads every GATEWAY_RPC_<chainId>=<url> environment
// entry into a chainID -> RPC URL map.
func parseChainRPCURLs(v *viper.Viper) map[uint64]string {
	urls := make(map[uint64]string)
	for _, known := range knownChainIDs() {
		key := fmt.Sprintf("rpc_%d", known)
		if url := v.GetString(key); url != "" {
			urls[known] = url
		}
	}
	return urls
}

// parseAggregatorAPIKeys reads GATEWAY_APIKEY_<PROVIDER>=<key> entries for
// the gateway's known aggregator names.
func parseAggregatorAPIKeys(v *viper.Viper) map[string]string {
	keys := make(map[string]string)
	for _, name := range knownAggregatorNames() {
		key := fmt.Sprintf("apikey_%s", strings.ToLower(name))
		if apiKey := v.GetString(key); apiKey != "" {
			keys[name] = apiKey
		}
	}
	return keys
}

// chainEnvNames maps the chain IDs the gateway knows how to classify to
// the un-prefixed environment name family (<NAME>_RPC_URL) each accepts.
func chainEnvNames() map[uint64]string {
	return map[uint64]string{
		1:     "ETHEREUM",
		10:    "OPTIMISM",
		56:    "BSC",
		137:   "POLYGON",
		324:   "ZKSYNC",
		8453:  "BASE",
		42161: "ARBITRUM",
		43114: "AVALANCHE",
	}
}

// aggregatorEnvNames maps the provider names this gateway's built-in
// adapters register under to their un-prefixed environment name family
// (<NAME>_API_KEY).
func aggregatorEnvNames() map[string]string {
	return map[string]string{
		"0x":   "ZEROX",
		"odos": "ODOS",
		"lifi": "LIFI",
	}
}

func knownChainIDs() []uint64 {
	out := make([]uint64, 0, len(chainEnvNames()))
	for id := range chainEnvNames() {
		out = append(out, id)
	}
	return out
}

func knownAggregatorNames() []string {
	out := make([]string, 0, len(aggregatorEnvNames()))
	for name := range aggregatorEnvNames() {
		out = append(out, name)
	}
	return out
}
