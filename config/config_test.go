package config

import (
	"os"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("./nonexistent.env")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.RateLimitRPM != 100 {
		t.Errorf("expected default rate limit 100, got %d", cfg.RateLimitRPM)
	}
	if cfg.StorageDriver != "memory" {
		t.Errorf("expected default storage driver memory, got %s", cfg.StorageDriver)
	}
}

func TestLoadReadsChainRPCURLsFromEnv(t *testing.T) {
	os.Setenv("GATEWAY_RPC_1", "https://eth.example.com")
	defer os.Unsetenv("GATEWAY_RPC_1")

	cfg, err := Load("./nonexistent.env")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChainRPCURLs[1] != "https://eth.example.com" {
		t.Fatalf("expected chain 1 RPC URL to be read from env, got %q", cfg.ChainRPCURLs[1])
	}
}

func TestLoadAcceptsUnprefixedAliases(t *testing.T) {
	os.Setenv("ETHEREUM_RPC_URL", "https://eth-alias.example.com")
	os.Setenv("ZEROX_API_KEY", "alias-key")
	defer os.Unsetenv("ETHEREUM_RPC_URL")
	defer os.Unsetenv("ZEROX_API_KEY")

	cfg, err := Load("./nonexistent.env")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChainRPCURLs[1] != "https://eth-alias.example.com" {
		t.Fatalf("expected ETHEREUM_RPC_URL alias to be honored, got %q", cfg.ChainRPCURLs[1])
	}
	if cfg.AggregatorAPIKeys["0x"] != "alias-key" {
		t.Fatalf("expected ZEROX_API_KEY alias to be honored, got %q", cfg.AggregatorAPIKeys["0x"])
	}
}

func TestLoadReadsAggregatorAPIKeysFromEnv(t *testing.T) {
	os.Setenv("GATEWAY_APIKEY_0X", "secret-key")
	defer os.Unsetenv("GATEWAY_APIKEY_0X")

	cfg, err := Load("./nonexistent.env")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AggregatorAPIKeys["0x"] != "secret-key" {
		t.Fatalf("expected 0x API key to be read from env, got %q", cfg.AggregatorAPIKeys["0x"])
	}
}
