package config

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// APIKeyVault resolves an aggregator's API key by the base URL the
// adapter sends requests to, so a credential is only ever handed to the
// client that will actually use it.
type APIKeyVault struct {
	mu      sync.RWMutex
	secrets map[string]string // base URL -> API key
}

// NewAPIKeyVault builds a vault from a provider-name -> API key map (as
// produced by Config.AggregatorAPIKeys) and a provider-name -> base URL
// map supplied by the caller, since the vault itself has no knowledge of
// which adapters exist.
func NewAPIKeyVault(apiKeys map[string]string, baseURLs map[string]string) *APIKeyVault {
	v := &APIKeyVault{secrets: make(map[string]string)}
	loaded := 0
	for name, key := range apiKeys {
		baseURL, ok := baseURLs[name]
		if !ok || key == "" {
			continue
		}
		v.secrets[baseURL] = key
		loaded++
	}
	log.Info().Int("count", loaded).Msg("config: aggregator API keys loaded into vault")
	return v
}

// GetCredential returns the API key registered for baseURL, if any.
func (v *APIKeyVault) GetCredential(baseURL string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok := v.secrets[baseURL]
	return key, ok
}

// AddSecret registers or overwrites a credential for baseURL at runtime,
// e.g. for a key rotated without a restart.
func (v *APIKeyVault) AddSecret(baseURL, key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[baseURL] = key
}
