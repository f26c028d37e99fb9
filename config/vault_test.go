package config

import "testing"

func TestNewAPIKeyVaultLoadsMatchingEntries(t *testing.T) {
	apiKeys := map[string]string{"0x": "secret-key", "odos": ""}
	baseURLs := map[string]string{"0x": "https://api.0x.org", "odos": "https://api.odos.xyz"}

	v := NewAPIKeyVault(apiKeys, baseURLs)

	key, ok := v.GetCredential("https://api.0x.org")
	if !ok || key != "secret-key" {
		t.Fatalf("expected 0x credential to be loaded, got %q (ok=%v)", key, ok)
	}
	if _, ok := v.GetCredential("https://api.odos.xyz"); ok {
		t.Fatal("expected empty odos API key not to be loaded")
	}
}

func TestAddSecretOverwrites(t *testing.T) {
	v := NewAPIKeyVault(nil, nil)
	v.AddSecret("https://api.lifi.io", "rotated-key")

	key, ok := v.GetCredential("https://api.lifi.io")
	if !ok || key != "rotated-key" {
		t.Fatalf("expected rotated key to be stored, got %q (ok=%v)", key, ok)
	}
}
