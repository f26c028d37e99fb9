package storage

import (
	"os"
	"testing"
	"time"
)

func TestBadgerStore(t *testing.T) {
	testDir := "./test_badger_db"
	defer os.RemoveAll(testDir)

	store, err := NewBadgerStore(testDir)
	if err != nil {
		t.Fatalf("Failed to create BadgerStore: %v", err)
	}
	defer store.Close()

	if err := store.Set("chain:1:tokens", []byte("usdc,weth")); err != nil {
		t.Errorf("Failed to set value: %v", err)
	}

	val, found, err := store.Get("chain:1:tokens")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("Expected to find chain:1:tokens")
	}
	if string(val) != "usdc,weth" {
		t.Errorf("Expected usdc,weth, got %s", val)
	}

	if err := store.SetWithTTL("spender:1:0x", []byte("0xaaaa"), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if _, found, _ := store.Get("spender:1:0x"); found {
		t.Error("expected TTL entry to have expired")
	}

	if err := store.Delete("chain:1:tokens"); err != nil {
		t.Errorf("Failed to delete value: %v", err)
	}
	if _, found, _ := store.Get("chain:1:tokens"); found {
		t.Error("Expected chain:1:tokens to be deleted")
	}

	stats := store.Stats()
	if stats["type"] != "badger" {
		t.Errorf("Expected type 'badger', got %v", stats["type"])
	}

	if err := store.Clear(); err != nil {
		t.Errorf("Failed to clear store: %v", err)
	}
}

func TestBadgerStoreKeysPrefix(t *testing.T) {
	testDir := "./test_badger_integration"
	defer os.RemoveAll(testDir)

	store, err := NewBadgerStore(testDir)
	if err != nil {
		t.Fatalf("Failed to create BadgerStore: %v", err)
	}
	defer store.Close()

	var _ Store = store

	for i := 0; i < 10; i++ {
		key := "cache:chain:" + string(rune('0'+i))
		if err := store.Set(key, []byte("1")); err != nil {
			t.Errorf("Failed to save key %d: %v", i, err)
		}
	}
	store.Set("other:key", []byte("1"))

	keys, err := store.Keys("cache:chain:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 10 {
		t.Errorf("Expected 10 keys, got %d", len(keys))
	}
}
