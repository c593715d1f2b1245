package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
)

// backendsUnderTest returns a fresh instance of every backend.
func backendsUnderTest(t *testing.T) map[string]KeyValue {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create sqlite store: %v", err)
	}

	return map[string]KeyValue{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestKeyValue_SetGetRemove(t *testing.T) {
	ctx := context.Background()

	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			// Missing key
			_, ok, err := store.Get(ctx, "absent")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if ok {
				t.Error("Expected absent key to report not found")
			}

			// Round trip
			if err := store.Set(ctx, "k1", []byte("v1")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			value, ok, err := store.Get(ctx, "k1")
			if err != nil || !ok {
				t.Fatalf("Get after Set failed: ok=%v err=%v", ok, err)
			}
			if string(value) != "v1" {
				t.Errorf("Expected v1, got %q", value)
			}

			// Overwrite
			if err := store.Set(ctx, "k1", []byte("v2")); err != nil {
				t.Fatalf("Overwrite failed: %v", err)
			}
			value, _, _ = store.Get(ctx, "k1")
			if string(value) != "v2" {
				t.Errorf("Expected v2 after overwrite, got %q", value)
			}

			// Remove, including an absent key
			if err := store.Remove(ctx, "k1"); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}
			if err := store.Remove(ctx, "k1"); err != nil {
				t.Errorf("Removing absent key should not error: %v", err)
			}
			if _, ok, _ := store.Get(ctx, "k1"); ok {
				t.Error("Expected key to be gone after Remove")
			}
		})
	}
}

func TestKeyValue_KeysPrefix(t *testing.T) {
	ctx := context.Background()

	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			for _, key := range []string{"a:1", "a:2", "b:1"} {
				if err := store.Set(ctx, key, []byte("x")); err != nil {
					t.Fatalf("Set failed: %v", err)
				}
			}

			keys, err := store.Keys(ctx, "a:")
			if err != nil {
				t.Fatalf("Keys failed: %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 2 || keys[0] != "a:1" || keys[1] != "a:2" {
				t.Errorf("Expected [a:1 a:2], got %v", keys)
			}

			all, err := store.Keys(ctx, "")
			if err != nil {
				t.Fatalf("Keys(\"\") failed: %v", err)
			}
			if len(all) != 3 {
				t.Errorf("Expected 3 keys, got %v", all)
			}
		})
	}
}

func TestKeyValue_BytesInUse(t *testing.T) {
	ctx := context.Background()

	for name, store := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			before, err := store.BytesInUse(ctx)
			if err != nil {
				t.Fatalf("BytesInUse failed: %v", err)
			}

			if err := store.Set(ctx, "key", []byte("0123456789")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			after, err := store.BytesInUse(ctx)
			if err != nil {
				t.Fatalf("BytesInUse failed: %v", err)
			}
			if after <= before {
				t.Errorf("Expected bytes in use to grow: before=%d after=%d", before, after)
			}
		})
	}
}

func TestMemoryStore_Quota(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStoreWithConfig(MemoryStoreConfig{MaxBytes: 16})
	defer store.Close()

	if err := store.Set(ctx, "a", []byte("12345")); err != nil {
		t.Fatalf("Set within quota failed: %v", err)
	}

	err := store.Set(ctx, "b", []byte("0123456789abcdef"))
	if err == nil {
		t.Fatal("Expected quota error")
	}
	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Errorf("Expected QuotaExceededError, got %T", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	if err := store.Set(ctx, "k", []byte("abc")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, _, _ := store.Get(ctx, "k")
	value[0] = 'z'

	again, _, _ := store.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("Stored value was mutated through Get result: %q", again)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Set(ctx, "durable", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.Get(ctx, "durable")
	if err != nil || !ok {
		t.Fatalf("Get after reopen failed: ok=%v err=%v", ok, err)
	}
	if string(value) != "value" {
		t.Errorf("Expected persisted value, got %q", value)
	}
}

func TestSQLiteStore_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Error("Expected error for empty db path")
	}
}
