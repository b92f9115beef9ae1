package sessions

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	token, err := store.Get(context.Background(), "dbs/db1/colls/c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty for unrecorded collection", token)
	}
}

func TestMemoryStore_SetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "dbs/db1/colls/c1", "0:12"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	token, err := store.Get(ctx, "dbs/db1/colls/c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if token != "0:12" {
		t.Errorf("token = %q, want 0:12", token)
	}

	// A newer token overwrites.
	if err := store.Set(ctx, "dbs/db1/colls/c1", "0:13"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	token, _ = store.Get(ctx, "dbs/db1/colls/c1")
	if token != "0:13" {
		t.Errorf("token = %q, want 0:13", token)
	}
}

func TestMemoryStore_PerCollection(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Set(ctx, "dbs/db1/colls/c1", "0:1")
	store.Set(ctx, "dbs/db1/colls/c2", "0:2")

	if token, _ := store.Get(ctx, "dbs/db1/colls/c1"); token != "0:1" {
		t.Errorf("c1 token = %q, want 0:1", token)
	}
	if token, _ := store.Get(ctx, "dbs/db1/colls/c2"); token != "0:2" {
		t.Errorf("c2 token = %q, want 0:2", token)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Set(ctx, "dbs/db1/colls/c1", "0:9")
			store.Get(ctx, "dbs/db1/colls/c1")
		}()
	}
	wg.Wait()

	if token, _ := store.Get(ctx, "dbs/db1/colls/c1"); token != "0:9" {
		t.Errorf("token = %q, want 0:9", token)
	}
}
