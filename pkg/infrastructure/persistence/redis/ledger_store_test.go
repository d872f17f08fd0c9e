package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
)

func connect(t *testing.T) *LedgerStore {
	t.Helper()
	url := os.Getenv("FRUITALLOC_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FRUITALLOC_TEST_REDIS_URL not set")
	}

	key := "fruitalloc:test:" + uuid.NewString()
	store, err := Connect(context.Background(), url, key, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() {
		store.client.Del(context.Background(), key)
		_ = store.Close()
	})
	return store
}

func TestLedgerStore_RoundTrip(t *testing.T) {
	store := connect(t)
	ctx := context.Background()

	envelope, err := store.Load(ctx)
	if err != nil || envelope != nil {
		t.Fatalf("Expected empty store, got %+v (%v)", envelope, err)
	}

	at := time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC)
	in := &repositories.LedgerEnvelope{
		Records: []*entities.AllocationRecord{{
			ID:          "rec-1",
			BatchNumber: "X100",
			CustomerID:  "ACME",
			QuantityKg:  decimal.NewFromInt(990),
		}},
		LastUpdated:   at,
		SchemaVersion: repositories.CurrentSchemaVersion,
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	out, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if len(out.Records) != 1 || !out.Records[0].QuantityKg.Equal(decimal.NewFromInt(990)) {
		t.Errorf("Expected the record to round trip, got %+v", out.Records)
	}
}

func TestNewLedgerStore_DefaultKey(t *testing.T) {
	store := NewLedgerStore(nil, "", zerolog.Nop())
	if store.key != DefaultKey {
		t.Errorf("Expected key %s, got %s", DefaultKey, store.key)
	}
}
