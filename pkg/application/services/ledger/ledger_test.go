package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/events"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/persistence/memory"
)

var errDiskFull = errors.New("disk full")

// flakyStore fails saves while failing is set
type flakyStore struct {
	mu      sync.Mutex
	inner   *memory.LedgerStore
	failing bool
}

func (s *flakyStore) Save(ctx context.Context, envelope *repositories.LedgerEnvelope) error {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return errDiskFull
	}
	return s.inner.Save(ctx, envelope)
}

func (s *flakyStore) Load(ctx context.Context) (*repositories.LedgerEnvelope, error) {
	return s.inner.Load(ctx)
}

func (s *flakyStore) setFailing(failing bool) {
	s.mu.Lock()
	s.failing = failing
	s.mu.Unlock()
}

func kg(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func record(batch, customer, salesDoc string, quantity, original int64) *entities.AllocationRecord {
	return &entities.AllocationRecord{
		BatchNumber:             batch,
		CustomerID:              customer,
		SalesDocument:           salesDoc,
		QuantityKg:              kg(quantity),
		OriginalBatchQuantityKg: kg(original),
	}
}

func newTestLedger(store repositories.LedgerStore) *Ledger {
	return NewLedger(store, nil, zerolog.Nop())
}

func commitOne(t *testing.T, l *Ledger, r *entities.AllocationRecord) *entities.AllocationRecord {
	t.Helper()
	l.BeginTransaction()
	staged, err := l.AddAllocation(r)
	if err != nil {
		t.Fatalf("Failed to stage allocation: %v", err)
	}
	if _, err := l.CommitTransaction(context.Background()); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return staged
}

func TestLedger_AddRequiresTransaction(t *testing.T) {
	l := newTestLedger(nil)

	_, err := l.AddAllocation(record("X100", "ACME", "SO1", 10, 100))
	if !errors.Is(err, entities.ErrNoTransaction) {
		t.Errorf("Expected ErrNoTransaction, got %v", err)
	}
}

func TestLedger_AddValidation(t *testing.T) {
	tests := []struct {
		name  string
		rec   *entities.AllocationRecord
		field string
	}{
		{"missing_batch", record("--", "ACME", "SO1", 10, 100), "batch_number"},
		{"missing_sales_document", record("X100", "ACME", "", 10, 100), "sales_document"},
		{"missing_customer", record("X100", " ", "SO1", 10, 100), "customer_id"},
		{"zero_quantity", record("X100", "ACME", "SO1", 0, 100), "quantity_kg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(nil)
			l.BeginTransaction()

			_, err := l.AddAllocation(tt.rec)
			var validation *entities.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if validation.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, validation.Field)
			}
		})
	}
}

func TestLedger_AddNormalizesAndFillsRecord(t *testing.T) {
	l := newTestLedger(nil)
	fixed := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	l.BeginTransaction()

	staged, err := l.AddAllocation(record("x-100", "ACME", "SO1", 990, 1000))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if staged.BatchNumber != "X100" {
		t.Errorf("Expected normalized batch X100, got %s", staged.BatchNumber)
	}
	if staged.SalesDocumentItem != entities.DefaultSalesDocumentItem {
		t.Errorf("Expected default item 10, got %s", staged.SalesDocumentItem)
	}
	if staged.ID == "" {
		t.Error("Expected an id to be assigned")
	}
	if !staged.AllocatedAt.Equal(fixed) {
		t.Errorf("Expected allocation time %v, got %v", fixed, staged.AllocatedAt)
	}
	if staged.Status != entities.RecordAllocated {
		t.Errorf("Expected status Allocated, got %s", staged.Status)
	}
	if !staged.RemainingBatchQuantityKg.Equal(kg(10)) {
		t.Errorf("Expected remaining 10, got %s", staged.RemainingBatchQuantityKg)
	}
}

func TestLedger_CapacityError(t *testing.T) {
	l := newTestLedger(nil)
	commitOne(t, l, record("X100", "ACME", "SO1", 700, 1000))

	l.BeginTransaction()
	if _, err := l.AddAllocation(record("X100", "ACME", "SO2", 200, 1000)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, err := l.AddAllocation(record("X100", "ACME", "SO3", 200, 1000))
	var capacity *entities.CapacityError
	if !errors.As(err, &capacity) {
		t.Fatalf("Expected CapacityError, got %v", err)
	}
	if !capacity.Available.Equal(kg(100)) {
		t.Errorf("Expected 100 kg available, got %s", capacity.Available)
	}
	if !entities.IsFatal(err) {
		t.Error("Expected capacity errors to be fatal")
	}
}

func TestLedger_DuplicateError(t *testing.T) {
	l := newTestLedger(nil)
	l.BeginTransaction()

	if _, err := l.AddAllocation(record("X100", "ACME", "SO1", 100, 1000)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	_, err := l.AddAllocation(record("x100", "ACME", "SO1", 100, 1000))

	var duplicate *entities.DuplicateError
	if !errors.As(err, &duplicate) {
		t.Fatalf("Expected DuplicateError, got %v", err)
	}

	// a new transaction starts with a clean pending set
	l.BeginTransaction()
	if _, err := l.AddAllocation(record("X100", "ACME", "SO1", 100, 1000)); err != nil {
		t.Errorf("Expected staging to succeed after re-begin, got %v", err)
	}
}

func TestLedger_ReallocationBlock(t *testing.T) {
	l := newTestLedger(nil)
	commitOne(t, l, record("X100", "A", "SO1", 400, 1000))

	l.BeginTransaction()
	_, err := l.AddAllocation(record("X100", "B", "SO2", 100, 1000))

	var reallocation *entities.ReallocationError
	if !errors.As(err, &reallocation) {
		t.Fatalf("Expected ReallocationError, got %v", err)
	}
	if reallocation.Holder != "A" || reallocation.Requester != "B" {
		t.Errorf("Expected holder A and requester B, got %s and %s", reallocation.Holder, reallocation.Requester)
	}
	if entities.IsFatal(err) {
		t.Error("Expected reallocation errors to be non-fatal")
	}

	// other writes in the same transaction still commit
	if _, err := l.AddAllocation(record("Y200", "B", "SO2", 100, 500)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	committed, err := l.CommitTransaction(context.Background())
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if len(committed) != 1 || committed[0].BatchNumber != "Y200" {
		t.Errorf("Expected only Y200 to commit, got %v", committed)
	}
}

func TestLedger_ReallocatableBatchCanMove(t *testing.T) {
	l := newTestLedger(nil)
	held := record("X100", "A", "SO1", 400, 1000)
	held.CanReallocate = true
	commitOne(t, l, held)

	l.BeginTransaction()
	if _, err := l.AddAllocation(record("X100", "B", "SO2", 600, 1000)); err != nil {
		t.Errorf("Expected reallocatable batch to accept customer B, got %v", err)
	}
}

func TestLedger_ReadersSeeCommittedOnly(t *testing.T) {
	l := newTestLedger(nil)
	l.BeginTransaction()
	if _, err := l.AddAllocation(record("X100", "ACME", "SO1", 100, 1000)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := l.GetAllocationsByBatch("X100"); len(got) != 0 {
		t.Errorf("Expected readers to see no staged records, got %d", len(got))
	}
	if got := l.WorkingAllocationsByBatch("X100"); len(got) != 1 {
		t.Errorf("Expected writer view to include staged record, got %d", len(got))
	}

	if _, err := l.CommitTransaction(context.Background()); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if got := l.GetAllocationsByOrder("SO1", ""); len(got) != 1 {
		t.Errorf("Expected committed record by order, got %d", len(got))
	}
	if got := l.GetAllocationsByCustomer("ACME"); len(got) != 1 {
		t.Errorf("Expected committed record by customer, got %d", len(got))
	}
}

func TestLedger_Rollback(t *testing.T) {
	l := newTestLedger(memory.NewLedgerStore())
	commitOne(t, l, record("X100", "ACME", "SO1", 100, 1000))

	l.BeginTransaction()
	_, _ = l.AddAllocation(record("Y200", "ACME", "SO2", 100, 1000))
	_, _ = l.AddAllocation(record("Z300", "ACME", "SO3", 100, 1000))

	if discarded := l.RollbackTransaction(); discarded != 2 {
		t.Errorf("Expected 2 discarded records, got %d", discarded)
	}
	if l.InTransaction() {
		t.Error("Expected no open transaction after rollback")
	}
	if got := l.Allocations(); len(got) != 1 || got[0].BatchNumber != "X100" {
		t.Errorf("Expected committed state unchanged, got %v", got)
	}
	if _, err := l.CommitTransaction(context.Background()); !errors.Is(err, entities.ErrNoTransaction) {
		t.Errorf("Expected ErrNoTransaction after rollback, got %v", err)
	}
}

func TestLedger_PersistenceFailureKeepsTransactionOpen(t *testing.T) {
	store := &flakyStore{inner: memory.NewLedgerStore()}
	l := newTestLedger(store)
	ctx := context.Background()

	l.BeginTransaction()
	if _, err := l.AddAllocation(record("X100", "ACME", "SO1", 100, 1000)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	store.setFailing(true)
	_, err := l.CommitTransaction(ctx)
	var persistence *entities.PersistenceError
	if !errors.As(err, &persistence) {
		t.Fatalf("Expected PersistenceError, got %v", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
	if len(l.Allocations()) != 0 {
		t.Error("Expected nothing visible after failed commit")
	}
	if !l.InTransaction() || len(l.Staged()) != 1 {
		t.Fatal("Expected staged state to be kept for retry")
	}

	store.setFailing(false)
	committed, err := l.CommitTransaction(ctx)
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if len(committed) != 1 {
		t.Errorf("Expected 1 committed record, got %d", len(committed))
	}

	reloaded := newTestLedger(store)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if got := reloaded.GetAllocationsByBatch("X100"); len(got) != 1 {
		t.Errorf("Expected persisted record after reload, got %d", len(got))
	}
}

func TestLedger_ResetPruning(t *testing.T) {
	l := newTestLedger(memory.NewLedgerStore())
	l.BeginTransaction()
	_, _ = l.AddAllocation(record("X100", "ACME", "SO1", 100, 1000))
	_, _ = l.AddAllocation(record("Y200", "ACME", "SO2", 100, 1000))
	if _, err := l.CommitTransaction(context.Background()); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	pruned, err := l.ResetAllocations(context.Background(), []*entities.StockBatch{{BatchNumber: "X100"}})
	if err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}

	if len(pruned) != 1 || pruned[0].BatchNumber != "Y200" {
		t.Errorf("Expected Y200 to be pruned, got %v", pruned)
	}
	if got := l.GetAllocationsByBatch("Y200"); len(got) != 0 {
		t.Errorf("Expected no Y200 records, got %d", len(got))
	}
	if got := l.GetAllocationsByBatch("X100"); len(got) != 1 {
		t.Errorf("Expected X100 record to be retained, got %d", len(got))
	}
}

func TestLedger_RemoveAllocation(t *testing.T) {
	l := newTestLedger(nil)
	ctx := context.Background()
	first := commitOne(t, l, record("X100", "ACME", "SO1", 100, 1000))
	commitOne(t, l, record("X100", "ACME", "SO2", 100, 1000))
	commitOne(t, l, record("Y200", "ACME", "SO3", 100, 1000))

	removed, err := l.RemoveAllocationByID(ctx, first.ID)
	if err != nil || removed != 1 {
		t.Fatalf("Expected 1 record removed by id, got %d (%v)", removed, err)
	}

	l.BeginTransaction()
	_, _ = l.AddAllocation(record("X100", "ACME", "SO4", 100, 1000))

	removed, err = l.RemoveAllocation(ctx, "x-100")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected staged and committed X100 records removed, got %d", removed)
	}
	if got := l.WorkingAllocationsByBatch("X100"); len(got) != 0 {
		t.Errorf("Expected no X100 records left, got %d", len(got))
	}
	if got := l.Allocations(); len(got) != 1 {
		t.Errorf("Expected only Y200 left, got %d", len(got))
	}
}

func TestLedger_UpdateOrderStatuses(t *testing.T) {
	l := newTestLedger(nil)
	commitOne(t, l, record("X100", "A", "SO1", 100, 1000))

	changed, err := l.UpdateOrderStatuses(context.Background(), map[entities.OrderKey]entities.OrderStatus{
		{SalesDocument: "SO1", SalesDocumentItem: "10"}: entities.OrderShipped,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if changed != 1 {
		t.Errorf("Expected 1 changed record, got %d", changed)
	}

	got := l.GetAllocationsByOrder("SO1", "10")[0]
	if !got.CanReallocate || got.OrderStatusSnapshot != entities.OrderShipped {
		t.Errorf("Expected shipped, reallocatable record, got %s/%t", got.OrderStatusSnapshot, got.CanReallocate)
	}

	l.BeginTransaction()
	if _, err := l.AddAllocation(record("X100", "B", "SO2", 100, 1000)); err != nil {
		t.Errorf("Expected batch of a shipped order to be reallocatable, got %v", err)
	}
}

func TestLedger_LoadMigratesOlderSchema(t *testing.T) {
	store := memory.NewLedgerStore()
	ctx := context.Background()

	legacy := &repositories.LedgerEnvelope{
		SchemaVersion: "1.0.0",
		Records: []*entities.AllocationRecord{
			{BatchNumber: "x-100", CustomerID: "ACME", SalesDocument: "SO1", QuantityKg: kg(10)},
			{BatchNumber: "###", CustomerID: "ACME", SalesDocument: "SO2", QuantityKg: kg(10)},
		},
	}
	if err := store.Save(ctx, legacy); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	l := newTestLedger(store)
	if err := l.Load(ctx); err != nil {
		t.Fatalf("Expected migration never to fail the load, got %v", err)
	}

	records := l.Allocations()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record after migration, got %d", len(records))
	}
	if records[0].BatchNumber != "X100" || records[0].ID == "" || records[0].SalesDocumentItem != "10" {
		t.Errorf("Expected normalized record with id and default item, got %+v", records[0])
	}

	rewritten, _ := store.Load(ctx)
	if rewritten.SchemaVersion != repositories.CurrentSchemaVersion {
		t.Errorf("Expected envelope rewritten at %s, got %s", repositories.CurrentSchemaVersion, rewritten.SchemaVersion)
	}
	if len(rewritten.Records) != 1 {
		t.Errorf("Expected rewritten envelope with 1 record, got %d", len(rewritten.Records))
	}
}

func TestIsOlderSchema(t *testing.T) {
	tests := []struct {
		version  string
		expected bool
	}{
		{"1.0.0", true},
		{"1.9.3", true},
		{"2.0.0", false},
		{"v2.0.0", false},
		{"2.1.0", false},
		{"", true},
		{"legacy", true},
	}

	for _, tt := range tests {
		if got := isOlderSchema(tt.version); got != tt.expected {
			t.Errorf("isOlderSchema(%q): expected %t, got %t", tt.version, tt.expected, got)
		}
	}
}

func TestLedger_PublishesEvents(t *testing.T) {
	store := events.NewInMemoryEventStore()
	l := NewLedger(nil, store, zerolog.Nop())

	commitOne(t, l, record("X100", "ACME", "SO1", 100, 1000))
	l.BeginTransaction()
	l.RollbackTransaction()

	all, _ := store.ReadAllEvents(0)
	if len(all) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(all))
	}
	if all[0].Type() != events.AllocationCommittedEvent {
		t.Errorf("Expected %s, got %s", events.AllocationCommittedEvent, all[0].Type())
	}
	if all[1].Type() != events.AllocationRolledBackEvent {
		t.Errorf("Expected %s, got %s", events.AllocationRolledBackEvent, all[1].Type())
	}
	if all[0].StreamID() != events.LedgerStream {
		t.Errorf("Expected stream %s, got %s", events.LedgerStream, all[0].StreamID())
	}
}
