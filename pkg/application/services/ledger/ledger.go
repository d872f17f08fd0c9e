package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/mod/semver"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/events"
)

// Ledger is the authoritative record of batch to customer commitments.
//
// One writer at a time stages records inside a transaction; readers only ever
// see the last committed state. A nil store keeps the ledger in memory only.
type Ledger struct {
	mu          sync.RWMutex
	committed   []*entities.AllocationRecord
	lastUpdated time.Time

	// writer state, guarded by mu as well
	inTx       bool
	staged     []*entities.AllocationRecord
	stagedKeys map[stageKey]bool

	writeMu   sync.Mutex
	store     repositories.LedgerStore
	publisher *events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

type stageKey struct {
	batch    string
	customer string
	order    entities.OrderKey
}

// NewLedger creates an empty ledger backed by the given store. Call Load to
// pick up previously persisted state.
func NewLedger(store repositories.LedgerStore, eventStore events.EventStore, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:      store,
		publisher:  events.NewPublisher(eventStore),
		logger:     logger.With().Str("component", "ledger").Logger(),
		stagedKeys: make(map[stageKey]bool),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Load replaces the committed state with the persisted envelope. Envelopes
// written by an older schema are migrated: records without a valid batch
// number are dropped and the envelope is rewritten at the current version.
// A failed rewrite is logged and does not fail the load.
func (l *Ledger) Load(ctx context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.store == nil {
		return nil
	}

	envelope, err := l.store.Load(ctx)
	if err != nil {
		return &entities.PersistenceError{Op: "load", Err: err}
	}
	if envelope == nil {
		l.logger.Debug().Msg("no persisted ledger, starting empty")
		return nil
	}

	records := envelope.Records
	if isOlderSchema(envelope.SchemaVersion) {
		var dropped int
		records, dropped = migrateRecords(records)
		l.logger.Info().
			Str("from_version", envelope.SchemaVersion).
			Str("to_version", repositories.CurrentSchemaVersion).
			Int("dropped", dropped).
			Int("kept", len(records)).
			Msg("migrating ledger schema")

		migrated := &repositories.LedgerEnvelope{
			Records:       records,
			LastUpdated:   l.now(),
			SchemaVersion: repositories.CurrentSchemaVersion,
		}
		if err := l.store.Save(ctx, migrated); err != nil {
			l.logger.Warn().Err(err).Msg("could not rewrite migrated ledger")
		}
	}

	l.mu.Lock()
	l.committed = cloneRecords(records)
	l.lastUpdated = envelope.LastUpdated
	l.mu.Unlock()

	l.logger.Info().Int("records", len(records)).Msg("ledger loaded")
	return nil
}

func isOlderSchema(version string) bool {
	v := "v" + strings.TrimPrefix(strings.TrimSpace(version), "v")
	if !semver.IsValid(v) {
		return true
	}
	return semver.Compare(v, "v"+repositories.CurrentSchemaVersion) < 0
}

func migrateRecords(records []*entities.AllocationRecord) ([]*entities.AllocationRecord, int) {
	kept := make([]*entities.AllocationRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		normalized := entities.NormalizeBatchNumber(r.BatchNumber)
		if normalized == "" {
			continue
		}
		c := r.Clone()
		c.BatchNumber = normalized
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.SalesDocumentItem == "" {
			c.SalesDocumentItem = entities.DefaultSalesDocumentItem
		}
		if c.Status == "" {
			c.Status = entities.RecordAllocated
		}
		kept = append(kept, c)
	}
	return kept, len(records) - len(kept)
}

// BeginTransaction opens a transaction. Beginning again before commit discards
// whatever the previous transaction had staged.
func (l *Ledger) BeginTransaction() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inTx && len(l.staged) > 0 {
		l.logger.Warn().Int("staged", len(l.staged)).Msg("discarding uncommitted allocations")
	}
	l.inTx = true
	l.staged = nil
	l.stagedKeys = make(map[stageKey]bool)
}

// InTransaction reports whether a transaction is open
func (l *Ledger) InTransaction() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inTx
}

// AddAllocation validates a record and stages it under the open transaction.
// The staged copy is returned with its id, timestamps and remaining batch
// quantity filled in.
func (l *Ledger) AddAllocation(record *entities.AllocationRecord) (*entities.AllocationRecord, error) {
	if record == nil {
		return nil, &entities.ValidationError{Field: "record"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.inTx {
		return nil, entities.ErrNoTransaction
	}

	r := record.Clone()
	r.BatchNumber = entities.NormalizeBatchNumber(r.BatchNumber)
	switch {
	case r.BatchNumber == "":
		return nil, &entities.ValidationError{Field: "batch_number"}
	case strings.TrimSpace(r.SalesDocument) == "":
		return nil, &entities.ValidationError{Field: "sales_document"}
	case strings.TrimSpace(r.CustomerID) == "":
		return nil, &entities.ValidationError{Field: "customer_id"}
	case !r.QuantityKg.IsPositive():
		return nil, &entities.ValidationError{Field: "quantity_kg", Reason: "must be positive"}
	}
	if r.SalesDocumentItem == "" {
		r.SalesDocumentItem = entities.DefaultSalesDocumentItem
	}

	used := decimal.Zero
	for _, existing := range l.committed {
		if existing.BatchNumber != r.BatchNumber || !existing.IsActive() {
			continue
		}
		if existing.CustomerID != r.CustomerID && !existing.CanReallocate {
			return nil, &entities.ReallocationError{
				BatchNumber: r.BatchNumber,
				Holder:      existing.CustomerID,
				Requester:   r.CustomerID,
			}
		}
		used = used.Add(existing.QuantityKg)
	}
	for _, existing := range l.staged {
		if existing.BatchNumber == r.BatchNumber {
			used = used.Add(existing.QuantityKg)
		}
	}

	available := r.OriginalBatchQuantityKg.Sub(used)
	if available.Sub(r.QuantityKg).IsNegative() {
		return nil, &entities.CapacityError{
			BatchNumber: r.BatchNumber,
			Requested:   r.QuantityKg,
			Available:   available,
		}
	}

	key := stageKey{batch: r.BatchNumber, customer: r.CustomerID, order: r.OrderKey()}
	if l.stagedKeys[key] {
		return nil, &entities.DuplicateError{
			BatchNumber: r.BatchNumber,
			CustomerID:  r.CustomerID,
			Order:       key.order,
		}
	}

	now := l.now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.AllocatedAt.IsZero() {
		r.AllocatedAt = now
	}
	if r.LastStatusUpdate.IsZero() {
		r.LastStatusUpdate = now
	}
	if r.Status == "" {
		r.Status = entities.RecordAllocated
	}
	r.RemainingBatchQuantityKg = available.Sub(r.QuantityKg)

	l.staged = append(l.staged, r)
	l.stagedKeys[key] = true

	l.logger.Debug().
		Str("batch", r.BatchNumber).
		Str("customer", r.CustomerID).
		Str("order", key.order.String()).
		Str("quantity_kg", r.QuantityKg.String()).
		Msg("allocation staged")

	return r.Clone(), nil
}

// CommitTransaction persists the committed records plus everything staged and
// makes the staged records visible. When persistence fails a PersistenceError
// is returned and the transaction stays open, so the caller can retry the
// commit or roll back.
func (l *Ledger) CommitTransaction(ctx context.Context) ([]*entities.AllocationRecord, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.RLock()
	if !l.inTx {
		l.mu.RUnlock()
		return nil, entities.ErrNoTransaction
	}
	staged := l.staged
	merged := make([]*entities.AllocationRecord, 0, len(l.committed)+len(staged))
	merged = append(merged, l.committed...)
	merged = append(merged, staged...)
	l.mu.RUnlock()

	now := l.now()
	if err := l.persist(ctx, merged, now); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.committed = merged
	l.lastUpdated = now
	l.inTx = false
	l.staged = nil
	l.stagedKeys = make(map[stageKey]bool)
	l.mu.Unlock()

	committed := cloneRecords(staged)
	l.logger.Info().Int("records", len(committed)).Msg("allocation transaction committed")
	if len(committed) > 0 {
		l.publish(events.AllocationCommittedEvent, events.AllocationCommitted{Records: committed})
	}
	return committed, nil
}

// RollbackTransaction discards the staged records; committed state is untouched
func (l *Ledger) RollbackTransaction() int {
	l.mu.Lock()
	discarded := len(l.staged)
	wasOpen := l.inTx
	l.inTx = false
	l.staged = nil
	l.stagedKeys = make(map[stageKey]bool)
	l.mu.Unlock()

	if wasOpen {
		l.logger.Info().Int("discarded", discarded).Msg("allocation transaction rolled back")
		l.publish(events.AllocationRolledBackEvent, events.AllocationRolledBack{StagedRecords: discarded})
	}
	return discarded
}

// RemoveAllocation deletes every staged and committed record of a batch.
// Remaining quantities on sibling records are not recomputed.
func (l *Ledger) RemoveAllocation(ctx context.Context, batchNumber string) (int, error) {
	normalized := entities.NormalizeBatchNumber(batchNumber)
	return l.remove(ctx, "batch "+normalized, func(r *entities.AllocationRecord) bool {
		return r.BatchNumber == normalized
	})
}

// RemoveAllocationByID deletes the staged or committed record with the given id
func (l *Ledger) RemoveAllocationByID(ctx context.Context, id string) (int, error) {
	return l.remove(ctx, "id "+id, func(r *entities.AllocationRecord) bool {
		return r.ID == id
	})
}

func (l *Ledger) remove(ctx context.Context, reason string, match func(*entities.AllocationRecord) bool) (int, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	var removedStaged int
	keptStaged := l.staged[:0:0]
	for _, r := range l.staged {
		if match(r) {
			delete(l.stagedKeys, stageKey{batch: r.BatchNumber, customer: r.CustomerID, order: r.OrderKey()})
			removedStaged++
			continue
		}
		keptStaged = append(keptStaged, r)
	}
	l.staged = keptStaged
	kept, removed := partition(l.committed, match)
	l.mu.Unlock()

	if len(removed) == 0 {
		return removedStaged, nil
	}

	now := l.now()
	if err := l.persist(ctx, kept, now); err != nil {
		return removedStaged, err
	}

	l.mu.Lock()
	l.committed = kept
	l.lastUpdated = now
	l.mu.Unlock()

	l.logger.Info().Int("records", len(removed)).Str("match", reason).Msg("allocations removed")
	l.publish(events.AllocationRemovedEvent, events.AllocationRemoved{Records: cloneRecords(removed), Reason: reason})
	return removedStaged + len(removed), nil
}

// ResetAllocations prunes every record whose batch is absent from the new
// stock snapshot and returns the pruned records
func (l *Ledger) ResetAllocations(ctx context.Context, stock []*entities.StockBatch) ([]*entities.AllocationRecord, error) {
	present := make(map[string]bool, len(stock))
	for _, b := range stock {
		present[entities.NormalizeBatchNumber(b.BatchNumber)] = true
	}
	absent := func(r *entities.AllocationRecord) bool { return !present[r.BatchNumber] }

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	keptStaged := l.staged[:0:0]
	for _, r := range l.staged {
		if absent(r) {
			delete(l.stagedKeys, stageKey{batch: r.BatchNumber, customer: r.CustomerID, order: r.OrderKey()})
			continue
		}
		keptStaged = append(keptStaged, r)
	}
	l.staged = keptStaged
	kept, pruned := partition(l.committed, absent)
	l.mu.Unlock()

	if len(pruned) == 0 {
		return nil, nil
	}

	now := l.now()
	if err := l.persist(ctx, kept, now); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.committed = kept
	l.lastUpdated = now
	l.mu.Unlock()

	l.logger.Info().Int("pruned", len(pruned)).Int("kept", len(kept)).Msg("ledger reset against new stock")
	pruned = cloneRecords(pruned)
	l.publish(events.AllocationPrunedEvent, events.AllocationPruned{Records: pruned})
	return pruned, nil
}

// UpdateOrderStatuses refreshes the status snapshot of committed records.
// Records of orders that became terminal turn reallocatable. It returns the
// number of records that changed.
func (l *Ledger) UpdateOrderStatuses(ctx context.Context, statuses map[entities.OrderKey]entities.OrderStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	now := l.now()
	changedOrders := make(map[entities.OrderKey]int)

	l.mu.RLock()
	updated := make([]*entities.AllocationRecord, len(l.committed))
	for i, r := range l.committed {
		updated[i] = r
		status, ok := statuses[r.OrderKey()]
		if !ok {
			continue
		}
		canReallocate := status.IsTerminal()
		if r.OrderStatusSnapshot == status && r.CanReallocate == canReallocate {
			continue
		}
		c := r.Clone()
		c.OrderStatusSnapshot = status
		c.CanReallocate = canReallocate
		c.LastStatusUpdate = now
		updated[i] = c
		changedOrders[r.OrderKey()]++
	}
	l.mu.RUnlock()

	if len(changedOrders) == 0 {
		return 0, nil
	}

	if err := l.persist(ctx, updated, now); err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.committed = updated
	l.lastUpdated = now
	l.mu.Unlock()

	var changed int
	for key, n := range changedOrders {
		changed += n
		status := statuses[key]
		l.publish(events.OrderStatusChangedEvent, events.OrderStatusChanged{
			Order:         key,
			Status:        status,
			CanReallocate: status.IsTerminal(),
			Records:       n,
		})
	}
	l.logger.Info().Int("records", changed).Int("orders", len(changedOrders)).Msg("order statuses refreshed")
	return changed, nil
}

// Close flushes the committed state to the store
func (l *Ledger) Close(ctx context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.RLock()
	records := l.committed
	l.mu.RUnlock()

	if l.store == nil {
		return nil
	}
	return l.persist(ctx, records, l.now())
}

// LastUpdated returns when the committed state last changed
func (l *Ledger) LastUpdated() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUpdated
}

func (l *Ledger) persist(ctx context.Context, records []*entities.AllocationRecord, at time.Time) error {
	if l.store == nil {
		return nil
	}
	envelope := &repositories.LedgerEnvelope{
		Records:       cloneRecords(records),
		LastUpdated:   at,
		SchemaVersion: repositories.CurrentSchemaVersion,
	}
	if err := l.store.Save(ctx, envelope); err != nil {
		l.logger.Error().Err(err).Int("records", len(records)).Msg("ledger save failed")
		return &entities.PersistenceError{Op: "save", Err: err}
	}
	return nil
}

func (l *Ledger) publish(eventType string, data interface{}) {
	if err := l.publisher.Publish(events.LedgerStream, eventType, data); err != nil {
		l.logger.Warn().Err(err).Str("event_type", eventType).Msg("could not publish ledger event")
	}
}

func partition(records []*entities.AllocationRecord, match func(*entities.AllocationRecord) bool) (kept, matched []*entities.AllocationRecord) {
	kept = make([]*entities.AllocationRecord, 0, len(records))
	for _, r := range records {
		if match(r) {
			matched = append(matched, r)
			continue
		}
		kept = append(kept, r)
	}
	return kept, matched
}

func cloneRecords(records []*entities.AllocationRecord) []*entities.AllocationRecord {
	out := make([]*entities.AllocationRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// String summarizes the ledger for debugging
func (l *Ledger) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fmt.Sprintf("Ledger{committed=%d, staged=%d, inTx=%t}", len(l.committed), len(l.staged), l.inTx)
}
