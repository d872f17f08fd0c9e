package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/application/dto"
	"github.com/vsinha/fruitalloc/pkg/application/services/ledger"
	"github.com/vsinha/fruitalloc/pkg/application/services/shared"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/domain/services"
	"github.com/vsinha/fruitalloc/pkg/infrastructure/events"
)

// Config holds the tunable parameters of an allocation pass
type Config struct {
	BufferPercent           decimal.Decimal
	SmallBatchThresholdKg   decimal.Decimal
	ConsolidateLargeBatches bool
	PoolRestrictionGroups   bool
}

// DefaultConfig returns the production settings: 10% buffer, 900 kg small-batch
// threshold, consolidation and restriction-group pooling enabled
func DefaultConfig() Config {
	return Config{
		BufferPercent:           decimal.NewFromInt(10),
		SmallBatchThresholdKg:   decimal.NewFromInt(900),
		ConsolidateLargeBatches: true,
		PoolRestrictionGroups:   true,
	}
}

// RunObserver receives the result of every allocation pass
type RunObserver interface {
	ObserveRun(result *dto.AllocationResult)
}

// Engine computes allocation passes and writes them into the ledger
type Engine struct {
	ledger      *ledger.Ledger
	prioritizer *services.StockPrioritizer
	matcher     *services.RestrictionMatcher
	publisher   *events.Publisher
	observer    RunObserver
	config      Config
	logger      zerolog.Logger
	now         func() time.Time
}

// NewEngine creates an allocation engine writing into the given ledger
func NewEngine(l *ledger.Ledger, config Config, eventStore events.EventStore, logger zerolog.Logger) *Engine {
	return &Engine{
		ledger:      l,
		prioritizer: services.NewStockPrioritizer(),
		matcher:     services.NewRestrictionMatcher(),
		publisher:   events.NewPublisher(eventStore),
		config:      config,
		logger:      logger.With().Str("component", "allocation_engine").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithObserver registers an observer notified after every pass
func (e *Engine) WithObserver(observer RunObserver) *Engine {
	e.observer = observer
	return e
}

func (e *Engine) bufferFactor() decimal.Decimal {
	return decimal.NewFromInt(1).Add(e.config.BufferPercent.Div(decimal.NewFromInt(100)))
}

// pass carries the state of one Allocate call
type pass struct {
	ctx     context.Context
	runID   string
	capMap  shared.CapacityMap
	result  *dto.AllocationResult
	fatal   error
	logger  zerolog.Logger
	touched map[string]bool
}

// Allocate runs one full allocation pass inside a single ledger transaction.
//
// Structural input problems, capacity violations, duplicates and ledger
// failures roll the transaction back. Reallocation conflicts withdraw the
// affected bucket only. Shortfalls are reported as warnings and never block
// the commit. The returned error is non-nil only when the ledger could not be
// persisted.
func (e *Engine) Allocate(ctx context.Context, stock []*entities.StockBatch, orders []*entities.OrderDemand, customers []entities.Customer) (*dto.AllocationResult, error) {
	started := e.now()
	p := &pass{
		ctx:   ctx,
		runID: uuid.NewString(),
		result: &dto.AllocationResult{
			Summary: dto.RunSummary{
				StartedAt:   started,
				AllocatedKg: make(map[entities.DemandClass]decimal.Decimal),
				ShortfallKg: decimal.Zero,
			},
		},
		touched: make(map[string]bool),
	}
	p.result.RunID = p.runID
	p.logger = e.logger.With().Str("run_id", p.runID).Logger()

	if errs := validateInput(stock, orders); len(errs) > 0 {
		for _, err := range errs {
			p.result.Errors = append(p.result.Errors, err.Error())
		}
		p.result.RolledBack = true
		p.logger.Error().Int("errors", len(errs)).Msg("allocation input rejected")
		e.finish(p, started)
		return p.result, nil
	}

	normalized := make([]*entities.StockBatch, len(stock))
	for i, b := range stock {
		c := *b
		c.BatchNumber = entities.NormalizeBatchNumber(c.BatchNumber)
		normalized[i] = &c
	}

	if _, err := e.ledger.UpdateOrderStatuses(ctx, orderStatuses(orders)); err != nil {
		p.result.Errors = append(p.result.Errors, err.Error())
		p.result.RolledBack = true
		e.finish(p, started)
		return p.result, err
	}

	customerIndex := make(map[string]entities.Customer, len(customers))
	for _, c := range customers {
		customerIndex[c.ID] = c
	}

	e.ledger.BeginTransaction()
	p.capMap = shared.NewCapacityMap(normalized, e.ledger.Allocations())

	held := e.heldByOrder()
	buckets := e.buildBuckets(orders, customerIndex, held)
	p.result.Summary.Buckets = len(buckets)

	production := e.prioritizer.Prioritize(normalized, false)
	spot := e.prioritizer.Prioritize(normalized, true)

	for _, b := range buckets {
		if !b.remainingKg().IsPositive() {
			continue
		}
		if b.class == entities.ClassSpot {
			e.allocateSpot(p, b, spot)
		} else {
			e.allocateProduction(p, b, production)
		}
		if p.fatal != nil {
			return e.abort(p, started)
		}
	}

	if e.config.PoolRestrictionGroups {
		e.allocatePools(p, buckets, production)
		if p.fatal != nil {
			return e.abort(p, started)
		}
	}

	e.reportShortfalls(p, buckets)

	committed, err := e.ledger.CommitTransaction(ctx)
	if err != nil {
		p.fatal = err
		p.result.Errors = append(p.result.Errors, err.Error())
		e.ledger.RollbackTransaction()
		p.result.RolledBack = true
		e.finish(p, started)
		return p.result, err
	}

	p.result.Committed = committed
	p.result.Summary.StockKg = p.capMap.GetTotalCapacity()
	p.result.Summary.Utilization = p.capMap.GetUtilization()
	for _, b := range buckets {
		if kg := entities.SumQuantity(b.staged); kg.IsPositive() {
			p.result.Summary.AllocatedKg[b.class] = p.result.Summary.AllocatedKg[b.class].Add(kg)
		}
	}
	e.finish(p, started)

	p.logger.Info().
		Int("buckets", len(buckets)).
		Int("records", len(committed)).
		Int("warnings", len(p.result.Warnings)).
		Int("errors", len(p.result.Errors)).
		Str("allocated_kg", p.result.Summary.TotalAllocatedKg().String()).
		Msg("allocation pass committed")
	return p.result, nil
}

func (e *Engine) abort(p *pass, started time.Time) (*dto.AllocationResult, error) {
	discarded := e.ledger.RollbackTransaction()
	p.result.RolledBack = true
	p.result.Warnings = nil
	p.result.Shortfalls = nil
	p.logger.Error().Err(p.fatal).Int("discarded", discarded).Msg("allocation pass rolled back")
	e.finish(p, started)

	var persistence *entities.PersistenceError
	if errors.As(p.fatal, &persistence) {
		return p.result, p.fatal
	}
	return p.result, nil
}

func (e *Engine) finish(p *pass, started time.Time) {
	p.result.Summary.Duration = e.now().Sub(started)
	p.result.Summary.Records = len(p.result.Committed)
	p.result.Summary.BatchesTouched = len(p.touched)
	if p.result.RolledBack {
		p.result.Summary.BatchesTouched = 0
		p.result.Summary.AllocatedKg = make(map[entities.DemandClass]decimal.Decimal)
	}
	if e.observer != nil {
		e.observer.ObserveRun(p.result)
	}
}

// heldByOrder returns a lookup of what the committed ledger already holds for
// an order line of the same customer
func (e *Engine) heldByOrder() func(*entities.OrderDemand) decimal.Decimal {
	return func(order *entities.OrderDemand) decimal.Decimal {
		total := decimal.Zero
		for _, r := range e.ledger.GetAllocationsByOrder(order.SalesDocument, order.Item()) {
			if r.CustomerID == order.CustomerID {
				total = total.Add(r.QuantityKg)
			}
		}
		return total
	}
}

// allocateSpot fills a spot bucket from batches with the exact material code,
// in spot order, with no buffer, consolidation or pooling
func (e *Engine) allocateSpot(p *pass, b *bucket, ordered []*entities.StockBatch) {
	for _, batch := range e.candidates(p, b, ordered) {
		if !b.remainingKg().IsPositive() {
			return
		}
		if !e.take(p, b, batch) {
			return
		}
	}
}

// allocateProduction fills a conventional or organic bucket one quality tier
// at a time, worst quality first. Within a tier small batches go first, then
// either a single large batch replacing the small-batch allocations staged so
// far or the tier's large batches in priority order.
func (e *Engine) allocateProduction(p *pass, b *bucket, ordered []*entities.StockBatch) {
	for _, tier := range qualityTiers(e.candidates(p, b, ordered)) {
		if !b.remainingKg().IsPositive() {
			return
		}
		if !e.allocateTier(p, b, tier) {
			return
		}
	}
}

// allocateTier runs the small-then-large flow over batches of one quality
// grade. It returns false when the bucket must stop.
func (e *Engine) allocateTier(p *pass, b *bucket, tier []*entities.StockBatch) bool {
	var small, large []*entities.StockBatch
	for _, batch := range tier {
		if batch.IsSmall(e.config.SmallBatchThresholdKg) {
			small = append(small, batch)
		} else {
			large = append(large, batch)
		}
	}

	for _, batch := range small {
		if !b.remainingKg().IsPositive() {
			return true
		}
		if !e.take(p, b, batch) {
			return false
		}
	}
	if !b.remainingKg().IsPositive() || len(large) == 0 {
		return true
	}

	if e.config.ConsolidateLargeBatches && len(b.staged) > 0 && e.stagedFromSmallBatches(p, b) {
		if e.consolidate(p, b, large) {
			return p.fatal == nil
		}
		if p.fatal != nil {
			return false
		}
	}

	for _, batch := range large {
		if !b.remainingKg().IsPositive() {
			return true
		}
		if !e.take(p, b, batch) {
			return false
		}
	}
	return true
}

// stagedFromSmallBatches reports whether every record the bucket staged in
// this pass came from a small batch
func (e *Engine) stagedFromSmallBatches(p *pass, b *bucket) bool {
	for _, r := range b.staged {
		capCtx := p.capMap.Get(r.BatchNumber)
		if capCtx == nil || !capCtx.Batch.IsSmall(e.config.SmallBatchThresholdKg) {
			return false
		}
	}
	return true
}

// qualityTiers splits stock already in production priority order into runs of
// equal quality grade
func qualityTiers(ordered []*entities.StockBatch) [][]*entities.StockBatch {
	var tiers [][]*entities.StockBatch
	for i, batch := range ordered {
		if i == 0 || batch.QualityGrade.Rank() != ordered[i-1].QualityGrade.Rank() {
			tiers = append(tiers, nil)
		}
		tiers[len(tiers)-1] = append(tiers[len(tiers)-1], batch)
	}
	return tiers
}

// consolidate looks for the heaviest large batch able to cover everything the
// bucket needs in this pass. When found, the small allocations are withdrawn
// and replaced by a single allocation from that batch.
func (e *Engine) consolidate(p *pass, b *bucket, large []*entities.StockBatch) bool {
	passTarget := b.remainingKg().Add(entities.SumQuantity(b.staged))

	byWeight := make([]*entities.StockBatch, len(large))
	copy(byWeight, large)
	sortByWeightDesc(byWeight)

	for _, batch := range byWeight {
		if p.capMap.Get(batch.BatchNumber).RemainingKg().LessThan(passTarget) {
			continue
		}

		replaced := len(b.staged)
		if !e.withdraw(p, b) {
			return false
		}
		p.logger.Debug().
			Str("customer", b.customerID).
			Str("class", b.label()).
			Str("batch", batch.BatchNumber).
			Int("replaced", replaced).
			Msg("consolidating small batches into one large batch")
		e.take(p, b, batch)
		return true
	}
	return false
}

// candidates filters the ordered stock down to batches the bucket may use
func (e *Engine) candidates(p *pass, b *bucket, ordered []*entities.StockBatch) []*entities.StockBatch {
	var out []*entities.StockBatch
	for _, batch := range ordered {
		if batchClass(batch) != b.class {
			continue
		}
		if b.class == entities.ClassSpot && !services.SameMaterial(batch.MaterialID, b.materialID) {
			continue
		}
		capCtx := p.capMap.Get(batch.BatchNumber)
		if capCtx == nil || !capCtx.HasCapacity() || !capCtx.AvailableTo(b.customerID) {
			continue
		}
		if !e.matcher.Matches(batch, b.restrictions) {
			continue
		}
		out = append(out, batch)
	}
	return out
}

// take allocates min(remaining capacity, remaining need) from the batch to
// the bucket. It returns false when the bucket must stop.
func (e *Engine) take(p *pass, b *bucket, batch *entities.StockBatch) bool {
	quantity := decimal.Min(p.capMap.Get(batch.BatchNumber).RemainingKg(), b.remainingKg())
	if !quantity.IsPositive() {
		return true
	}

	if err := e.stage(p, b, b.customerID, batch, quantity); err != nil {
		// candidates already skips locked batches; the ledger lock check still
		// applies to every staged record
		var reallocation *entities.ReallocationError
		if errors.As(err, &reallocation) {
			p.result.Errors = append(p.result.Errors,
				fmt.Sprintf("customer %s (%s orders): %v", b.customerID, b.label(), err))
			p.logger.Warn().Err(err).Str("customer", b.customerID).Str("class", b.label()).Msg("bucket withdrawn")
			e.withdraw(p, b)
			return false
		}
		p.fatal = err
		p.result.Errors = append(p.result.Errors, err.Error())
		return false
	}
	return true
}

// stage writes quantity from a batch to a customer's orders in loading-date
// order, one ledger record per order line
func (e *Engine) stage(p *pass, b *bucket, customerID string, batch *entities.StockBatch, quantity decimal.Decimal) error {
	if err := p.capMap.Consume(batch.BatchNumber, customerID, quantity); err != nil {
		return err
	}

	left := quantity
	for _, order := range b.orders {
		if !left.IsPositive() {
			break
		}
		key := order.Key()
		need := b.needs[key]
		if !need.IsPositive() {
			continue
		}
		part := decimal.Min(need, left)

		record, err := e.ledger.AddAllocation(&entities.AllocationRecord{
			BatchNumber:             batch.BatchNumber,
			CustomerID:              customerID,
			OrderRef:                order.OrderRef,
			SalesDocument:           order.SalesDocument,
			SalesDocumentItem:       order.Item(),
			MaterialID:              order.MaterialID,
			LoadingDate:             order.LoadingDate,
			QuantityKg:              part,
			OriginalBatchQuantityKg: batch.WeightKg,
			CanReallocate:           order.Status().IsTerminal(),
			OrderStatusSnapshot:     order.Status(),
		})
		if err != nil {
			p.capMap.Release(batch.BatchNumber, customerID, left, holdsBatch(b, batch.BatchNumber))
			return err
		}

		b.needs[key] = need.Sub(part)
		b.staged = append(b.staged, record)
		left = left.Sub(part)
		p.touched[batch.BatchNumber] = true

		p.logger.Debug().
			Str("customer", customerID).
			Str("class", b.label()).
			Str("batch", batch.BatchNumber).
			Str("order", key.String()).
			Str("quantity_kg", part.String()).
			Msg("allocated")
	}

	if left.IsPositive() {
		p.capMap.Release(batch.BatchNumber, customerID, left, true)
	}
	return nil
}

func holdsBatch(b *bucket, batchNumber string) bool {
	for _, r := range b.staged {
		if r.BatchNumber == batchNumber {
			return true
		}
	}
	return false
}

// withdraw removes every record staged for the bucket in this pass and gives
// the capacity back. It returns false when the ledger refused the removal.
func (e *Engine) withdraw(p *pass, b *bucket) bool {
	for _, r := range b.staged {
		if _, err := e.ledger.RemoveAllocationByID(p.ctx, r.ID); err != nil {
			p.fatal = err
			p.result.Errors = append(p.result.Errors, err.Error())
			return false
		}
		p.capMap.Release(r.BatchNumber, r.CustomerID, r.QuantityKg, false)
		b.needs[r.OrderKey()] = b.needs[r.OrderKey()].Add(r.QuantityKg)
	}
	b.staged = nil
	return true
}

func (e *Engine) reportShortfalls(p *pass, buckets []*bucket) {
	for _, b := range buckets {
		shortfall := b.shortfallKg()
		if !shortfall.IsPositive() {
			continue
		}

		allocated := b.allocatedKg()
		p.result.Shortfalls = append(p.result.Shortfalls, dto.Shortfall{
			CustomerID:  b.customerID,
			Class:       b.class,
			MaterialID:  b.materialID,
			RequiredKg:  b.requiredKg,
			TargetKg:    b.targetKg,
			AllocatedKg: allocated,
			ShortfallKg: shortfall,
		})
		p.result.Summary.ShortfallKg = p.result.Summary.ShortfallKg.Add(shortfall)
		p.result.Warnings = append(p.result.Warnings, fmt.Sprintf(
			"Customer %s (%s orders) could not be fully allocated. Required: %sKG, Target: %sKG, Allocated: %sKG, Shortfall: %sKG",
			b.customerID, b.label(), b.requiredKg, b.targetKg, allocated, shortfall))

		p.logger.Warn().
			Str("customer", b.customerID).
			Str("class", b.label()).
			Str("shortfall_kg", shortfall.String()).
			Msg("demand not fully allocated")

		if err := e.publisher.Publish(events.LedgerStream, events.AllocationShortfallEvent, events.AllocationShortfall{
			RunID:       p.runID,
			CustomerID:  b.customerID,
			Class:       b.class.String(),
			RequiredKg:  b.requiredKg,
			ShortfallKg: shortfall,
			MaterialID:  b.materialID,
		}); err != nil {
			p.logger.Warn().Err(err).Msg("could not publish shortfall event")
		}
	}
}

func validateInput(stock []*entities.StockBatch, orders []*entities.OrderDemand) []error {
	var errs []error
	seen := make(map[string]bool, len(stock))

	for i, b := range stock {
		number := entities.NormalizeBatchNumber(b.BatchNumber)
		switch {
		case number == "":
			errs = append(errs, &entities.ValidationError{Field: "batch_number", Reason: fmt.Sprintf("is missing on stock row %d", i+1)})
		case seen[number]:
			errs = append(errs, &entities.ValidationError{Field: "batch_number", Reason: fmt.Sprintf("%s appears more than once in the stock snapshot", number)})
		case b.WeightKg.IsNegative():
			errs = append(errs, &entities.ValidationError{Field: "weight_kg", Reason: fmt.Sprintf("of batch %s is negative", number)})
		}
		seen[number] = true
	}

	for i, o := range orders {
		switch {
		case o.CustomerID == "":
			errs = append(errs, &entities.ValidationError{Field: "customer_id", Reason: fmt.Sprintf("is missing on order row %d", i+1)})
		case o.SalesDocument == "":
			errs = append(errs, &entities.ValidationError{Field: "sales_document", Reason: fmt.Sprintf("is missing on order row %d", i+1)})
		case !o.RequiredQuantityKg.IsPositive():
			errs = append(errs, &entities.ValidationError{Field: "required_quantity_kg", Reason: fmt.Sprintf("of order %s must be positive", o.Key())})
		}
	}
	return errs
}

func orderStatuses(orders []*entities.OrderDemand) map[entities.OrderKey]entities.OrderStatus {
	statuses := make(map[entities.OrderKey]entities.OrderStatus, len(orders))
	for _, o := range orders {
		statuses[o.Key()] = o.Status()
	}
	return statuses
}
