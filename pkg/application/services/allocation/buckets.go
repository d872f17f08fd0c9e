package allocation

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
	"github.com/vsinha/fruitalloc/pkg/domain/services"
)

// bucket is the aggregated demand of one customer for one allocation class.
// Spot buckets are further split by material code.
type bucket struct {
	customerID   string
	class        entities.DemandClass
	materialID   string
	restrictions entities.CustomerRestrictions
	orders       []*entities.OrderDemand
	requiredKg   decimal.Decimal
	heldKg       decimal.Decimal
	targetKg     decimal.Decimal
	priority     float64

	// remaining need per order for the current pass
	needs map[entities.OrderKey]decimal.Decimal
	// records staged for this bucket in the current pass
	staged []*entities.AllocationRecord
}

func (b *bucket) remainingKg() decimal.Decimal {
	total := decimal.Zero
	for _, need := range b.needs {
		total = total.Add(need)
	}
	return total
}

func (b *bucket) allocatedKg() decimal.Decimal {
	return b.heldKg.Add(entities.SumQuantity(b.staged))
}

func (b *bucket) shortfallKg() decimal.Decimal {
	return b.remainingKg()
}

func (b *bucket) label() string {
	if b.class == entities.ClassSpot {
		return b.class.String() + " " + b.materialID
	}
	return b.class.String()
}

type bucketKey struct {
	customerID string
	class      entities.DemandClass
	materialID string
}

// buildBuckets aggregates open orders into (customer, class) buckets and
// orders them by allocation priority
func (e *Engine) buildBuckets(orders []*entities.OrderDemand, customers map[string]entities.Customer, held func(*entities.OrderDemand) decimal.Decimal) []*bucket {
	index := make(map[bucketKey]*bucket)
	var buckets []*bucket
	classesPerCustomer := make(map[string]map[entities.DemandClass]bool)

	for _, order := range orders {
		if order.Status().IsTerminal() {
			continue
		}

		class := services.DemandClassOf(order)
		key := bucketKey{customerID: order.CustomerID, class: class}
		if class == entities.ClassSpot {
			key.materialID = strings.ToUpper(strings.TrimSpace(order.MaterialID))
		}

		b, ok := index[key]
		if !ok {
			b = &bucket{
				customerID:   key.customerID,
				class:        class,
				materialID:   key.materialID,
				restrictions: restrictionsFor(order, customers),
				requiredKg:   decimal.Zero,
				heldKg:       decimal.Zero,
				targetKg:     decimal.Zero,
				needs:        make(map[entities.OrderKey]decimal.Decimal),
			}
			index[key] = b
			buckets = append(buckets, b)
		}
		b.orders = append(b.orders, order)
		b.requiredKg = b.requiredKg.Add(order.RequiredQuantityKg)

		if classesPerCustomer[order.CustomerID] == nil {
			classesPerCustomer[order.CustomerID] = make(map[entities.DemandClass]bool)
		}
		classesPerCustomer[order.CustomerID][class] = true
	}

	for _, b := range buckets {
		sortOrders(b.orders)

		factor := decimal.NewFromInt(1)
		if b.class.IsProduction() {
			factor = e.bufferFactor()
		}
		for _, order := range b.orders {
			target := order.RequiredQuantityKg.Mul(factor)
			already := held(order)
			b.targetKg = b.targetKg.Add(target)
			b.heldKg = b.heldKg.Add(already)

			need := target.Sub(already)
			if need.IsNegative() {
				need = decimal.Zero
			}
			b.needs[order.Key()] = b.needs[order.Key()].Add(need)
		}

		b.priority = bucketPriority(b, len(classesPerCustomer[b.customerID]) > 1)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		a, c := buckets[i], buckets[j]
		if a.priority != c.priority {
			return a.priority > c.priority
		}
		if a.customerID != c.customerID {
			return a.customerID < c.customerID
		}
		if a.class != c.class {
			return a.class < c.class
		}
		return a.materialID < c.materialID
	})
	return buckets
}

// bucketPriority scores a bucket: log10 of its kilos, plus 2 when the customer
// orders in more than one class, plus log2 of its order count
func bucketPriority(b *bucket, multiClass bool) float64 {
	score := 0.0
	if kilos := b.requiredKg.InexactFloat64(); kilos > 0 {
		score += math.Log10(kilos)
	}
	if multiClass {
		score += 2
	}
	score += math.Log2(float64(len(b.orders)))
	return score
}

// sortOrders puts earlier loading dates first, larger orders first on the
// same date, then sales document order
func sortOrders(orders []*entities.OrderDemand) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.LoadingDate.Equal(b.LoadingDate) {
			return a.LoadingDate.Before(b.LoadingDate)
		}
		if !a.RequiredQuantityKg.Equal(b.RequiredQuantityKg) {
			return a.RequiredQuantityKg.GreaterThan(b.RequiredQuantityKg)
		}
		return a.Key().String() < b.Key().String()
	})
}

// restrictionsFor prefers the customer master data over the snapshot carried by the order
func restrictionsFor(order *entities.OrderDemand, customers map[string]entities.Customer) entities.CustomerRestrictions {
	if c, ok := customers[order.CustomerID]; ok {
		return c.Restrictions
	}
	return order.Restrictions
}

// batchClass maps a batch onto the demand class it can serve
func batchClass(batch *entities.StockBatch) entities.DemandClass {
	class := services.ClassifyBatch(batch)
	switch {
	case class.SaleKind == services.Spot:
		return entities.ClassSpot
	case class.Cultivation == services.Organic:
		return entities.ClassOrganic
	default:
		return entities.ClassConventional
	}
}

// sortByWeightDesc orders batches heaviest first, keeping priority order on ties
func sortByWeightDesc(batches []*entities.StockBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].WeightKg.GreaterThan(batches[j].WeightKg)
	})
}
