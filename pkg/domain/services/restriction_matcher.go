package services

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// RestrictionGroup is a set of customers sharing an identical restriction set
type RestrictionGroup struct {
	Restrictions entities.CustomerRestrictions
	Customers    []entities.Customer
	TotalKg      decimal.Decimal
}

// CustomerIDs returns the ids of the group's members in group order
func (g *RestrictionGroup) CustomerIDs() []string {
	ids := make([]string, len(g.Customers))
	for i, c := range g.Customers {
		ids[i] = c.ID
	}
	return ids
}

// RestrictionMatcher checks batches against customer sourcing restrictions
type RestrictionMatcher struct{}

// NewRestrictionMatcher creates a new restriction matcher
func NewRestrictionMatcher() *RestrictionMatcher {
	return &RestrictionMatcher{}
}

// Matches reports whether the batch satisfies every defined restriction.
// Values are compared with exact string equality.
func (m *RestrictionMatcher) Matches(batch *entities.StockBatch, restrictions entities.CustomerRestrictions) bool {
	for _, key := range entities.RestrictionKeys {
		want := restrictions.Get(key)
		if want != "" && batch.Attribute(key) != want {
			return false
		}
	}
	return true
}

// Mismatches explains which restrictions a batch violates
func (m *RestrictionMatcher) Mismatches(batch *entities.StockBatch, restrictions entities.CustomerRestrictions) []string {
	var errs []string
	for _, key := range entities.RestrictionKeys {
		want := restrictions.Get(key)
		if want == "" {
			continue
		}
		if got := batch.Attribute(key); got != want {
			errs = append(errs, fmt.Sprintf("%s mismatch: expected %s, got %s", key, want, got))
		}
	}
	return errs
}

// Filter returns the batches that satisfy the restrictions, preserving order
func (m *RestrictionMatcher) Filter(batches []*entities.StockBatch, restrictions entities.CustomerRestrictions) []*entities.StockBatch {
	var matching []*entities.StockBatch
	for _, b := range batches {
		if m.Matches(b, restrictions) {
			matching = append(matching, b)
		}
	}
	return matching
}

// GroupByRestrictions partitions customers into groups with identical
// restriction sets. Groups and members keep first-seen order.
func (m *RestrictionMatcher) GroupByRestrictions(customers []entities.Customer) []*RestrictionGroup {
	var groups []*RestrictionGroup
	index := make(map[entities.CustomerRestrictions]*RestrictionGroup)

	for _, c := range customers {
		group, ok := index[c.Restrictions]
		if !ok {
			group = &RestrictionGroup{Restrictions: c.Restrictions, TotalKg: decimal.Zero}
			index[c.Restrictions] = group
			groups = append(groups, group)
		}
		group.Customers = append(group.Customers, c)
	}

	return groups
}
