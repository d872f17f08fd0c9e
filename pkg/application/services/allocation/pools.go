package allocation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// shareScale is the number of decimals kept when a pooled batch quantity is split
const shareScale = 3

// allocatePools gives production demand that is still short a second chance
// against the stock shared by customers with identical restrictions. Each
// pooled batch is split equally between the members that are still short,
// capped at what each of them needs.
func (e *Engine) allocatePools(p *pass, buckets []*bucket, ordered []*entities.StockBatch) {
	for _, class := range []entities.DemandClass{entities.ClassConventional, entities.ClassOrganic} {
		byCustomer := make(map[string]*bucket)
		var members []entities.Customer
		for _, b := range buckets {
			if b.class != class {
				continue
			}
			byCustomer[b.customerID] = b
			members = append(members, entities.Customer{ID: b.customerID, Restrictions: b.restrictions})
		}

		for _, group := range e.matcher.GroupByRestrictions(members) {
			if len(group.Customers) < 2 {
				continue
			}
			e.allocatePool(p, class, group.Restrictions, group.CustomerIDs(), byCustomer, ordered)
			if p.fatal != nil {
				return
			}
		}
	}
}

func (e *Engine) allocatePool(p *pass, class entities.DemandClass, restrictions entities.CustomerRestrictions, memberIDs []string, byCustomer map[string]*bucket, ordered []*entities.StockBatch) {
	for _, batch := range ordered {
		recipients := shortMembers(memberIDs, byCustomer)
		if len(recipients) == 0 {
			return
		}
		if batchClass(batch) != class || !e.matcher.Matches(batch, restrictions) {
			continue
		}
		capCtx := p.capMap.Get(batch.BatchNumber)
		if capCtx == nil || !capCtx.HasCapacity() || !capCtx.AvailableToPool(memberIDs, recipientIDs(recipients)) {
			continue
		}

		need := decimal.Zero
		for _, b := range recipients {
			need = need.Add(b.remainingKg())
		}
		pooled := decimal.Min(capCtx.RemainingKg(), need)
		share := pooled.Div(decimal.NewFromInt(int64(len(recipients)))).Truncate(shareScale)
		if !share.IsPositive() {
			continue
		}

		p.logger.Debug().
			Str("class", class.String()).
			Str("batch", batch.BatchNumber).
			Strs("recipients", recipientIDs(recipients)).
			Str("share_kg", share.String()).
			Msg("splitting pooled batch")

		for _, b := range recipients {
			quantity := decimal.Min(share, b.remainingKg())
			if !quantity.IsPositive() {
				continue
			}
			if err := e.stage(p, b, b.customerID, batch, quantity); err != nil {
				// AvailableToPool screens committed holders before the ledger does
				var reallocation *entities.ReallocationError
				if errors.As(err, &reallocation) {
					p.result.Errors = append(p.result.Errors,
						fmt.Sprintf("customer %s (%s orders, pooled): %v", b.customerID, b.label(), err))
					if !e.withdraw(p, b) {
						return
					}
					continue
				}
				p.fatal = err
				p.result.Errors = append(p.result.Errors, err.Error())
				return
			}
		}
	}
}

// shortMembers returns the buckets of the given members that still need stock
func shortMembers(memberIDs []string, byCustomer map[string]*bucket) []*bucket {
	var short []*bucket
	for _, id := range memberIDs {
		if b, ok := byCustomer[id]; ok && b.remainingKg().IsPositive() {
			short = append(short, b)
		}
	}
	return short
}

func recipientIDs(recipients []*bucket) []string {
	ids := make([]string, len(recipients))
	for i, b := range recipients {
		ids[i] = b.customerID
	}
	return ids
}
