package services

import (
	"math"
	"sort"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// maxAgeBonus caps the age contribution to the priority score
const maxAgeBonus = 10.0

// StockPrioritizer orders batches for greedy consumption
type StockPrioritizer struct{}

// NewStockPrioritizer creates a new stock prioritizer
func NewStockPrioritizer() *StockPrioritizer {
	return &StockPrioritizer{}
}

// PriorityScore combines the quality rank (0 for the worst grade) with an age
// bonus of one point per ten days, saturating at ten points. Unknown grades
// contribute no quality points.
func (p *StockPrioritizer) PriorityScore(batch *entities.StockBatch) float64 {
	score := 0.0
	if batch.QualityGrade.IsKnown() {
		score = float64(batch.QualityGrade.Rank())
	}
	return score + math.Min(float64(batch.AgeDays)/10.0, maxAgeBonus)
}

// Prioritize returns the batches in consumption order without modifying the input.
//
// Spot-sale ordering puts Good and Good Q/S batches first, oldest first, and
// appends every other batch by descending score. Production ordering pushes
// the good grades to the end and consumes the worst quality first, older
// before younger, with unrecognized grades after every known grade. Equal
// keys keep their input order.
func (p *StockPrioritizer) Prioritize(batches []*entities.StockBatch, forSpotSale bool) []*entities.StockBatch {
	ordered := make([]*entities.StockBatch, len(batches))
	copy(ordered, batches)

	if forSpotSale {
		var good, other []*entities.StockBatch
		for _, b := range ordered {
			if b.QualityGrade.IsGood() {
				good = append(good, b)
			} else {
				other = append(other, b)
			}
		}
		sort.SliceStable(good, func(i, j int) bool {
			return good[i].AgeDays > good[j].AgeDays
		})
		sort.SliceStable(other, func(i, j int) bool {
			return p.PriorityScore(other[i]) > p.PriorityScore(other[j])
		})
		return append(good, other...)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		// Good grades carry the highest known ranks, so rank order alone
		// pushes them behind poor and fair stock; unknown grades go last.
		a, b := ordered[i], ordered[j]
		if ra, rb := a.QualityGrade.Rank(), b.QualityGrade.Rank(); ra != rb {
			return ra < rb
		}
		return a.AgeDays > b.AgeDays
	})
	return ordered
}
