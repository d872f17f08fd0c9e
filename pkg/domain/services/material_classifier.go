package services

import (
	"sort"
	"strings"

	"github.com/vsinha/fruitalloc/pkg/domain/entities"
)

// Cultivation tags a material as conventionally or organically grown
type Cultivation int

const (
	Conventional Cultivation = iota
	Organic
)

// String method for Cultivation enum
func (c Cultivation) String() string {
	if c == Organic {
		return "Organic"
	}
	return "Conventional"
}

// SaleKind tags a material as regular production stock or a spot-sale item
type SaleKind int

const (
	Standard SaleKind = iota
	Spot
)

// String method for SaleKind enum
func (k SaleKind) String() string {
	if k == Spot {
		return "Spot"
	}
	return "Standard"
}

// MaterialClass is the full classification of a material code
type MaterialClass struct {
	Cultivation Cultivation
	SaleKind    SaleKind
}

var (
	organicPrefixes   = []string{"bob", "bio", "fiarorg"}
	organicFragments  = []string{"org"}
	spotSalePrefixes  = []string{"bcb", "bob"}
	spotDescriptionKw = "spot"
)

// IsOrganic reports whether a material code or description denotes organic fruit
func IsOrganic(materialIDOrDescription string) bool {
	s := strings.ToLower(strings.TrimSpace(materialIDOrDescription))
	if s == "" {
		return false
	}
	for _, prefix := range organicPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	for _, fragment := range organicFragments {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

// IsSpotSale reports whether a material code belongs to the spot-sale range
func IsSpotSale(materialID string) bool {
	s := strings.ToLower(strings.TrimSpace(materialID))
	for _, prefix := range spotSalePrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// ClassifySpot decides the sale kind from the material code, falling back to
// the description only when no material code is present
func ClassifySpot(materialID, description string) SaleKind {
	if strings.TrimSpace(materialID) != "" {
		if IsSpotSale(materialID) {
			return Spot
		}
		return Standard
	}
	if strings.Contains(strings.ToLower(description), spotDescriptionKw) {
		return Spot
	}
	return Standard
}

// Classify returns the cultivation and sale kind of a material
func Classify(materialID, description string) MaterialClass {
	class := MaterialClass{Cultivation: Conventional, SaleKind: ClassifySpot(materialID, description)}
	if IsOrganic(materialID) || (strings.TrimSpace(materialID) == "" && IsOrganic(description)) {
		class.Cultivation = Organic
	}
	return class
}

// ClassifyBatch classifies a stock batch by its material code and description
func ClassifyBatch(batch *entities.StockBatch) MaterialClass {
	return Classify(batch.MaterialID, batch.MaterialDescription)
}

// DemandClassOf returns the allocation class of an order. Pre-classified
// orders keep their flags; unclassified ones are derived from the material.
func DemandClassOf(order *entities.OrderDemand) entities.DemandClass {
	organic, spot := order.IsOrganic, order.IsSpotSale
	if !order.Classified {
		class := Classify(order.MaterialID, order.MaterialDescription)
		organic = class.Cultivation == Organic
		spot = class.SaleKind == Spot
	}

	switch {
	case spot:
		return entities.ClassSpot
	case organic:
		return entities.ClassOrganic
	default:
		return entities.ClassConventional
	}
}

// SameMaterial reports whether two material codes are identical, ignoring case and surrounding blanks
func SameMaterial(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

// OrganicSuppliers lists the distinct suppliers of organic batches, sorted
func OrganicSuppliers(batches []*entities.StockBatch) []string {
	seen := make(map[string]bool)
	var suppliers []string
	for _, b := range batches {
		if b.Supplier == "" || !IsOrganic(b.MaterialID) || seen[b.Supplier] {
			continue
		}
		seen[b.Supplier] = true
		suppliers = append(suppliers, b.Supplier)
	}
	sort.Strings(suppliers)
	return suppliers
}

// OrganicOptions describes whether organic stock could stand in for conventional demand
type OrganicOptions struct {
	CanUseOrganic       bool
	AvailableSuppliers  []string
	RecommendedSupplier string
}

// OrganicAllocationOptions inspects the given batches for organic stock that a
// conventional order could fall back on. The recommended supplier is the one
// with the most organic batches; ties go to the alphabetically first supplier.
func OrganicAllocationOptions(class entities.DemandClass, batches []*entities.StockBatch, selectedSupplier string) OrganicOptions {
	if class != entities.ClassConventional {
		return OrganicOptions{}
	}

	counts := make(map[string]int)
	for _, b := range batches {
		if IsOrganic(b.MaterialID) && b.Supplier != "" {
			counts[b.Supplier]++
		}
	}
	suppliers := OrganicSuppliers(batches)
	if len(suppliers) == 0 {
		return OrganicOptions{}
	}

	if selectedSupplier != "" && counts[selectedSupplier] == 0 {
		return OrganicOptions{AvailableSuppliers: suppliers}
	}

	recommended := suppliers[0]
	for _, s := range suppliers[1:] {
		if counts[s] > counts[recommended] {
			recommended = s
		}
	}

	return OrganicOptions{
		CanUseOrganic:       true,
		AvailableSuppliers:  suppliers,
		RecommendedSupplier: recommended,
	}
}
