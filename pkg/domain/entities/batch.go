package entities

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// QualityGrade represents the reinspection quality of a batch
type QualityGrade string

const (
	QualityPoorMC QualityGrade = "Poor M/C"
	QualityPoor   QualityGrade = "Poor"
	QualityFairMC QualityGrade = "Fair M/C"
	QualityFair   QualityGrade = "Fair"
	QualityGoodQS QualityGrade = "Good Q/S"
	QualityGood   QualityGrade = "Good"
)

// qualityOrder lists the known grades from worst to best
var qualityOrder = []QualityGrade{
	QualityPoorMC,
	QualityPoor,
	QualityFairMC,
	QualityFair,
	QualityGoodQS,
	QualityGood,
}

// UnknownQualityRank is the rank given to grades outside the known set.
// It is larger than every known rank so unknown grades sort last.
var UnknownQualityRank = len(qualityOrder)

// Rank returns the position of the grade in the quality order, 0 being the worst
func (q QualityGrade) Rank() int {
	for i, grade := range qualityOrder {
		if grade == q {
			return i
		}
	}
	return UnknownQualityRank
}

// IsKnown reports whether the grade belongs to the closed quality set
func (q QualityGrade) IsKnown() bool {
	return q.Rank() != UnknownQualityRank
}

// IsGood reports whether the grade is one of the two top grades reserved for spot sales
func (q QualityGrade) IsGood() bool {
	return q == QualityGood || q == QualityGoodQS
}

// String method for QualityGrade
func (q QualityGrade) String() string {
	if q == "" {
		return "Unknown"
	}
	return string(q)
}

// StockBatch represents a physical lot of fruit stock
type StockBatch struct {
	BatchNumber         string          `json:"batch_number"`
	LocationCode        string          `json:"location_code,omitempty"`
	MaterialID          string          `json:"material_id"`
	MaterialDescription string          `json:"material_description,omitempty"`
	Variety             string          `json:"variety"`
	QualityGrade        QualityGrade    `json:"quality_grade"`
	WeightKg            decimal.Decimal `json:"weight_kg"`
	AgeDays             int             `json:"age_days"`
	OriginCountry       string          `json:"origin_country"`
	CertificationID     string          `json:"certification_id"`
	TransportDocRef     string          `json:"transport_doc_ref"`
	MinimumSize         string          `json:"minimum_size"`
	OriginPalletNumber  string          `json:"origin_pallet_number"`
	Supplier            string          `json:"supplier"`
}

// NewStockBatch creates a validated StockBatch with a normalized batch number
func NewStockBatch(batchNumber, materialID string, quality QualityGrade, weightKg decimal.Decimal, ageDays int) (*StockBatch, error) {
	normalized := NormalizeBatchNumber(batchNumber)
	if normalized == "" {
		return nil, fmt.Errorf("batch number cannot be empty")
	}
	if weightKg.IsNegative() {
		return nil, fmt.Errorf("weight cannot be negative, got %s", weightKg)
	}
	if ageDays < 0 {
		return nil, fmt.Errorf("age cannot be negative, got %d", ageDays)
	}

	return &StockBatch{
		BatchNumber:  normalized,
		MaterialID:   materialID,
		QualityGrade: quality,
		WeightKg:     weightKg,
		AgeDays:      ageDays,
	}, nil
}

// NormalizeBatchNumber strips every non-alphanumeric character and uppercases the rest
func NormalizeBatchNumber(batchNumber string) string {
	var b strings.Builder
	b.Grow(len(batchNumber))
	for _, r := range batchNumber {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// IsSmall reports whether the batch weight is at or below the threshold
func (b *StockBatch) IsSmall(thresholdKg decimal.Decimal) bool {
	return b.WeightKg.LessThanOrEqual(thresholdKg)
}
