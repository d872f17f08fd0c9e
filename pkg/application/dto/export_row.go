package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExportRow is one flat, fully resolved allocation line for spreadsheet export
type ExportRow struct {
	CustomerID        string          `json:"customer_id"`
	SalesDocument     string          `json:"sales_document"`
	SalesDocumentItem string          `json:"sales_document_item"`
	LoadingDate       time.Time       `json:"loading_date"`
	BatchNumber       string          `json:"batch_number"`
	MaterialID        string          `json:"material_id"`
	QuantityKg        decimal.Decimal `json:"quantity_kg"`
	QualityGrade      string          `json:"quality_grade"`
	AgeDays           int             `json:"age_days"`
	OriginCountry     string          `json:"origin_country"`
	Variety           string          `json:"variety"`
	Supplier          string          `json:"supplier"`
	CanReallocate     bool            `json:"can_reallocate"`
}
