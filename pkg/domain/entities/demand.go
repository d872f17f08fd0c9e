package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSalesDocumentItem is used when an order line carries no item number
const DefaultSalesDocumentItem = "10"

// OrderStatus is the normalized status of a sales order
type OrderStatus string

const (
	OrderNotReleased OrderStatus = "not_released"
	OrderPending     OrderStatus = "pending"
	OrderInProgress  OrderStatus = "in_progress"
	OrderAllocated   OrderStatus = "allocated"
	OrderReleased    OrderStatus = "released"
	OrderInDelivery  OrderStatus = "in_delivery"
	OrderDelivered   OrderStatus = "delivered"
	OrderShipped     OrderStatus = "shipped"
	OrderFinished    OrderStatus = "finished"
	OrderUnknown     OrderStatus = "unknown"
)

// NormalizeOrderStatus maps free-text ERP statuses onto the closed status set
func NormalizeOrderStatus(raw string) OrderStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")

	switch s {
	case "":
		return OrderNotReleased
	case "not released", "open", "new":
		return OrderNotReleased
	case "pending":
		return OrderPending
	case "in progress", "processing":
		return OrderInProgress
	case "allocated":
		return OrderAllocated
	case "released":
		return OrderReleased
	case "in delivery":
		return OrderInDelivery
	case "delivered":
		return OrderDelivered
	case "shipped":
		return OrderShipped
	case "finished", "completed":
		return OrderFinished
	default:
		return OrderUnknown
	}
}

// IsTerminal reports whether the order is past the point where stock can be assigned to it
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderInDelivery, OrderDelivered, OrderShipped, OrderFinished:
		return true
	default:
		return false
	}
}

// DemandClass is the allocation class of a demand bucket
type DemandClass int

const (
	ClassConventional DemandClass = iota
	ClassOrganic
	ClassSpot
)

// String method for DemandClass enum
func (c DemandClass) String() string {
	switch c {
	case ClassConventional:
		return "conventional"
	case ClassOrganic:
		return "organic"
	case ClassSpot:
		return "spot"
	default:
		return "unknown"
	}
}

// MarshalText encodes the class by name, e.g. as a JSON map key
func (c DemandClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// IsProduction reports whether the class receives the production buffer
func (c DemandClass) IsProduction() bool {
	return c == ClassConventional || c == ClassOrganic
}

// OrderDemand represents a customer's required quantity derived from a sales order line
type OrderDemand struct {
	CustomerID          string          `json:"customer_id"`
	SalesDocument       string          `json:"sales_document"`
	SalesDocumentItem   string          `json:"sales_document_item"`
	OrderRef            string          `json:"order_ref,omitempty"`
	LoadingDate         time.Time       `json:"loading_date"`
	MaterialID          string          `json:"material_id"`
	MaterialDescription string          `json:"material_description,omitempty"`
	RequiredQuantityKg  decimal.Decimal `json:"required_quantity_kg"`
	IsOrganic           bool            `json:"is_organic"`
	IsSpotSale          bool            `json:"is_spot_sale"`
	// Classified is false when the import collaborator left IsOrganic/IsSpotSale unset
	Classified     bool                 `json:"classified"`
	OrderStatusRaw string               `json:"order_status_raw"`
	Restrictions   CustomerRestrictions `json:"restrictions"`
}

// NewOrderDemand creates a validated OrderDemand
func NewOrderDemand(customerID, salesDocument, salesDocumentItem string, required decimal.Decimal, loadingDate time.Time) (*OrderDemand, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customer cannot be empty")
	}
	if salesDocument == "" {
		return nil, fmt.Errorf("sales document cannot be empty")
	}
	if !required.IsPositive() {
		return nil, fmt.Errorf("required quantity must be positive, got %s", required)
	}
	if salesDocumentItem == "" {
		salesDocumentItem = DefaultSalesDocumentItem
	}

	return &OrderDemand{
		CustomerID:         customerID,
		SalesDocument:      salesDocument,
		SalesDocumentItem:  salesDocumentItem,
		LoadingDate:        loadingDate,
		RequiredQuantityKg: required,
	}, nil
}

// Status returns the normalized order status
func (o *OrderDemand) Status() OrderStatus {
	return NormalizeOrderStatus(o.OrderStatusRaw)
}

// Item returns the sales document item, falling back to the default item number
func (o *OrderDemand) Item() string {
	if o.SalesDocumentItem == "" {
		return DefaultSalesDocumentItem
	}
	return o.SalesDocumentItem
}

// Key identifies the order line in the ledger
func (o *OrderDemand) Key() OrderKey {
	return OrderKey{SalesDocument: o.SalesDocument, SalesDocumentItem: o.Item()}
}

// OrderKey identifies one sales document line
type OrderKey struct {
	SalesDocument     string
	SalesDocumentItem string
}

// String returns the document/item pair as "doc/item"
func (k OrderKey) String() string {
	return k.SalesDocument + "/" + k.SalesDocumentItem
}
