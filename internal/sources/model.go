// Package sources exposes read-only views of the upstream business modules
// (sales and production) and detects events that have not yet been posted.
package sources

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SalesOrderView is the read-only projection of an upstream sales order.
type SalesOrderView struct {
	ID           int64
	Number       string
	Status       string
	InvoiceTotal float64
	InvoicedAt   time.Time
}

// ProductionOrderView is the read-only projection of an upstream production order.
type ProductionOrderView struct {
	ID           int64
	Number       string
	Status       string
	MaterialCode string
	LocationCode string
	Quantity     float64
	StandardCost float64
	CompletedAt  time.Time
}

// EventKind enumerates detectable business events.
type EventKind string

const (
	// EventSalesOrderInvoiced fires when a sales order reaches INVOICED.
	EventSalesOrderInvoiced EventKind = "sales_order_invoiced"
	// EventProductionOrderCompleted fires when a production order reaches COMPLETED.
	EventProductionOrderCompleted EventKind = "production_order_completed"
)

// Source modules recorded on journal entries per event kind.
const (
	ModuleSalesInvoice         = "SALES.INVOICE"
	ModuleProductionCompletion = "PRODUCTION.COMPLETION"
)

// SourceEvent is a detected business event awaiting posting. Exactly one of
// SalesOrder or ProductionOrder is set, matching Kind.
type SourceEvent struct {
	Kind            EventKind
	SalesOrder      *SalesOrderView
	ProductionOrder *ProductionOrderView
}

// SourceModule returns the ledger source module for the event.
func (e SourceEvent) SourceModule() string {
	if e.Kind == EventProductionOrderCompleted {
		return ModuleProductionCompletion
	}
	return ModuleSalesInvoice
}

// SourceKey derives the deterministic idempotency key for the event.
func (e SourceEvent) SourceKey() uuid.UUID {
	switch e.Kind {
	case EventProductionOrderCompleted:
		return ProductionOrderKey(e.ProductionOrder.ID)
	default:
		return SalesOrderKey(e.SalesOrder.ID)
	}
}

// SourceRef returns the human-readable form of the source key.
func (e SourceEvent) SourceRef() string {
	switch e.Kind {
	case EventProductionOrderCompleted:
		return fmt.Sprintf("PO:%d:completed", e.ProductionOrder.ID)
	default:
		return fmt.Sprintf("SO:%d:invoiced", e.SalesOrder.ID)
	}
}

// SalesOrderKey derives the source key for an invoiced sales order.
func SalesOrderKey(orderID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("SO:%d:invoiced", orderID)))
}

// ProductionOrderKey derives the source key for a completed production order.
func ProductionOrderKey(orderID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PO:%d:completed", orderID)))
}
