package sources

import (
	"context"
	"fmt"
)

// Detector scans upstream views for business events with no journal entry yet.
// Detection is a pure read; a failure aborts only the current cycle.
type Detector struct {
	repo  Repository
	limit int
}

// NewDetector builds a Detector with a per-cycle batch cap.
func NewDetector(repo Repository, limit int) *Detector {
	if limit <= 0 {
		limit = 20
	}
	return &Detector{repo: repo, limit: limit}
}

// DetectUnposted returns a bounded batch of unposted events, oldest first per
// kind. The batch cap applies to the combined result so one busy kind cannot
// starve the other.
func (d *Detector) DetectUnposted(ctx context.Context) ([]SourceEvent, error) {
	perKind := d.limit/2 + d.limit%2

	invoiced, err := d.repo.ListInvoicedUnposted(ctx, perKind)
	if err != nil {
		return nil, fmt.Errorf("sources: list invoiced: %w", err)
	}
	completed, err := d.repo.ListCompletedUnposted(ctx, perKind)
	if err != nil {
		return nil, fmt.Errorf("sources: list completed: %w", err)
	}

	events := make([]SourceEvent, 0, len(invoiced)+len(completed))
	for i := range invoiced {
		events = append(events, SourceEvent{Kind: EventSalesOrderInvoiced, SalesOrder: &invoiced[i]})
	}
	for i := range completed {
		events = append(events, SourceEvent{Kind: EventProductionOrderCompleted, ProductionOrder: &completed[i]})
	}
	if len(events) > d.limit {
		events = events[:d.limit]
	}
	return events, nil
}
