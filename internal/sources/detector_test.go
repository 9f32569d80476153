package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubSourceRepo struct {
	invoiced  []SalesOrderView
	completed []ProductionOrderView
	failRead  bool
}

func (r *stubSourceRepo) ListInvoicedUnposted(ctx context.Context, limit int) ([]SalesOrderView, error) {
	if r.failRead {
		return nil, errors.New("db unreachable")
	}
	if limit > len(r.invoiced) {
		limit = len(r.invoiced)
	}
	return r.invoiced[:limit], nil
}

func (r *stubSourceRepo) ListCompletedUnposted(ctx context.Context, limit int) ([]ProductionOrderView, error) {
	if r.failRead {
		return nil, errors.New("db unreachable")
	}
	if limit > len(r.completed) {
		limit = len(r.completed)
	}
	return r.completed[:limit], nil
}

func TestDetectUnpostedBatchCap(t *testing.T) {
	repo := &stubSourceRepo{}
	for i := 0; i < 30; i++ {
		repo.invoiced = append(repo.invoiced, SalesOrderView{ID: int64(i + 1), Status: "INVOICED", InvoicedAt: time.Now()})
	}
	for i := 0; i < 30; i++ {
		repo.completed = append(repo.completed, ProductionOrderView{ID: int64(i + 1), Status: "COMPLETED", CompletedAt: time.Now()})
	}

	detector := NewDetector(repo, 20)
	events, err := detector.DetectUnposted(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 20)
}

func TestDetectUnpostedReadErrorAbortsCycle(t *testing.T) {
	detector := NewDetector(&stubSourceRepo{failRead: true}, 20)
	events, err := detector.DetectUnposted(context.Background())
	require.Error(t, err)
	require.Nil(t, events)
}

func TestSourceKeysAreDeterministic(t *testing.T) {
	so := SourceEvent{Kind: EventSalesOrderInvoiced, SalesOrder: &SalesOrderView{ID: 100}}
	po := SourceEvent{Kind: EventProductionOrderCompleted, ProductionOrder: &ProductionOrderView{ID: 100}}

	require.Equal(t, so.SourceKey(), SalesOrderKey(100))
	require.Equal(t, po.SourceKey(), ProductionOrderKey(100))
	require.NotEqual(t, so.SourceKey(), po.SourceKey())
	require.Equal(t, "SO:100:invoiced", so.SourceRef())
	require.Equal(t, "PO:100:completed", po.SourceRef())
}
