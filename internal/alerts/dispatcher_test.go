package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/ledgerlink/internal/reconcile"
	"github.com/ledgerlink/ledgerlink/internal/syncqueue"
	"github.com/ledgerlink/ledgerlink/jobs"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newTestDispatcher(t *testing.T, enq Enqueuer) (*Dispatcher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	d := NewDispatcher(enq, rdb, nil)
	d.WithNow(func() time.Time { return time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC) })
	return d, mr
}

func TestMajorVarianceAlertEnqueuedAndStored(t *testing.T) {
	enq := &fakeEnqueuer{}
	d, _ := newTestDispatcher(t, enq)

	d.MajorVariance(context.Background(), reconcile.Record{
		Material:       "MAT-9",
		Location:       "WH-1",
		ERPQty:         1000,
		WMSQty:         950,
		VariancePct:    5.0,
		Classification: reconcile.ClassMajor,
	})

	require.Len(t, enq.tasks, 1)
	require.Equal(t, jobs.TaskAlertDispatch, enq.tasks[0].Type())
	var payload jobs.AlertDispatchPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, string(KindMajorVariance), payload.Kind)
	require.Equal(t, string(SeverityCritical), payload.Severity)
	require.Contains(t, payload.Message, "MAT-9")
	require.Contains(t, payload.Message, "5.00%")

	recent, err := d.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, KindMajorVariance, recent[0].Kind)
	require.Equal(t, "WH-1", recent[0].Meta["location"])
}

func TestDeadLetterAlertCarriesAttemptCount(t *testing.T) {
	enq := &fakeEnqueuer{}
	d, _ := newTestDispatcher(t, enq)

	d.DeadLetter(context.Background(), syncqueue.Entry{
		ID:        42,
		Direction: syncqueue.DirectionERPToWMS,
		Movement: syncqueue.Movement{
			Kind:     syncqueue.KindReceipt,
			Material: "MAT-1",
			Location: "WH-2",
			Qty:      40,
		},
		RetryCount: 4,
	}, errors.New("target unavailable"))

	require.Len(t, enq.tasks, 1)
	var payload jobs.AlertDispatchPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, string(SeverityCritical), payload.Severity)
	require.Contains(t, payload.Message, "after 5 attempts")
	require.Equal(t, "target unavailable", payload.Meta["cause"])
}

func TestUnbalancedEntryAlertIsWarning(t *testing.T) {
	enq := &fakeEnqueuer{}
	d, _ := newTestDispatcher(t, enq)

	d.UnbalancedEntry(context.Background(), "SO:7:invoiced", 301)

	require.Len(t, enq.tasks, 1)
	var payload jobs.AlertDispatchPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, string(SeverityWarning), payload.Severity)
	require.Equal(t, "SO:7:invoiced", payload.Meta["source_ref"])

	recent, err := d.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, SeverityWarning, recent[0].Severity)
}

func TestRecentHistoryIsCappedNewestFirst(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	for i := 0; i < 120; i++ {
		d.UnbalancedEntry(context.Background(), fmt.Sprintf("SO:%d:invoiced", i), int64(i))
	}

	recent, err := d.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 100)
	require.Equal(t, "SO:119:invoiced", recent[0].Meta["source_ref"])
	require.Equal(t, "SO:20:invoiced", recent[99].Meta["source_ref"])
}

func TestDispatchToleratesEnqueueFailure(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	d, _ := newTestDispatcher(t, enq)

	d.UnbalancedEntry(context.Background(), "SO:1:invoiced", 1)

	recent, err := d.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}
