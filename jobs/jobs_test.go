package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/noven-pro/receiving/internal/jobs"
	"github.com/noven-pro/receiving/internal/receiving"
	"github.com/noven-pro/receiving/internal/shared"
)

func newEngine(t *testing.T) *receiving.Service {
	t.Helper()
	return receiving.NewService(receiving.NewMemoryRepository(), receiving.Dependencies{}, receiving.ServiceConfig{})
}

func handoffTask(t *testing.T, evt receiving.SentToQualityEvent) *asynq.Task {
	t.Helper()
	task, err := NewQualityHandoffTask(evt)
	require.NoError(t, err)
	return task
}

func TestQualityHandoffTaskPayload(t *testing.T) {
	evt := receiving.SentToQualityEvent{
		DeliveryID:  uuid.New(),
		Supplier:    "ACME",
		Reference:   "PO-1",
		ReceivedQty: 7,
		ItemCount:   2,
		SentAt:      time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	task := handoffTask(t, evt)
	require.Equal(t, TaskQualityHandoff, task.Type())

	var payload QualityHandoffPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, evt, payload.SentToQualityEvent)
	require.Contains(t, string(task.Payload()), `"deliveryId"`)
}

func TestQualityHandoffJobAcceptsDeliveryInQualityCheck(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	d, err := engine.CreateDelivery(ctx, receiving.CreateDeliveryInput{Supplier: "ACME"})
	require.NoError(t, err)
	_, err = engine.AddItem(ctx, d.ID, 3)
	require.NoError(t, err)
	d, err = engine.SendToQuality(ctx, d.ID)
	require.NoError(t, err)

	audit := shared.NewMemoryAuditLogger()
	job := NewQualityHandoffJob(engine, audit, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err = job.Handle(ctx, handoffTask(t, receiving.SentToQualityEvent{DeliveryID: d.ID, SentAt: d.UpdatedAt}))
	require.NoError(t, err)

	entries := audit.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "QUALITY_HANDOFF", entries[0].Action)
	require.Equal(t, d.ID.String(), entries[0].EntityID)
	require.Equal(t, 1, entries[0].Meta["items"])
}

func TestQualityHandoffJobSkipsRetryForOpenDelivery(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	d, err := engine.CreateDelivery(ctx, receiving.CreateDeliveryInput{Supplier: "ACME"})
	require.NoError(t, err)

	job := NewQualityHandoffJob(engine, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err = job.Handle(ctx, handoffTask(t, receiving.SentToQualityEvent{DeliveryID: d.ID}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestQualityHandoffJobSkipsRetryForUnknownDelivery(t *testing.T) {
	job := NewQualityHandoffJob(newEngine(t), nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), handoffTask(t, receiving.SentToQualityEvent{DeliveryID: uuid.New()}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestQualityHandoffJobRejectsMalformedPayload(t *testing.T) {
	job := NewQualityHandoffJob(newEngine(t), nil, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskQualityHandoff, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskQualityHandoff, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type failingReader struct{ err error }

func (f failingReader) GetDelivery(context.Context, uuid.UUID) (receiving.Delivery, []receiving.Item, error) {
	return receiving.Delivery{}, nil, f.err
}

func TestQualityHandoffJobRetriesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	job := NewQualityHandoffJob(failingReader{err: boom}, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), handoffTask(t, receiving.SentToQualityEvent{DeliveryID: uuid.New()}))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

type recordingCleaner struct {
	retention time.Duration
	err       error
}

func (r *recordingCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	r.retention = olderThan
	return r.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	cleaner := &recordingCleaner{}
	job := &IdempotencyCleanupJob{Store: cleaner, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewIdempotencyCleanupTask(48)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.retention)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 7*24*time.Hour, cleaner.retention)

	cleaner.err = errors.New("db down")
	require.ErrorIs(t, job.Handle(context.Background(), task), cleaner.err)
}

func TestClientEnqueuesHandoffOncePerDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	evt := receiving.SentToQualityEvent{DeliveryID: uuid.New(), SentAt: time.Now().UTC()}
	info, err := client.EnqueueQualityHandoff(context.Background(), evt)
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, handoffTaskID(evt), info.ID)

	require.NoError(t, client.HandleSentToQuality(context.Background(), evt))
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil)
	rr := httptest.NewRecorder()
	h.health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"scheduled":0}`, rr.Body.String())
}
