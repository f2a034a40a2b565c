package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/noven-pro/receiving/internal/jobs"
	"github.com/noven-pro/receiving/internal/receiving"
	"github.com/noven-pro/receiving/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// DeliveryReader is the read side of the receiving engine used by the worker.
type DeliveryReader interface {
	GetDelivery(ctx context.Context, id uuid.UUID) (receiving.Delivery, []receiving.Item, error)
}

// QualityHandoffJob confirms deliveries that reached quality check and
// records the hand-off for the downstream stage.
type QualityHandoffJob struct {
	Deliveries DeliveryReader
	Audit      receiving.AuditPort
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewQualityHandoffJob wires dependencies for the hand-off handler.
func NewQualityHandoffJob(deliveries DeliveryReader, audit receiving.AuditPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *QualityHandoffJob {
	return &QualityHandoffJob{
		Deliveries: deliveries,
		Audit:      audit,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskQualityHandoff tasks.
func (j *QualityHandoffJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Deliveries == nil {
		return errors.New("quality handoff: handler not configured")
	}
	var payload QualityHandoffPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("quality handoff: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.DeliveryID == uuid.Nil {
		return fmt.Errorf("quality handoff: missing delivery id: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskQualityHandoff)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("delivery_id", payload.DeliveryID.String()))

	d, items, err := j.Deliveries.GetDelivery(ctx, payload.DeliveryID)
	if err != nil {
		if errors.Is(err, receiving.ErrNotFound) {
			logger.Warn("delivery vanished before hand-off")
			resultErr = fmt.Errorf("quality handoff: %v: %w", err, asynq.SkipRetry)
			return resultErr
		}
		logger.Error("load delivery", slog.Any("error", err))
		resultErr = err
		return resultErr
	}
	if d.Status != receiving.StatusInQualityCheck {
		logger.Warn("delivery not in quality check", slog.String("status", string(d.Status)))
		resultErr = fmt.Errorf("quality handoff: delivery %s is %s: %w", d.ID, d.Status, asynq.SkipRetry)
		return resultErr
	}

	j.metrics().ObserveHandoffLag(j.now().Sub(payload.SentAt))
	if j.Audit != nil {
		if err := j.Audit.Record(ctx, auditHandoff(d, len(items))); err != nil {
			logger.Warn("audit hand-off", slog.Any("error", err))
		}
	}
	logger.Info("delivery handed to quality check",
		slog.String("supplier", d.Supplier),
		slog.String("reference", d.Reference),
		slog.Int64("received_qty", d.ReceivedQty),
		slog.Int("items", len(items)))
	return resultErr
}

func (j *QualityHandoffJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *QualityHandoffJob) metrics() *jobmetrics.Metrics {
	if j.Metrics == nil {
		return defaultJobMetrics
	}
	return j.Metrics
}

func (j *QualityHandoffJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func auditHandoff(d receiving.Delivery, items int) shared.AuditLog {
	return shared.AuditLog{
		Action:   "QUALITY_HANDOFF",
		Entity:   "receiving.delivery",
		EntityID: d.ID.String(),
		Meta:     map[string]any{"received_qty": d.ReceivedQty, "items": items},
	}
}
