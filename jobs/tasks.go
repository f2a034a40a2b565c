package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noven-pro/receiving/internal/receiving"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQualityHandoff carries a delivery into the quality check stage.
	TaskQualityHandoff = "receiving:quality_handoff"
	// TaskIdempotencyCleanup purges expired receipt keys.
	TaskIdempotencyCleanup = "receiving:idempotency_cleanup"
)

// QualityHandoffPayload is the wire form of a SentToQualityEvent.
type QualityHandoffPayload struct {
	receiving.SentToQualityEvent
}

// NewQualityHandoffTask builds a hand-off task. The task id is derived from
// the delivery so a repeated enqueue for the same delivery is rejected by the
// broker.
func NewQualityHandoffTask(evt receiving.SentToQualityEvent) (*asynq.Task, error) {
	body, err := json.Marshal(QualityHandoffPayload{SentToQualityEvent: evt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQualityHandoff, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(handoffTaskID(evt)),
		asynq.MaxRetry(10),
	), nil
}

func handoffTaskID(evt receiving.SentToQualityEvent) string {
	return "quality_handoff:" + evt.DeliveryID.String()
}

// IdempotencyCleanupPayload configures the cleanup run.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// Retention returns the configured retention, defaulting to seven days.
func (p IdempotencyCleanupPayload) Retention() time.Duration {
	if p.RetentionHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewIdempotencyCleanupTask builds the periodic cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
