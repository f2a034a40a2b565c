package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/noven-pro/receiving/internal/receiving"
	"github.com/noven-pro/receiving/jobs"
)

// JobsCLI wraps manual management helpers for the receiving queue.
type JobsCLI struct {
	client    *jobs.Client
	enqueuer  *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opt := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{
		client:    jobs.NewClient(opt),
		enqueuer:  asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.enqueuer != nil {
		errs = append(errs, c.enqueuer.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// RedriveHandoff re-enqueues the quality hand-off of a delivery that already
// sits in IN_QUALITY_CHECK.
func (c *JobsCLI) RedriveHandoff(ctx context.Context, reader jobs.DeliveryReader, id uuid.UUID) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	d, items, err := reader.GetDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != receiving.StatusInQualityCheck {
		return nil, fmt.Errorf("jobs cli: delivery %s is %s, not %s", d.ID, d.Status, receiving.StatusInQualityCheck)
	}
	return c.client.EnqueueQualityHandoff(ctx, receiving.SentToQualityEvent{
		DeliveryID:  d.ID,
		Supplier:    d.Supplier,
		Reference:   d.Reference,
		ReceivedQty: d.ReceivedQty,
		ItemCount:   len(items),
		SentAt:      d.UpdatedAt,
	})
}

// TriggerCleanup enqueues an immediate idempotency key cleanup.
func (c *JobsCLI) TriggerCleanup(ctx context.Context, retentionHours int) (*asynq.TaskInfo, error) {
	if c == nil || c.enqueuer == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := jobs.NewIdempotencyCleanupTask(retentionHours)
	if err != nil {
		return nil, err
	}
	return c.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return QueueStats{Queue: jobs.QueueDefault}, nil
		}
		return QueueStats{}, err
	}
	return QueueStats{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}
