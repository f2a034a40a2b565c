package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/noven-pro/receiving/internal/shared"
)

const (
	maxTextLength     = 200
	idempotencyModule = "receiving.receipt"
)

// RepositoryPort is the transactional store the engine consumes.
type RepositoryPort interface {
	CreateDelivery(ctx context.Context, d Delivery) error
	Load(ctx context.Context, id uuid.UUID) (Snapshot, error)
	ListDeliveries(ctx context.Context, statuses []Status) ([]Delivery, error)
	ListPostings(ctx context.Context, deliveryID uuid.UUID) ([]Posting, error)
	// Commit applies the change iff the stored version still equals
	// change.Version, otherwise it returns ErrConflict.
	Commit(ctx context.Context, change Change) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort deduplicates receipt keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Locker serializes writers for one delivery across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Dependencies groups optional collaborators of the engine.
type Dependencies struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Locker      Locker
	Integration IntegrationHandler
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Service orchestrates delivery receiving.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	locker      Locker
	integration IntegrationHandler
	metrics     *Metrics
	logger      *slog.Logger
	registry    registry
	maxAttempts int
	backoff     time.Duration
}

// NewService builds Service.
func NewService(repo RepositoryPort, deps Dependencies, cfg ServiceConfig) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}
	return &Service{
		repo:        repo,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		locker:      deps.Locker,
		integration: deps.Integration,
		metrics:     deps.Metrics,
		logger:      logger,
		registry:    registry{newID: uuid.New, now: func() time.Time { return time.Now().UTC() }},
		maxAttempts: attempts,
		backoff:     backoff,
	}
}

// CreateDelivery registers a new expected delivery.
func (s *Service) CreateDelivery(ctx context.Context, input CreateDeliveryInput) (Delivery, error) {
	supplier, err := normalizeText("supplier", input.Supplier)
	if err != nil {
		return Delivery{}, err
	}
	reference, err := normalizeText("reference", input.Reference)
	if err != nil {
		return Delivery{}, err
	}
	now := s.registry.now()
	d := Delivery{
		ID:        s.registry.newID(),
		Supplier:  supplier,
		Reference: reference,
		Status:    initialStatus(input.Draft),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := s.repo.CreateDelivery(ctx, d); err != nil {
		return Delivery{}, err
	}
	s.recordAudit(ctx, "DELIVERY_CREATE", d.ID, map[string]any{"supplier": d.Supplier, "reference": d.Reference, "status": d.Status})
	return d, nil
}

// ListExpected returns deliveries whose status is in statuses, newest first.
// An empty filter matches every status.
func (s *Service) ListExpected(ctx context.Context, statuses []Status) ([]Delivery, error) {
	for _, st := range statuses {
		if !st.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, st)
		}
	}
	return s.repo.ListDeliveries(ctx, statuses)
}

// GetDelivery returns the delivery and its items in line order.
func (s *Service) GetDelivery(ctx context.Context, id uuid.UUID) (Delivery, []Item, error) {
	snap, err := s.repo.Load(ctx, id)
	if err != nil {
		return Delivery{}, nil, err
	}
	return snap.Delivery, snap.Items, nil
}

// ListPostings returns the receipt history of a delivery, oldest first.
func (s *Service) ListPostings(ctx context.Context, id uuid.UUID) ([]Posting, error) {
	if _, err := s.repo.Load(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListPostings(ctx, id)
}

// AddItem appends a line with the given expected quantity.
func (s *Service) AddItem(ctx context.Context, deliveryID uuid.UUID, expectedQty int64) (Item, error) {
	if expectedQty < 0 {
		return Item{}, fmt.Errorf("%w: expected quantity must not be negative", ErrInvalidInput)
	}
	var item Item
	_, err := s.mutate(ctx, deliveryID, func(snap Snapshot) (Change, error) {
		created, change, err := s.registry.addItem(snap, expectedQty)
		if err != nil {
			return Change{}, err
		}
		item = created
		return change, nil
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, "ITEM_ADD", deliveryID, map[string]any{"item_id": item.ID.String(), "expected_qty": item.ExpectedQty})
	return item, nil
}

// Receive posts a batch of receipts. The batch is applied wholly or not at all.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Delivery, error) {
	var key string
	if input.Key != "" && s.idempotency != nil {
		key = fmt.Sprintf("RECEIPT:%s:%s", input.DeliveryID, input.Key)
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				s.metrics.receipt("duplicate", 0)
				return Delivery{}, ErrDuplicateReceipt
			}
			return Delivery{}, err
		}
	}

	change, err := s.mutate(ctx, input.DeliveryID, func(snap Snapshot) (Change, error) {
		return s.registry.applyReceipt(snap, input.Postings)
	})
	if err != nil {
		if key != "" {
			if delErr := s.idempotency.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.Warn("release receipt key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		s.metrics.receipt(receiptOutcome(err), 0)
		return Delivery{}, err
	}

	var total int64
	for _, p := range change.Postings {
		total += p.Qty
	}
	s.metrics.receipt("accepted", total)
	s.recordAudit(ctx, "RECEIPT_POST", input.DeliveryID, map[string]any{
		"batch_id":     batchOf(change),
		"postings":     len(change.Postings),
		"qty":          total,
		"received_qty": change.Delivery.ReceivedQty,
		"status":       change.Delivery.Status,
	})
	return change.Delivery, nil
}

// SendToQuality hands an open delivery over to quality check.
func (s *Service) SendToQuality(ctx context.Context, deliveryID uuid.UUID) (Delivery, error) {
	var itemCount int
	change, err := s.mutate(ctx, deliveryID, func(snap Snapshot) (Change, error) {
		d, err := sendToQuality(snap.Delivery, s.registry.now())
		if err != nil {
			return Change{}, err
		}
		itemCount = len(snap.Items)
		return Change{Version: snap.Delivery.Version, Delivery: d}, nil
	})
	if err != nil {
		return Delivery{}, err
	}
	d := change.Delivery
	s.recordAudit(ctx, "SEND_TO_QUALITY", deliveryID, map[string]any{"received_qty": d.ReceivedQty})

	if s.integration != nil {
		evt := SentToQualityEvent{
			DeliveryID:  d.ID,
			Supplier:    d.Supplier,
			Reference:   d.Reference,
			ReceivedQty: d.ReceivedQty,
			ItemCount:   itemCount,
			SentAt:      d.UpdatedAt,
		}
		// The transition is already committed; a failed hand-off must not undo it.
		if err := s.integration.HandleSentToQuality(ctx, evt); err != nil {
			s.metrics.handoff("failed")
			s.logger.Error("quality hand-off", slog.String("delivery_id", d.ID.String()), slog.Any("error", err))
		} else {
			s.metrics.handoff("enqueued")
		}
	}
	return d, nil
}

// mutate runs one read-validate-commit cycle, retrying version conflicts.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, build func(Snapshot) (Change, error)) (Change, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.DeliveryLockKey(id.String()))
		if err != nil {
			if errors.Is(err, shared.ErrLockNotAcquired) {
				s.metrics.conflict()
				return Change{}, fmt.Errorf("%w: %v", ErrConflict, err)
			}
			return Change{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release delivery lock", slog.String("delivery_id", id.String()), slog.Any("error", err))
			}
		}()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Change{}, err
		}
		snap, err := s.repo.Load(ctx, id)
		if err != nil {
			return Change{}, err
		}
		change, err := build(snap)
		if err != nil {
			return Change{}, err
		}
		err = s.repo.Commit(ctx, change)
		if err == nil {
			change.Delivery.Version = change.Version + 1
			return change, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Change{}, err
		}
		s.metrics.conflict()
		if attempt >= s.maxAttempts {
			return Change{}, err
		}
		s.logger.Debug("retrying after version conflict",
			slog.String("delivery_id", id.String()), slog.Int("attempt", attempt))
		wait := time.Duration(attempt)*s.backoff + rand.N(s.backoff)
		select {
		case <-ctx.Done():
			return Change{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, deliveryID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "receiving.delivery", EntityID: deliveryID.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeText(field, value string) (string, error) {
	value = norm.NFC.String(strings.TrimSpace(value))
	if utf8.RuneCountInString(value) > maxTextLength {
		return "", fmt.Errorf("%w: %s longer than %d characters", ErrInvalidInput, field, maxTextLength)
	}
	return value, nil
}

func receiptOutcome(err error) string {
	switch {
	case errors.Is(err, ErrOverReceipt):
		return "over_receipt"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "closed"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
		return "rejected"
	default:
		return "error"
	}
}

func batchOf(change Change) string {
	if len(change.Postings) == 0 {
		return ""
	}
	return change.Postings[0].BatchID.String()
}
