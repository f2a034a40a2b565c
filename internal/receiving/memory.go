package receiving

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process store honouring the same version
// contract as the Postgres repository. Values are copied in and out so
// callers never share state with the store.
type MemoryRepository struct {
	mu         sync.RWMutex
	deliveries map[uuid.UUID]Delivery
	items      map[uuid.UUID][]Item
	postings   map[uuid.UUID][]Posting
	seq        map[uuid.UUID]int64
	nextSeq    int64
}

// NewMemoryRepository constructs an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		deliveries: make(map[uuid.UUID]Delivery),
		items:      make(map[uuid.UUID][]Item),
		postings:   make(map[uuid.UUID][]Posting),
		seq:        make(map[uuid.UUID]int64),
	}
}

// CreateDelivery stores a new delivery.
func (r *MemoryRepository) CreateDelivery(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.deliveries[d.ID]; exists {
		return fmt.Errorf("receiving: delivery %s already exists", d.ID)
	}
	r.nextSeq++
	r.seq[d.ID] = r.nextSeq
	r.deliveries[d.ID] = d
	return nil
}

// Load returns a copy of the delivery and its items.
func (r *MemoryRepository) Load(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deliveries[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: delivery %s", ErrNotFound, id)
	}
	return Snapshot{Delivery: d, Items: cloneItems(r.items[id])}, nil
}

// ListDeliveries returns deliveries in the given statuses, newest first.
func (r *MemoryRepository) ListDeliveries(ctx context.Context, statuses []Status) ([]Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Delivery, 0, len(r.deliveries))
	for _, d := range r.deliveries {
		if len(want) > 0 && !want[d.Status] {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return r.seq[out[i].ID] > r.seq[out[j].ID]
	})
	return out, nil
}

// ListPostings returns the receipt history of a delivery, oldest first.
func (r *MemoryRepository) ListPostings(ctx context.Context, deliveryID uuid.UUID) ([]Posting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Posting{}, r.postings[deliveryID]...), nil
}

// Commit applies change atomically when the stored version matches.
func (r *MemoryRepository) Commit(ctx context.Context, change Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := change.Delivery.ID
	current, ok := r.deliveries[id]
	if !ok {
		return fmt.Errorf("%w: delivery %s", ErrNotFound, id)
	}
	if current.Version != change.Version {
		return fmt.Errorf("%w: delivery %s at version %d, change built on %d", ErrConflict, id, current.Version, change.Version)
	}

	items := cloneItems(r.items[id])
	index := make(map[uuid.UUID]int, len(items))
	for i, it := range items {
		index[it.ID] = i
	}
	for _, it := range change.Updated {
		i, ok := index[it.ID]
		if !ok {
			return fmt.Errorf("%w: item %s", ErrNotFound, it.ID)
		}
		items[i] = it
	}
	items = append(items, change.NewItems...)

	d := change.Delivery
	d.Version = current.Version + 1
	r.deliveries[id] = d
	r.items[id] = items
	r.postings[id] = append(r.postings[id], change.Postings...)
	return nil
}
