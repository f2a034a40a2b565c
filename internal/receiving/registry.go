package receiving

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/noven-pro/receiving/internal/receiving/ledger"
)

// registry applies item-level rules to a snapshot. It never touches storage;
// the change it returns is committed by the engine.
type registry struct {
	newID func() uuid.UUID
	now   func() time.Time
}

// addItem builds the change that appends one item to the delivery.
func (r registry) addItem(snap Snapshot, expectedQty int64) (Item, Change, error) {
	if expectedQty < 0 {
		return Item{}, Change{}, fmt.Errorf("%w: expected quantity must not be negative", ErrInvalidInput)
	}
	if !snap.Delivery.Status.CanAddItems() {
		return Item{}, Change{}, fmt.Errorf("%w: delivery %s is %s", ErrInvalidTransition, snap.Delivery.ID, snap.Delivery.Status)
	}
	total := expectedQty
	for _, it := range snap.Items {
		var ok bool
		if total, ok = ledger.Add(total, it.ExpectedQty); !ok {
			return Item{}, Change{}, fmt.Errorf("%w: expected quantities of delivery %s exceed %d", ErrInvalidInput, snap.Delivery.ID, int64(math.MaxInt64))
		}
	}
	now := r.now()
	item := Item{
		ID:          r.newID(),
		DeliveryID:  snap.Delivery.ID,
		LineNo:      nextLineNo(snap.Items),
		ExpectedQty: expectedQty,
		Status:      ledger.DeriveItemStatus(expectedQty, 0),
		CreatedAt:   now,
	}
	delivery := snap.Delivery
	delivery.UpdatedAt = now
	delivery = reaggregate(delivery, append(cloneItems(snap.Items), item))
	return item, Change{
		Version:  snap.Delivery.Version,
		Delivery: delivery,
		NewItems: []Item{item},
	}, nil
}

// applyReceipt validates the whole batch against the snapshot and only then
// builds the change. Any failure leaves every item untouched.
func (r registry) applyReceipt(snap Snapshot, postings []PostingInput) (Change, error) {
	if len(postings) == 0 {
		return Change{}, fmt.Errorf("%w: receipt has no postings", ErrInvalidInput)
	}
	if !snap.Delivery.Status.CanReceive() {
		return Change{}, fmt.Errorf("%w: delivery %s is %s", ErrInvalidTransition, snap.Delivery.ID, snap.Delivery.Status)
	}

	index := make(map[uuid.UUID]int, len(snap.Items))
	for i, it := range snap.Items {
		index[it.ID] = i
	}

	// Sum per item first so duplicates in one batch are checked cumulatively.
	requested := make(map[uuid.UUID]int64, len(postings))
	overflow := make(map[uuid.UUID]bool)
	order := make([]uuid.UUID, 0, len(postings))
	for _, p := range postings {
		if p.Qty < 0 {
			return Change{}, fmt.Errorf("%w: quantity for item %s must not be negative", ErrInvalidInput, p.ItemID)
		}
		if _, ok := index[p.ItemID]; !ok {
			return Change{}, fmt.Errorf("%w: item %s in delivery %s", ErrNotFound, p.ItemID, snap.Delivery.ID)
		}
		if _, seen := requested[p.ItemID]; !seen {
			order = append(order, p.ItemID)
		}
		sum, ok := ledger.Add(requested[p.ItemID], p.Qty)
		if !ok {
			overflow[p.ItemID] = true
		}
		requested[p.ItemID] = sum
	}
	for _, id := range order {
		it := snap.Items[index[id]]
		// An overflowing sum is larger than any expected quantity.
		if overflow[id] || !ledger.Fits(it.ExpectedQty, it.ReceivedQty, requested[id]) {
			return Change{}, &OverReceiptError{
				ItemID:      id,
				ExpectedQty: it.ExpectedQty,
				ReceivedQty: it.ReceivedQty,
				Requested:   requested[id],
			}
		}
	}

	now := r.now()
	batchID := r.newID()
	items := cloneItems(snap.Items)
	updated := make([]Item, 0, len(order))
	for _, id := range order {
		it := &items[index[id]]
		it.ReceivedQty += requested[id]
		it.Status = ledger.DeriveItemStatus(it.ExpectedQty, it.ReceivedQty)
		updated = append(updated, *it)
	}
	entries := make([]Posting, 0, len(postings))
	for _, p := range postings {
		entries = append(entries, Posting{
			ID:         r.newID(),
			DeliveryID: snap.Delivery.ID,
			ItemID:     p.ItemID,
			BatchID:    batchID,
			Qty:        p.Qty,
			PostedAt:   now,
		})
	}

	delivery := reaggregate(snap.Delivery, items)
	delivery = advanceAfterReceipt(delivery, items)
	delivery.UpdatedAt = now
	return Change{
		Version:  snap.Delivery.Version,
		Delivery: delivery,
		Updated:  updated,
		Postings: entries,
	}, nil
}

func nextLineNo(items []Item) int {
	max := 0
	for _, it := range items {
		if it.LineNo > max {
			max = it.LineNo
		}
	}
	return max + 1
}

func cloneItems(items []Item) []Item {
	return append([]Item(nil), items...)
}
