package receiving

import (
	"fmt"
	"time"

	"github.com/noven-pro/receiving/internal/receiving/ledger"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusReceiving, StatusInQualityCheck:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the delivery still accepts items and receipts.
func (s Status) IsOpen() bool {
	return s == StatusDraft || s == StatusPending || s == StatusReceiving
}

// CanAddItems checks if items may be added in this status.
func (s Status) CanAddItems() bool {
	return s.IsOpen()
}

// CanReceive checks if receipts may be posted in this status.
func (s Status) CanReceive() bool {
	return s.IsOpen()
}

// CanSendToQuality checks if the delivery may be handed to quality check.
func (s Status) CanSendToQuality() bool {
	return s.IsOpen()
}

// initialStatus picks the creation state. Both are open for receiving.
func initialStatus(draft bool) Status {
	if draft {
		return StatusDraft
	}
	return StatusPending
}

// sendToQuality moves an open delivery to IN_QUALITY_CHECK.
func sendToQuality(d Delivery, now time.Time) (Delivery, error) {
	if !d.Status.CanSendToQuality() {
		return Delivery{}, fmt.Errorf("%w: delivery %s is %s", ErrInvalidTransition, d.ID, d.Status)
	}
	d.Status = StatusInQualityCheck
	d.UpdatedAt = now
	return d, nil
}

// advanceAfterReceipt marks the delivery RECEIVING once every item is complete.
// The move is forward only; it never reverts when new items arrive later.
func advanceAfterReceipt(d Delivery, items []Item) Delivery {
	if d.Status != StatusDraft && d.Status != StatusPending {
		return d
	}
	if ledger.AllComplete(ledgerLines(items)) {
		d.Status = StatusReceiving
	}
	return d
}

// reaggregate recomputes the delivery aggregate from its items.
func reaggregate(d Delivery, items []Item) Delivery {
	d.ReceivedQty = ledger.DeriveAggregate(ledgerLines(items))
	return d
}

func ledgerLines(items []Item) []ledger.Line {
	lines := make([]ledger.Line, len(items))
	for i, it := range items {
		lines[i] = ledger.Line{ExpectedQty: it.ExpectedQty, ReceivedQty: it.ReceivedQty}
	}
	return lines
}

// parseStatuses validates a status filter.
func parseStatuses(raw []string) ([]Status, error) {
	out := make([]Status, 0, len(raw))
	for _, r := range raw {
		s := Status(r)
		if !s.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, r)
		}
		out = append(out, s)
	}
	return out, nil
}
