package receiving

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noven-pro/receiving/internal/receiving/ledger"
)

// Status is the lifecycle state of a delivery.
type Status string

const (
	StatusDraft          Status = "DRAFT"
	StatusPending        Status = "PENDING"
	StatusReceiving      Status = "RECEIVING"
	StatusInQualityCheck Status = "IN_QUALITY_CHECK"
)

// ItemStatus re-exports the ledger status so API consumers need one package.
type ItemStatus = ledger.ItemStatus

const (
	ItemPending  = ledger.ItemPending
	ItemPartial  = ledger.ItemPartial
	ItemComplete = ledger.ItemComplete
)

// Delivery is an expected shipment from a supplier.
type Delivery struct {
	ID          uuid.UUID `json:"id"`
	Supplier    string    `json:"supplier"`
	Reference   string    `json:"reference"`
	Status      Status    `json:"status"`
	ReceivedQty int64     `json:"receivedQty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Version     int64     `json:"-"`
}

// Item is a line within a delivery.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	DeliveryID  uuid.UUID  `json:"deliveryId"`
	LineNo      int        `json:"lineNo"`
	ExpectedQty int64      `json:"expectedQty"`
	ReceivedQty int64      `json:"receivedQty"`
	Status      ItemStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Posting records one received quantity against an item.
type Posting struct {
	ID         uuid.UUID `json:"id"`
	DeliveryID uuid.UUID `json:"deliveryId"`
	ItemID     uuid.UUID `json:"itemId"`
	BatchID    uuid.UUID `json:"batchId"`
	Qty        int64     `json:"qty"`
	PostedAt   time.Time `json:"postedAt"`
}

// Snapshot is a consistent read of a delivery and its items.
type Snapshot struct {
	Delivery Delivery
	Items    []Item
}

// Change is the result of one mutation, committed atomically by the store.
// Version is the delivery version the change was derived from.
type Change struct {
	Version  int64
	Delivery Delivery
	NewItems []Item
	Updated  []Item
	Postings []Posting
}

// CreateDeliveryInput describes a new delivery.
type CreateDeliveryInput struct {
	Supplier  string
	Reference string
	Draft     bool
}

// PostingInput is one requested receipt line.
type PostingInput struct {
	ItemID uuid.UUID
	Qty    int64
}

// ReceiveInput is a batch of postings against one delivery.
type ReceiveInput struct {
	DeliveryID uuid.UUID
	Postings   []PostingInput
	// Key deduplicates client retries when set.
	Key string
}

var (
	// ErrNotFound indicates an unknown delivery or item.
	ErrNotFound = errors.New("receiving: not found")
	// ErrInvalidTransition occurs when an action violates the delivery workflow.
	ErrInvalidTransition = errors.New("receiving: invalid state transition")
	// ErrOverReceipt indicates a posting would exceed the expected quantity.
	ErrOverReceipt = errors.New("receiving: over-receipt")
	// ErrInvalidInput indicates malformed or negative input.
	ErrInvalidInput = errors.New("receiving: invalid input")
	// ErrConflict indicates concurrent writers kept winning the version race.
	ErrConflict = errors.New("receiving: concurrent update conflict")
	// ErrDuplicateReceipt indicates a receipt key was already processed.
	ErrDuplicateReceipt = errors.New("receiving: receipt already processed")
)

// OverReceiptError identifies the item that would be over-received.
type OverReceiptError struct {
	ItemID      uuid.UUID
	ExpectedQty int64
	ReceivedQty int64
	Requested   int64
}

func (e *OverReceiptError) Error() string {
	return fmt.Sprintf("receiving: over-receipt on item %s: expected %d, received %d, requested %d",
		e.ItemID, e.ExpectedQty, e.ReceivedQty, e.Requested)
}

// Is lets errors.Is(err, ErrOverReceipt) match.
func (e *OverReceiptError) Is(target error) bool {
	return target == ErrOverReceipt
}
