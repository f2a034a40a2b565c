// Package ledger reconciles expected and received quantities for delivery items.
// Everything here is pure computation; callers own persistence.
package ledger

import (
	"fmt"
	"math"
)

// ItemStatus is the receiving progress of a single item.
type ItemStatus string

const (
	ItemPending  ItemStatus = "PENDING"
	ItemPartial  ItemStatus = "PARTIAL"
	ItemComplete ItemStatus = "COMPLETE"
)

// Line is the minimal view of an item the ledger needs.
type Line struct {
	ExpectedQty int64
	ReceivedQty int64
}

// DeriveItemStatus maps quantities to an item status. A zero expected quantity
// is complete from the start.
func DeriveItemStatus(expectedQty, receivedQty int64) ItemStatus {
	mustNonNegative(expectedQty, receivedQty)
	switch {
	case receivedQty >= expectedQty:
		return ItemComplete
	case receivedQty == 0:
		return ItemPending
	default:
		return ItemPartial
	}
}

// DeriveAggregate sums received quantities across lines.
func DeriveAggregate(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		mustNonNegative(l.ExpectedQty, l.ReceivedQty)
		total += l.ReceivedQty
	}
	return total
}

// Received sums a sequence of posted quantities.
func Received(postings []int64) int64 {
	var total int64
	for _, qty := range postings {
		mustNonNegative(qty)
		total += qty
	}
	return total
}

// Remaining returns how much can still be received before the expected quantity is reached.
func Remaining(expectedQty, receivedQty int64) int64 {
	mustNonNegative(expectedQty, receivedQty)
	if receivedQty >= expectedQty {
		return 0
	}
	return expectedQty - receivedQty
}

// Add sums two non-negative quantities. ok is false when the sum does not fit in an int64.
func Add(a, b int64) (sum int64, ok bool) {
	mustNonNegative(a, b)
	if a > math.MaxInt64-b {
		return math.MaxInt64, false
	}
	return a + b, true
}

// Fits reports whether posting qty keeps received within expected.
func Fits(expectedQty, receivedQty, qty int64) bool {
	mustNonNegative(expectedQty, receivedQty, qty)
	return qty <= Remaining(expectedQty, receivedQty)
}

// AllComplete reports whether every line is complete. An empty set is not complete.
func AllComplete(lines []Line) bool {
	if len(lines) == 0 {
		return false
	}
	for _, l := range lines {
		if DeriveItemStatus(l.ExpectedQty, l.ReceivedQty) != ItemComplete {
			return false
		}
	}
	return true
}

// Negative quantities are a caller bug, not a recoverable condition.
func mustNonNegative(values ...int64) {
	for _, v := range values {
		if v < 0 {
			panic(fmt.Sprintf("ledger: negative quantity %d", v))
		}
	}
}
