package receiving

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func fixedRegistry() registry {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return registry{newID: uuid.New, now: func() time.Time { return at }}
}

func TestRegistryAddItemDoesNotMutateSnapshot(t *testing.T) {
	reg := fixedRegistry()
	existing := Item{ID: uuid.New(), LineNo: 3, ExpectedQty: 2, ReceivedQty: 2, Status: ItemComplete}
	snap := Snapshot{
		Delivery: Delivery{ID: uuid.New(), Status: StatusReceiving, ReceivedQty: 2, Version: 4},
		Items:    []Item{existing},
	}

	item, change, err := reg.addItem(snap, 5)
	require.NoError(t, err)
	require.Equal(t, 4, item.LineNo)
	require.Equal(t, ItemPending, item.Status)
	require.Equal(t, int64(4), change.Version)
	require.Equal(t, []Item{item}, change.NewItems)
	require.Equal(t, int64(2), change.Delivery.ReceivedQty)
	require.Equal(t, StatusReceiving, change.Delivery.Status)
	require.Len(t, snap.Items, 1)
}

func TestRegistryApplyReceiptBuildsChange(t *testing.T) {
	reg := fixedRegistry()
	a := Item{ID: uuid.New(), LineNo: 1, ExpectedQty: 3, Status: ItemPending}
	b := Item{ID: uuid.New(), LineNo: 2, ExpectedQty: 2, Status: ItemPending}
	snap := Snapshot{Delivery: Delivery{ID: uuid.New(), Status: StatusPending, Version: 2}, Items: []Item{a, b}}

	change, err := reg.applyReceipt(snap, []PostingInput{
		{ItemID: b.ID, Qty: 2},
		{ItemID: a.ID, Qty: 1},
		{ItemID: a.ID, Qty: 1},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), change.Version)
	require.Equal(t, int64(4), change.Delivery.ReceivedQty)
	require.Equal(t, StatusPending, change.Delivery.Status)

	require.Len(t, change.Updated, 2)
	require.Equal(t, b.ID, change.Updated[0].ID)
	require.Equal(t, ItemComplete, change.Updated[0].Status)
	require.Equal(t, a.ID, change.Updated[1].ID)
	require.Equal(t, int64(2), change.Updated[1].ReceivedQty)
	require.Equal(t, ItemPartial, change.Updated[1].Status)

	require.Len(t, change.Postings, 3)
	for _, p := range change.Postings {
		require.Equal(t, change.Postings[0].BatchID, p.BatchID)
		require.Equal(t, snap.Delivery.ID, p.DeliveryID)
	}
	require.Zero(t, snap.Items[0].ReceivedQty)
}

func TestRegistryApplyReceiptReportsFirstOverReceipt(t *testing.T) {
	reg := fixedRegistry()
	a := Item{ID: uuid.New(), ExpectedQty: 3, ReceivedQty: 1}
	snap := Snapshot{Delivery: Delivery{ID: uuid.New(), Status: StatusReceiving}, Items: []Item{a}}

	_, err := reg.applyReceipt(snap, []PostingInput{{ItemID: a.ID, Qty: 1}, {ItemID: a.ID, Qty: 2}})
	var over *OverReceiptError
	require.ErrorAs(t, err, &over)
	require.Equal(t, int64(3), over.Requested)
	require.Equal(t, int64(1), over.ReceivedQty)
}

func TestRegistryApplyReceiptOverflowingDuplicatesAreOverReceipt(t *testing.T) {
	reg := fixedRegistry()
	it := Item{ID: uuid.New(), LineNo: 1, ExpectedQty: math.MaxInt64, Status: ItemPending}
	snap := Snapshot{Delivery: Delivery{ID: uuid.New(), Status: StatusPending, Version: 1}, Items: []Item{it}}

	_, err := reg.applyReceipt(snap, []PostingInput{
		{ItemID: it.ID, Qty: math.MaxInt64},
		{ItemID: it.ID, Qty: 1},
		{ItemID: it.ID, Qty: 0},
	})
	var over *OverReceiptError
	require.True(t, errors.As(err, &over))
	require.Equal(t, it.ID, over.ItemID)
	require.Equal(t, int64(math.MaxInt64), over.Requested)
}

func TestRegistryAddItemBoundsExpectedTotal(t *testing.T) {
	reg := fixedRegistry()
	snap := Snapshot{
		Delivery: Delivery{ID: uuid.New(), Status: StatusPending, Version: 1},
		Items:    []Item{{ID: uuid.New(), LineNo: 1, ExpectedQty: math.MaxInt64 - 5, Status: ItemPending}},
	}

	_, _, err := reg.addItem(snap, 5)
	require.NoError(t, err)
	_, _, err = reg.addItem(snap, 6)
	require.ErrorIs(t, err, ErrInvalidInput)
}
