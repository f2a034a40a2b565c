package receiving

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositoryVersionCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	d := Delivery{ID: uuid.New(), Status: StatusPending, Version: 1, CreatedAt: time.Now()}
	require.NoError(t, repo.CreateDelivery(ctx, d))
	require.Error(t, repo.CreateDelivery(ctx, d))

	item := Item{ID: uuid.New(), DeliveryID: d.ID, LineNo: 1, ExpectedQty: 1}
	require.NoError(t, repo.Commit(ctx, Change{Version: 1, Delivery: d, NewItems: []Item{item}}))

	err := repo.Commit(ctx, Change{Version: 1, Delivery: d})
	require.ErrorIs(t, err, ErrConflict)

	snap, err := repo.Load(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), snap.Delivery.Version)
	require.Len(t, snap.Items, 1)

	err = repo.Commit(ctx, Change{Version: 2, Delivery: d, Updated: []Item{{ID: uuid.New(), DeliveryID: d.ID}}})
	require.ErrorIs(t, err, ErrNotFound)

	err = repo.Commit(ctx, Change{Version: 1, Delivery: Delivery{ID: uuid.New()}})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	d := Delivery{ID: uuid.New(), Status: StatusPending, Version: 1}
	require.NoError(t, repo.CreateDelivery(ctx, d))
	item := Item{ID: uuid.New(), DeliveryID: d.ID, ExpectedQty: 4}
	require.NoError(t, repo.Commit(ctx, Change{Version: 1, Delivery: d, NewItems: []Item{item}}))

	snap, err := repo.Load(ctx, d.ID)
	require.NoError(t, err)
	snap.Items[0].ReceivedQty = 99

	again, err := repo.Load(ctx, d.ID)
	require.NoError(t, err)
	require.Zero(t, again.Items[0].ReceivedQty)
}

func TestMemoryRepositoryListOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := Delivery{ID: uuid.New(), Status: StatusPending, CreatedAt: at}
	sameTimeFirst := Delivery{ID: uuid.New(), Status: StatusDraft, CreatedAt: at.Add(time.Hour)}
	sameTimeSecond := Delivery{ID: uuid.New(), Status: StatusPending, CreatedAt: at.Add(time.Hour)}
	for _, d := range []Delivery{older, sameTimeFirst, sameTimeSecond} {
		require.NoError(t, repo.CreateDelivery(ctx, d))
	}

	all, err := repo.ListDeliveries(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{sameTimeSecond.ID, sameTimeFirst.ID, older.ID}, ids(all))

	pending, err := repo.ListDeliveries(ctx, []Status{StatusPending})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{sameTimeSecond.ID, older.ID}, ids(pending))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = repo.ListDeliveries(cancelled, nil)
	require.ErrorIs(t, err, context.Canceled)
}
