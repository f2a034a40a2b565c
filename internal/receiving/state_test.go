package receiving

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusPending, StatusReceiving} {
		require.True(t, s.IsValid(), s)
		require.True(t, s.CanAddItems(), s)
		require.True(t, s.CanReceive(), s)
		require.True(t, s.CanSendToQuality(), s)
	}
	require.True(t, StatusInQualityCheck.IsValid())
	require.False(t, StatusInQualityCheck.IsOpen())
	require.False(t, StatusInQualityCheck.CanReceive())
	require.False(t, Status("SHIPPED").IsValid())
	require.False(t, Status("").IsValid())
}

func TestSendToQualityTransition(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Delivery{ID: uuid.New(), Status: StatusReceiving}

	got, err := sendToQuality(d, now)
	require.NoError(t, err)
	require.Equal(t, StatusInQualityCheck, got.Status)
	require.Equal(t, now, got.UpdatedAt)

	_, err = sendToQuality(got, now)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceAfterReceipt(t *testing.T) {
	complete := []Item{{ExpectedQty: 2, ReceivedQty: 2}, {ExpectedQty: 0}}
	partial := []Item{{ExpectedQty: 2, ReceivedQty: 2}, {ExpectedQty: 3, ReceivedQty: 1}}

	require.Equal(t, StatusReceiving, advanceAfterReceipt(Delivery{Status: StatusPending}, complete).Status)
	require.Equal(t, StatusReceiving, advanceAfterReceipt(Delivery{Status: StatusDraft}, complete).Status)
	require.Equal(t, StatusPending, advanceAfterReceipt(Delivery{Status: StatusPending}, partial).Status)
	require.Equal(t, StatusReceiving, advanceAfterReceipt(Delivery{Status: StatusReceiving}, partial).Status)
	require.Equal(t, StatusInQualityCheck, advanceAfterReceipt(Delivery{Status: StatusInQualityCheck}, complete).Status)
}

func TestParseStatuses(t *testing.T) {
	got, err := parseStatuses([]string{"PENDING", "IN_QUALITY_CHECK"})
	require.NoError(t, err)
	require.Equal(t, []Status{StatusPending, StatusInQualityCheck}, got)

	got, err = parseStatuses(nil)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = parseStatuses([]string{"PENDING", "closed"})
	require.ErrorIs(t, err, ErrInvalidInput)
}
