package receiving

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SentToQualityEvent describes a delivery handed over to quality check.
type SentToQualityEvent struct {
	DeliveryID  uuid.UUID `json:"deliveryId"`
	Supplier    string    `json:"supplier"`
	Reference   string    `json:"reference"`
	ReceivedQty int64     `json:"receivedQty"`
	ItemCount   int       `json:"itemCount"`
	SentAt      time.Time `json:"sentAt"`
}

// IntegrationHandler receives receiving domain events for downstream stages.
type IntegrationHandler interface {
	HandleSentToQuality(ctx context.Context, evt SentToQualityEvent) error
}
