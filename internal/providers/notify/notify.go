// Package notify is the fire-and-forget dispatcher for affiliate-facing
// notifications. Delivery failures are logged, never surfaced to the
// calling flow.
package notify

import "context"

// Notification carries the event type and payload for one recipient.
type Notification struct {
	AffiliateID string
	Event       string
	Payload     map[string]any
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}

// Notification event types.
const (
	EventWelcome            = "welcome"
	EventNewCommission      = "new_commission"
	EventCascadeCommission  = "mlm_commission"
	EventCommissionRefunded = "commission_refunded"
	EventTierUpgrade        = "tier_upgrade"
	EventStatusChanged      = "status_changed"
)
