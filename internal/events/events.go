package events

// Affiliate event types recorded in the outbox.
const (
	EventAffiliateCreated   = "affiliate.created"
	EventCommissionCreated  = "commission.created"
	EventCommissionRefunded = "commission.refunded"
	EventCommissionPaid     = "commission.paid"
	EventTierUpgraded       = "affiliate.tier_upgraded"
	EventCreditDebited      = "credit.debited"
	EventCreditGranted      = "credit.granted"
)

// CommissionPayload captures the minimal data consumers need to react
// to a commission event.
type CommissionPayload struct {
	CommissionID string  `json:"commission_id"`
	AffiliateID  string  `json:"affiliate_id"`
	OrderID      string  `json:"order_id"`
	Type         string  `json:"type"`
	AmountCents  int64   `json:"amount_cents"`
	Rate         float64 `json:"rate"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p CommissionPayload) ToMap() map[string]any {
	return map[string]any{
		"commission_id": p.CommissionID,
		"affiliate_id":  p.AffiliateID,
		"order_id":      p.OrderID,
		"type":          p.Type,
		"amount_cents":  p.AmountCents,
		"rate":          p.Rate,
	}
}

// DebitPayload captures the minimal data for ledger events.
type DebitPayload struct {
	BalanceID    string `json:"balance_id"`
	JournalID    string `json:"journal_id"`
	Amount       int64  `json:"amount"`
	BalanceAfter int64  `json:"balance_after"`
	Action       string `json:"action"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p DebitPayload) ToMap() map[string]any {
	return map[string]any{
		"balance_id":    p.BalanceID,
		"journal_id":    p.JournalID,
		"amount":        p.Amount,
		"balance_after": p.BalanceAfter,
		"action":        p.Action,
	}
}
