package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/affina/pkg/db/pagination"
)

// SaleRequest is one completed order to commission. Attribution
// signals are tried in order: AffiliateID, Code, then the customer's
// lifetime link. TaxCents is excluded from the commissionable base.
type SaleRequest struct {
	OrderID     string        `json:"order_id" binding:"required"`
	TotalCents  int64         `json:"total_cents" binding:"required"`
	TaxCents    int64         `json:"tax_cents"`
	CustomerID  string        `json:"customer_id"`
	Code        string        `json:"code"`
	AffiliateID *snowflake.ID `json:"affiliate_id,string,omitempty"`
	ProductRate *float64      `json:"product_rate,omitempty"`
	Currency    string        `json:"currency"`
}

type RefundRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// SaleResult reports what a sale produced. AlreadyProcessed is true on
// webhook replays; Commissions is empty in that case.
type SaleResult struct {
	OrderID          string        `json:"order_id"`
	AffiliateID      *snowflake.ID `json:"affiliate_id,omitempty"`
	AlreadyProcessed bool          `json:"already_processed"`
	Commissions      []*Commission `json:"commissions"`
}

type RefundResult struct {
	OrderID  string        `json:"order_id"`
	Refunded []*Commission `json:"refunded"`
}

type ListRequest struct {
	pagination.Pagination
	AffiliateID *snowflake.ID `form:"affiliate_id"`
	OrderID     string        `form:"order_id"`
	Status      Status        `form:"status"`
}

// Summary aggregates one affiliate's commission history.
type Summary struct {
	AffiliateID   snowflake.ID `json:"affiliate_id"`
	PendingCents  int64        `json:"pending_cents"`
	PaidCents     int64        `json:"paid_cents"`
	RefundedCents int64        `json:"refunded_cents"`
	DirectCount   int64        `json:"direct_count"`
	CascadeCount  int64        `json:"cascade_count"`
}

type Service interface {
	// ProcessSale attributes the order, creates the direct commission,
	// and cascades overrides up the network. Replays of an order ID
	// return AlreadyProcessed without new rows.
	ProcessSale(ctx context.Context, req SaleRequest) (*SaleResult, error)
	// ProcessRefund marks the order's pending commissions refunded and
	// reverses the earnings they granted.
	ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// Approve moves a pending commission to paid.
	Approve(ctx context.Context, id snowflake.ID) (*Commission, error)
	Get(ctx context.Context, id snowflake.ID) (*Commission, error)
	List(ctx context.Context, req ListRequest) ([]*Commission, *pagination.PageInfo, error)
	Summary(ctx context.Context, affiliateID snowflake.ID) (*Summary, error)
}

var (
	ErrNotFound       = errors.New("commission_not_found")
	ErrOrderProcessed = errors.New("order_already_processed")
	ErrOrderNotFound  = errors.New("order_not_found")
	ErrInvalidOrder   = errors.New("invalid_order")
	ErrInvalidTotal   = errors.New("invalid_order_total")
	ErrInvalidStatus  = errors.New("invalid_commission_status")
	ErrNotPending     = errors.New("commission_not_pending")
)
