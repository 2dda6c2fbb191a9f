package domain

import (
	"context"
	"errors"
)

type CreateBalanceRequest struct {
	OwnerType string `json:"owner_type"`
	OwnerID   string `json:"owner_id"`
	Total     int64  `json:"total"`
}

type DebitRequest struct {
	BalanceID string         `json:"balance_id"`
	Amount    int64          `json:"amount"`
	Action    string         `json:"action"`
	RequestID string         `json:"request_id"`
	Metadata  map[string]any `json:"metadata"`
}

type GrantRequest struct {
	BalanceID string `json:"balance_id"`
	Amount    int64  `json:"amount"`
	Action    string `json:"action"`
}

// DebitResult is the post-commit snapshot returned to the caller.
type DebitResult struct {
	Remaining int64 `json:"remaining"`
	Consumed  int64 `json:"consumed"`
	Total     int64 `json:"total"`
	Replayed  bool  `json:"replayed,omitempty"`
}

type Service interface {
	CreateBalance(ctx context.Context, req CreateBalanceRequest) (*Balance, error)
	Get(ctx context.Context, balanceID string) (*Balance, error)
	// Debit atomically consumes credits and appends exactly one journal
	// entry. A repeated RequestID replays the recorded result instead
	// of double-spending.
	Debit(ctx context.Context, req DebitRequest) (*DebitResult, error)
	// Grant adds credits to the total and appends a journal entry.
	Grant(ctx context.Context, req GrantRequest) (*DebitResult, error)
	// HasSufficient is advisory only: a Debit immediately after may
	// still fail if another debit raced ahead.
	HasSufficient(ctx context.Context, balanceID string, needed int64) (bool, error)
	Journal(ctx context.Context, balanceID string) ([]*JournalEntry, error)
}

var (
	ErrBalanceNotFound     = errors.New("balance_not_found")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidOwner        = errors.New("invalid_owner")
	ErrInvalidBalanceID    = errors.New("invalid_balance_id")
	ErrBalanceExists       = errors.New("balance_exists")
)
