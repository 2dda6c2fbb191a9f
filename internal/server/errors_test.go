package server

import (
	"net/http"
	"testing"

	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
	comdomain "github.com/smallbiznis/affina/internal/commission/domain"
	creditdomain "github.com/smallbiznis/affina/internal/credit/domain"
	networkdomain "github.com/smallbiznis/affina/internal/network/domain"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"insufficient balance", creditdomain.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"invalid request", ErrInvalidRequest, http.StatusBadRequest, "validation_error"},
		{"invalid amount", creditdomain.ErrInvalidAmount, http.StatusBadRequest, "validation_error"},
		{"invalid depth", networkdomain.ErrInvalidDepth, http.StatusBadRequest, "validation_error"},
		{"invalid order total", comdomain.ErrInvalidTotal, http.StatusBadRequest, "validation_error"},
		{"balance not found", creditdomain.ErrBalanceNotFound, http.StatusNotFound, "not_found"},
		{"affiliate not found", affdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"tier not found", tierdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"order not found", comdomain.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{"gorm not found", gorm.ErrRecordNotFound, http.StatusNotFound, "not_found"},
		{"code exists", affdomain.ErrCodeExists, http.StatusConflict, "conflict"},
		{"node exists", networkdomain.ErrNodeExists, http.StatusConflict, "conflict"},
		{"not pending", comdomain.ErrNotPending, http.StatusConflict, "conflict"},
		{"unknown", assertableErr{}, http.StatusInternalServerError, "internal_error"},
		{"nil", nil, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}

type assertableErr struct{}

func (assertableErr) Error() string { return "boom" }

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(creditdomain.ErrInsufficientBalance)
	assert.Equal(t, "insufficient_balance", errType)
	assert.Equal(t, "insufficient_balance", code)

	errType, _ = classifyErrorForLog(affdomain.ErrNotFound)
	assert.Equal(t, "not_found", errType)

	errType, _ = classifyErrorForLog(assertableErr{})
	assert.Equal(t, "internal", errType)

	errType, code = classifyErrorForLog(nil)
	assert.Empty(t, errType)
	assert.Empty(t, code)
}
