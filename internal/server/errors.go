package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
	comdomain "github.com/smallbiznis/affina/internal/commission/domain"
	creditdomain "github.com/smallbiznis/affina/internal/credit/domain"
	networkdomain "github.com/smallbiznis/affina/internal/network/domain"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, creditdomain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "insufficient_balance",
			Message: "not enough credits",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, creditdomain.ErrInvalidAmount),
		errors.Is(err, creditdomain.ErrInvalidOwner),
		errors.Is(err, creditdomain.ErrInvalidBalanceID),
		errors.Is(err, affdomain.ErrInvalidStatus),
		errors.Is(err, affdomain.ErrInvalidCode),
		errors.Is(err, affdomain.ErrInvalidAmount),
		errors.Is(err, networkdomain.ErrInvalidDepth),
		errors.Is(err, networkdomain.ErrInvalidAmount),
		errors.Is(err, tierdomain.ErrInvalidLevel),
		errors.Is(err, tierdomain.ErrInvalidName),
		errors.Is(err, tierdomain.ErrInvalidRate),
		errors.Is(err, comdomain.ErrInvalidOrder),
		errors.Is(err, comdomain.ErrInvalidTotal),
		errors.Is(err, comdomain.ErrInvalidStatus):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, creditdomain.ErrBalanceNotFound),
		errors.Is(err, affdomain.ErrNotFound),
		errors.Is(err, affdomain.ErrCodeNotFound),
		errors.Is(err, networkdomain.ErrNodeNotFound),
		errors.Is(err, tierdomain.ErrNotFound),
		errors.Is(err, comdomain.ErrNotFound),
		errors.Is(err, comdomain.ErrOrderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, creditdomain.ErrBalanceExists),
		errors.Is(err, affdomain.ErrUserExists),
		errors.Is(err, affdomain.ErrCodeExists),
		errors.Is(err, affdomain.ErrNotEarning),
		errors.Is(err, networkdomain.ErrNodeExists),
		errors.Is(err, tierdomain.ErrLevelExists),
		errors.Is(err, comdomain.ErrOrderProcessed),
		errors.Is(err, comdomain.ErrNotPending):
		return true
	default:
		return false
	}
}

// classifyErrorForLog buckets an error for the request log line.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	switch {
	case isValidationError(err):
		return "validation", err.Error()
	case isNotFoundError(err):
		return "not_found", err.Error()
	case isConflictError(err):
		return "conflict", err.Error()
	case errors.Is(err, creditdomain.ErrInsufficientBalance):
		return "insufficient_balance", err.Error()
	case errors.Is(err, ErrRateLimited):
		return "rate_limited", err.Error()
	default:
		return "internal", "internal_error"
	}
}
