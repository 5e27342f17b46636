package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/licensia/internal/billing/domain"
	"github.com/smallbiznis/licensia/internal/commission"
	entitlementdomain "github.com/smallbiznis/licensia/internal/entitlement/domain"
	ledgerdomain "github.com/smallbiznis/licensia/internal/ledger/domain"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	quotadomain "github.com/smallbiznis/licensia/internal/quota/domain"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	tierdomain "github.com/smallbiznis/licensia/internal/tier/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

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
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, partydomain.ErrInvalidHierarchy):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_hierarchy",
			Message: "invalid hierarchy",
		}
	case errors.Is(err, partydomain.ErrConfiguration),
		errors.Is(err, commission.ErrConfiguration):
		return http.StatusBadRequest, errorPayload{
			Type:    "configuration_error",
			Message: "commission rates on the path would exceed 100%",
		}
	case errors.Is(err, entitlementdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "tier does not allow module customization",
		}
	case errors.Is(err, quotadomain.ErrQuotaExceeded):
		return http.StatusConflict, errorPayload{
			Type:    "quota_exceeded",
			Message: "capacity limit reached",
		}
	case errors.Is(err, partydomain.ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a party with the same unique identity already exists",
		}
	case errors.Is(err, subscriptiondomain.ErrAlreadyTerminal):
		return http.StatusConflict, errorPayload{
			Type:    "already_terminal",
			Message: "subscription is cancelled or expired",
		}
	case errors.Is(err, billingdomain.ErrLocked):
		return http.StatusConflict, errorPayload{
			Type:    "locked",
			Message: "transaction is being processed",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
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
		errors.Is(err, partydomain.ErrInvalidID),
		errors.Is(err, partydomain.ErrInvalidKind),
		errors.Is(err, partydomain.ErrInvalidName),
		errors.Is(err, tierdomain.ErrUnknownTier),
		errors.Is(err, entitlementdomain.ErrUnknownFeature),
		errors.Is(err, subscriptiondomain.ErrInvalidID),
		errors.Is(err, ledgerdomain.ErrInvalidID),
		errors.Is(err, ledgerdomain.ErrEmptyBatch),
		errors.Is(err, billingdomain.ErrInvalidAmount),
		errors.Is(err, billingdomain.ErrInvalidTransaction),
		errors.Is(err, commission.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, partydomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger a coarse error taxonomy
// without leaking messages into log labels.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", payload.Type
	case status >= http.StatusBadRequest:
		return "client", payload.Type
	default:
		return "none", strings.TrimSpace(payload.Type)
	}
}
