package server

import (
	"errors"
	"maps"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	accreditationdomain "github.com/smallbiznis/bistro/internal/accreditation/domain"
	auditdomain "github.com/smallbiznis/bistro/internal/audit/domain"
	"github.com/smallbiznis/bistro/internal/authorization"
	creditdomain "github.com/smallbiznis/bistro/internal/credit/domain"
	inventorydomain "github.com/smallbiznis/bistro/internal/inventory/domain"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	orderdomain "github.com/smallbiznis/bistro/internal/order/domain"
	userdomain "github.com/smallbiznis/bistro/internal/user/domain"
	"github.com/smallbiznis/bistro/pkg/validation"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field string `json:"field"`
	Code  string `json:"code"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type rule struct {
	err     error
	status  int
	kind    string
	message string
}

// rules maps domain failures onto transport responses. First match wins.
var rules = []rule{
	{authorization.ErrInvalidActor, http.StatusUnauthorized, "unauthorized", "caller identity is missing"},
	{ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{authorization.ErrForbidden, http.StatusForbidden, "forbidden", "not allowed for this role"},
	{creditdomain.ErrNotOwner, http.StatusForbidden, "forbidden", "credit line belongs to another client"},
	{orderdomain.ErrNotOwner, http.StatusForbidden, "forbidden", "order belongs to another client"},

	{creditdomain.ErrInvalidAmount, http.StatusBadRequest, "invalid_request", "amount must be positive"},
	{accreditationdomain.ErrInvalidAmount, http.StatusBadRequest, "invalid_request", "amount must be positive"},
	{inventorydomain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_request", "quantity must be positive"},
	{creditdomain.ErrInvalidClient, http.StatusBadRequest, "invalid_request", "client is required"},
	{creditdomain.ErrInvalidWindow, http.StatusBadRequest, "invalid_request", "end date must be after start date"},
	{orderdomain.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_request", "unknown payment method"},
	{orderdomain.ErrInvalidStatus, http.StatusBadRequest, "invalid_request", "unknown order status"},
	{orderdomain.ErrClientRequired, http.StatusBadRequest, "invalid_request", "credit orders need a client"},
	{orderdomain.ErrInvalidPageToken, http.StatusBadRequest, "invalid_request", "invalid page token"},
	{auditdomain.ErrInvalidPageToken, http.StatusBadRequest, "invalid_request", "invalid page token"},
	{auditdomain.ErrInvalidTimeRange, http.StatusBadRequest, "invalid_request", "invalid time range"},
	{auditdomain.ErrInvalidAction, http.StatusBadRequest, "invalid_request", "invalid audit action"},
	{authorization.ErrInvalidObject, http.StatusBadRequest, "invalid_request", "invalid permission object"},
	{authorization.ErrInvalidAction, http.StatusBadRequest, "invalid_request", "invalid permission action"},
	{accreditationdomain.ErrUnknownStatus, http.StatusBadRequest, "invalid_request", "unknown request status"},
	{notificationdomain.ErrInvalidEvent, http.StatusBadRequest, "invalid_request", "unknown notification event"},
	{notificationdomain.ErrInvalidUser, http.StatusBadRequest, "invalid_request", "user is required"},
	{notificationdomain.ErrUnknownChannel, http.StatusBadRequest, "invalid_request", "unknown or inactive channel"},
	{userdomain.ErrInvalidRole, http.StatusBadRequest, "invalid_request", "unknown role"},
	{userdomain.ErrInvalidUsername, http.StatusBadRequest, "invalid_request", "invalid username"},

	{creditdomain.ErrNotFound, http.StatusNotFound, "not_found", "credit line not found"},
	{orderdomain.ErrNotFound, http.StatusNotFound, "not_found", "order not found"},
	{orderdomain.ErrLineNotFound, http.StatusNotFound, "not_found", "order line not found"},
	{accreditationdomain.ErrNotFound, http.StatusNotFound, "not_found", "accreditation request not found"},
	{userdomain.ErrNotFound, http.StatusNotFound, "not_found", "user not found"},
	{inventorydomain.ErrCategoryNotFound, http.StatusNotFound, "not_found", "category not found"},
	{inventorydomain.ErrSubcategoryNotFound, http.StatusNotFound, "not_found", "subcategory not found"},
	{inventorydomain.ErrLocationNotFound, http.StatusNotFound, "not_found", "location not found"},
	{inventorydomain.ErrProductNotFound, http.StatusNotFound, "not_found", "product not found"},
	{inventorydomain.ErrVariantNotFound, http.StatusNotFound, "not_found", "variant not found"},
	{ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{gorm.ErrRecordNotFound, http.StatusNotFound, "not_found", "not found"},

	{inventorydomain.ErrDuplicateSKU, http.StatusConflict, "conflict", "sku already exists"},
	{inventorydomain.ErrDuplicateSlug, http.StatusConflict, "conflict", "name already in use"},
	{userdomain.ErrUsernameTaken, http.StatusConflict, "conflict", "username already taken"},
	{accreditationdomain.ErrDuplicateRequest, http.StatusConflict, "conflict", "an accreditation request is already open"},
	{accreditationdomain.ErrAlreadyResponded, http.StatusConflict, "conflict", "request was already answered"},
	{creditdomain.ErrInconsistentState, http.StatusConflict, "conflict", "credit line status does not match its balance"},

	{creditdomain.ErrInsufficientBalance, http.StatusUnprocessableEntity, "rejected", "insufficient credit balance"},
	{creditdomain.ErrOverPayment, http.StatusUnprocessableEntity, "rejected", "payment exceeds the outstanding debt"},
	{creditdomain.ErrNoDebt, http.StatusUnprocessableEntity, "rejected", "credit line has no debt"},
	{creditdomain.ErrAlreadyPaid, http.StatusUnprocessableEntity, "rejected", "credit line is already paid"},
	{creditdomain.ErrNoActiveCredit, http.StatusUnprocessableEntity, "rejected", "client has no active credit line"},
	{creditdomain.ErrOutOfDateRange, http.StatusUnprocessableEntity, "rejected", "credit line is outside its validity window"},
	{creditdomain.ErrExpired, http.StatusUnprocessableEntity, "rejected", "credit line has expired"},
	{inventorydomain.ErrInsufficientStock, http.StatusUnprocessableEntity, "rejected", "insufficient stock"},
	{orderdomain.ErrAlreadyCancelled, http.StatusUnprocessableEntity, "rejected", "order is already cancelled"},
	{orderdomain.ErrOrderFinalized, http.StatusUnprocessableEntity, "rejected", "order can no longer be edited"},
	{orderdomain.ErrInvalidTransition, http.StatusUnprocessableEntity, "rejected", "order cannot move to that status"},
	{orderdomain.ErrEmptyOrder, http.StatusUnprocessableEntity, "rejected", "order has no lines"},
	{accreditationdomain.ErrReapplyCooldown, http.StatusUnprocessableEntity, "rejected", "a rejected request cannot be resubmitted yet"},

	{ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
}

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

// ErrorResponse translates err into the status code, kind and message every API layer should emit.
func ErrorResponse(err error) (int, string, string) {
	status, payload := mapError(err)
	return status, payload.Type, payload.Message
}

func mapError(err error) (int, errorPayload) {
	var vErr *validation.Error
	if errors.As(err, &vErr) {
		payload := errorPayload{Type: "validation_error", Message: "validation error"}
		for _, field := range slices.Sorted(maps.Keys(vErr.Fields)) {
			payload.Errors = append(payload.Errors, ValidationError{Field: field, Code: vErr.Fields[field]})
		}
		return http.StatusBadRequest, payload
	}

	for _, r := range rules {
		if errors.Is(err, r.err) {
			return r.status, errorPayload{Type: r.kind, Code: r.err.Error(), Message: r.message}
		}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}
