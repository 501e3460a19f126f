package server

import (
	"fmt"
	"net/http"
	"testing"

	accreditationdomain "github.com/smallbiznis/bistro/internal/accreditation/domain"
	"github.com/smallbiznis/bistro/internal/authorization"
	creditdomain "github.com/smallbiznis/bistro/internal/credit/domain"
	inventorydomain "github.com/smallbiznis/bistro/internal/inventory/domain"
	orderdomain "github.com/smallbiznis/bistro/internal/order/domain"
	"github.com/smallbiznis/bistro/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{authorization.ErrInvalidActor, http.StatusUnauthorized},
		{authorization.ErrForbidden, http.StatusForbidden},
		{creditdomain.ErrNotOwner, http.StatusForbidden},
		{orderdomain.ErrNotOwner, http.StatusForbidden},
		{creditdomain.ErrInvalidAmount, http.StatusBadRequest},
		{orderdomain.ErrClientRequired, http.StatusBadRequest},
		{orderdomain.ErrNotFound, http.StatusNotFound},
		{gorm.ErrRecordNotFound, http.StatusNotFound},
		{inventorydomain.ErrDuplicateSKU, http.StatusConflict},
		{accreditationdomain.ErrDuplicateRequest, http.StatusConflict},
		{creditdomain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{inventorydomain.ErrInsufficientStock, http.StatusUnprocessableEntity},
		{accreditationdomain.ErrReapplyCooldown, http.StatusUnprocessableEntity},
		{fmt.Errorf("deliver order 7: %w", orderdomain.ErrInvalidTransition), http.StatusUnprocessableEntity},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestMapErrorKeepsCode(t *testing.T) {
	_, payload := mapError(fmt.Errorf("consume: %w", creditdomain.ErrOverPayment))
	assert.Equal(t, "rejected", payload.Type)
	assert.Equal(t, "over_payment", payload.Code)

	_, payload = mapError(fmt.Errorf("boom"))
	assert.Equal(t, "internal_error", payload.Type)
	assert.Empty(t, payload.Code)
}

func TestMapValidationError(t *testing.T) {
	err := validation.Struct(struct {
		Name  string `validate:"required"`
		Email string `validate:"required,email"`
	}{Email: "nope"})
	require.Error(t, err)

	status, payload := mapError(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Equal(t, []ValidationError{
		{Field: "Email", Code: "email"},
		{Field: "Name", Code: "required"},
	}, payload.Errors)
}

func TestErrorResponse(t *testing.T) {
	status, kind, message := ErrorResponse(fmt.Errorf("submit: %w", accreditationdomain.ErrReapplyCooldown))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "rejected", kind)
	assert.NotEmpty(t, message)
}
