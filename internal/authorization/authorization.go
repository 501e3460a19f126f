package authorization

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/bistro/internal/actorcontext"
)

const (
	ObjectCredit        = "credit"
	ObjectOrder         = "order"
	ObjectAccreditation = "accreditation"
	ObjectCatalog       = "catalog"
	ObjectStock         = "stock"
)

const (
	ActionCreditGrant       = "credit.grant"
	ActionCreditPay         = "credit.pay"
	ActionCreditPayOnBehalf = "credit.pay_on_behalf"
	ActionCreditReactivate  = "credit.reactivate"
	ActionCreditExtend      = "credit.extend"
	ActionCreditRecompute   = "credit.recompute"

	ActionOrderCreate     = "order.create"
	ActionOrderEdit       = "order.edit"
	ActionOrderConfirm    = "order.confirm"
	ActionOrderAdvance    = "order.advance"
	ActionOrderDeliver    = "order.deliver"
	ActionOrderCancel     = "order.cancel"
	ActionOrderTransition = "order.transition"

	ActionAccreditationSubmit  = "accreditation.submit"
	ActionAccreditationRespond = "accreditation.respond"

	ActionCatalogManage = "catalog.manage"
	ActionStockAdjust   = "stock.adjust"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service gates privileged operations on the role of the actor in ctx.
type Service interface {
	Authorize(ctx context.Context, object string, action string) error
}

// Subject is the casbin subject for a role.
func Subject(role actorcontext.Role) string {
	return "role:" + strings.ToLower(strings.TrimSpace(string(role)))
}
