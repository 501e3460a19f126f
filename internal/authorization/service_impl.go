package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	auditdomain "github.com/smallbiznis/bistro/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies persisted by the gorm adapter and seeds the defaults.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer with the default policies and no persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return ErrInvalidActor
	}

	allowed, err := s.enforcer.Enforce(Subject(actor.Role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("role", string(actor.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, nil, "authorization.denied", "authorization", &object, map[string]any{
		"object": object,
		"action": action,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Clients act on their own orders, credit and requests
		{Subject(actorcontext.RoleClient), ObjectOrder, ActionOrderCreate},
		{Subject(actorcontext.RoleClient), ObjectOrder, ActionOrderEdit},
		{Subject(actorcontext.RoleClient), ObjectOrder, ActionOrderCancel},
		{Subject(actorcontext.RoleClient), ObjectCredit, ActionCreditPay},
		{Subject(actorcontext.RoleClient), ObjectAccreditation, ActionAccreditationSubmit},

		// Kitchen
		{Subject(actorcontext.RoleCook), ObjectOrder, ActionOrderAdvance},

		// Floor staff
		{Subject(actorcontext.RoleWaiter), ObjectOrder, ActionOrderCreate},
		{Subject(actorcontext.RoleWaiter), ObjectOrder, ActionOrderEdit},
		{Subject(actorcontext.RoleWaiter), ObjectOrder, ActionOrderConfirm},
		{Subject(actorcontext.RoleWaiter), ObjectOrder, ActionOrderAdvance},
		{Subject(actorcontext.RoleWaiter), ObjectOrder, ActionOrderDeliver},
		{Subject(actorcontext.RoleWaiter), ObjectOrder, ActionOrderCancel},
		{Subject(actorcontext.RoleWaiter), ObjectCredit, ActionCreditPay},
		{Subject(actorcontext.RoleWaiter), ObjectCredit, ActionCreditPayOnBehalf},

		// Administrators
		{Subject(actorcontext.RoleAdmin), ObjectCredit, "*"},
		{Subject(actorcontext.RoleAdmin), ObjectOrder, "*"},
		{Subject(actorcontext.RoleAdmin), ObjectAccreditation, "*"},
		{Subject(actorcontext.RoleAdmin), ObjectCatalog, "*"},
		{Subject(actorcontext.RoleAdmin), ObjectStock, "*"},

		// Background jobs
		{Subject(actorcontext.RoleSystem), ObjectCredit, ActionCreditRecompute},
	}
	for _, policy := range policies {
		params := make([]interface{}, 0, len(policy))
		for _, value := range policy {
			params = append(params, value)
		}
		has, err := enforcer.HasPolicy(params...)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(params...); err != nil {
			return err
		}
	}
	return nil
}
