package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	auditdomain "github.com/smallbiznis/bistro/internal/audit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockAuditSvc struct {
	mock.Mock
}

func (m *mockAuditSvc) AuditLog(ctx context.Context, db *gorm.DB, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, db, action, targetType, targetID, metadata)
	return args.Error(0)
}

func (m *mockAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

func TestAuthorize(t *testing.T) {
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)

	audit := new(mockAuditSvc)
	svc := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit})

	as := func(role actorcontext.Role) context.Context {
		return actorcontext.WithActor(context.Background(), snowflake.ID(7), role)
	}

	assert.NoError(t, svc.Authorize(as(actorcontext.RoleAdmin), ObjectCredit, ActionCreditReactivate))
	assert.NoError(t, svc.Authorize(as(actorcontext.RoleWaiter), ObjectCredit, ActionCreditPayOnBehalf))
	assert.NoError(t, svc.Authorize(as(actorcontext.RoleCook), ObjectOrder, ActionOrderAdvance))
	assert.NoError(t, svc.Authorize(as(actorcontext.RoleClient), ObjectAccreditation, ActionAccreditationSubmit))
	assert.NoError(t, svc.Authorize(as(actorcontext.RoleAdmin), ObjectCatalog, ActionCatalogManage))
	assert.NoError(t, svc.Authorize(as(actorcontext.RoleAdmin), ObjectStock, ActionStockAdjust))

	audit.On("AuditLog", mock.Anything, mock.Anything, "authorization.denied", "authorization", mock.Anything, mock.Anything).Return(nil).Times(4)
	assert.ErrorIs(t, svc.Authorize(as(actorcontext.RoleWaiter), ObjectCredit, ActionCreditReactivate), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(as(actorcontext.RoleClient), ObjectAccreditation, ActionAccreditationRespond), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(as(actorcontext.RoleCook), ObjectOrder, ActionOrderCancel), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(as(actorcontext.RoleWaiter), ObjectCatalog, ActionCatalogManage), ErrForbidden)
	audit.AssertExpectations(t)

	assert.ErrorIs(t, svc.Authorize(context.Background(), ObjectCredit, ActionCreditPay), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(as(actorcontext.RoleAdmin), "", ActionCreditPay), ErrInvalidObject)
}
