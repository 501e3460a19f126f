package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	auditdomain "github.com/smallbiznis/bistro/internal/audit/domain"
	"github.com/smallbiznis/bistro/internal/clock"
	obslogger "github.com/smallbiznis/bistro/internal/observability/logger"
	"github.com/smallbiznis/bistro/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, db *gorm.DB, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	entry := s.newEntry(ctx, action, targetType, targetID, metadata)
	if err := s.repo.Insert(ctx, lo.CoalesceOrEmpty(db, s.db), &entry); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("audit write failed",
			zap.String("action", action),
			zap.String("target_type", entry.TargetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// newEntry stamps the acting user and request onto an audit row. Jobs without
// an actor are recorded as the system.
func (s *Service) newEntry(ctx context.Context, action, targetType string, targetID *string, metadata map[string]any) auditdomain.AuditLog {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		actor = actorcontext.System
	}

	var id *string
	if targetID != nil {
		id = lo.EmptyableToPtr(strings.TrimSpace(*targetID))
	}

	return auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorRole:  string(actor.Role),
		ActorID:    actor.UserIDPtr(),
		Action:     action,
		TargetType: lo.CoalesceOrEmpty(strings.TrimSpace(targetType), "unknown"),
		TargetID:   id,
		Metadata:   datatypes.JSONMap(lo.OmitByKeys(metadata, []string{""})),
		RequestID:  lo.EmptyableToPtr(obslogger.RequestIDFromContext(ctx)),
		CreatedAt:  s.clock.Now(),
	}
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
	}

	limit := req.Limit()
	rows, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorID:    req.ActorID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs, page := pagination.Page(rows, limit, func(row auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: row.ID, CreatedAt: row.CreatedAt}
	})
	return auditdomain.ListAuditLogResponse{PageInfo: page, AuditLogs: logs}, nil
}
