package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/config"
	"github.com/smallbiznis/bistro/internal/notification/domain"
	"github.com/smallbiznis/bistro/internal/observability/metrics"
	"github.com/smallbiznis/bistro/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Sender  domain.Sender
	Policy  *config.PolicyHolder `optional:"true"`
	Metrics *metrics.Metrics     `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	sender  domain.Sender
	policy  *config.PolicyHolder
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("notification.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		sender:  p.Sender,
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

// ProvideNotifier exposes the outbox writer to other modules.
func ProvideNotifier(svc domain.Service) domain.Notifier {
	return svc
}

func (s *Service) Notify(ctx context.Context, db *gorm.DB, req domain.NotifyRequest) error {
	if req.UserID == 0 {
		return domain.ErrInvalidUser
	}
	if req.Event == "" {
		return domain.ErrInvalidEvent
	}
	if db == nil {
		db = s.db
	}

	policy := s.policy.Get().Notification
	channel := policy.DefaultChannel
	pref, err := s.repo.FindPreference(ctx, db, req.UserID, req.Event)
	if err != nil {
		return err
	}
	if pref != nil && pref.ChannelCode != "" {
		channel = pref.ChannelCode
	}

	now := s.clock.Now()
	n := domain.Notification{
		ID:            s.genID.Generate(),
		UserID:        req.UserID,
		Event:         req.Event,
		ChannelCode:   channel,
		Payload:       req.Payload,
		Status:        domain.StatusPending,
		MaxAttempts:   policy.MaxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, db, &n); err != nil {
		return err
	}

	s.log.Debug("notification enqueued",
		zap.String("notification_id", n.ID.String()),
		zap.String("event", string(n.Event)),
		zap.String("channel", n.ChannelCode),
	)
	return nil
}

func (s *Service) NotifyRole(ctx context.Context, db *gorm.DB, role actorcontext.Role, event domain.Event, payload map[string]any) error {
	if db == nil {
		db = s.db
	}
	ids, err := s.repo.ListUserIDsByRole(ctx, db, role)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.Notify(ctx, db, domain.NotifyRequest{UserID: id, Event: event, Payload: payload}); err != nil {
			return err
		}
	}
	return nil
}

// DispatchDue delivers due notifications. Send failures are recorded on the
// row and never abort the batch.
func (s *Service) DispatchDue(ctx context.Context, limit int) (domain.DispatchResult, error) {
	var result domain.DispatchResult
	if limit <= 0 {
		limit = 50
	}
	backoff := s.policy.Get().Notification.RetryBackoff

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		items, err := s.repo.ClaimDue(ctx, tx, now, limit)
		if err != nil {
			return err
		}
		result.Claimed = len(items)

		for i := range items {
			n := &items[i]
			if sendErr := s.sender.Send(ctx, *n); sendErr != nil {
				n.Fail(sendErr, s.clock.Now(), backoff)
				s.log.Warn("notification delivery failed",
					zap.String("notification_id", n.ID.String()),
					zap.Int("attempts", n.Attempts),
					zap.String("status", string(n.Status)),
					zap.Error(sendErr),
				)
			} else {
				n.Succeed(s.clock.Now())
			}
			if err := s.repo.MarkAttempt(ctx, tx, n); err != nil {
				return err
			}

			switch n.Status {
			case domain.StatusSent:
				result.Sent++
			case domain.StatusRetrying:
				result.Retrying++
			case domain.StatusFailed:
				result.Failed++
			}
			s.metrics.RecordNotification(n.ChannelCode, string(n.Status))
		}
		return nil
	})
	if err != nil {
		return domain.DispatchResult{}, err
	}
	return result, nil
}

func (s *Service) SetPreference(ctx context.Context, req domain.SetPreferenceRequest) (domain.Preference, error) {
	if err := validation.Struct(req); err != nil {
		return domain.Preference{}, err
	}

	ch, err := s.repo.FindChannel(ctx, s.db, req.ChannelCode)
	if err != nil {
		return domain.Preference{}, err
	}
	if ch == nil || !ch.Active {
		return domain.Preference{}, domain.ErrUnknownChannel
	}

	pref := domain.Preference{
		ID:          s.genID.Generate(),
		UserID:      req.UserID,
		Event:       req.Event,
		ChannelCode: ch.Code,
		UpdatedAt:   s.clock.Now(),
	}
	if err := s.repo.UpsertPreference(ctx, s.db, &pref); err != nil {
		return domain.Preference{}, err
	}

	stored, err := s.repo.FindPreference(ctx, s.db, req.UserID, req.Event)
	if err != nil {
		return domain.Preference{}, err
	}
	if stored == nil {
		return domain.Preference{}, domain.ErrPreferenceLost
	}
	return *stored, nil
}

func (s *Service) ListForUser(ctx context.Context, userID snowflake.ID) ([]domain.Notification, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.ListForUser(ctx, s.db, userID)
}
