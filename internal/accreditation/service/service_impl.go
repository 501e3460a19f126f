package service

import (
	"context"
	"errors"
	"slices"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/accreditation/domain"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/authorization"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/config"
	creditdomain "github.com/smallbiznis/bistro/internal/credit/domain"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	"github.com/smallbiznis/bistro/internal/observability/logger"
	"github.com/smallbiznis/bistro/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Credit   creditdomain.Service
	Authz    authorization.Service       `optional:"true"`
	Notifier notificationdomain.Notifier `optional:"true"`
	Policy   *config.PolicyHolder        `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	credit   creditdomain.Service
	authz    authorization.Service
	notifier notificationdomain.Notifier
	policy   *config.PolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("accreditation.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		credit:   p.Credit,
		authz:    p.Authz,
		notifier: p.Notifier,
		policy:   p.Policy,
	}
}

// Submit files a request for the calling client.
func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (domain.Request, error) {
	if err := s.authorize(ctx, authorization.ActionAccreditationSubmit); err != nil {
		return domain.Request{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Request{}, domain.ErrInvalidAmount
	}
	actor, _ := actorcontext.FromContext(ctx)

	now := s.clock.Now()
	out := domain.Request{
		ID:          s.genID.Generate(),
		ClientID:    actor.UserID,
		Amount:      req.Amount.Round(2),
		Status:      domain.StatusUnderReview,
		RequestedAt: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.ListByClient(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		if slices.ContainsFunc(existing, domain.Request.Open) {
			return domain.ErrDuplicateRequest
		}

		last, err := s.repo.LatestRejection(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		if last != nil && last.CoolingDown(now, s.policy.Get().Accreditation.ReapplyCooldown) {
			return domain.ErrReapplyCooldown
		}
		return s.repo.Insert(ctx, tx, &out)
	})
	if err != nil {
		return domain.Request{}, err
	}

	logger.WithContext(ctx, s.log).Info("accreditation submitted",
		zap.String("request_id", out.ID.String()),
		zap.String("client_id", out.ClientID.String()),
		zap.String("amount", out.Amount.StringFixed(2)),
	)
	return out, nil
}

// Respond settles an under-review request. Approval opens the credit line in
// the same transaction.
func (s *Service) Respond(ctx context.Context, req domain.RespondRequest) (domain.Request, error) {
	if err := validation.Struct(req); err != nil {
		return domain.Request{}, err
	}
	if err := s.authorize(ctx, authorization.ActionAccreditationRespond); err != nil {
		return domain.Request{}, err
	}

	var out domain.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.repo.FindForUpdate(ctx, tx, req.RequestID)
		if err != nil {
			return err
		}
		if r == nil {
			return domain.ErrNotFound
		}
		if r.Status != domain.StatusUnderReview {
			return domain.ErrAlreadyResponded
		}
		target, ok := domain.ParseStatus(req.Status)
		if !ok || target == domain.StatusUnderReview {
			return domain.ErrUnknownStatus
		}
		if err := s.respond(ctx, tx, r, target, req.StaffNote); err != nil {
			return err
		}
		out = *r
		return nil
	})
	if err != nil {
		return domain.Request{}, err
	}
	return out, nil
}

// ApproveBatch approves every listed request still under review and skips the rest.
func (s *Service) ApproveBatch(ctx context.Context, ids []snowflake.ID) (domain.BatchResult, error) {
	if err := s.authorize(ctx, authorization.ActionAccreditationRespond); err != nil {
		return domain.BatchResult{}, err
	}

	var out domain.BatchResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			r, err := s.repo.FindForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if r == nil || r.Status != domain.StatusUnderReview {
				out.Skipped = append(out.Skipped, id)
				continue
			}
			if err := s.respond(ctx, tx, r, domain.StatusApproved, ""); err != nil {
				return err
			}
			out.Approved = append(out.Approved, *r)
		}
		return nil
	})
	if err != nil {
		return domain.BatchResult{}, err
	}
	return out, nil
}

func (s *Service) respond(ctx context.Context, tx *gorm.DB, r *domain.Request, target domain.Status, note string) error {
	if r.Status != domain.StatusUnderReview {
		return domain.ErrAlreadyResponded
	}

	actor, _ := actorcontext.FromContext(ctx)
	now := s.clock.Now()
	r.Status = target
	r.StaffNote = note
	r.RespondedAt = &now
	r.RespondedBy = actor.UserIDPtr()

	switch target {
	case domain.StatusApproved:
		line, err := s.credit.Open(ctx, tx, creditdomain.GrantRequest{
			ClientID: r.ClientID,
			Limit:    r.Amount,
		})
		if err != nil {
			return err
		}
		r.CreditLineID = &line.ID
	case domain.StatusRejected:
		r.RejectedAt = &now
		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, tx, notificationdomain.NotifyRequest{
				UserID: r.ClientID,
				Event:  notificationdomain.EventCreditRejected,
				Payload: map[string]any{
					"request_id": r.ID.String(),
					"amount":     r.Amount.StringFixed(2),
					"note":       note,
				},
			}); err != nil {
				return err
			}
		}
	}
	if err := s.repo.Update(ctx, tx, r); err != nil {
		return err
	}

	logger.WithContext(ctx, s.log).Info("accreditation answered",
		zap.String("request_id", r.ID.String()),
		zap.String("status", string(target)),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Request, error) {
	r, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return domain.Request{}, err
	}
	if r == nil {
		return domain.Request{}, domain.ErrNotFound
	}
	if actor, ok := actorcontext.FromContext(ctx); ok && actor.Role == actorcontext.RoleClient && actor.UserID != r.ClientID {
		return domain.Request{}, domain.ErrNotFound
	}
	return *r, nil
}

// List returns requests newest first. Clients only see their own.
func (s *Service) List(ctx context.Context, status domain.Status) ([]domain.Request, error) {
	if status != "" {
		if _, ok := domain.ParseStatus(string(status)); !ok {
			return nil, domain.ErrUnknownStatus
		}
	}
	filter := domain.ListFilter{Status: status}
	if actor, ok := actorcontext.FromContext(ctx); ok && actor.Role == actorcontext.RoleClient {
		filter.ClientID = &actor.UserID
	}
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) authorize(ctx context.Context, action string) error {
	if s.authz == nil {
		return authorization.ErrForbidden
	}
	if err := s.authz.Authorize(ctx, authorization.ObjectAccreditation, action); err != nil {
		if errors.Is(err, authorization.ErrForbidden) {
			logger.WithContext(ctx, s.log).Warn("accreditation action denied", zap.String("action", action))
		}
		return err
	}
	return nil
}
