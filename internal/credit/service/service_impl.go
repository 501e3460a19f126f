package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/authorization"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/credit/domain"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	"github.com/smallbiznis/bistro/internal/observability/logger"
	"github.com/smallbiznis/bistro/internal/observability/metrics"
	"github.com/smallbiznis/bistro/internal/observability/tracing"
	"github.com/smallbiznis/bistro/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultStaffPaymentDetail = "Abono en caja"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Authz    authorization.Service       `optional:"true"`
	Notifier notificationdomain.Notifier `optional:"true"`
	Metrics  *metrics.Metrics            `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	authz    authorization.Service
	notifier notificationdomain.Notifier
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("credit.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		authz:    p.Authz,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

func (s *Service) Grant(ctx context.Context, req domain.GrantRequest) (domain.CreditLine, error) {
	if err := s.authorize(ctx, authorization.ActionCreditGrant); err != nil {
		return domain.CreditLine{}, err
	}

	var line domain.CreditLine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		line, err = s.Open(ctx, tx, req)
		return err
	})
	if err != nil {
		return domain.CreditLine{}, err
	}
	return line, nil
}

func (s *Service) Open(ctx context.Context, db *gorm.DB, req domain.GrantRequest) (domain.CreditLine, error) {
	if err := validation.Struct(req); err != nil {
		return domain.CreditLine{}, err
	}
	if req.ClientID == 0 {
		return domain.CreditLine{}, domain.ErrInvalidClient
	}
	if !req.Limit.IsPositive() {
		return domain.CreditLine{}, domain.ErrInvalidAmount
	}
	if db == nil {
		db = s.db
	}

	now := s.clock.Now()
	start := lo.FromPtrOr(req.StartDate, now)
	if req.EndDate != nil && !req.EndDate.After(start) {
		return domain.CreditLine{}, domain.ErrInvalidWindow
	}

	limit := req.Limit.Round(2)
	line := domain.CreditLine{
		ID:        s.genID.Generate(),
		ClientID:  req.ClientID,
		Limit:     limit,
		Balance:   limit,
		Status:    domain.StatusActive,
		StartDate: start,
		EndDate:   req.EndDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertLine(ctx, db, &line); err != nil {
		return domain.CreditLine{}, err
	}
	if err := s.audit(ctx, db, line.ID, nil, "Crédito otorgado", "Límite: "+limit.StringFixed(2)); err != nil {
		return domain.CreditLine{}, err
	}
	if err := s.notify(ctx, db, line, notificationdomain.EventCreditApproved, map[string]any{
		"limit": limit.StringFixed(2),
	}); err != nil {
		return domain.CreditLine{}, err
	}

	logger.WithContext(ctx, s.log).Info("credit line opened",
		zap.String("credit_line_id", line.ID.String()),
		zap.String("client_id", line.ClientID.String()),
		zap.String("limit", limit.StringFixed(2)),
	)
	return line, nil
}

func (s *Service) Consume(ctx context.Context, db *gorm.DB, req domain.ConsumeRequest) (domain.MovementResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.MovementResult{}, err
	}
	return s.move(ctx, db, domain.KindConsumption, req.CreditLineID, req.Amount, req.Detail, req.OrderID, nil)
}

func (s *Service) Pay(ctx context.Context, req domain.PayRequest) (domain.MovementResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.MovementResult{}, err
	}
	if err := s.authorize(ctx, authorization.ActionCreditPay); err != nil {
		return domain.MovementResult{}, err
	}

	ownerCheck := func(line *domain.CreditLine) error {
		actor, _ := actorcontext.FromContext(ctx)
		if actor.Role == actorcontext.RoleClient && actor.UserID != line.ClientID {
			return domain.ErrNotOwner
		}
		return nil
	}
	return s.move(ctx, nil, domain.KindPayment, req.CreditLineID, req.Amount, req.Detail, nil, ownerCheck)
}

// StaffPayment registers a payment taken at the till on behalf of the client.
func (s *Service) StaffPayment(ctx context.Context, req domain.PayRequest) (domain.MovementResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.MovementResult{}, err
	}
	if err := s.authorize(ctx, authorization.ActionCreditPayOnBehalf); err != nil {
		return domain.MovementResult{}, err
	}
	if req.Detail == "" {
		req.Detail = defaultStaffPaymentDetail
	}
	return s.move(ctx, nil, domain.KindPayment, req.CreditLineID, req.Amount, req.Detail, nil, nil)
}

// move applies one movement under a row lock: movement insert, balance and
// status update and audit row commit together.
func (s *Service) move(
	ctx context.Context,
	db *gorm.DB,
	kind domain.MovementKind,
	lineID snowflake.ID,
	amount decimal.Decimal,
	detail string,
	orderID *snowflake.ID,
	guard func(*domain.CreditLine) error,
) (result domain.MovementResult, err error) {
	op := string(kind)
	ctx, span := tracing.Start(ctx, "credit."+op,
		attribute.String("credit_line_id", lineID.String()),
		attribute.String("amount", amount.String()),
	)
	defer func() { tracing.End(span, err) }()

	run := func(tx *gorm.DB) error {
		line, err := s.repo.FindLineForUpdate(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if line == nil {
			return domain.ErrNotFound
		}
		if guard != nil {
			if err := guard(line); err != nil {
				return err
			}
		}
		if err := line.Check(); err != nil {
			return err
		}

		now := s.clock.Now()
		var t domain.Transition
		switch kind {
		case domain.KindConsumption:
			t, err = line.Consume(amount, now)
		case domain.KindPayment:
			t, err = line.Pay(amount, now)
		}
		if err != nil {
			return err
		}
		if t.IsReactivation() {
			if err := s.authorize(ctx, authorization.ActionCreditReactivate); err != nil {
				return err
			}
		}

		actor, _ := actorcontext.FromContext(ctx)
		mv := domain.Movement{
			ID:           s.genID.Generate(),
			CreditLineID: line.ID,
			Kind:         kind,
			Amount:       t.Amount,
			BalanceAfter: t.BalanceAfter,
			OrderID:      orderID,
			UserID:       actor.UserIDPtr(),
			Detail:       detail,
			CreatedAt:    now,
		}
		if err := s.repo.InsertMovement(ctx, tx, &mv); err != nil {
			return err
		}
		if err := s.repo.UpdateBalance(ctx, tx, line); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, line.ID, orderID, kind.Label()+" de crédito", "Monto: "+t.Amount.StringFixed(2)); err != nil {
			return err
		}
		if err := s.announce(ctx, tx, *line, t); err != nil {
			return err
		}

		result = domain.MovementResult{Line: *line, Movement: mv, Transition: t}
		return nil
	}

	if db == nil {
		err = s.db.WithContext(ctx).Transaction(run)
	} else {
		err = run(db)
	}
	if err != nil {
		if isRejection(err) {
			s.metrics.RecordCreditRejection(op, err.Error())
		}
		logger.WithContext(ctx, s.log).Info("credit movement rejected",
			zap.String("kind", op),
			zap.String("credit_line_id", lineID.String()),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return domain.MovementResult{}, err
	}

	s.metrics.RecordCreditMovement(op, string(result.Transition.To))
	logger.WithContext(ctx, s.log).Info("credit movement applied",
		zap.String("kind", op),
		zap.String("credit_line_id", lineID.String()),
		zap.String("amount", result.Transition.Amount.StringFixed(2)),
		zap.String("balance", result.Line.Balance.StringFixed(2)),
		zap.String("status", string(result.Line.Status)),
	)
	return result, nil
}

func (s *Service) GetActiveByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (domain.CreditLine, error) {
	if db == nil {
		db = s.db
	}
	line, err := s.repo.FindActiveByClient(ctx, db, clientID)
	if err != nil {
		return domain.CreditLine{}, err
	}
	if line == nil {
		return domain.CreditLine{}, domain.ErrNoActiveCredit
	}
	return *line, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.CreditLine, error) {
	line, err := s.repo.FindLine(ctx, s.db, id)
	if err != nil {
		return domain.CreditLine{}, err
	}
	if line == nil {
		return domain.CreditLine{}, domain.ErrNotFound
	}
	return *line, nil
}

func (s *Service) ListByClient(ctx context.Context, clientID snowflake.ID) ([]domain.CreditLine, error) {
	return s.repo.ListByClient(ctx, s.db, clientID)
}

func (s *Service) ListMovements(ctx context.Context, lineID snowflake.ID) ([]domain.Movement, error) {
	return s.repo.ListMovements(ctx, s.db, lineID)
}

func (s *Service) ListAudit(ctx context.Context, lineID snowflake.ID) ([]domain.Audit, error) {
	return s.repo.ListAudit(ctx, s.db, lineID)
}

func (s *Service) ExtendValidity(ctx context.Context, lineID snowflake.ID, end time.Time) (domain.CreditLine, error) {
	if err := s.authorize(ctx, authorization.ActionCreditExtend); err != nil {
		return domain.CreditLine{}, err
	}

	var out domain.CreditLine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		line, err := s.repo.FindLineForUpdate(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if line == nil {
			return domain.ErrNotFound
		}
		if !end.After(line.StartDate) {
			return domain.ErrInvalidWindow
		}

		line.EndDate = &end
		line.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateEndDate(ctx, tx, line); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, line.ID, nil, "Vigencia extendida", "Hasta: "+end.Format(time.DateOnly)); err != nil {
			return err
		}
		out = *line
		return nil
	})
	if err != nil {
		return domain.CreditLine{}, err
	}
	return out, nil
}

// Recompute rebuilds the cached balance and status from the movement history.
// A stored Paid status with outstanding debt is never repaired silently.
func (s *Service) Recompute(ctx context.Context, lineID snowflake.ID) (domain.CreditLine, error) {
	if err := s.authorize(ctx, authorization.ActionCreditRecompute); err != nil {
		return domain.CreditLine{}, err
	}

	var out domain.CreditLine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		line, err := s.repo.FindLineForUpdate(ctx, tx, lineID)
		if err != nil {
			return err
		}
		if line == nil {
			return domain.ErrNotFound
		}
		movements, err := s.repo.ListMovements(ctx, tx, lineID)
		if err != nil {
			return err
		}

		balance := lo.Reduce(movements, func(acc decimal.Decimal, m domain.Movement, _ int) decimal.Decimal {
			if m.Kind == domain.KindConsumption {
				return acc.Sub(m.Amount)
			}
			return acc.Add(m.Amount)
		}, line.Limit)
		if balance.IsNegative() || balance.GreaterThan(line.Limit) {
			return domain.ErrInconsistentState
		}
		if line.Status == domain.StatusPaid && line.Limit.Sub(balance).IsPositive() {
			return domain.ErrInconsistentState
		}

		repaired := *line
		repaired.Balance = balance
		repaired.MovementCount = len(movements)
		repaired.Status = repaired.ExpectedStatus()
		if repaired.Balance.Equal(line.Balance) && repaired.MovementCount == line.MovementCount && repaired.Status == line.Status {
			out = *line
			return nil
		}

		repaired.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateBalance(ctx, tx, &repaired); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, line.ID, nil, "Recálculo de estado", string(line.Status)+" -> "+string(repaired.Status)); err != nil {
			return err
		}
		out = repaired
		return nil
	})
	if err != nil {
		return domain.CreditLine{}, err
	}
	return out, nil
}

func (s *Service) authorize(ctx context.Context, action string) error {
	if s.authz == nil {
		return authorization.ErrForbidden
	}
	return s.authz.Authorize(ctx, authorization.ObjectCredit, action)
}

func (s *Service) audit(ctx context.Context, db *gorm.DB, lineID snowflake.ID, orderID *snowflake.ID, action, detail string) error {
	actor, _ := actorcontext.FromContext(ctx)
	return s.repo.InsertAudit(ctx, db, &domain.Audit{
		ID:           s.genID.Generate(),
		CreditLineID: lineID,
		UserID:       actor.UserIDPtr(),
		OrderID:      orderID,
		Action:       action,
		Detail:       detail,
		CreatedAt:    s.clock.Now(),
	})
}

func (s *Service) announce(ctx context.Context, db *gorm.DB, line domain.CreditLine, t domain.Transition) error {
	payload := map[string]any{
		"amount":  t.Amount.StringFixed(2),
		"balance": line.Balance.StringFixed(2),
	}
	event := lo.Ternary(t.Kind == domain.KindConsumption, notificationdomain.EventCreditConsumed, notificationdomain.EventCreditPaid)
	if err := s.notify(ctx, db, line, event, payload); err != nil {
		return err
	}
	if !t.StatusChanged() {
		return nil
	}
	switch t.To {
	case domain.StatusSuspended:
		return s.notify(ctx, db, line, notificationdomain.EventCreditSuspended, payload)
	case domain.StatusPaid:
		return s.notify(ctx, db, line, notificationdomain.EventCreditPaidInFull, payload)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, db *gorm.DB, line domain.CreditLine, event notificationdomain.Event, payload map[string]any) error {
	if s.notifier == nil {
		return nil
	}
	payload["credit_line_id"] = line.ID.String()
	return s.notifier.Notify(ctx, db, notificationdomain.NotifyRequest{
		UserID:  line.ClientID,
		Event:   event,
		Payload: payload,
	})
}

var rejections = []error{
	domain.ErrInvalidAmount,
	domain.ErrInsufficientBalance,
	domain.ErrOverPayment,
	domain.ErrNoDebt,
	domain.ErrAlreadyPaid,
	domain.ErrOutOfDateRange,
	domain.ErrInconsistentState,
	authorization.ErrForbidden,
}

func isRejection(err error) bool {
	return lo.ContainsBy(rejections, func(target error) bool {
		return errors.Is(err, target)
	})
}
