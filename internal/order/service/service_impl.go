package service

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	auditdomain "github.com/smallbiznis/bistro/internal/audit/domain"
	"github.com/smallbiznis/bistro/internal/authorization"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/config"
	creditdomain "github.com/smallbiznis/bistro/internal/credit/domain"
	inventorydomain "github.com/smallbiznis/bistro/internal/inventory/domain"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	"github.com/smallbiznis/bistro/internal/observability/logger"
	"github.com/smallbiznis/bistro/internal/observability/metrics"
	"github.com/smallbiznis/bistro/internal/observability/tracing"
	"github.com/smallbiznis/bistro/internal/order/domain"
	"github.com/smallbiznis/bistro/pkg/db/pagination"
	"github.com/smallbiznis/bistro/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
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
	Ledger   inventorydomain.StockLedger
	Credit   creditdomain.Service
	Authz    authorization.Service       `optional:"true"`
	AuditSvc auditdomain.Service         `optional:"true"`
	Notifier notificationdomain.Notifier `optional:"true"`
	Policy   *config.PolicyHolder        `optional:"true"`
	Metrics  *metrics.Metrics            `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	ledger   inventorydomain.StockLedger
	credit   creditdomain.Service
	authz    authorization.Service
	auditSvc auditdomain.Service
	notifier notificationdomain.Notifier
	policy   *config.PolicyHolder
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		ledger:   p.Ledger,
		credit:   p.Credit,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
		notifier: p.Notifier,
		policy:   p.Policy,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (out domain.Order, err error) {
	if err := validation.Struct(req); err != nil {
		return domain.Order{}, err
	}

	method, ok := domain.ParsePaymentMethod(lo.CoalesceOrEmpty(req.PaymentMethod, s.policy.Get().Order.DefaultPaymentMethod))
	if !ok {
		return domain.Order{}, domain.ErrInvalidPaymentMethod
	}
	kind := lo.Ternary(req.Type == "", domain.TypeDineIn, domain.Type(req.Type))

	if err := s.authorize(ctx, authorization.ActionOrderCreate); err != nil {
		return domain.Order{}, err
	}

	actor, _ := actorcontext.FromContext(ctx)
	clientID := req.ClientID
	if actor.Role == actorcontext.RoleClient {
		if clientID != nil && *clientID != actor.UserID {
			return domain.Order{}, domain.ErrNotOwner
		}
		clientID = actor.UserIDPtr()
	}
	var staffID *snowflake.ID
	if actor.Role.IsStaff() {
		staffID = actor.UserIDPtr()
	}
	if method == domain.PaymentCredit && clientID == nil {
		return domain.Order{}, domain.ErrClientRequired
	}

	ctx, span := tracing.Start(ctx, "order.create", attribute.String("payment_method", string(method)))
	defer func() { tracing.End(span, err) }()

	now := s.clock.Now()
	order := domain.Order{
		ID:            s.genID.Generate(),
		ClientID:      clientID,
		StaffID:       staffID,
		Status:        domain.StatusPending,
		Type:          kind,
		TableNumber:   req.TableNumber,
		Notes:         req.Notes,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if method == domain.PaymentCredit {
			if _, err := s.credit.GetActiveByClient(ctx, tx, *clientID); err != nil {
				return err
			}
		}
		if err := s.repo.InsertOrder(ctx, tx, &order); err != nil {
			return err
		}
		for _, in := range mergeInputs(req.Lines) {
			if err := s.addLine(ctx, tx, &order, in); err != nil {
				return err
			}
		}
		if err := s.settle(ctx, tx, &order); err != nil {
			return err
		}
		return s.notifyClient(ctx, tx, &order, notificationdomain.EventOrderCreated)
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordOrderTransition("new", string(order.Status))
	logger.WithContext(ctx, s.log).Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_method", string(method)),
		zap.Int("lines", len(order.Lines)),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

func (s *Service) AddLine(ctx context.Context, orderID snowflake.ID, in domain.LineInput) (domain.Order, error) {
	if err := validation.Struct(in); err != nil {
		return domain.Order{}, err
	}
	if err := s.authorize(ctx, authorization.ActionOrderEdit); err != nil {
		return domain.Order{}, err
	}
	return s.mutate(ctx, orderID, "add_line", func(tx *gorm.DB, o *domain.Order) error {
		if err := o.Editable(); err != nil {
			return err
		}
		if err := s.addLine(ctx, tx, o, in); err != nil {
			return err
		}
		return s.settle(ctx, tx, o)
	})
}

func (s *Service) UpdateLineQuantity(ctx context.Context, orderID, lineID snowflake.ID, qty int) (domain.Order, error) {
	if qty < 1 {
		return domain.Order{}, inventorydomain.ErrInvalidQuantity
	}
	if err := s.authorize(ctx, authorization.ActionOrderEdit); err != nil {
		return domain.Order{}, err
	}
	return s.mutate(ctx, orderID, "update_line", func(tx *gorm.DB, o *domain.Order) error {
		if err := o.Editable(); err != nil {
			return err
		}
		_, idx, ok := lo.FindIndexOf(o.Lines, func(l domain.Line) bool { return l.ID == lineID })
		if !ok {
			return domain.ErrLineNotFound
		}
		if err := s.resize(ctx, tx, &o.Lines[idx], qty); err != nil {
			return err
		}
		return s.settle(ctx, tx, o)
	})
}

func (s *Service) RemoveLine(ctx context.Context, orderID, lineID snowflake.ID) (domain.Order, error) {
	if err := s.authorize(ctx, authorization.ActionOrderEdit); err != nil {
		return domain.Order{}, err
	}
	return s.mutate(ctx, orderID, "remove_line", func(tx *gorm.DB, o *domain.Order) error {
		if err := o.Editable(); err != nil {
			return err
		}
		line, idx, ok := lo.FindIndexOf(o.Lines, func(l domain.Line) bool { return l.ID == lineID })
		if !ok {
			return domain.ErrLineNotFound
		}
		if line.Reserved > 0 {
			if _, err := s.ledger.Release(ctx, tx, line.VariantID, line.Reserved); err != nil {
				return err
			}
		}
		if err := s.repo.DeleteLine(ctx, tx, line.ID); err != nil {
			return err
		}
		o.Lines = slices.Delete(o.Lines, idx, idx+1)
		return s.settle(ctx, tx, o)
	})
}

func (s *Service) Confirm(ctx context.Context, orderID snowflake.ID, target domain.Status) (domain.Order, error) {
	if err := s.authorize(ctx, authorization.ActionOrderConfirm); err != nil {
		return domain.Order{}, err
	}
	return s.mutate(ctx, orderID, "confirm", func(tx *gorm.DB, o *domain.Order) error {
		return s.confirm(ctx, tx, o, target)
	})
}

func (s *Service) Advance(ctx context.Context, orderID snowflake.ID) (domain.Order, error) {
	if err := s.authorize(ctx, authorization.ActionOrderAdvance); err != nil {
		return domain.Order{}, err
	}
	return s.mutate(ctx, orderID, "advance", func(tx *gorm.DB, o *domain.Order) error {
		if err := o.Live(); err != nil {
			return err
		}
		next, ok := o.Status.Next()
		if !ok {
			return domain.ErrInvalidTransition
		}
		return s.moveTo(ctx, tx, o, next)
	})
}

func (s *Service) Deliver(ctx context.Context, orderID snowflake.ID) (domain.Order, error) {
	if err := s.authorize(ctx, authorization.ActionOrderDeliver); err != nil {
		return domain.Order{}, err
	}
	return s.mutate(ctx, orderID, "deliver", func(tx *gorm.DB, o *domain.Order) error {
		return s.deliver(ctx, tx, o)
	})
}

func (s *Service) Cancel(ctx context.Context, orderID snowflake.ID) (domain.Order, error) {
	if err := s.authorize(ctx, authorization.ActionOrderCancel); err != nil {
		return domain.Order{}, err
	}
	return s.mutate(ctx, orderID, "cancel", func(tx *gorm.DB, o *domain.Order) error {
		return s.cancel(ctx, tx, o)
	})
}

func (s *Service) Transition(ctx context.Context, orderID snowflake.ID, target domain.Status) (domain.Order, error) {
	if _, ok := domain.ParseStatus(string(target)); !ok {
		return domain.Order{}, domain.ErrInvalidStatus
	}
	if err := s.authorize(ctx, authorization.ActionOrderTransition); err != nil {
		return domain.Order{}, err
	}

	return s.mutate(ctx, orderID, "transition", func(tx *gorm.DB, o *domain.Order) error {
		from := o.Status
		var err error
		switch target {
		case domain.StatusPending, domain.StatusInKitchen:
			err = s.confirm(ctx, tx, o, target)
		case domain.StatusReady:
			if err = o.Live(); err == nil {
				err = s.moveTo(ctx, tx, o, target)
			}
		case domain.StatusDelivered:
			err = s.deliver(ctx, tx, o)
		case domain.StatusCancelled:
			err = s.cancel(ctx, tx, o)
		}
		if err != nil {
			return err
		}
		return s.auditTransition(ctx, tx, o, from)
	})
}

func (s *Service) Get(ctx context.Context, orderID snowflake.ID) (domain.Order, error) {
	o, err := s.repo.FindOrder(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if o == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return *o, nil
}

func (s *Service) List(ctx context.Context, req domain.ListOrderRequest) (domain.ListOrderResponse, error) {
	if err := validation.Struct(req); err != nil {
		return domain.ListOrderResponse{}, err
	}
	if req.Status != "" {
		if _, ok := domain.ParseStatus(string(req.Status)); !ok {
			return domain.ListOrderResponse{}, domain.ErrInvalidStatus
		}
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListOrderResponse{}, domain.ErrInvalidPageToken
	}

	limit := req.Limit()
	orders, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Status:   req.Status,
		ClientID: req.ClientID,
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		return domain.ListOrderResponse{}, err
	}

	page, info := pagination.Page(orders, limit, func(o domain.Order) pagination.Cursor {
		return pagination.Cursor{ID: o.ID, CreatedAt: o.CreatedAt}
	})
	return domain.ListOrderResponse{PageInfo: info, Orders: page}, nil
}

// KitchenQueue returns the orders of day still waiting on the kitchen, oldest first.
func (s *Service) KitchenQueue(ctx context.Context, day time.Time) ([]domain.Order, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return s.repo.ListByStatusBetween(ctx, s.db,
		[]domain.Status{domain.StatusPending, domain.StatusInKitchen},
		from, from.AddDate(0, 0, 1),
	)
}

// mutate runs fn on the locked order inside one transaction and persists the
// order afterwards. Any failure rolls back every stock and credit change fn made.
func (s *Service) mutate(ctx context.Context, orderID snowflake.ID, op string, fn func(tx *gorm.DB, o *domain.Order) error) (out domain.Order, err error) {
	ctx, span := tracing.Start(ctx, "order."+op, attribute.String("order_id", orderID.String()))
	defer func() { tracing.End(span, err) }()

	var from domain.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.repo.FindOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return domain.ErrNotFound
		}
		if !ownedBy(ctx, o) {
			return domain.ErrNotOwner
		}
		from = o.Status

		if err := fn(tx, o); err != nil {
			return err
		}
		o.Recalculate()
		o.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateOrder(ctx, tx, o); err != nil {
			return err
		}

		switch {
		case from == o.Status:
		case o.Status == domain.StatusDelivered:
			err = s.notifyClient(ctx, tx, o, notificationdomain.EventOrderDelivered)
		case o.Status == domain.StatusCancelled:
			err = s.notifyClient(ctx, tx, o, notificationdomain.EventOrderCancelled)
		}
		if err != nil {
			return err
		}
		out = *o
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Info("order operation rejected",
			zap.String("op", op),
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return domain.Order{}, err
	}

	if from != out.Status {
		s.metrics.RecordOrderTransition(string(from), string(out.Status))
		logger.WithContext(ctx, s.log).Info("order transitioned",
			zap.String("order_id", orderID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(out.Status)),
		)
	}
	return out, nil
}

func (s *Service) confirm(ctx context.Context, tx *gorm.DB, o *domain.Order, target domain.Status) error {
	if err := o.Live(); err != nil {
		return err
	}
	if target != domain.StatusPending && target != domain.StatusInKitchen {
		return domain.ErrInvalidTransition
	}
	if target.Rank() < o.Status.Rank() {
		return domain.ErrInvalidTransition
	}
	if len(o.Lines) == 0 {
		return domain.ErrEmptyOrder
	}
	if err := s.hold(ctx, tx, o); err != nil {
		return err
	}
	o.Status = target
	return nil
}

// moveTo advances a live order to a later holding status.
func (s *Service) moveTo(ctx context.Context, tx *gorm.DB, o *domain.Order, target domain.Status) error {
	if target.Rank() <= o.Status.Rank() {
		return domain.ErrInvalidTransition
	}
	if err := s.hold(ctx, tx, o); err != nil {
		return err
	}
	o.Status = target
	return nil
}

// hold tops up the reservation of every line to its full quantity.
func (s *Service) hold(ctx context.Context, tx *gorm.DB, o *domain.Order) error {
	for i := range o.Lines {
		line := &o.Lines[i]
		if line.Reserved >= line.Quantity {
			continue
		}
		if _, err := s.ledger.Reserve(ctx, tx, line.VariantID, line.Quantity-line.Reserved); err != nil {
			return err
		}
		line.Reserved = line.Quantity
		line.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateLine(ctx, tx, line); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, tx *gorm.DB, o *domain.Order) error {
	if err := o.Live(); err != nil {
		return err
	}
	if len(o.Lines) == 0 {
		return domain.ErrEmptyOrder
	}

	now := s.clock.Now()
	for i := range o.Lines {
		line := &o.Lines[i]
		if line.Reserved > 0 {
			if _, err := s.ledger.Release(ctx, tx, line.VariantID, line.Reserved); err != nil {
				return err
			}
		}
		if _, err := s.ledger.Deduct(ctx, tx, line.VariantID, line.Quantity); err != nil {
			return err
		}
		line.Reserved = 0
		line.UpdatedAt = now
		if err := s.repo.UpdateLine(ctx, tx, line); err != nil {
			return err
		}
	}

	o.Recalculate()
	if o.PaymentMethod == domain.PaymentCredit {
		if o.ClientID == nil {
			return domain.ErrClientRequired
		}
		line, err := s.credit.GetActiveByClient(ctx, tx, *o.ClientID)
		if err != nil {
			return err
		}
		if _, err := s.credit.Consume(ctx, tx, creditdomain.ConsumeRequest{
			CreditLineID: line.ID,
			Amount:       o.Total,
			Detail:       "Pedido #" + o.ID.String(),
			OrderID:      &o.ID,
		}); err != nil {
			return err
		}
	}

	o.Status = domain.StatusDelivered
	o.DeliveredAt = &now
	return nil
}

func (s *Service) cancel(ctx context.Context, tx *gorm.DB, o *domain.Order) error {
	if o.Cancelled || o.Status == domain.StatusCancelled {
		return domain.ErrAlreadyCancelled
	}
	if o.Status == domain.StatusDelivered {
		return domain.ErrOrderFinalized
	}

	now := s.clock.Now()
	for i := range o.Lines {
		line := &o.Lines[i]
		if line.Reserved == 0 {
			continue
		}
		if _, err := s.ledger.Release(ctx, tx, line.VariantID, line.Reserved); err != nil {
			return err
		}
		line.Reserved = 0
		line.UpdatedAt = now
		if err := s.repo.UpdateLine(ctx, tx, line); err != nil {
			return err
		}
	}

	o.Cancelled = true
	o.CancelledAt = &now
	o.Status = domain.StatusCancelled
	return nil
}

// addLine reserves stock for a new line, or grows the existing line of the
// same variant.
func (s *Service) addLine(ctx context.Context, tx *gorm.DB, o *domain.Order, in domain.LineInput) error {
	if _, idx, ok := lo.FindIndexOf(o.Lines, func(l domain.Line) bool { return l.VariantID == in.VariantID }); ok {
		return s.resize(ctx, tx, &o.Lines[idx], o.Lines[idx].Quantity+in.Quantity)
	}

	v, err := s.ledger.Reserve(ctx, tx, in.VariantID, in.Quantity)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	line := domain.Line{
		ID:        s.genID.Generate(),
		OrderID:   o.ID,
		VariantID: v.ID,
		UnitPrice: v.Price,
		Reserved:  in.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	line.SetQuantity(in.Quantity)
	if err := s.repo.InsertLine(ctx, tx, &line); err != nil {
		return err
	}
	o.Lines = append(o.Lines, line)
	slices.SortFunc(o.Lines, func(a, b domain.Line) int { return cmp.Compare(a.VariantID, b.VariantID) })
	return nil
}

// resize moves a line to qty and adjusts its reservation by the difference only.
func (s *Service) resize(ctx context.Context, tx *gorm.DB, line *domain.Line, qty int) error {
	switch diff := qty - line.Reserved; {
	case diff > 0:
		if _, err := s.ledger.Reserve(ctx, tx, line.VariantID, diff); err != nil {
			return err
		}
	case diff < 0:
		if _, err := s.ledger.Release(ctx, tx, line.VariantID, -diff); err != nil {
			return err
		}
	}
	line.Reserved = qty
	line.SetQuantity(qty)
	line.UpdatedAt = s.clock.Now()
	return s.repo.UpdateLine(ctx, tx, line)
}

// settle recomputes the total and, for credit orders, keeps it within the
// client's available balance.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, o *domain.Order) error {
	o.Recalculate()
	o.UpdatedAt = s.clock.Now()
	if o.PaymentMethod == domain.PaymentCredit && o.ClientID != nil {
		line, err := s.credit.GetActiveByClient(ctx, tx, *o.ClientID)
		if err != nil {
			return err
		}
		if o.Total.GreaterThan(line.Balance) {
			return creditdomain.ErrInsufficientBalance
		}
	}
	return s.repo.UpdateOrder(ctx, tx, o)
}

func (s *Service) authorize(ctx context.Context, action string) error {
	if s.authz == nil {
		return authorization.ErrForbidden
	}
	return s.authz.Authorize(ctx, authorization.ObjectOrder, action)
}

// ownedBy reports whether the actor in ctx may act on o. Staff act on any
// order; a client only on their own.
func ownedBy(ctx context.Context, o *domain.Order) bool {
	actor, _ := actorcontext.FromContext(ctx)
	if actor.Role != actorcontext.RoleClient {
		return true
	}
	return o.ClientID != nil && *o.ClientID == actor.UserID
}

func (s *Service) notifyClient(ctx context.Context, tx *gorm.DB, o *domain.Order, event notificationdomain.Event) error {
	if s.notifier == nil || o.ClientID == nil {
		return nil
	}
	return s.notifier.Notify(ctx, tx, notificationdomain.NotifyRequest{
		UserID: *o.ClientID,
		Event:  event,
		Payload: map[string]any{
			"order_id": o.ID.String(),
			"status":   string(o.Status),
			"total":    o.Total.StringFixed(2),
		},
	})
}

func (s *Service) auditTransition(ctx context.Context, tx *gorm.DB, o *domain.Order, from domain.Status) error {
	if s.auditSvc == nil {
		return nil
	}
	id := strconv.FormatInt(o.ID.Int64(), 10)
	return s.auditSvc.AuditLog(ctx, tx, "order.transition", "order", &id, map[string]any{
		"from": string(from),
		"to":   string(o.Status),
	})
}

func mergeInputs(in []domain.LineInput) []domain.LineInput {
	byVariant := make(map[snowflake.ID]int, len(in))
	for _, l := range in {
		byVariant[l.VariantID] += l.Quantity
	}
	merged := make([]domain.LineInput, 0, len(byVariant))
	for id, qty := range byVariant {
		merged = append(merged, domain.LineInput{VariantID: id, Quantity: qty})
	}
	slices.SortFunc(merged, func(a, b domain.LineInput) int { return cmp.Compare(a.VariantID, b.VariantID) })
	return merged
}
