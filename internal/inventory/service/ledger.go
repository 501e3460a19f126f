package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/inventory/domain"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	"github.com/smallbiznis/bistro/internal/observability/metrics"
	"github.com/smallbiznis/bistro/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LedgerParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Notifier notificationdomain.Notifier `optional:"true"`
	Metrics  *metrics.Metrics            `optional:"true"`
}

type StockLedger struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	notifier notificationdomain.Notifier
	metrics  *metrics.Metrics
}

func NewStockLedger(p LedgerParams) domain.StockLedger {
	return &StockLedger{
		db:       p.DB,
		log:      p.Log.Named("inventory.ledger"),
		clock:    p.Clock,
		repo:     p.Repo,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

func (l *StockLedger) Reserve(ctx context.Context, db *gorm.DB, variantID snowflake.ID, qty int) (domain.Variant, error) {
	return l.mutate(ctx, db, "reserve", variantID, qty, (*domain.Variant).Reserve)
}

func (l *StockLedger) Release(ctx context.Context, db *gorm.DB, variantID snowflake.ID, qty int) (domain.Variant, error) {
	return l.mutate(ctx, db, "release", variantID, qty, (*domain.Variant).Release)
}

func (l *StockLedger) Commit(ctx context.Context, db *gorm.DB, variantID snowflake.ID, qty int) (domain.Variant, error) {
	return l.mutate(ctx, db, "commit", variantID, qty, (*domain.Variant).Commit)
}

func (l *StockLedger) Deduct(ctx context.Context, db *gorm.DB, variantID snowflake.ID, qty int) (domain.Variant, error) {
	return l.mutate(ctx, db, "deduct", variantID, qty, (*domain.Variant).Deduct)
}

func (l *StockLedger) mutate(
	ctx context.Context,
	db *gorm.DB,
	op string,
	variantID snowflake.ID,
	qty int,
	apply func(*domain.Variant, int) error,
) (out domain.Variant, err error) {
	ctx, span := tracing.Start(ctx, "inventory.stock."+op,
		attribute.String("variant_id", variantID.String()),
		attribute.Int("qty", qty),
	)
	defer func() { tracing.End(span, err) }()

	run := func(tx *gorm.DB) error {
		v, err := l.repo.FindVariantForUpdate(ctx, tx, variantID)
		if err != nil {
			return err
		}
		if v == nil {
			return domain.ErrVariantNotFound
		}

		before := *v
		if err := apply(v, qty); err != nil {
			return err
		}
		v.UpdatedAt = l.clock.Now()
		if err := l.repo.UpdateStock(ctx, tx, v); err != nil {
			return err
		}
		if err := l.announce(ctx, tx, before, *v); err != nil {
			return err
		}
		out = *v
		return nil
	}

	if db == nil {
		err = l.db.WithContext(ctx).Transaction(run)
	} else {
		err = run(db)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			l.metrics.RecordStockRejection(op)
			l.log.Info("stock mutation rejected",
				zap.String("op", op),
				zap.String("variant_id", variantID.String()),
				zap.Int("qty", qty),
			)
		}
		return domain.Variant{}, err
	}
	return out, nil
}

// announce enqueues a notification for admins when a mutation exhausts the
// variant or crosses its low-stock threshold.
func (l *StockLedger) announce(ctx context.Context, tx *gorm.DB, before, after domain.Variant) error {
	if l.notifier == nil {
		return nil
	}

	var event notificationdomain.Event
	switch {
	case before.Available() > 0 && after.Available() == 0:
		event = notificationdomain.EventStockOut
	case !before.LowStock() && after.LowStock():
		event = notificationdomain.EventStockLow
	default:
		return nil
	}

	return l.notifier.NotifyRole(ctx, tx, actorcontext.RoleAdmin, event, map[string]any{
		"variant_id": after.ID.String(),
		"sku":        after.SKU,
		"available":  after.Available(),
		"min_stock":  after.MinStock,
	})
}
