package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/authorization"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/inventory/domain"
	"github.com/smallbiznis/bistro/internal/inventory/repository"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	"github.com/smallbiznis/bistro/internal/testutil"
	"github.com/smallbiznis/bistro/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type roleNotice struct {
	role  actorcontext.Role
	event notificationdomain.Event
	sku   string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []roleNotice
}

func (n *recordingNotifier) Notify(context.Context, *gorm.DB, notificationdomain.NotifyRequest) error {
	return nil
}

func (n *recordingNotifier) NotifyRole(_ context.Context, _ *gorm.DB, role actorcontext.Role, event notificationdomain.Event, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, roleNotice{role: role, event: event, sku: payload["sku"].(string)})
	return nil
}

type fixture struct {
	db       *gorm.DB
	catalog  domain.CatalogService
	ledger   domain.StockLedger
	notifier *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t,
		&domain.Category{}, &domain.Subcategory{}, &domain.Location{},
		&domain.Product{}, &domain.Variant{},
	)
	fc := clock.NewFakeClock(time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	notifier := &recordingNotifier{}
	ledger := NewStockLedger(LedgerParams{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    fc,
		Repo:     repo,
		Notifier: notifier,
	})
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	catalog := NewCatalogService(CatalogParams{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  testutil.Node(t),
		Clock:  fc,
		Repo:   repo,
		Ledger: ledger,
		Authz:  authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})
	return fixture{db: db, catalog: catalog, ledger: ledger, notifier: notifier}
}

func admin() context.Context {
	return actorcontext.WithActor(context.Background(), 1, actorcontext.RoleAdmin)
}

func (f fixture) product(t *testing.T) domain.Product {
	t.Helper()
	ctx := admin()
	cat, err := f.catalog.CreateCategory(ctx, domain.CreateCategoryRequest{Name: "Bebidas"})
	require.NoError(t, err)
	sub, err := f.catalog.CreateSubcategory(ctx, domain.CreateSubcategoryRequest{CategoryID: cat.ID, Name: "Calientes"})
	require.NoError(t, err)
	p, err := f.catalog.CreateProduct(ctx, domain.CreateProductRequest{SubcategoryID: sub.ID, Name: "Café de olla"})
	require.NoError(t, err)
	return p
}

func (f fixture) variant(t *testing.T, p domain.Product, sku string, onHand int) domain.Variant {
	t.Helper()
	v, err := f.catalog.CreateVariant(admin(), domain.CreateVariantRequest{
		ProductID: p.ID,
		Name:      "Grande " + sku,
		SKU:       sku,
		Price:     decimal.RequireFromString("45.00"),
		Cost:      decimal.RequireFromString("18.00"),
		OnHand:    onHand,
	})
	require.NoError(t, err)
	return v
}

func TestStockLedgerScenario(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	v := f.variant(t, f.product(t), "caf-g", 10)

	got, err := f.ledger.Reserve(ctx, nil, v.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Reserved)
	assert.Equal(t, 6, got.Available())

	got, err = f.ledger.Commit(ctx, nil, v.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, got.OnHand)
	assert.Equal(t, 0, got.Reserved)
	assert.Equal(t, 6, got.Available())

	_, err = f.ledger.Commit(ctx, nil, v.ID, 7)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	stored, err := f.catalog.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.OnHand)
	assert.Equal(t, 0, stored.Reserved)
	assert.True(t, stored.Active)
}

func TestReserveBeyondAvailableFails(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	v := f.variant(t, f.product(t), "caf-m", 3)

	_, err := f.ledger.Reserve(ctx, nil, v.ID, 4)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = f.ledger.Reserve(ctx, nil, v.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.ledger.Reserve(ctx, nil, 424242, 1)
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)
}

func TestReleaseClampsAndActiveTracksAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	v := f.variant(t, f.product(t), "caf-c", 2)
	require.True(t, v.Active)

	got, err := f.ledger.Reserve(ctx, nil, v.ID, 2)
	require.NoError(t, err)
	assert.False(t, got.Active)

	got, err = f.ledger.Release(ctx, nil, v.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Reserved)
	assert.True(t, got.Active)

	got, err = f.ledger.Release(ctx, nil, v.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Reserved)
}

func TestDeductLeavesOtherReservations(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	v := f.variant(t, f.product(t), "caf-d", 10)

	_, err := f.ledger.Reserve(ctx, nil, v.ID, 3)
	require.NoError(t, err)

	got, err := f.ledger.Deduct(ctx, nil, v.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, got.OnHand)
	assert.Equal(t, 3, got.Reserved)
	assert.Equal(t, 2, got.Available())

	_, err = f.ledger.Deduct(ctx, nil, v.ID, 3)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestLedgerJoinsCallerTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	p := f.product(t)
	a := f.variant(t, p, "caf-a", 5)
	b := f.variant(t, p, "caf-b", 1)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.ledger.Reserve(ctx, tx, a.ID, 2); err != nil {
			return err
		}
		_, err := f.ledger.Reserve(ctx, tx, b.ID, 2)
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	stored, err := f.catalog.GetVariant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Reserved)
}

func TestLedgerAnnouncesThresholdCrossings(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	v := f.variant(t, f.product(t), "caf-n", 8)

	_, err := f.ledger.Reserve(ctx, nil, v.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.notices)

	_, err = f.ledger.Reserve(ctx, nil, v.ID, 1)
	require.NoError(t, err)
	_, err = f.ledger.Reserve(ctx, nil, v.ID, 1)
	require.NoError(t, err)
	_, err = f.ledger.Reserve(ctx, nil, v.ID, 4)
	require.NoError(t, err)

	require.Len(t, f.notifier.notices, 2)
	assert.Equal(t, roleNotice{role: actorcontext.RoleAdmin, event: notificationdomain.EventStockLow, sku: "CAF-N"}, f.notifier.notices[0])
	assert.Equal(t, notificationdomain.EventStockOut, f.notifier.notices[1].event)
}

func TestCreateVariantDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	p := f.product(t)

	v := f.variant(t, p, " caf-x ", 0)
	assert.Equal(t, "CAF-X", v.SKU)
	assert.Len(t, v.Barcode, 12)
	assert.Equal(t, 5, v.MinStock)
	assert.False(t, v.Active)
	assert.True(t, v.LowStock())
	assert.Equal(t, "60", v.Margin().String())

	zero := 0
	v2, err := f.catalog.CreateVariant(ctx, domain.CreateVariantRequest{
		ProductID: p.ID, Name: "Chico", SKU: "caf-y", Barcode: "750100",
		Price: decimal.RequireFromString("30"), MinStock: &zero, OnHand: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "750100", v2.Barcode)
	assert.Equal(t, 0, v2.MinStock)

	_, err = f.catalog.CreateVariant(ctx, domain.CreateVariantRequest{
		ProductID: p.ID, Name: "Copia", SKU: "CAF-Y", Price: decimal.RequireFromString("30"),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateSKU)

	_, err = f.catalog.CreateVariant(ctx, domain.CreateVariantRequest{
		ProductID: p.ID, Name: "Gratis", SKU: "caf-z", Price: decimal.Zero,
	})
	assert.True(t, errors.Is(err, validation.ErrInvalid))

	_, err = f.catalog.CreateVariant(ctx, domain.CreateVariantRequest{
		ProductID: 99, Name: "Huérfano", SKU: "caf-w", Price: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestRestock(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	v := f.variant(t, f.product(t), "caf-r", 0)

	got, err := f.catalog.Restock(ctx, v.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, got.OnHand)
	assert.True(t, got.Active)

	_, err = f.catalog.Restock(ctx, v.ID, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestMenuAndLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	p := f.product(t)
	f.variant(t, p, "caf-1", 20)
	f.variant(t, p, "caf-2", 3)
	f.variant(t, p, "caf-3", 0)

	menu, err := f.catalog.Menu(ctx)
	require.NoError(t, err)
	require.Len(t, menu, 1)
	assert.Equal(t, "Bebidas", menu[0].Name)
	require.Len(t, menu[0].Products, 1)
	assert.Len(t, menu[0].Products[0].Variants, 2)

	low, err := f.catalog.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "CAF-3", low[0].SKU)
	assert.Equal(t, "CAF-2", low[1].SKU)
}

func TestMenuSkipsInactiveCategory(t *testing.T) {
	f := newFixture(t)
	ctx := admin()
	now := time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC)

	require.NoError(t, f.db.Create(&domain.Category{
		ID: 900, Name: "Temporada", Slug: "temporada", Active: false, CreatedAt: now, UpdatedAt: now,
	}).Error)
	sub, err := f.catalog.CreateSubcategory(ctx, domain.CreateSubcategoryRequest{CategoryID: 900, Name: "Ponches"})
	require.NoError(t, err)
	p, err := f.catalog.CreateProduct(ctx, domain.CreateProductRequest{SubcategoryID: sub.ID, Name: "Ponche"})
	require.NoError(t, err)
	f.variant(t, p, "pon-1", 10)

	var stored domain.Category
	require.NoError(t, f.db.First(&stored, 900).Error)
	assert.False(t, stored.Active)

	menu, err := f.catalog.Menu(ctx)
	require.NoError(t, err)
	assert.Empty(t, menu)
}

func TestCatalogHierarchyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := admin()

	_, err := f.catalog.CreateSubcategory(ctx, domain.CreateSubcategoryRequest{CategoryID: 1, Name: "Frías"})
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)

	_, err = f.catalog.CreateProduct(ctx, domain.CreateProductRequest{SubcategoryID: 1, Name: "Agua"})
	assert.ErrorIs(t, err, domain.ErrSubcategoryNotFound)

	cat, err := f.catalog.CreateCategory(ctx, domain.CreateCategoryRequest{Name: "Postres Caseros"})
	require.NoError(t, err)
	assert.Equal(t, "postres-caseros", cat.Slug)

	_, err = f.catalog.CreateCategory(ctx, domain.CreateCategoryRequest{Name: "postres caseros"})
	assert.ErrorIs(t, err, domain.ErrDuplicateSlug)

	sub, err := f.catalog.CreateSubcategory(ctx, domain.CreateSubcategoryRequest{CategoryID: cat.ID, Name: "Pasteles"})
	require.NoError(t, err)
	missing := cat.ID
	_, err = f.catalog.CreateProduct(ctx, domain.CreateProductRequest{SubcategoryID: sub.ID, LocationID: &missing, Name: "Flan"})
	assert.ErrorIs(t, err, domain.ErrLocationNotFound)

	loc, err := f.catalog.CreateLocation(ctx, domain.CreateLocationRequest{Name: "Cocina"})
	require.NoError(t, err)
	product, err := f.catalog.CreateProduct(ctx, domain.CreateProductRequest{SubcategoryID: sub.ID, LocationID: &loc.ID, Name: "Flan"})
	require.NoError(t, err)
	assert.Equal(t, "flan", product.Slug)
}

func TestCatalogChangesNeedAdmin(t *testing.T) {
	f := newFixture(t)
	v := f.variant(t, f.product(t), "caf-auth", 3)
	waiter := actorcontext.WithActor(context.Background(), 2, actorcontext.RoleWaiter)
	cook := actorcontext.WithActor(context.Background(), 3, actorcontext.RoleCook)

	_, err := f.catalog.CreateCategory(waiter, domain.CreateCategoryRequest{Name: "Antojitos"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	_, err = f.catalog.CreateLocation(cook, domain.CreateLocationRequest{Name: "Barra"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	_, err = f.catalog.CreateVariant(context.Background(), domain.CreateVariantRequest{ProductID: v.ProductID, Name: "Chico", SKU: "caf-ch"})
	assert.ErrorIs(t, err, authorization.ErrInvalidActor)

	_, err = f.catalog.Restock(cook, v.ID, 5)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	stored, err := f.catalog.GetVariant(waiter, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.OnHand)

	got, err := f.catalog.Restock(admin(), v.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 8, got.OnHand)
}
