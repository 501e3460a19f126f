package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/samber/lo"
	"github.com/smallbiznis/bistro/internal/authorization"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/config"
	"github.com/smallbiznis/bistro/internal/inventory/domain"
	"github.com/smallbiznis/bistro/pkg/db"
	"github.com/smallbiznis/bistro/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CatalogParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Ledger domain.StockLedger
	Authz  authorization.Service `optional:"true"`
	Policy *config.PolicyHolder  `optional:"true"`
}

type CatalogService struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	ledger domain.StockLedger
	authz  authorization.Service
	policy *config.PolicyHolder
}

func NewCatalogService(p CatalogParams) domain.CatalogService {
	return &CatalogService{
		db:     p.DB,
		log:    p.Log.Named("inventory.catalog"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		ledger: p.Ledger,
		authz:  p.Authz,
		policy: p.Policy,
	}
}

func (s *CatalogService) CreateCategory(ctx context.Context, req domain.CreateCategoryRequest) (domain.Category, error) {
	if err := s.authorize(ctx, authorization.ObjectCatalog, authorization.ActionCatalogManage); err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return domain.Category{}, err
	}

	now := s.clock.Now()
	c := domain.Category{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		Slug:      slug.Make(req.Name),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertCategory(ctx, s.db, &c); err != nil {
		return domain.Category{}, duplicate(err, domain.ErrDuplicateSlug)
	}
	return c, nil
}

func (s *CatalogService) CreateSubcategory(ctx context.Context, req domain.CreateSubcategoryRequest) (domain.Subcategory, error) {
	if err := s.authorize(ctx, authorization.ObjectCatalog, authorization.ActionCatalogManage); err != nil {
		return domain.Subcategory{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return domain.Subcategory{}, err
	}

	parent, err := s.repo.FindCategory(ctx, s.db, req.CategoryID)
	if err != nil {
		return domain.Subcategory{}, err
	}
	if parent == nil {
		return domain.Subcategory{}, domain.ErrCategoryNotFound
	}

	now := s.clock.Now()
	sub := domain.Subcategory{
		ID:         s.genID.Generate(),
		CategoryID: parent.ID,
		Name:       req.Name,
		Slug:       slug.Make(parent.Name + " " + req.Name),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertSubcategory(ctx, s.db, &sub); err != nil {
		return domain.Subcategory{}, duplicate(err, domain.ErrDuplicateSlug)
	}
	return sub, nil
}

func (s *CatalogService) CreateLocation(ctx context.Context, req domain.CreateLocationRequest) (domain.Location, error) {
	if err := s.authorize(ctx, authorization.ObjectCatalog, authorization.ActionCatalogManage); err != nil {
		return domain.Location{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return domain.Location{}, err
	}

	loc := domain.Location{
		ID:        s.genID.Generate(),
		Name:      req.Name,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertLocation(ctx, s.db, &loc); err != nil {
		return domain.Location{}, duplicate(err, domain.ErrDuplicateSlug)
	}
	return loc, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (domain.Product, error) {
	if err := s.authorize(ctx, authorization.ObjectCatalog, authorization.ActionCatalogManage); err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := validation.Struct(req); err != nil {
		return domain.Product{}, err
	}

	sub, err := s.repo.FindSubcategory(ctx, s.db, req.SubcategoryID)
	if err != nil {
		return domain.Product{}, err
	}
	if sub == nil {
		return domain.Product{}, domain.ErrSubcategoryNotFound
	}
	if req.LocationID != nil {
		loc, err := s.repo.FindLocation(ctx, s.db, *req.LocationID)
		if err != nil {
			return domain.Product{}, err
		}
		if loc == nil {
			return domain.Product{}, domain.ErrLocationNotFound
		}
	}

	now := s.clock.Now()
	p := domain.Product{
		ID:            s.genID.Generate(),
		SubcategoryID: sub.ID,
		LocationID:    req.LocationID,
		Name:          req.Name,
		Slug:          slug.Make(req.Name),
		Description:   req.Description,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertProduct(ctx, s.db, &p); err != nil {
		return domain.Product{}, duplicate(err, domain.ErrDuplicateSlug)
	}
	return p, nil
}

func (s *CatalogService) CreateVariant(ctx context.Context, req domain.CreateVariantRequest) (domain.Variant, error) {
	if err := s.authorize(ctx, authorization.ObjectCatalog, authorization.ActionCatalogManage); err != nil {
		return domain.Variant{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Barcode = strings.TrimSpace(req.Barcode)
	if err := validation.Struct(req); err != nil {
		return domain.Variant{}, err
	}

	product, err := s.repo.FindProduct(ctx, s.db, req.ProductID)
	if err != nil {
		return domain.Variant{}, err
	}
	if product == nil {
		return domain.Variant{}, domain.ErrProductNotFound
	}

	now := s.clock.Now()
	v := domain.Variant{
		ID:        s.genID.Generate(),
		ProductID: product.ID,
		Name:      req.Name,
		SKU:       req.SKU,
		Barcode:   lo.Ternary(req.Barcode == "", newBarcode(), req.Barcode),
		Price:     req.Price.Round(2),
		Cost:      req.Cost.Round(2),
		OnHand:    req.OnHand,
		MinStock:  lo.FromPtrOr(req.MinStock, s.policy.Get().Inventory.DefaultMinStock),
		CreatedAt: now,
		UpdatedAt: now,
	}
	v.Normalize()

	if err := s.repo.InsertVariant(ctx, s.db, &v); err != nil {
		return domain.Variant{}, duplicate(err, domain.ErrDuplicateSKU)
	}

	s.log.Info("variant created",
		zap.String("variant_id", v.ID.String()),
		zap.String("sku", v.SKU),
		zap.Int("on_hand", v.OnHand),
	)
	return v, nil
}

func (s *CatalogService) GetVariant(ctx context.Context, id snowflake.ID) (domain.Variant, error) {
	v, err := s.repo.FindVariant(ctx, s.db, id)
	if err != nil {
		return domain.Variant{}, err
	}
	if v == nil {
		return domain.Variant{}, domain.ErrVariantNotFound
	}
	return *v, nil
}

func (s *CatalogService) Restock(ctx context.Context, id snowflake.ID, qty int) (domain.Variant, error) {
	if qty <= 0 {
		return domain.Variant{}, domain.ErrInvalidQuantity
	}
	if err := s.authorize(ctx, authorization.ObjectStock, authorization.ActionStockAdjust); err != nil {
		return domain.Variant{}, err
	}

	var out domain.Variant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := s.repo.FindVariantForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if v == nil {
			return domain.ErrVariantNotFound
		}
		if err := v.Restock(qty); err != nil {
			return err
		}
		v.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateStock(ctx, tx, v); err != nil {
			return err
		}
		out = *v
		return nil
	})
	if err != nil {
		return domain.Variant{}, err
	}

	s.log.Info("variant restocked", zap.String("variant_id", id.String()), zap.Int("qty", qty), zap.Int("on_hand", out.OnHand))
	return out, nil
}

// Menu lists active categories and products with at least one available variant.
func (s *CatalogService) Menu(ctx context.Context) ([]domain.MenuCategory, error) {
	rows, err := s.repo.ListMenuRows(ctx, s.db)
	if err != nil {
		return nil, err
	}

	var menu []domain.MenuCategory
	for _, row := range rows {
		if len(menu) == 0 || menu[len(menu)-1].CategoryID != row.CategoryID {
			menu = append(menu, domain.MenuCategory{CategoryID: row.CategoryID, Name: row.CategoryName})
		}
		cat := &menu[len(menu)-1]
		if len(cat.Products) == 0 || cat.Products[len(cat.Products)-1].ProductID != row.ProductID {
			cat.Products = append(cat.Products, domain.MenuProduct{
				ProductID:   row.ProductID,
				Name:        row.ProductName,
				Description: row.Description,
			})
		}
		product := &cat.Products[len(cat.Products)-1]
		product.Variants = append(product.Variants, domain.MenuItem{
			VariantID: row.VariantID,
			Name:      row.VariantName,
			Price:     row.Price,
			Available: row.OnHand - row.Reserved,
		})
	}
	return menu, nil
}

func (s *CatalogService) LowStock(ctx context.Context) ([]domain.Variant, error) {
	return s.repo.ListLowStock(ctx, s.db)
}

func (s *CatalogService) authorize(ctx context.Context, object, action string) error {
	if s.authz == nil {
		return authorization.ErrForbidden
	}
	return s.authz.Authorize(ctx, object, action)
}

func newBarcode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
}

func duplicate(err, target error) error {
	if db.IsDuplicateKeyErr(err) {
		return target
	}
	return err
}
