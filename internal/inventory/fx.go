package inventory

import (
	"github.com/smallbiznis/bistro/internal/inventory/repository"
	"github.com/smallbiznis/bistro/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewStockLedger),
	fx.Provide(service.NewCatalogService),
)
