package accreditation

import (
	"github.com/smallbiznis/bistro/internal/accreditation/repository"
	"github.com/smallbiznis/bistro/internal/accreditation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("accreditation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
