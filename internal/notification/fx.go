package notification

import (
	"github.com/smallbiznis/bistro/internal/notification/repository"
	"github.com/smallbiznis/bistro/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewLogSender),
	fx.Provide(service.New),
	fx.Provide(service.ProvideNotifier),
)
