package commission

import (
	"github.com/smallbiznis/affina/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission",
	fx.Provide(
		service.NewService,
	),
)
