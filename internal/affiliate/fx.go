package affiliate

import (
	"github.com/smallbiznis/affina/internal/affiliate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("affiliate",
	fx.Provide(
		service.NewService,
	),
)
