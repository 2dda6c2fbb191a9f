package network

import (
	"github.com/smallbiznis/affina/internal/network/service"
	"go.uber.org/fx"
)

var Module = fx.Module("network",
	fx.Provide(
		service.NewService,
	),
)
