package pricing

import (
	"github.com/kintailabs/kintai/internal/pricing/repository"
	"github.com/kintailabs/kintai/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
