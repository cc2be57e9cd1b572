package proration

import (
	"github.com/kintailabs/kintai/internal/proration/repository"
	"github.com/kintailabs/kintai/internal/proration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("proration.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
