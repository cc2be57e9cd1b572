package logger

import (
	"github.com/kintailabs/kintai/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Provide(func(cfg config.Config) (*zap.Logger, error) {
	return New(cfg.LogLevel)
})
