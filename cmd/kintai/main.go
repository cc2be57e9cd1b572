package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/kintailabs/kintai/internal/billing"
	"github.com/kintailabs/kintai/internal/clock"
	"github.com/kintailabs/kintai/internal/config"
	"github.com/kintailabs/kintai/internal/invoice"
	"github.com/kintailabs/kintai/internal/logger"
	"github.com/kintailabs/kintai/internal/migration"
	"github.com/kintailabs/kintai/internal/pricing"
	"github.com/kintailabs/kintai/internal/proration"
	"github.com/kintailabs/kintai/internal/scheduler"
	"github.com/kintailabs/kintai/internal/server"
	"github.com/kintailabs/kintai/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		config.BillingModule,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		pricing.Module,
		proration.Module,
		billing.Module,
		invoice.Module,
		scheduler.Module,

		// HTTP surface
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
