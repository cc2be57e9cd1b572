package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/kintailabs/kintai/internal/clock"
	"github.com/kintailabs/kintai/internal/config"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	pricingrepository "github.com/kintailabs/kintai/internal/pricing/repository"
	"github.com/kintailabs/kintai/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func intPtr(v int) *int { return &v }

func setupPricingTest(t *testing.T) (*gorm.DB, pricingdomain.Service, *snowflake.Node) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(&pricingdomain.PricingTier{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:      gdb,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)),
		Repo:    pricingrepository.Provide(),
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})

	return gdb, svc, node
}

func TestListTiersFallsBackToDefaults(t *testing.T) {
	_, svc, node := setupPricingTest(t)
	ctx := tenantctx.WithTenantID(context.Background(), int64(node.Generate()))

	tiers, err := svc.ListTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, "Starter", tiers[0].Name)
	assert.Equal(t, "Enterprise", tiers[2].Name)
	assert.Nil(t, tiers[2].MaxUsers)
}

func TestReplaceTiersPersistsOverride(t *testing.T) {
	_, svc, node := setupPricingTest(t)
	ctx := tenantctx.WithTenantID(context.Background(), int64(node.Generate()))

	replaced, err := svc.ReplaceTiers(ctx, pricingdomain.ReplaceTiersRequest{
		Tiers: []pricingdomain.TierInput{
			{Name: "Flat", MinUsers: 1, MaxUsers: nil, PricePerUser: 500},
		},
	})
	require.NoError(t, err)
	require.Len(t, replaced, 1)

	tiers, err := svc.ListTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, "Flat", tiers[0].Name)

	// Another tenant still sees the portal default.
	otherCtx := tenantctx.WithTenantID(context.Background(), int64(node.Generate()))
	otherTiers, err := svc.ListTiers(otherCtx)
	require.NoError(t, err)
	assert.Len(t, otherTiers, 3)
}

func TestReplaceTiersRejectsInvalidSchedule(t *testing.T) {
	_, svc, node := setupPricingTest(t)
	ctx := tenantctx.WithTenantID(context.Background(), int64(node.Generate()))

	// Gap between 10 and 12; no unbounded last tier.
	_, err := svc.ReplaceTiers(ctx, pricingdomain.ReplaceTiersRequest{
		Tiers: []pricingdomain.TierInput{
			{Name: "A", MinUsers: 1, MaxUsers: intPtr(10), PricePerUser: 1000},
			{Name: "B", MinUsers: 12, MaxUsers: intPtr(50), PricePerUser: 800},
		},
	})
	require.Error(t, err)

	var validationErr *pricingdomain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.NotEmpty(t, validationErr.Violations)

	// Rejection must not fall back silently or persist anything.
	tiers, err := svc.ListTiers(ctx)
	require.NoError(t, err)
	assert.Len(t, tiers, 3)
}

func TestReplaceTiersIsAtomic(t *testing.T) {
	_, svc, node := setupPricingTest(t)
	ctx := tenantctx.WithTenantID(context.Background(), int64(node.Generate()))

	_, err := svc.ReplaceTiers(ctx, pricingdomain.ReplaceTiersRequest{
		Tiers: []pricingdomain.TierInput{
			{Name: "Old", MinUsers: 1, MaxUsers: nil, PricePerUser: 700},
		},
	})
	require.NoError(t, err)

	_, err = svc.ReplaceTiers(ctx, pricingdomain.ReplaceTiersRequest{
		Tiers: []pricingdomain.TierInput{
			{Name: "NewLow", MinUsers: 1, MaxUsers: intPtr(20), PricePerUser: 900},
			{Name: "NewHigh", MinUsers: 21, MaxUsers: nil, PricePerUser: 650},
		},
	})
	require.NoError(t, err)

	tiers, err := svc.ListTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, "NewLow", tiers[0].Name)
	assert.Equal(t, "NewHigh", tiers[1].Name)
}

func TestPreviewUsesTenantSchedule(t *testing.T) {
	_, svc, node := setupPricingTest(t)
	ctx := tenantctx.WithTenantID(context.Background(), int64(node.Generate()))

	// Default schedule: 49 users -> 41,200.
	result, err := svc.Preview(ctx, 49)
	require.NoError(t, err)
	assert.Equal(t, int64(41200), result.TotalPrice)

	_, err = svc.ReplaceTiers(ctx, pricingdomain.ReplaceTiersRequest{
		Tiers: []pricingdomain.TierInput{
			{Name: "Flat", MinUsers: 1, MaxUsers: nil, PricePerUser: 500},
		},
	})
	require.NoError(t, err)

	result, err = svc.Preview(ctx, 49)
	require.NoError(t, err)
	assert.Equal(t, int64(24500), result.TotalPrice)
}

func TestPreviewRequiresTenant(t *testing.T) {
	_, svc, _ := setupPricingTest(t)

	_, err := svc.Preview(context.Background(), 10)
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidTenant)
}
