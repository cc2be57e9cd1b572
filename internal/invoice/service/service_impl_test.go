package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/kintailabs/kintai/internal/clock"
	"github.com/kintailabs/kintai/internal/config"
	invoicedomain "github.com/kintailabs/kintai/internal/invoice/domain"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	pricingrepository "github.com/kintailabs/kintai/internal/pricing/repository"
	pricingservice "github.com/kintailabs/kintai/internal/pricing/service"
	prorationdomain "github.com/kintailabs/kintai/internal/proration/domain"
	prorationrepository "github.com/kintailabs/kintai/internal/proration/repository"
	prorationservice "github.com/kintailabs/kintai/internal/proration/service"
	"github.com/kintailabs/kintai/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func intPtr(v int) *int { return &v }

type invoiceTestEnv struct {
	db           *gorm.DB
	node         *snowflake.Node
	fakeClock    *clock.FakeClock
	invoiceSvc   invoicedomain.Service
	prorationSvc prorationdomain.Service
}

func setupInvoiceTest(t *testing.T) *invoiceTestEnv {
	return setupInvoiceTestWithConfig(t, config.DefaultBillingConfig())
}

func setupInvoiceTestWithConfig(t *testing.T, cfg config.BillingConfig) *invoiceTestEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&pricingdomain.PricingTier{},
		&prorationdomain.Event{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC))

	cfg.DefaultTiers = []config.DefaultTier{
		{Name: "Starter", MinUsers: 1, MaxUsers: intPtr(10), PricePerUser: 1000},
		{Name: "Team", MinUsers: 11, PricePerUser: 800},
	}
	holder := config.NewStaticBillingConfigHolder(cfg)

	pricingSvc := pricingservice.New(pricingservice.Params{
		DB:      gdb,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fakeClock,
		Repo:    pricingrepository.Provide(),
		Billing: holder,
	})
	prorationRepo := prorationrepository.Provide()
	prorationSvc := prorationservice.New(prorationservice.Params{
		DB:         gdb,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fakeClock,
		Repo:       prorationRepo,
		PricingSvc: pricingSvc,
		Billing:    holder,
	})
	invoiceSvc := New(Params{
		DB:            gdb,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         fakeClock,
		PricingSvc:    pricingSvc,
		ProrationRepo: prorationRepo,
		Billing:       holder,
	})

	return &invoiceTestEnv{
		db:           gdb,
		node:         node,
		fakeClock:    fakeClock,
		invoiceSvc:   invoiceSvc,
		prorationSvc: prorationSvc,
	}
}

func (env *invoiceTestEnv) tenantCtx() (context.Context, snowflake.ID) {
	tenantID := env.node.Generate()
	return tenantctx.WithTenantID(context.Background(), int64(tenantID)), tenantID
}

func novemberRequest() invoicedomain.GenerateRequest {
	return invoicedomain.GenerateRequest{
		BillingMonth: time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC),
		UserCount:    49,
		TenantName:   "Acme HR",
		BillingEmail: "billing@acme.example",
	}
}

func TestGenerateInvoiceWithProration(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	// 49 -> 54 on day 20 of November: pretax 1,466, stored 1,612.
	_, err := env.prorationSvc.Record(ctx, prorationdomain.RecordRequest{
		Date:            time.Date(2025, time.November, 20, 0, 0, 0, 0, time.UTC),
		Action:          prorationdomain.ActionAdded,
		UserCountBefore: 49,
		UserCountAfter:  54,
	})
	require.NoError(t, err)

	invoice, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)

	assert.Equal(t, "INV-2025-11-001", invoice.InvoiceNumber)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)

	// Base 41,200 + recovered pretax 1,466 = 42,666; tax computed once
	// from the summed subtotal.
	assert.Equal(t, int64(42666), invoice.Subtotal)
	assert.Equal(t, int64(4266), invoice.Tax)
	assert.Equal(t, int64(46932), invoice.Total)

	// Due 30 days after the last calendar day of November.
	assert.Equal(t, time.Date(2025, time.December, 30, 0, 0, 0, 0, time.UTC), invoice.DueAt)

	require.Len(t, invoice.Items, 2)
	base := invoice.Items[0]
	assert.Equal(t, 49, base.Quantity)
	assert.Equal(t, int64(41200), base.Amount)
	assert.Nil(t, base.ProrationEventID)

	proration := invoice.Items[1]
	assert.Equal(t, int64(1466), proration.Amount)
	assert.Equal(t, 5, proration.Quantity)
	assert.NotNil(t, proration.ProrationEventID)
}

func TestGenerateSameMonthAcrossTenants(t *testing.T) {
	env := setupInvoiceTest(t)
	ctxA, _ := env.tenantCtx()
	ctxB, _ := env.tenantCtx()

	// Numbering restarts per tenant per month, so both tenants own
	// sequence 001 for November.
	first, err := env.invoiceSvc.Generate(ctxA, novemberRequest())
	require.NoError(t, err)
	second, err := env.invoiceSvc.Generate(ctxB, novemberRequest())
	require.NoError(t, err)

	assert.Equal(t, "INV-2025-11-001", first.InvoiceNumber)
	assert.Equal(t, "INV-2025-11-001", second.InvoiceNumber)
	assert.NotEqual(t, first.TenantID, second.TenantID)

	var count int64
	require.NoError(t, env.db.Raw(`SELECT COUNT(*) FROM invoices`).Scan(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestGenerateUsesConfiguredTaxRate(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.TaxRateBps = 800
	env := setupInvoiceTestWithConfig(t, cfg)
	ctx, _ := env.tenantCtx()

	// At 8% the stored charge for the day-20 change is 1466 + 117 = 1,583.
	event, err := env.prorationSvc.Record(ctx, prorationdomain.RecordRequest{
		Date:            time.Date(2025, time.November, 20, 0, 0, 0, 0, time.UTC),
		Action:          prorationdomain.ActionAdded,
		UserCountBefore: 49,
		UserCountAfter:  54,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1583), event.DailyCharge)

	invoice, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)

	// Subtotal 41,200 + 1,466; tax at the configured rate, not the default.
	assert.Equal(t, int64(42666), invoice.Subtotal)
	assert.Equal(t, int64(3413), invoice.Tax)
	assert.Equal(t, int64(46079), invoice.Total)
}

func TestGenerateInvoiceIdempotent(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	first, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)
	second, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.InvoiceNumber, second.InvoiceNumber)

	var count int64
	require.NoError(t, env.db.Raw(`SELECT COUNT(*) FROM invoices`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGenerateInvoiceValidation(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	req := novemberRequest()
	req.BillingEmail = ""
	_, err := env.invoiceSvc.Generate(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrMissingEmail)

	_, err = env.invoiceSvc.Generate(context.Background(), novemberRequest())
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTenant)
}

func TestRegenerateRecomputesDraft(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	first, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)

	// A late event lands after generation; the draft is rebuilt in place.
	_, err = env.prorationSvc.Record(ctx, prorationdomain.RecordRequest{
		Date:            time.Date(2025, time.November, 25, 0, 0, 0, 0, time.UTC),
		Action:          prorationdomain.ActionAdded,
		UserCountBefore: 49,
		UserCountAfter:  50,
	})
	require.NoError(t, err)

	updated, err := env.invoiceSvc.Regenerate(ctx, novemberRequest())
	require.NoError(t, err)

	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, first.InvoiceNumber, updated.InvoiceNumber)
	assert.Len(t, updated.Items, 2)
	assert.Greater(t, updated.Total, first.Total)
}

func TestLifecycleTransitions(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	invoice, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)
	id := invoice.ID.String()

	sent, err := env.invoiceSvc.MarkSent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	paid, err := env.invoiceSvc.MarkPaid(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// No transitions leave the paid state.
	_, err = env.invoiceSvc.MarkSent(ctx, id)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)
	_, err = env.invoiceSvc.MarkPaid(ctx, id)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)
}

func TestMarkPaidDirectlyFromDraft(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	invoice, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)

	paid, err := env.invoiceSvc.MarkPaid(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
}

func TestPaidInvoiceIsImmutable(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	invoice, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)
	_, err = env.invoiceSvc.MarkPaid(ctx, invoice.ID.String())
	require.NoError(t, err)

	_, err = env.invoiceSvc.Regenerate(ctx, novemberRequest())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceImmutable)

	reloaded, err := env.invoiceSvc.GetByID(ctx, invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoice.Total, reloaded.Total)
}

func TestRegenerateSentInvoiceRejected(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	invoice, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)
	_, err = env.invoiceSvc.MarkSent(ctx, invoice.ID.String())
	require.NoError(t, err)

	_, err = env.invoiceSvc.Regenerate(ctx, novemberRequest())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotDraft)
}

func TestSequenceAllocationIsMonotonic(t *testing.T) {
	env := setupInvoiceTest(t)
	svc := env.invoiceSvc.(*Service)
	tenantID := env.node.Generate()

	for want := int64(1); want <= 3; want++ {
		err := env.db.Transaction(func(tx *gorm.DB) error {
			seq, err := svc.allocateSequence(context.Background(), tx, tenantID, 2025, time.November, env.fakeClock.Now())
			require.NoError(t, err)
			assert.Equal(t, want, seq)
			return nil
		})
		require.NoError(t, err)
	}
}

func TestSequenceBootstrapScansLegacyNumbers(t *testing.T) {
	env := setupInvoiceTest(t)
	svc := env.invoiceSvc.(*Service)
	tenantID := env.node.Generate()

	// Legacy rows numbered before the counter table existed.
	for i, number := range []string{"INV-2025-11-001", "INV-2025-11-002"} {
		require.NoError(t, env.db.Exec(
			`INSERT INTO invoices
			 (id, tenant_id, tenant_name, invoice_number, billing_month, subtotal, tax, total,
			  status, due_at, billing_email, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, 0, 0, 'PAID', ?, ?, ?, ?)`,
			env.node.Generate(),
			tenantID,
			"Legacy Tenant",
			number,
			time.Date(2025, time.Month(9+i), 1, 0, 0, 0, 0, time.UTC),
			env.fakeClock.Now(),
			"legacy@acme.example",
			env.fakeClock.Now(),
			env.fakeClock.Now(),
		).Error)
	}

	err := env.db.Transaction(func(tx *gorm.DB) error {
		seq, err := svc.allocateSequence(context.Background(), tx, tenantID, 2025, time.November, env.fakeClock.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(3), seq)
		return nil
	})
	require.NoError(t, err)
}

func TestConcurrentGenerateConvergesToOneInvoice(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	var wg sync.WaitGroup
	results := make([]*invoicedomain.Invoice, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.invoiceSvc.Generate(ctx, novemberRequest())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].ID, results[1].ID)
	assert.Equal(t, results[0].InvoiceNumber, results[1].InvoiceNumber)

	var count int64
	require.NoError(t, env.db.Raw(`SELECT COUNT(*) FROM invoices`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProjectionFormatsCurrency(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	invoice, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)

	projection, err := env.invoiceSvc.Projection(ctx, invoice.ID.String())
	require.NoError(t, err)

	assert.Equal(t, invoice.InvoiceNumber, projection.InvoiceNumber)
	assert.Equal(t, "2025-11", projection.BillingMonth)
	assert.Equal(t, "¥41,200", projection.Subtotal)
	assert.Equal(t, "¥4,120", projection.Tax)
	assert.Equal(t, "¥45,320", projection.Total)
	require.Len(t, projection.Items, 1)
	assert.Equal(t, "¥41,200", projection.Items[0].Amount)
}

func TestListInvoicesFilters(t *testing.T) {
	env := setupInvoiceTest(t)
	ctx, _ := env.tenantCtx()

	_, err := env.invoiceSvc.Generate(ctx, novemberRequest())
	require.NoError(t, err)

	december := novemberRequest()
	december.BillingMonth = time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	decInvoice, err := env.invoiceSvc.Generate(ctx, december)
	require.NoError(t, err)
	_, err = env.invoiceSvc.MarkSent(ctx, decInvoice.ID.String())
	require.NoError(t, err)

	all, err := env.invoiceSvc.List(ctx, invoicedomain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sent := invoicedomain.InvoiceStatusSent
	filtered, err := env.invoiceSvc.List(ctx, invoicedomain.ListRequest{Status: &sent})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, decInvoice.ID, filtered[0].ID)

	november, err := env.invoiceSvc.List(ctx, invoicedomain.ListRequest{Year: 2025, Month: 11})
	require.NoError(t, err)
	require.Len(t, november, 1)
	assert.Equal(t, "INV-2025-11-001", november[0].InvoiceNumber)
}
