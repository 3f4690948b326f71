package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/qazaqsoft/kaspisync/internal/kaspi"
	orderdomain "github.com/qazaqsoft/kaspisync/internal/order/domain"
	orderrepo "github.com/qazaqsoft/kaspisync/internal/order/repository"
	"github.com/qazaqsoft/kaspisync/internal/settings"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type pipelineFixture struct {
	pipeline   *Pipeline
	upstream   *fakeUpstream
	downstream *fakeDownstream
	store      orderdomain.ReservationStore
	settings   settings.Store
	clock      *clock.FakeClock
}

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.Amo = config.AmoConfig{
		PipelineID:          10,
		StatusID:            100,
		ResponsibleUserID:   5,
		CatalogID:           3,
		OrderCodeFieldID:    201,
		AddressFieldID:      202,
		OrderDateFieldID:    203,
		ContactPhoneField:   "PHONE",
		ContactAddressField: 42,
	}
	cfg.Sync = config.SyncConfig{
		OrderState:      "NEW",
		MaxLookback:     14 * 24 * time.Hour,
		ReconcileWindow: 7 * 24 * time.Hour,
		StaleClaimAfter: 30 * time.Minute,
	}
	return cfg
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&orderdomain.SyncRecord{}, &settings.Setting{}))

	clk := clock.NewFakeClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	upstream := &fakeUpstream{
		entries:  map[string][]kaspi.OrderEntry{},
		products: map[string]kaspi.Product{},
	}
	downstream := newFakeDownstream()
	store := orderrepo.Provide(db, clk, 30*time.Minute)
	settingsStore := settings.New(db)

	pipeline := NewPipeline(PipelineParams{
		Upstream:   upstream,
		Downstream: downstream,
		Store:      store,
		Settings:   settingsStore,
		Clock:      clk,
		Config:     testConfig(),
		Log:        zap.NewNop(),
	})

	return &pipelineFixture{
		pipeline:   pipeline,
		upstream:   upstream,
		downstream: downstream,
		store:      store,
		settings:   settingsStore,
		clock:      clk,
	}
}

func TestPipelineCreatesLeadAndContact(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.upstream.orders = []kaspi.Order{{
		ID:         "55",
		Code:       "100000001",
		CreationMS: f.clock.Now().Add(-time.Hour).UnixMilli(),
		TotalPrice: 10000,
		State:      "NEW",
		FirstName:  "Aigerim",
		Phone:      "87001234567",
		Address:    "Алматы, Абая 10",
	}}
	f.upstream.entries["55"] = []kaspi.OrderEntry{
		{ID: "e1", Title: "Чайник", SKU: "SKU-1", Quantity: 2, UnitPrice: 4500},
	}

	report, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Report{Fetched: 1, Committed: 1}, report)

	// One contact, one lead.
	require.Len(t, f.downstream.createdContacts, 1)
	require.Equal(t, "Aigerim", f.downstream.createdContacts[0].FirstName)
	require.Equal(t, "Customer", f.downstream.createdContacts[0].LastName)
	require.Len(t, f.downstream.createdLeads, 1)
	lead := f.downstream.createdLeads[0]
	require.Equal(t, "Kaspi Order 100000001", lead.Name)
	require.EqualValues(t, 10000, lead.Price)
	require.EqualValues(t, 10, lead.PipelineID)

	// Line linked and note attached.
	require.Len(t, f.downstream.links, 1)
	require.Equal(t, 2, f.downstream.links[0].Quantity)
	notes := f.downstream.notes[f.downstream.links[0].LeadID]
	require.Len(t, notes, 1)
	require.Equal(t, "Позиции заказа:\nSKU | Qty | Price\nSKU-1 | 2 | 4500\n", notes[0])

	// Record committed terminally.
	record, err := f.store.Get(ctx, "100000001")
	require.NoError(t, err)
	require.True(t, record.Synced())
	require.Equal(t, "NEW", record.KaspiStatus)

	// Watermark advanced to the committed order's creation timestamp.
	watermark, err := f.settings.GetInt64(ctx, settings.KeyLastCreationMS, 0)
	require.NoError(t, err)
	require.Equal(t, f.upstream.orders[0].CreationMS, watermark)
}

func TestPipelineSecondRunSkips(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.upstream.orders = []kaspi.Order{{
		ID: "55", Code: "100000001", CreationMS: 1000, TotalPrice: 5000, State: "NEW",
	}}

	_, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	report, err := f.pipeline.Run(ctx)
	require.NoError(t, err)

	require.Equal(t, Report{Fetched: 1, Skipped: 1}, report)
	require.Len(t, f.downstream.createdLeads, 1)
}

func TestPipelineFailureCompensatesAndRetries(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.upstream.orders = []kaspi.Order{{
		ID: "55", Code: "100000001", CreationMS: 1000, TotalPrice: 5000, State: "NEW",
		Phone: "87001234567",
	}}
	f.upstream.entries["55"] = []kaspi.OrderEntry{
		{ID: "e1", Title: "Чайник", SKU: "SKU-1", Quantity: 1, UnitPrice: 5000},
	}
	f.downstream.failLinkElements = errors.New("catalog api down")

	report, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Report{Fetched: 1, Failed: 1}, report)

	// Partial lead deleted, claim released, watermark untouched.
	require.Len(t, f.downstream.deletedLeads, 1)
	record, err := f.store.Get(ctx, "100000001")
	require.NoError(t, err)
	require.False(t, record.Synced())
	require.Nil(t, record.ProcessingToken)
	watermark, err := f.settings.GetInt64(ctx, settings.KeyLastCreationMS, 0)
	require.NoError(t, err)
	require.Zero(t, watermark)

	// Next run succeeds reusing the contact created before the failure.
	f.downstream.failLinkElements = nil
	report, err = f.pipeline.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Report{Fetched: 1, Committed: 1}, report)
	require.Len(t, f.downstream.createdContacts, 1)
}

func TestPipelineWatermarkUnchangedOnFullFailure(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.settings.SetInt64(ctx, settings.KeyLastCreationMS, 500))
	f.upstream.orders = []kaspi.Order{
		{ID: "55", Code: "100000001", CreationMS: 1000, TotalPrice: 5000, State: "NEW"},
		{ID: "56", Code: "100000002", CreationMS: 2000, TotalPrice: 7000, State: "NEW"},
	}
	f.downstream.failCreateLeads = errors.New("crm outage")

	report, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Failed)

	watermark, err := f.settings.GetInt64(ctx, settings.KeyLastCreationMS, 0)
	require.NoError(t, err)
	require.EqualValues(t, 500, watermark)
}

func TestPipelineWatermarkIsMonotoneMax(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.upstream.orders = []kaspi.Order{
		{ID: "57", Code: "100000003", CreationMS: 3000, TotalPrice: 100, State: "NEW"},
		{ID: "55", Code: "100000001", CreationMS: 1000, TotalPrice: 100, State: "NEW"},
	}

	_, err := f.pipeline.Run(ctx)
	require.NoError(t, err)

	watermark, err := f.settings.GetInt64(ctx, settings.KeyLastCreationMS, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3000, watermark)
}

func TestPipelineSkipsOrdersWithoutCode(t *testing.T) {
	f := newPipelineFixture(t)

	f.upstream.orders = []kaspi.Order{{ID: "55", CreationMS: 1000}}

	report, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Fetched: 1, Skipped: 1}, report)
	require.Empty(t, f.downstream.createdLeads)
}

func TestPipelineRefreshesContactAddress(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.downstream.contactsByQuery["+77001234567"] = &amocrm.Contact{
		ID: 311,
		CustomFields: []amocrm.ContactField{{
			FieldID: 42,
			Values:  []amocrm.CustomFieldValue{{Value: "Алматы, старый адрес"}},
		}},
	}

	f.upstream.orders = []kaspi.Order{{
		ID: "55", Code: "100000001", CreationMS: 1000, TotalPrice: 5000, State: "NEW",
		Phone: "87001234567", Address: "Алматы, Абая 10",
	}}

	report, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Report{Fetched: 1, Committed: 1}, report)

	// Found contact reused, address refreshed, no new contact.
	require.Empty(t, f.downstream.createdContacts)
	require.Equal(t, []int64{311}, f.downstream.updatedContacts)
	require.Len(t, f.downstream.createdLeads, 1)
}

func TestPipelineProductLookupIsCachedPerRun(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.upstream.orders = []kaspi.Order{
		{ID: "55", Code: "100000001", CreationMS: 1000, TotalPrice: 100, State: "NEW"},
		{ID: "56", Code: "100000002", CreationMS: 2000, TotalPrice: 100, State: "NEW"},
	}
	// Both orders reference the same bare entry id, so the product detail
	// is fetched once.
	bare := kaspi.OrderEntry{ID: "e-shared", Quantity: 1}
	f.upstream.entries["55"] = []kaspi.OrderEntry{bare}
	f.upstream.entries["56"] = []kaspi.OrderEntry{bare}
	f.upstream.products["e-shared"] = kaspi.Product{Title: "Чайник", SKU: "SKU-1", Price: 4500}

	report, err := f.pipeline.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Committed)
	require.Equal(t, 1, f.upstream.productCalls)
}
