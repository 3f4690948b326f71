package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/order/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T, clk clock.Clock) domain.ReservationStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.SyncRecord{}))
	return Provide(db, clk, 30*time.Minute)
}

func TestReserveClaimsExactlyOnce(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := newTestStore(t, clk)
	ctx := context.Background()

	first, err := store.Reserve(ctx, "100000001", 55123, 10000)
	require.NoError(t, err)
	require.True(t, first.Claimed)
	require.NotEmpty(t, first.Token)

	// A second worker arriving while the claim is live must skip.
	second, err := store.Reserve(ctx, "100000001", 55123, 10000)
	require.NoError(t, err)
	require.False(t, second.Claimed)
}

func TestReserveAfterCommitNeverClaims(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := newTestStore(t, clk)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "100000002", 1, 5000)
	require.NoError(t, err)
	require.True(t, res.Claimed)
	require.NoError(t, store.Commit(ctx, "100000002", 777, 5000, "NEW"))

	// Even long after any claim could have gone stale.
	clk.Advance(48 * time.Hour)
	res, err = store.Reserve(ctx, "100000002", 1, 5000)
	require.NoError(t, err)
	require.False(t, res.Claimed)

	record, err := store.Get(ctx, "100000002")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.EqualValues(t, 777, record.AmoLeadID)
	require.Equal(t, "NEW", record.KaspiStatus)
	require.Nil(t, record.ProcessingToken)
}

func TestReleaseReenablesRetry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := newTestStore(t, clk)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "100000003", 2, 7000)
	require.NoError(t, err)
	require.True(t, res.Claimed)

	// Downstream creation failed; the worker releases its claim.
	require.NoError(t, store.Release(ctx, "100000003", res.Token))

	retry, err := store.Reserve(ctx, "100000003", 2, 7000)
	require.NoError(t, err)
	require.True(t, retry.Claimed)
	require.NotEqual(t, res.Token, retry.Token)
}

func TestReleaseWithForeignTokenIsNoop(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := newTestStore(t, clk)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "100000004", 3, 1000)
	require.NoError(t, err)
	require.True(t, res.Claimed)

	require.NoError(t, store.Release(ctx, "100000004", "stale-token-from-earlier-worker"))

	// The live claim survived, so another reserve still skips.
	other, err := store.Reserve(ctx, "100000004", 3, 1000)
	require.NoError(t, err)
	require.False(t, other.Claimed)
}

func TestStaleClaimIsTakenOver(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := newTestStore(t, clk)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "100000005", 4, 3000)
	require.NoError(t, err)
	require.True(t, res.Claimed)

	// The claiming worker died; after the stale threshold another worker may
	// take the claim over.
	clk.Advance(31 * time.Minute)
	takeover, err := store.Reserve(ctx, "100000005", 4, 3000)
	require.NoError(t, err)
	require.True(t, takeover.Claimed)

	// The dead worker's release no longer matches.
	require.NoError(t, store.Release(ctx, "100000005", res.Token))
	record, err := store.Get(ctx, "100000005")
	require.NoError(t, err)
	require.NotNil(t, record.ProcessingToken)
	require.Equal(t, takeover.Token, *record.ProcessingToken)
}

func TestReserveEmptyCode(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := newTestStore(t, clk)

	_, err := store.Reserve(context.Background(), "", 1, 0)
	require.ErrorIs(t, err, domain.ErrEmptyOrderCode)
}

func TestUpdateStatusAndPrice(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := newTestStore(t, clk)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "100000006", 5, 10000)
	require.NoError(t, err)
	require.True(t, res.Claimed)
	require.NoError(t, store.Commit(ctx, "100000006", 900, 10000, "NEW"))

	require.NoError(t, store.UpdateStatus(ctx, "100000006", "COMPLETED"))
	require.NoError(t, store.UpdatePrice(ctx, "100000006", 12000))

	record, err := store.Get(ctx, "100000006")
	require.NoError(t, err)
	require.Equal(t, "COMPLETED", record.KaspiStatus)
	require.EqualValues(t, 12000, record.TotalPrice)

	require.ErrorIs(t, store.UpdateStatus(ctx, "missing", "X"), domain.ErrNotFound)
	require.ErrorIs(t, store.UpdatePrice(ctx, "missing", 1), domain.ErrNotFound)
}
