package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/infrastructure/storage/memory"
)

func setupLedger(t *testing.T) (ledger.Repository, *ledger.Allocator) {
	t.Helper()
	store := memory.NewStore()
	repo := memory.NewLedgerRepo(store)
	return repo, ledger.NewAllocator(repo)
}

func seedBatch(t *testing.T, repo ledger.Repository, key ledger.BatchKey, expiry time.Time, qty int64) {
	t.Helper()
	require.NoError(t, repo.AdjustQuantity(context.Background(), key, expiry, types.Quantity(qty)))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAllocate_OldestExpiryFirst(t *testing.T) {
	repo, alloc := setupLedger(t)
	ctx := context.Background()

	key := ledger.BatchKey{
		Barcode:  "X1",
		Branch:   ledger.BranchSlemany,
		NetPrice: types.MustMoney("100"),
		OutPrice: types.MustMoney("120"),
	}
	seedBatch(t, repo, key, day(2025, 1, 1), 5)
	seedBatch(t, repo, key, day(2025, 6, 1), 10)

	deductions, err := alloc.Allocate(ctx, "X1", ledger.BranchSlemany, types.MustMoney("100"), 8)
	require.NoError(t, err)
	require.Len(t, deductions, 2)

	assert.Equal(t, types.Quantity(5), deductions[0].Quantity)
	assert.True(t, deductions[0].ExpireDate.Equal(day(2025, 1, 1)))
	assert.Equal(t, types.Quantity(3), deductions[1].Quantity)
	assert.True(t, deductions[1].ExpireDate.Equal(day(2025, 6, 1)))

	batches, err := repo.FindBatches(ctx, "X1", ledger.BranchSlemany, ledger.BatchFilter{IncludeEmpty: true})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, types.Quantity(0), batches[0].Quantity)
	assert.Equal(t, types.Quantity(7), batches[1].Quantity)
}

func TestAllocate_UnsetExpiryConsumedLast(t *testing.T) {
	repo, alloc := setupLedger(t)
	ctx := context.Background()

	key := ledger.BatchKey{
		Barcode:  "X2",
		Branch:   ledger.BranchSlemany,
		NetPrice: types.MustMoney("50"),
		OutPrice: types.MustMoney("60"),
	}
	seedBatch(t, repo, key, time.Time{}, 4)
	seedBatch(t, repo, key, day(2026, 3, 1), 4)

	deductions, err := alloc.Allocate(ctx, "X2", ledger.BranchSlemany, types.MustMoney("50"), 5)
	require.NoError(t, err)
	require.Len(t, deductions, 2)
	assert.True(t, deductions[0].ExpireDate.Equal(day(2026, 3, 1)))
	assert.True(t, deductions[1].ExpireDate.Equal(types.FarFuture))
	assert.Equal(t, types.Quantity(1), deductions[1].Quantity)
}

func TestAllocate_PriceExactMatch(t *testing.T) {
	repo, alloc := setupLedger(t)
	ctx := context.Background()

	base := ledger.BatchKey{
		Barcode:  "X3",
		Branch:   ledger.BranchErbil,
		NetPrice: types.MustMoney("100"),
		OutPrice: types.MustMoney("120"),
	}
	other := base
	other.NetPrice = types.MustMoney("90")
	seedBatch(t, repo, base, day(2025, 5, 1), 3)
	seedBatch(t, repo, other, day(2025, 5, 1), 50)

	_, err := alloc.Allocate(ctx, "X3", ledger.BranchErbil, types.MustMoney("100"), 5)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, int64(3), appErr.Details["available"])
}

func TestAllocate_PriceNormalization(t *testing.T) {
	repo, alloc := setupLedger(t)
	ctx := context.Background()

	key := ledger.BatchKey{
		Barcode:  "X4",
		Branch:   ledger.BranchSlemany,
		NetPrice: types.MustMoney("100.00"),
		OutPrice: types.MustMoney("120"),
	}
	seedBatch(t, repo, key, day(2025, 4, 1), 10)

	// 100 and 100.00 address the same position.
	deductions, err := alloc.Allocate(ctx, "X4", ledger.BranchSlemany, types.MustMoney("100"), 10)
	require.NoError(t, err)
	require.Len(t, deductions, 1)
	assert.Equal(t, types.Quantity(10), deductions[0].Quantity)
}

func TestAllocate_InsufficientStockDeductsNothing(t *testing.T) {
	repo, alloc := setupLedger(t)
	ctx := context.Background()

	key := ledger.BatchKey{
		Barcode:  "X5",
		Branch:   ledger.BranchSlemany,
		NetPrice: types.MustMoney("10"),
		OutPrice: types.MustMoney("12"),
	}
	seedBatch(t, repo, key, day(2025, 2, 1), 2)
	seedBatch(t, repo, key, day(2025, 8, 1), 3)

	_, err := alloc.Allocate(ctx, "X5", ledger.BranchSlemany, types.MustMoney("10"), 6)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	avail, err := repo.Availability(ctx, "X5")
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(5), avail[ledger.BranchSlemany])
}

func TestAllocate_BranchIsolation(t *testing.T) {
	repo, alloc := setupLedger(t)
	ctx := context.Background()

	key := ledger.BatchKey{
		Barcode:  "X6",
		Branch:   ledger.BranchErbil,
		NetPrice: types.MustMoney("20"),
		OutPrice: types.MustMoney("25"),
	}
	seedBatch(t, repo, key, day(2025, 7, 1), 100)

	_, err := alloc.Allocate(ctx, "X6", ledger.BranchSlemany, types.MustMoney("20"), 1)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
}

func TestAllocate_ZeroQuantityIsNoop(t *testing.T) {
	_, alloc := setupLedger(t)

	deductions, err := alloc.Allocate(context.Background(), "X7", ledger.BranchSlemany, types.MustMoney("10"), 0)
	require.NoError(t, err)
	assert.Empty(t, deductions)
}

func TestRestore_ReversesExactly(t *testing.T) {
	repo, alloc := setupLedger(t)
	ctx := context.Background()

	key := ledger.BatchKey{
		Barcode:  "X8",
		Branch:   ledger.BranchSlemany,
		NetPrice: types.MustMoney("100"),
		OutPrice: types.MustMoney("120"),
	}
	seedBatch(t, repo, key, day(2025, 1, 1), 5)
	seedBatch(t, repo, key, day(2025, 6, 1), 10)

	deductions, err := alloc.Allocate(ctx, "X8", ledger.BranchSlemany, types.MustMoney("100"), 8)
	require.NoError(t, err)

	require.NoError(t, alloc.Restore(ctx, deductions))

	batches, err := repo.FindBatches(ctx, "X8", ledger.BranchSlemany, ledger.BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, types.Quantity(5), batches[0].Quantity)
	assert.Equal(t, types.Quantity(10), batches[1].Quantity)
}

func TestDeductExact(t *testing.T) {
	repo, alloc := setupLedger(t)
	ctx := context.Background()

	key := ledger.BatchKey{
		Barcode:  "X9",
		Branch:   ledger.BranchSlemany,
		NetPrice: types.MustMoney("30"),
		OutPrice: types.MustMoney("35"),
	}
	seedBatch(t, repo, key, day(2025, 3, 1), 5)
	seedBatch(t, repo, key, day(2025, 9, 1), 5)

	// Names the later batch, bypassing expiry order.
	d, err := alloc.DeductExact(ctx, key, day(2025, 9, 1), 4)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(4), d.Quantity)

	batches, err := repo.FindBatches(ctx, "X9", ledger.BranchSlemany, ledger.BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, types.Quantity(5), batches[0].Quantity)
	assert.Equal(t, types.Quantity(1), batches[1].Quantity)

	_, err = alloc.DeductExact(ctx, key, day(2025, 9, 1), 2)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
}

func TestAdjustQuantity_NeverNegative(t *testing.T) {
	repo, _ := setupLedger(t)
	ctx := context.Background()

	key := ledger.BatchKey{
		Barcode:  "X10",
		Branch:   ledger.BranchSlemany,
		NetPrice: types.MustMoney("10"),
		OutPrice: types.MustMoney("12"),
	}
	err := repo.AdjustQuantity(ctx, key, day(2025, 1, 1), -1)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
}
