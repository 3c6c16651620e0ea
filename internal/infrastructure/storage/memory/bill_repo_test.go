package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmstock/internal/core/types"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/billing"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/infrastructure/storage/memory"
)

func seedBills(t *testing.T, repo *memory.BillRepo, n int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		bill := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{{
			Barcode:  "A1",
			Name:     "Paracetamol 500mg",
			Quantity: 1,
			NetPrice: types.MustMoney("100"),
			OutPrice: types.MustMoney("120"),
		}}, false)
		bill.Number = fmt.Sprintf("PB-2026-%05d", i+1)
		bill.Date = time.Date(2026, 2, 1+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Create(ctx, bill))
	}
}

func TestBillRepoList_Pagination(t *testing.T) {
	repo := memory.NewBillRepo(memory.NewStore())
	seedBills(t, repo, 5)

	result, err := repo.List(context.Background(), billing.ListFilter{
		ListFilter: domain.ListFilter{Limit: 2, Offset: 2, OrderBy: "date"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.TotalCount)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "PB-2026-00003", result.Items[0].Number)
	assert.Equal(t, "PB-2026-00004", result.Items[1].Number)
}

func TestBillRepoList_OffsetPastEnd(t *testing.T) {
	repo := memory.NewBillRepo(memory.NewStore())
	seedBills(t, repo, 3)

	result, err := repo.List(context.Background(), billing.ListFilter{
		ListFilter: domain.ListFilter{Limit: 2, Offset: 10, OrderBy: "date"},
	})
	require.NoError(t, err)

	// The full count survives an empty page.
	assert.Equal(t, int64(3), result.TotalCount)
	assert.Empty(t, result.Items)
}
