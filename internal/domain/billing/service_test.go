package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/billing"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/infrastructure/storage/memory"
	"pharmstock/pkg/numerator"
)

type fixture struct {
	svc        *billing.Service
	billRepo   billing.Repository
	ledgerRepo ledger.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	billRepo := memory.NewBillRepo(store)
	ledgerRepo := memory.NewLedgerRepo(store)
	svc := billing.NewService(
		billRepo,
		ledgerRepo,
		numerator.New(memory.NewSequencer(store)),
		memory.NewTxManager(store),
		domain.NopAuditLogger{},
	)
	return &fixture{svc: svc, billRepo: billRepo, ledgerRepo: ledgerRepo}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func line(barcode string, qty int64, net, out string, expiry time.Time) billing.BillLine {
	return billing.BillLine{
		Barcode:    barcode,
		Name:       "Item " + barcode,
		Quantity:   types.Quantity(qty),
		NetPrice:   types.MustMoney(net),
		OutPrice:   types.MustMoney(out),
		ExpireDate: expiry,
	}
}

func (f *fixture) availability(t *testing.T, barcode string) map[ledger.Branch]types.Quantity {
	t.Helper()
	avail, err := f.ledgerRepo.Availability(context.Background(), barcode)
	require.NoError(t, err)
	return avail
}

func TestCreatePurchaseBill_FeedsLedger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bill := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 10, "100", "120", day(2026, 5, 1)),
		line("A2", 4, "50", "65", day(2027, 1, 1)),
	}, false)

	require.NoError(t, f.svc.CreatePurchaseBill(ctx, bill))
	assert.Contains(t, bill.Number, "PB-")
	assert.True(t, bill.TotalAmount.Equal(types.MustMoney("1200")))

	assert.Equal(t, types.Quantity(10), f.availability(t, "A1")[ledger.BranchSlemany])
	assert.Equal(t, types.Quantity(4), f.availability(t, "A2")[ledger.BranchSlemany])
}

func TestCreateSaleBill_DeductsOldestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 5, "100", "120", day(2025, 1, 1)),
		line("A1", 10, "100", "120", day(2025, 6, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 8, "100", "120", time.Time{}),
	}, billing.PaymentUnpaid)
	require.NoError(t, f.svc.CreateSaleBill(ctx, sale))

	assert.Contains(t, sale.Number, "SB-")
	assert.True(t, sale.TotalAmount.Equal(types.MustMoney("960")))
	assert.Equal(t, types.Quantity(7), f.availability(t, "A1")[ledger.BranchSlemany])

	batches, err := f.ledgerRepo.FindBatches(ctx, "A1", ledger.BranchSlemany, ledger.BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.True(t, batches[0].ExpireDate.Equal(day(2025, 6, 1)))
}

func TestCreateSaleBill_AllOrNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 10, "100", "120", day(2026, 1, 1)),
		line("A2", 2, "50", "65", day(2026, 1, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	// Second line is short; first line's deduction must not stick.
	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 5, "100", "120", time.Time{}),
		line("A2", 3, "50", "65", time.Time{}),
	}, billing.PaymentUnpaid)
	err := f.svc.CreateSaleBill(ctx, sale)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	assert.Equal(t, types.Quantity(10), f.availability(t, "A1")[ledger.BranchSlemany])
	assert.Equal(t, types.Quantity(2), f.availability(t, "A2")[ledger.BranchSlemany])

	_, err = f.billRepo.GetByNumber(ctx, sale.Number)
	assert.True(t, apperror.IsNotFound(err))
}

func TestEditBill_SaleKeepsNumberAndRebalancesLedger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 20, "100", "120", day(2026, 1, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 8, "100", "120", time.Time{}),
	}, billing.PaymentUnpaid)
	require.NoError(t, f.svc.CreateSaleBill(ctx, sale))
	number := sale.Number

	edited, err := f.svc.EditBill(ctx, number, []billing.BillLine{
		line("A1", 3, "100", "120", time.Time{}),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, number, edited.Number)
	assert.True(t, edited.TotalAmount.Equal(types.MustMoney("360")))
	assert.Equal(t, types.Quantity(17), f.availability(t, "A1")[ledger.BranchSlemany])
}

func TestEditBill_PurchaseShrinkFailsWhenStockConsumed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 10, "100", "120", day(2026, 1, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 9, "100", "120", time.Time{}),
	}, billing.PaymentUnpaid)
	require.NoError(t, f.svc.CreateSaleBill(ctx, sale))

	// Only 1 unit remains; the reversal of 10 would drive stock negative.
	_, err := f.svc.EditBill(ctx, purchase.Number, []billing.BillLine{
		line("A1", 5, "100", "120", day(2026, 1, 1)),
	}, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	// Bill and ledger untouched.
	kept, err := f.svc.GetBill(ctx, purchase.Number)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), kept.Lines[0].Quantity)
	assert.Equal(t, types.Quantity(1), f.availability(t, "A1")[ledger.BranchSlemany])
}

func TestDeleteBill_SaleRestoresStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 5, "100", "120", day(2025, 1, 1)),
		line("A1", 10, "100", "120", day(2025, 6, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 8, "100", "120", time.Time{}),
	}, billing.PaymentUnpaid)
	require.NoError(t, f.svc.CreateSaleBill(ctx, sale))

	require.NoError(t, f.svc.DeleteBill(ctx, sale.Number))

	// Each batch got its exact share back.
	batches, err := f.ledgerRepo.FindBatches(ctx, "A1", ledger.BranchSlemany, ledger.BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, types.Quantity(5), batches[0].Quantity)
	assert.Equal(t, types.Quantity(10), batches[1].Quantity)

	_, err = f.svc.GetBill(ctx, sale.Number)
	assert.True(t, apperror.IsNotFound(err))
}

func TestDeleteBill_PurchaseFailsWhenConsumed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 10, "100", "120", day(2026, 1, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 4, "100", "120", time.Time{}),
	}, billing.PaymentUnpaid)
	require.NoError(t, f.svc.CreateSaleBill(ctx, sale))

	err := f.svc.DeleteBill(ctx, purchase.Number)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	_, err = f.svc.GetBill(ctx, purchase.Number)
	require.NoError(t, err)
}

func TestProcessReturn_RestocksAndCapsQuantity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 10, "100", "120", day(2026, 1, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 6, "100", "120", time.Time{}),
	}, billing.PaymentUnpaid)
	require.NoError(t, f.svc.CreateSaleBill(ctx, sale))

	returns, err := f.svc.ProcessReturn(ctx, "city-pharmacy", sale.Number, []billing.ReturnItem{
		{Barcode: "A1", Quantity: 4},
	})
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.True(t, returns[0].Price.Equal(types.MustMoney("120")))
	assert.Equal(t, types.Quantity(8), f.availability(t, "A1")[ledger.BranchSlemany])

	// Only 2 of the 6 sold units remain returnable.
	_, err = f.svc.ProcessReturn(ctx, "city-pharmacy", sale.Number, []billing.ReturnItem{
		{Barcode: "A1", Quantity: 3},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeReferentialViolation))

	_, err = f.svc.ProcessReturn(ctx, "city-pharmacy", sale.Number, []billing.ReturnItem{
		{Barcode: "A1", Quantity: 2},
	})
	require.NoError(t, err)
}

func TestProcessReturn_DuplicateBarcodesShareCap(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 10, "100", "120", day(2026, 1, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 6, "100", "120", time.Time{}),
	}, billing.PaymentUnpaid)
	require.NoError(t, f.svc.CreateSaleBill(ctx, sale))

	// Two items for the same barcode draw on a single cap of 6.
	_, err := f.svc.ProcessReturn(ctx, "city-pharmacy", sale.Number, []billing.ReturnItem{
		{Barcode: "A1", Quantity: 5},
		{Barcode: "A1", Quantity: 5},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeReferentialViolation))
	assert.Equal(t, types.Quantity(4), f.availability(t, "A1")[ledger.BranchSlemany])

	returns, err := f.svc.ProcessReturn(ctx, "city-pharmacy", sale.Number, []billing.ReturnItem{
		{Barcode: "A1", Quantity: 4},
		{Barcode: "A1", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, returns, 2)
	assert.Equal(t, types.Quantity(10), f.availability(t, "A1")[ledger.BranchSlemany])
}

func TestProcessReturn_ReferentialChecks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 10, "100", "120", day(2026, 1, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 5, "100", "120", time.Time{}),
	}, billing.PaymentUnpaid)
	require.NoError(t, f.svc.CreateSaleBill(ctx, sale))

	tests := []struct {
		name         string
		counterparty string
		billNumber   string
		barcode      string
	}{
		{"missing bill", "city-pharmacy", "SB-2026-99999", "A1"},
		{"wrong counterparty", "other-pharmacy", sale.Number, "A1"},
		{"barcode not on bill", "city-pharmacy", sale.Number, "ZZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ProcessReturn(ctx, tt.counterparty, tt.billNumber, []billing.ReturnItem{
				{Barcode: tt.barcode, Quantity: 1},
			})
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeReferentialViolation))
		})
	}
}

func TestCreateSaleBill_ConcurrentSalesNeverOversell(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 10, "100", "120", day(2026, 1, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	const workers = 8
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
				line("A1", 3, "100", "120", time.Time{}),
			}, billing.PaymentUnpaid)
			results <- f.svc.CreateSaleBill(ctx, sale)
		}()
	}

	var succeeded int
	for i := 0; i < workers; i++ {
		err := <-results
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, apperror.IsInsufficientStock(err))
	}

	// 10 units cover exactly three sales of 3.
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, types.Quantity(1), f.availability(t, "A1")[ledger.BranchSlemany])
}

func TestCreateSaleBill_ValidationRejectsBadLines(t *testing.T) {
	f := setup(t)

	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 0, "100", "120", time.Time{}),
	}, billing.PaymentUnpaid)
	err := f.svc.CreateSaleBill(context.Background(), sale)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestEditBill_IdenticalLinesLeavesLedgerUnchanged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{
		line("A1", 5, "100", "120", day(2025, 1, 1)),
		line("A1", 10, "100", "120", day(2025, 6, 1)),
	}, false)
	require.NoError(t, f.svc.CreatePurchaseBill(ctx, purchase))

	lines := []billing.BillLine{
		line("A1", 8, "100", "120", time.Time{}),
	}
	sale := billing.NewSaleBill("city-pharmacy", ledger.BranchSlemany, lines, billing.PaymentUnpaid)
	require.NoError(t, f.svc.CreateSaleBill(ctx, sale))

	before, err := f.ledgerRepo.FindBatches(ctx, "A1", ledger.BranchSlemany, ledger.BatchFilter{IncludeEmpty: true})
	require.NoError(t, err)

	edited, err := f.svc.EditBill(ctx, sale.Number, lines, nil)
	require.NoError(t, err)
	assert.Equal(t, sale.Number, edited.Number)

	after, err := f.ledgerRepo.FindBatches(ctx, "A1", ledger.BranchSlemany, ledger.BatchFilter{IncludeEmpty: true})
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Quantity, after[i].Quantity)
		assert.True(t, before[i].ExpireDate.Equal(after[i].ExpireDate))
	}
}
