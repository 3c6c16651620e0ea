package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/billing"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/domain/payment"
	"pharmstock/internal/infrastructure/storage/memory"
	"pharmstock/pkg/numerator"
)

type fixture struct {
	payments *payment.Service
	bills    *billing.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	billRepo := memory.NewBillRepo(store)
	ledgerRepo := memory.NewLedgerRepo(store)
	num := numerator.New(memory.NewSequencer(store))
	txm := memory.NewTxManager(store)

	bills := billing.NewService(billRepo, ledgerRepo, num, txm, domain.NopAuditLogger{})
	payments := payment.NewService(memory.NewPaymentRepo(store), billRepo, num, txm, domain.NopAuditLogger{})
	return &fixture{payments: payments, bills: bills}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sell stocks the branch and sells qty units at the given out price,
// returning the sale bill.
func (f *fixture) sell(t *testing.T, pharmacy string, qty int64, out string, status billing.PaymentStatus) *billing.Bill {
	t.Helper()
	ctx := context.Background()

	purchase := billing.NewPurchaseBill("pharma-co", ledger.BranchSlemany, []billing.BillLine{{
		Barcode:    "A1",
		Name:       "Item A1",
		Quantity:   types.Quantity(qty),
		NetPrice:   types.MustMoney("100"),
		OutPrice:   types.MustMoney(out),
		ExpireDate: day(2027, 1, 1),
	}}, false)
	require.NoError(t, f.bills.CreatePurchaseBill(ctx, purchase))

	sale := billing.NewSaleBill(pharmacy, ledger.BranchSlemany, []billing.BillLine{{
		Barcode:  "A1",
		Name:     "Item A1",
		Quantity: types.Quantity(qty),
		NetPrice: types.MustMoney("100"),
		OutPrice: types.MustMoney(out),
	}}, status)
	require.NoError(t, f.bills.CreateSaleBill(ctx, sale))
	return sale
}

func (f *fixture) returnAgainst(t *testing.T, bill *billing.Bill, qty int64) *billing.Return {
	t.Helper()
	returns, err := f.bills.ProcessReturn(context.Background(), bill.CounterpartyID, bill.Number, []billing.ReturnItem{
		{Barcode: "A1", Quantity: types.Quantity(qty)},
	})
	require.NoError(t, err)
	require.Len(t, returns, 1)
	return returns[0]
}

func TestComputeOutstanding(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	unpaid := f.sell(t, "city-pharmacy", 10, "120", billing.PaymentUnpaid)
	f.sell(t, "city-pharmacy", 5, "120", billing.PaymentCash)
	f.sell(t, "other-pharmacy", 3, "120", billing.PaymentUnpaid)
	ret := f.returnAgainst(t, unpaid, 2)

	out, err := f.payments.ComputeOutstanding(ctx, "city-pharmacy")
	require.NoError(t, err)

	require.Len(t, out.Bills, 1)
	assert.Equal(t, unpaid.Number, out.Bills[0].Number)
	require.Len(t, out.Returns, 1)
	assert.Equal(t, ret.ID, out.Returns[0].ID)

	assert.True(t, out.SoldTotal.Equal(types.MustMoney("1200")))
	assert.True(t, out.ReturnTotal.Equal(types.MustMoney("240")))
	assert.True(t, out.NetAmount.Equal(types.MustMoney("960")))
}

func TestCreatePayment_NetsReturnsAgainstBills(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bill := f.sell(t, "city-pharmacy", 10, "120", billing.PaymentUnpaid)
	ret := f.returnAgainst(t, bill, 2)

	p := payment.New("city-pharmacy", []string{bill.Number}, []id.ID{ret.ID})
	require.NoError(t, f.payments.CreatePayment(ctx, p))

	assert.Contains(t, p.Number, "PAY-")
	assert.True(t, p.SoldTotal.Equal(types.MustMoney("1200")))
	assert.True(t, p.ReturnTotal.Equal(types.MustMoney("240")))
	assert.True(t, p.NetAmount.Equal(types.MustMoney("960")))
}

func TestCreatePayment_ClaimExclusivity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bill := f.sell(t, "city-pharmacy", 10, "120", billing.PaymentUnpaid)

	first := payment.New("city-pharmacy", []string{bill.Number}, nil)
	require.NoError(t, f.payments.CreatePayment(ctx, first))

	second := payment.New("city-pharmacy", []string{bill.Number}, nil)
	err := f.payments.CreatePayment(ctx, second)
	require.Error(t, err)
	assert.True(t, apperror.IsAlreadyClaimed(err))

	// The failed payment left no record behind.
	_, err = f.payments.GetPayment(ctx, second.Number)
	assert.True(t, apperror.IsNotFound(err))

	// The claimed bill disappears from the outstanding position.
	out, err := f.payments.ComputeOutstanding(ctx, "city-pharmacy")
	require.NoError(t, err)
	assert.Empty(t, out.Bills)
}

func TestCreatePayment_RejectsForeignAndCashBills(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	foreign := f.sell(t, "other-pharmacy", 3, "120", billing.PaymentUnpaid)
	cash := f.sell(t, "city-pharmacy", 2, "120", billing.PaymentCash)

	for _, number := range []string{foreign.Number, cash.Number, "SB-2026-99999"} {
		p := payment.New("city-pharmacy", []string{number}, nil)
		err := f.payments.CreatePayment(ctx, p)
		require.Error(t, err, number)
		assert.True(t, apperror.IsCode(err, apperror.CodeReferentialViolation), number)
	}
}

func TestUpdatePayment_ReleasesAndReclaims(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	billA := f.sell(t, "city-pharmacy", 10, "120", billing.PaymentUnpaid)
	billB := f.sell(t, "city-pharmacy", 5, "120", billing.PaymentUnpaid)

	p := payment.New("city-pharmacy", []string{billA.Number}, nil)
	require.NoError(t, f.payments.CreatePayment(ctx, p))

	// Swap the settled bill from A to B.
	updated, err := f.payments.UpdatePayment(ctx, p.Number, []string{billB.Number}, nil, "HC-17")
	require.NoError(t, err)
	assert.True(t, updated.NetAmount.Equal(types.MustMoney("600")))
	assert.Equal(t, "HC-17", updated.HardcopyBillNumber)

	// A is claimable again, B is not.
	out, err := f.payments.ComputeOutstanding(ctx, "city-pharmacy")
	require.NoError(t, err)
	require.Len(t, out.Bills, 1)
	assert.Equal(t, billA.Number, out.Bills[0].Number)

	other := payment.New("city-pharmacy", []string{billB.Number}, nil)
	err = f.payments.CreatePayment(ctx, other)
	require.Error(t, err)
	assert.True(t, apperror.IsAlreadyClaimed(err))
}

func TestUpdatePayment_FailedReclaimRollsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	billA := f.sell(t, "city-pharmacy", 10, "120", billing.PaymentUnpaid)
	billB := f.sell(t, "city-pharmacy", 5, "120", billing.PaymentUnpaid)

	first := payment.New("city-pharmacy", []string{billA.Number}, nil)
	require.NoError(t, f.payments.CreatePayment(ctx, first))
	second := payment.New("city-pharmacy", []string{billB.Number}, nil)
	require.NoError(t, f.payments.CreatePayment(ctx, second))

	// Stealing B must fail and keep A claimed by the first payment.
	_, err := f.payments.UpdatePayment(ctx, first.Number, []string{billB.Number}, nil, "")
	require.Error(t, err)
	assert.True(t, apperror.IsAlreadyClaimed(err))

	out, err := f.payments.ComputeOutstanding(ctx, "city-pharmacy")
	require.NoError(t, err)
	assert.Empty(t, out.Bills)

	kept, err := f.payments.GetPayment(ctx, first.Number)
	require.NoError(t, err)
	assert.Equal(t, []string{billA.Number}, kept.BillNumbers)
}

func TestCreatePayment_RequiresDocuments(t *testing.T) {
	f := setup(t)

	p := payment.New("city-pharmacy", nil, nil)
	err := f.payments.CreatePayment(context.Background(), p)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
