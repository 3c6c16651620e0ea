package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/domain/transport"
	"pharmstock/internal/infrastructure/storage/memory"
	"pharmstock/pkg/numerator"
)

type fixture struct {
	svc        *transport.Service
	ledgerRepo ledger.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	ledgerRepo := memory.NewLedgerRepo(store)
	svc := transport.NewService(
		memory.NewTransportRepo(store),
		ledgerRepo,
		numerator.New(memory.NewSequencer(store)),
		memory.NewTxManager(store),
		domain.NopAuditLogger{},
	)
	return &fixture{svc: svc, ledgerRepo: ledgerRepo}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) seed(t *testing.T, barcode string, branch ledger.Branch, net, out string, expiry time.Time, qty int64) {
	t.Helper()
	key := ledger.BatchKey{
		Barcode:  barcode,
		Branch:   branch,
		NetPrice: types.MustMoney(net),
		OutPrice: types.MustMoney(out),
	}
	require.NoError(t, f.ledgerRepo.AdjustQuantity(context.Background(), key, expiry, types.Quantity(qty)))
}

func (f *fixture) quantityAt(t *testing.T, barcode string, branch ledger.Branch) types.Quantity {
	t.Helper()
	avail, err := f.ledgerRepo.Availability(context.Background(), barcode)
	require.NoError(t, err)
	return avail[branch]
}

func item(barcode string, qty int64, net, out string, expiry time.Time) transport.Item {
	return transport.Item{
		Barcode:    barcode,
		Name:       "Item " + barcode,
		Quantity:   types.Quantity(qty),
		NetPrice:   types.MustMoney(net),
		OutPrice:   types.MustMoney(out),
		ExpireDate: expiry,
	}
}

func TestSend_DeductsFromSourceOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seed(t, "M1", ledger.BranchSlemany, "100", "120", day(2026, 1, 1), 10)

	tr := transport.New(ledger.BranchSlemany, ledger.BranchErbil, []transport.Item{
		item("M1", 4, "100", "120", day(2026, 1, 1)),
	}, "weekly replenishment")
	require.NoError(t, f.svc.Send(ctx, tr))

	assert.Contains(t, tr.Number, "TR-")
	assert.Equal(t, transport.StatusPending, tr.Status)

	// In transit: gone from the source, not yet at the destination.
	assert.Equal(t, types.Quantity(6), f.quantityAt(t, "M1", ledger.BranchSlemany))
	assert.Equal(t, types.Quantity(0), f.quantityAt(t, "M1", ledger.BranchErbil))
}

func TestSend_InsufficientStockSendsNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seed(t, "M1", ledger.BranchSlemany, "100", "120", day(2026, 1, 1), 10)
	f.seed(t, "M2", ledger.BranchSlemany, "50", "60", day(2026, 1, 1), 1)

	tr := transport.New(ledger.BranchSlemany, ledger.BranchErbil, []transport.Item{
		item("M1", 4, "100", "120", day(2026, 1, 1)),
		item("M2", 2, "50", "60", day(2026, 1, 1)),
	}, "")
	err := f.svc.Send(ctx, tr)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	assert.Equal(t, types.Quantity(10), f.quantityAt(t, "M1", ledger.BranchSlemany))
	assert.Equal(t, types.Quantity(1), f.quantityAt(t, "M2", ledger.BranchSlemany))
}

func TestReceive_AcceptCreditsDestination(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seed(t, "M1", ledger.BranchSlemany, "100", "120", day(2026, 1, 1), 10)

	tr := transport.New(ledger.BranchSlemany, ledger.BranchErbil, []transport.Item{
		item("M1", 4, "100", "120", day(2026, 1, 1)),
	}, "")
	require.NoError(t, f.svc.Send(ctx, tr))

	resolved, err := f.svc.Receive(ctx, tr.ID, true, "counted and stored")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusReceived, resolved.Status)
	require.NotNil(t, resolved.ReceivedAt)

	assert.Equal(t, types.Quantity(6), f.quantityAt(t, "M1", ledger.BranchSlemany))
	assert.Equal(t, types.Quantity(4), f.quantityAt(t, "M1", ledger.BranchErbil))

	// The destination batch keeps the source batch's prices and expiry.
	batches, err := f.ledgerRepo.FindBatches(ctx, "M1", ledger.BranchErbil, ledger.BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.True(t, batches[0].ExpireDate.Equal(day(2026, 1, 1)))
	assert.True(t, batches[0].NetPrice.Equal(types.MustMoney("100")))
}

func TestReceive_RejectRestoresSource(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seed(t, "M1", ledger.BranchSlemany, "100", "120", day(2026, 1, 1), 10)

	tr := transport.New(ledger.BranchSlemany, ledger.BranchErbil, []transport.Item{
		item("M1", 4, "100", "120", day(2026, 1, 1)),
	}, "")
	require.NoError(t, f.svc.Send(ctx, tr))

	resolved, err := f.svc.Receive(ctx, tr.ID, false, "boxes damaged in transit")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusRejected, resolved.Status)

	assert.Equal(t, types.Quantity(10), f.quantityAt(t, "M1", ledger.BranchSlemany))
	assert.Equal(t, types.Quantity(0), f.quantityAt(t, "M1", ledger.BranchErbil))
}

func TestReceive_ResolvedTransportCannotBeResolvedAgain(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seed(t, "M1", ledger.BranchSlemany, "100", "120", day(2026, 1, 1), 10)

	tr := transport.New(ledger.BranchSlemany, ledger.BranchErbil, []transport.Item{
		item("M1", 4, "100", "120", day(2026, 1, 1)),
	}, "")
	require.NoError(t, f.svc.Send(ctx, tr))

	_, err := f.svc.Receive(ctx, tr.ID, true, "")
	require.NoError(t, err)

	for _, accept := range []bool{true, false} {
		_, err = f.svc.Receive(ctx, tr.ID, accept, "")
		require.Error(t, err)
		assert.True(t, apperror.IsCode(err, apperror.CodeInvalidStateTransition))
	}

	// The double resolution changed nothing.
	assert.Equal(t, types.Quantity(6), f.quantityAt(t, "M1", ledger.BranchSlemany))
	assert.Equal(t, types.Quantity(4), f.quantityAt(t, "M1", ledger.BranchErbil))
}

func TestSend_UnspecifiedBatchConsumesOldestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seed(t, "M1", ledger.BranchSlemany, "100", "120", day(2025, 1, 1), 3)
	f.seed(t, "M1", ledger.BranchSlemany, "100", "120", day(2026, 1, 1), 5)

	tr := transport.New(ledger.BranchSlemany, ledger.BranchErbil, []transport.Item{
		item("M1", 4, "100", "120", time.Time{}),
	}, "")
	require.NoError(t, f.svc.Send(ctx, tr))

	_, err := f.svc.Receive(ctx, tr.ID, true, "")
	require.NoError(t, err)

	// 3 from the 2025 batch, 1 from the 2026 batch.
	batches, err := f.ledgerRepo.FindBatches(ctx, "M1", ledger.BranchErbil, ledger.BatchFilter{})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.True(t, batches[0].ExpireDate.Equal(day(2025, 1, 1)))
	assert.Equal(t, types.Quantity(3), batches[0].Quantity)
	assert.Equal(t, types.Quantity(1), batches[1].Quantity)
}

func TestSend_SameBranchRejected(t *testing.T) {
	f := setup(t)

	tr := transport.New(ledger.BranchSlemany, ledger.BranchSlemany, []transport.Item{
		item("M1", 1, "100", "120", time.Time{}),
	}, "")
	err := f.svc.Send(context.Background(), tr)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
