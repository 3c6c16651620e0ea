package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain/ledger"
)

// LedgerRepo implements ledger.Repository over the store.
type LedgerRepo struct {
	store *Store
}

// NewLedgerRepo creates a ledger repository for the store.
func NewLedgerRepo(store *Store) *LedgerRepo {
	return &LedgerRepo{store: store}
}

// batchRowKey addresses the unique row for (key, expiry).
func batchRowKey(key ledger.BatchKey, expireDate time.Time) string {
	return fmt.Sprintf("%s|%s", key.String(), expireDate.Format("2006-01-02"))
}

func (r *LedgerRepo) FindBatches(ctx context.Context, barcode string, branch ledger.Branch, filter ledger.BatchFilter) ([]ledger.Batch, error) {
	release := r.store.acquire(ctx)
	defer release()

	var out []ledger.Batch
	for _, b := range r.store.state.batches {
		if b.Barcode != barcode || b.Branch != branch {
			continue
		}
		if filter.NetPrice != nil && !b.NetPrice.Equal(*filter.NetPrice) {
			continue
		}
		if !filter.IncludeEmpty && b.Quantity.IsZero() {
			continue
		}
		out = append(out, *b.Clone())
	}
	sortBatches(out)
	return out, nil
}

func (r *LedgerRepo) FindBatchesForUpdate(ctx context.Context, barcode string, branch ledger.Branch, netPrice types.Money) ([]ledger.Batch, error) {
	// The store lock held by the surrounding transaction is the row lock.
	release := r.store.acquire(ctx)
	defer release()

	var out []ledger.Batch
	for _, b := range r.store.state.batches {
		if b.Barcode != barcode || b.Branch != branch {
			continue
		}
		if !b.NetPrice.Equal(netPrice) {
			continue
		}
		if !b.Quantity.IsPositive() {
			continue
		}
		out = append(out, *b.Clone())
	}
	sortBatches(out)
	return out, nil
}

func (r *LedgerRepo) AdjustQuantity(ctx context.Context, key ledger.BatchKey, expireDate time.Time, delta types.Quantity) error {
	release := r.store.acquire(ctx)
	defer release()

	expireDate = types.NormalizeExpiry(expireDate)
	rowKey := batchRowKey(key, expireDate)

	b, ok := r.store.state.batches[rowKey]
	if !ok {
		if delta.IsNegative() {
			return apperror.NewInsufficientStock(key.Barcode, delta.Neg().Int64(), 0).
				WithDetail("branch", string(key.Branch))
		}
		created, err := ledger.NewBatch(key, expireDate, delta)
		if err != nil {
			return err
		}
		r.store.state.batches[rowKey] = created
		return nil
	}

	next := b.Quantity + delta
	if next.IsNegative() {
		return apperror.NewInsufficientStock(key.Barcode, delta.Neg().Int64(), b.Quantity.Int64()).
			WithDetail("branch", string(key.Branch))
	}
	b.Quantity = next
	b.Version++
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *LedgerRepo) Availability(ctx context.Context, barcode string) (map[ledger.Branch]types.Quantity, error) {
	release := r.store.acquire(ctx)
	defer release()

	out := make(map[ledger.Branch]types.Quantity)
	for _, b := range r.store.state.batches {
		if b.Barcode != barcode {
			continue
		}
		out[b.Branch] += b.Quantity
	}
	return out, nil
}

func (r *LedgerRepo) SaveDeductions(ctx context.Context, recorderID id.ID, recorderType string, deductions []ledger.BatchDeduction) error {
	release := r.store.acquire(ctx)
	defer release()

	stored := make([]ledger.BatchDeduction, 0, len(deductions))
	for _, d := range deductions {
		if id.IsNil(d.LineID) {
			d.LineID = id.New()
		}
		d.RecorderID = recorderID
		d.RecorderType = recorderType
		stored = append(stored, d)
	}
	r.store.state.deductions[recorderID] = append(r.store.state.deductions[recorderID], stored...)
	return nil
}

func (r *LedgerRepo) DeductionsByRecorder(ctx context.Context, recorderID id.ID) ([]ledger.BatchDeduction, error) {
	release := r.store.acquire(ctx)
	defer release()

	ds := r.store.state.deductions[recorderID]
	out := make([]ledger.BatchDeduction, len(ds))
	copy(out, ds)
	return out, nil
}

func (r *LedgerRepo) DeleteDeductionsByRecorder(ctx context.Context, recorderID id.ID) error {
	release := r.store.acquire(ctx)
	defer release()

	delete(r.store.state.deductions, recorderID)
	return nil
}

// sortBatches orders rows the way the allocation engine consumes them.
func sortBatches(batches []ledger.Batch) {
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].ExpireDate.Equal(batches[j].ExpireDate) {
			return batches[i].ExpireDate.Before(batches[j].ExpireDate)
		}
		return batches[i].CreatedAt.Before(batches[j].CreatedAt)
	})
}
