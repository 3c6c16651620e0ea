package ledger

import (
	"context"
	"time"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/types"
	"pharmstock/pkg/logger"
)

// Allocator deducts and restores stock for a requested (barcode, branch,
// price, quantity). Batches are consumed oldest-expiry-first to minimize
// spoilage loss; unset expiry sorts last.
//
// Allocate must be called inside a transaction: it locks the matching
// batch rows, verifies availability before writing, and relies on the
// surrounding transaction to discard partial work when a later line of
// the same document fails.
type Allocator struct {
	repo Repository
}

// NewAllocator creates a new allocation engine over the given ledger.
func NewAllocator(repo Repository) *Allocator {
	return &Allocator{repo: repo}
}

// Allocate deducts quantity units of barcode at branch, taking only batches
// whose net price matches exactly. It returns one BatchDeduction per batch
// touched. When the combined matching stock is short the whole operation
// fails with InsufficientStock and nothing is deducted.
func (a *Allocator) Allocate(ctx context.Context, barcode string, branch Branch, netPrice types.Money, quantity types.Quantity) ([]BatchDeduction, error) {
	if quantity.IsNegative() {
		return nil, apperror.NewValidation("requested quantity must not be negative").
			WithDetail("barcode", barcode)
	}
	if quantity.IsZero() {
		return nil, nil
	}
	if !branch.IsValid() {
		return nil, apperror.NewValidation("unknown branch").WithDetail("branch", string(branch))
	}

	batches, err := a.repo.FindBatchesForUpdate(ctx, barcode, branch, netPrice)
	if err != nil {
		return nil, err
	}

	var available types.Quantity
	for _, b := range batches {
		available += b.Quantity
	}
	if available < quantity {
		return nil, apperror.NewInsufficientStock(barcode, quantity.Int64(), available.Int64()).
			WithDetail("branch", string(branch)).
			WithDetail("net_price", netPrice.String())
	}

	// Rows are locked and availability verified: the greedy walk below
	// cannot fail midway.
	deductions := make([]BatchDeduction, 0, 1)
	remaining := quantity
	for _, b := range batches {
		if remaining.IsZero() {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		if err := a.repo.AdjustQuantity(ctx, b.BatchKey, b.ExpireDate, take.Neg()); err != nil {
			return nil, err
		}
		deductions = append(deductions, BatchDeduction{
			Barcode:    b.Barcode,
			Branch:     b.Branch,
			NetPrice:   b.NetPrice,
			OutPrice:   b.OutPrice,
			ExpireDate: b.ExpireDate,
			Quantity:   take,
			CreatedAt:  time.Now().UTC(),
		})
		remaining -= take
	}

	logger.Debug(ctx, "allocated stock",
		"barcode", barcode,
		"branch", branch,
		"quantity", quantity.Int64(),
		"batches", len(deductions),
	)
	return deductions, nil
}

// Restore reverses a prior allocation exactly, batch-by-batch. Used when a
// bill is deleted or edited, or a transfer is rejected.
func (a *Allocator) Restore(ctx context.Context, deductions []BatchDeduction) error {
	for _, d := range deductions {
		if err := a.repo.AdjustQuantity(ctx, d.Key(), d.ExpireDate, d.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// DeductExact removes quantity units from the single batch identified by
// (key, expireDate), failing with InsufficientStock when the batch holds
// less. Used by transfers that name a specific batch.
func (a *Allocator) DeductExact(ctx context.Context, key BatchKey, expireDate time.Time, quantity types.Quantity) (BatchDeduction, error) {
	if !quantity.IsPositive() {
		return BatchDeduction{}, apperror.NewValidation("quantity must be positive").
			WithDetail("barcode", key.Barcode)
	}
	expireDate = types.NormalizeExpiry(expireDate)
	if err := a.repo.AdjustQuantity(ctx, key, expireDate, quantity.Neg()); err != nil {
		return BatchDeduction{}, err
	}
	return BatchDeduction{
		Barcode:    key.Barcode,
		Branch:     key.Branch,
		NetPrice:   key.NetPrice,
		OutPrice:   key.OutPrice,
		ExpireDate: expireDate,
		Quantity:   quantity,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
