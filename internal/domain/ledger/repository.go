package ledger

import (
	"context"
	"time"

	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
)

// BatchFilter narrows FindBatches results.
type BatchFilter struct {
	// NetPrice restricts to batches acquired at exactly this price.
	NetPrice *types.Money

	// IncludeEmpty includes rows whose quantity reached zero.
	IncludeEmpty bool
}

// Repository is the storage contract for the batch ledger.
// Rows are returned ordered by expiry date ascending (unset expiry last).
type Repository interface {
	// FindBatches returns batches for barcode+branch matching the filter.
	FindBatches(ctx context.Context, barcode string, branch Branch, filter BatchFilter) ([]Batch, error)

	// FindBatchesForUpdate returns price-exact batches with quantity > 0,
	// locked against concurrent mutation. Must run inside a transaction.
	FindBatchesForUpdate(ctx context.Context, barcode string, branch Branch, netPrice types.Money) ([]Batch, error)

	// AdjustQuantity applies delta to the unique batch identified by
	// (key, expireDate). Creates the row when it does not exist and delta > 0.
	// Fails with InsufficientStock when the resulting quantity would be
	// negative. Callers wrap multi-adjust operations in one transaction.
	AdjustQuantity(ctx context.Context, key BatchKey, expireDate time.Time, delta types.Quantity) error

	// Availability returns the total quantity per branch for a barcode.
	Availability(ctx context.Context, barcode string) (map[Branch]types.Quantity, error)

	// SaveDeductions journals the batches consumed by a document.
	SaveDeductions(ctx context.Context, recorderID id.ID, recorderType string, deductions []BatchDeduction) error

	// DeductionsByRecorder returns the journal for a document.
	DeductionsByRecorder(ctx context.Context, recorderID id.ID) ([]BatchDeduction, error)

	// DeleteDeductionsByRecorder clears the journal for a document.
	DeleteDeductionsByRecorder(ctx context.Context, recorderID id.ID) error
}
