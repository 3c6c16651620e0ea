package ledger

import (
	"context"
	"time"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/types"
	"pharmstock/pkg/logger"
)

// Service provides read and single-batch mutation operations on the ledger.
// Cross-batch logic (choosing which batches satisfy a sale) lives in Allocator.
type Service struct {
	repo Repository
}

// NewService creates a new batch ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// FindBatches returns matching batches for a barcode at a branch.
func (s *Service) FindBatches(ctx context.Context, barcode string, branch Branch, filter BatchFilter) ([]Batch, error) {
	if barcode == "" {
		return nil, apperror.NewValidation("barcode is required").WithDetail("field", "barcode")
	}
	if !branch.IsValid() {
		return nil, apperror.NewValidation("unknown branch").WithDetail("branch", string(branch))
	}
	return s.repo.FindBatches(ctx, barcode, branch, filter)
}

// AdjustQuantity applies delta to the unique batch identified by
// (key, expireDate). The caller must treat multi-batch adjustments as one
// transactional unit.
func (s *Service) AdjustQuantity(ctx context.Context, key BatchKey, expireDate time.Time, delta types.Quantity) error {
	if err := key.Validate(ctx); err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}

	if err := s.repo.AdjustQuantity(ctx, key, types.NormalizeExpiry(expireDate), delta); err != nil {
		return err
	}

	logger.Debug(ctx, "batch quantity adjusted",
		"barcode", key.Barcode,
		"branch", key.Branch,
		"delta", delta.Int64(),
	)
	return nil
}

// Availability returns total units per branch for a barcode.
func (s *Service) Availability(ctx context.Context, barcode string) (map[Branch]types.Quantity, error) {
	if barcode == "" {
		return nil, apperror.NewValidation("barcode is required").WithDetail("field", "barcode")
	}
	return s.repo.Availability(ctx, barcode)
}
