package transport

import (
	"context"

	"pharmstock/internal/core/id"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/ledger"
)

// ListFilter narrows transport listings.
type ListFilter struct {
	domain.ListFilter

	Status     *Status
	FromBranch *ledger.Branch
	ToBranch   *ledger.Branch
}

// Repository is the storage contract for transports.
type Repository interface {
	Create(ctx context.Context, t *Transport) error
	// Update replaces the transport record, guarded by its Version
	// (ConcurrencyConflict on a lost race).
	Update(ctx context.Context, t *Transport) error
	GetByID(ctx context.Context, transportID id.ID) (*Transport, error)
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Transport], error)
}
