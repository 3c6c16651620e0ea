package payment

import (
	"context"

	"pharmstock/internal/core/id"
	"pharmstock/internal/domain"
)

// ListFilter narrows payment listings.
type ListFilter struct {
	domain.ListFilter

	CounterpartyID string
}

// Repository is the storage contract for payments and their claims.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	// Update replaces the payment record, guarded by its Version
	// (ConcurrencyConflict on a lost race). Payments are never deleted.
	Update(ctx context.Context, p *Payment) error
	GetByNumber(ctx context.Context, number string) (*Payment, error)
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Payment], error)

	// ClaimRefs inserts the claims, failing with AlreadyClaimed when any
	// (kind, ref) is already held by another payment.
	ClaimRefs(ctx context.Context, claims []Claim) error

	// ReleaseByPayment drops every claim held by the payment.
	ReleaseByPayment(ctx context.Context, paymentID id.ID) error

	// ClaimedRefs reports which of the given refs are currently claimed.
	ClaimedRefs(ctx context.Context, kind ClaimKind, refs []string) (map[string]bool, error)
}
