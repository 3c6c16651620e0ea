package billing

import (
	"context"

	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain"
)

// ListFilter narrows bill listings.
type ListFilter struct {
	domain.ListFilter

	Kind           *Kind
	CounterpartyID string
	Branch         string
	PaymentStatus  *PaymentStatus
}

// ReturnFilter narrows return listings.
type ReturnFilter struct {
	CounterpartyID string
	BillNumber     string
	Limit          int
	Offset         int
}

// Repository is the storage contract for bills and returns.
type Repository interface {
	Create(ctx context.Context, bill *Bill) error
	// Update replaces the bill record and its lines, guarded by the
	// bill's Version (ConcurrencyConflict on a lost race).
	Update(ctx context.Context, bill *Bill) error
	// Delete removes the bill and its lines.
	Delete(ctx context.Context, number string) error
	GetByNumber(ctx context.Context, number string) (*Bill, error)
	GetByNumbers(ctx context.Context, numbers []string) ([]*Bill, error)
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Bill], error)

	// ListSaleBillsByCounterparty returns sale bills for reconciliation.
	ListSaleBillsByCounterparty(ctx context.Context, counterpartyID string) ([]*Bill, error)

	CreateReturns(ctx context.Context, returns []*Return) error
	// SumReturned totals units already returned against (bill, barcode).
	SumReturned(ctx context.Context, billNumber, barcode string) (types.Quantity, error)
	ListReturns(ctx context.Context, filter ReturnFilter) ([]*Return, error)
	GetReturnsByIDs(ctx context.Context, ids []id.ID) ([]*Return, error)
	ListReturnsByCounterparty(ctx context.Context, counterpartyID string) ([]*Return, error)
}
