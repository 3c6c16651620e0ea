package memory

import (
	"context"
	"fmt"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/payment"
)

// PaymentRepo implements payment.Repository over the store.
type PaymentRepo struct {
	store *Store
}

// NewPaymentRepo creates a payment repository for the store.
func NewPaymentRepo(store *Store) *PaymentRepo {
	return &PaymentRepo{store: store}
}

func claimKey(kind payment.ClaimKind, ref string) string {
	return fmt.Sprintf("%s|%s", kind, ref)
}

func (r *PaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	release := r.store.acquire(ctx)
	defer release()

	if _, exists := r.store.state.payments[p.Number]; exists {
		return apperror.NewDuplicate("Payment", "number", p.Number)
	}
	r.store.state.payments[p.Number] = p.Clone()
	return nil
}

func (r *PaymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	release := r.store.acquire(ctx)
	defer release()

	stored, ok := r.store.state.payments[p.Number]
	if !ok {
		return apperror.NewNotFound("Payment", p.Number)
	}
	if stored.Version != p.Version-1 {
		return apperror.NewConcurrencyConflict("Payment", p.ID.String())
	}
	r.store.state.payments[p.Number] = p.Clone()
	return nil
}

func (r *PaymentRepo) GetByNumber(ctx context.Context, number string) (*payment.Payment, error) {
	release := r.store.acquire(ctx)
	defer release()

	p, ok := r.store.state.payments[number]
	if !ok {
		return nil, apperror.NewNotFound("Payment", number)
	}
	return p.Clone(), nil
}

func (r *PaymentRepo) List(ctx context.Context, filter payment.ListFilter) (domain.ListResult[*payment.Payment], error) {
	release := r.store.acquire(ctx)
	defer release()

	var matched []*payment.Payment
	for _, p := range r.store.state.payments {
		if filter.CounterpartyID != "" && p.CounterpartyID != filter.CounterpartyID {
			continue
		}
		if filter.DateFrom != nil && p.PaymentDate.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && p.PaymentDate.After(*filter.DateTo) {
			continue
		}
		matched = append(matched, p.Clone())
	}

	sortByDate(matched, filter.OrderBy, func(p *payment.Payment) (string, int64) {
		return p.Number, p.PaymentDate.UnixNano()
	})
	page, total := paginate(matched, filter.Limit, filter.Offset)
	return domain.ListResult[*payment.Payment]{
		Items:      page,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *PaymentRepo) ClaimRefs(ctx context.Context, claims []payment.Claim) error {
	release := r.store.acquire(ctx)
	defer release()

	for _, c := range claims {
		if held, exists := r.store.state.claims[claimKey(c.Kind, c.Ref)]; exists && held.PaymentID != c.PaymentID {
			return apperror.NewAlreadyClaimed(string(c.Kind), c.Ref)
		}
	}
	for _, c := range claims {
		r.store.state.claims[claimKey(c.Kind, c.Ref)] = c
	}
	return nil
}

func (r *PaymentRepo) ReleaseByPayment(ctx context.Context, paymentID id.ID) error {
	release := r.store.acquire(ctx)
	defer release()

	for key, c := range r.store.state.claims {
		if c.PaymentID == paymentID {
			delete(r.store.state.claims, key)
		}
	}
	return nil
}

func (r *PaymentRepo) ClaimedRefs(ctx context.Context, kind payment.ClaimKind, refs []string) (map[string]bool, error) {
	release := r.store.acquire(ctx)
	defer release()

	out := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if _, exists := r.store.state.claims[claimKey(kind, ref)]; exists {
			out[ref] = true
		}
	}
	return out, nil
}
