package memory

import (
	"context"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/transport"
)

// TransportRepo implements transport.Repository over the store.
type TransportRepo struct {
	store *Store
}

// NewTransportRepo creates a transport repository for the store.
func NewTransportRepo(store *Store) *TransportRepo {
	return &TransportRepo{store: store}
}

func (r *TransportRepo) Create(ctx context.Context, t *transport.Transport) error {
	release := r.store.acquire(ctx)
	defer release()

	if _, exists := r.store.state.transports[t.ID]; exists {
		return apperror.NewDuplicate("Transport", "id", t.ID.String())
	}
	r.store.state.transports[t.ID] = t.Clone()
	return nil
}

func (r *TransportRepo) Update(ctx context.Context, t *transport.Transport) error {
	release := r.store.acquire(ctx)
	defer release()

	stored, ok := r.store.state.transports[t.ID]
	if !ok {
		return apperror.NewNotFound("Transport", t.ID.String())
	}
	if stored.Version != t.Version-1 {
		return apperror.NewConcurrencyConflict("Transport", t.ID.String())
	}
	r.store.state.transports[t.ID] = t.Clone()
	return nil
}

func (r *TransportRepo) GetByID(ctx context.Context, transportID id.ID) (*transport.Transport, error) {
	release := r.store.acquire(ctx)
	defer release()

	t, ok := r.store.state.transports[transportID]
	if !ok {
		return nil, apperror.NewNotFound("Transport", transportID.String())
	}
	return t.Clone(), nil
}

func (r *TransportRepo) List(ctx context.Context, filter transport.ListFilter) (domain.ListResult[*transport.Transport], error) {
	release := r.store.acquire(ctx)
	defer release()

	var matched []*transport.Transport
	for _, t := range r.store.state.transports {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.FromBranch != nil && t.FromBranch != *filter.FromBranch {
			continue
		}
		if filter.ToBranch != nil && t.ToBranch != *filter.ToBranch {
			continue
		}
		if filter.DateFrom != nil && t.SentAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && t.SentAt.After(*filter.DateTo) {
			continue
		}
		matched = append(matched, t.Clone())
	}

	sortByDate(matched, filter.OrderBy, func(t *transport.Transport) (string, int64) {
		return t.Number, t.SentAt.UnixNano()
	})
	page, total := paginate(matched, filter.Limit, filter.Offset)
	return domain.ListResult[*transport.Transport]{
		Items:      page,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}
