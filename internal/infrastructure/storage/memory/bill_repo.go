package memory

import (
	"context"
	"sort"
	"strings"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/billing"
)

// BillRepo implements billing.Repository over the store.
type BillRepo struct {
	store *Store
}

// NewBillRepo creates a bill repository for the store.
func NewBillRepo(store *Store) *BillRepo {
	return &BillRepo{store: store}
}

func (r *BillRepo) Create(ctx context.Context, bill *billing.Bill) error {
	release := r.store.acquire(ctx)
	defer release()

	if _, exists := r.store.state.bills[bill.Number]; exists {
		return apperror.NewDuplicate("Bill", "number", bill.Number)
	}
	r.store.state.bills[bill.Number] = bill.Clone()
	return nil
}

func (r *BillRepo) Update(ctx context.Context, bill *billing.Bill) error {
	release := r.store.acquire(ctx)
	defer release()

	stored, ok := r.store.state.bills[bill.Number]
	if !ok {
		return apperror.NewNotFound("Bill", bill.Number)
	}
	if stored.Version != bill.Version-1 {
		return apperror.NewConcurrencyConflict("Bill", bill.ID)
	}
	r.store.state.bills[bill.Number] = bill.Clone()
	return nil
}

func (r *BillRepo) Delete(ctx context.Context, number string) error {
	release := r.store.acquire(ctx)
	defer release()

	if _, ok := r.store.state.bills[number]; !ok {
		return apperror.NewNotFound("Bill", number)
	}
	delete(r.store.state.bills, number)
	return nil
}

func (r *BillRepo) GetByNumber(ctx context.Context, number string) (*billing.Bill, error) {
	release := r.store.acquire(ctx)
	defer release()

	bill, ok := r.store.state.bills[number]
	if !ok {
		return nil, apperror.NewNotFound("Bill", number)
	}
	return bill.Clone(), nil
}

func (r *BillRepo) GetByNumbers(ctx context.Context, numbers []string) ([]*billing.Bill, error) {
	release := r.store.acquire(ctx)
	defer release()

	out := make([]*billing.Bill, 0, len(numbers))
	for _, number := range numbers {
		if bill, ok := r.store.state.bills[number]; ok {
			out = append(out, bill.Clone())
		}
	}
	return out, nil
}

func (r *BillRepo) List(ctx context.Context, filter billing.ListFilter) (domain.ListResult[*billing.Bill], error) {
	release := r.store.acquire(ctx)
	defer release()

	var matched []*billing.Bill
	for _, bill := range r.store.state.bills {
		if filter.Kind != nil && bill.Kind != *filter.Kind {
			continue
		}
		if filter.CounterpartyID != "" && bill.CounterpartyID != filter.CounterpartyID {
			continue
		}
		if filter.Branch != "" && string(bill.Branch) != filter.Branch {
			continue
		}
		if filter.PaymentStatus != nil && bill.PaymentStatus != *filter.PaymentStatus {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(bill.Number), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.DateFrom != nil && bill.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && bill.Date.After(*filter.DateTo) {
			continue
		}
		matched = append(matched, bill.Clone())
	}

	sortByDate(matched, filter.OrderBy, func(b *billing.Bill) (string, int64) {
		return b.Number, b.Date.UnixNano()
	})
	page, total := paginate(matched, filter.Limit, filter.Offset)
	return domain.ListResult[*billing.Bill]{
		Items:      page,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *BillRepo) ListSaleBillsByCounterparty(ctx context.Context, counterpartyID string) ([]*billing.Bill, error) {
	release := r.store.acquire(ctx)
	defer release()

	var out []*billing.Bill
	for _, bill := range r.store.state.bills {
		if bill.Kind != billing.KindSale || bill.CounterpartyID != counterpartyID {
			continue
		}
		out = append(out, bill.Clone())
	}
	sortByDate(out, "date", func(b *billing.Bill) (string, int64) {
		return b.Number, b.Date.UnixNano()
	})
	return out, nil
}

func (r *BillRepo) CreateReturns(ctx context.Context, returns []*billing.Return) error {
	release := r.store.acquire(ctx)
	defer release()

	for _, ret := range returns {
		if _, exists := r.store.state.returns[ret.ID]; exists {
			return apperror.NewDuplicate("Return", "id", ret.ID.String())
		}
	}
	for _, ret := range returns {
		r.store.state.returns[ret.ID] = ret.Clone()
	}
	return nil
}

func (r *BillRepo) SumReturned(ctx context.Context, billNumber, barcode string) (types.Quantity, error) {
	release := r.store.acquire(ctx)
	defer release()

	var total types.Quantity
	for _, ret := range r.store.state.returns {
		if ret.BillNumber == billNumber && ret.Barcode == barcode {
			total += ret.Quantity
		}
	}
	return total, nil
}

func (r *BillRepo) ListReturns(ctx context.Context, filter billing.ReturnFilter) ([]*billing.Return, error) {
	release := r.store.acquire(ctx)
	defer release()

	var out []*billing.Return
	for _, ret := range r.store.state.returns {
		if filter.CounterpartyID != "" && ret.CounterpartyID != filter.CounterpartyID {
			continue
		}
		if filter.BillNumber != "" && ret.BillNumber != filter.BillNumber {
			continue
		}
		out = append(out, ret.Clone())
	}
	sortByDate(out, "-date", func(ret *billing.Return) (string, int64) {
		return ret.ID.String(), ret.CreatedAt.UnixNano()
	})
	page, _ := paginate(out, filter.Limit, filter.Offset)
	return page, nil
}

func (r *BillRepo) GetReturnsByIDs(ctx context.Context, ids []id.ID) ([]*billing.Return, error) {
	release := r.store.acquire(ctx)
	defer release()

	out := make([]*billing.Return, 0, len(ids))
	for _, returnID := range ids {
		if ret, ok := r.store.state.returns[returnID]; ok {
			out = append(out, ret.Clone())
		}
	}
	return out, nil
}

func (r *BillRepo) ListReturnsByCounterparty(ctx context.Context, counterpartyID string) ([]*billing.Return, error) {
	release := r.store.acquire(ctx)
	defer release()

	var out []*billing.Return
	for _, ret := range r.store.state.returns {
		if ret.CounterpartyID != counterpartyID {
			continue
		}
		out = append(out, ret.Clone())
	}
	sortByDate(out, "date", func(ret *billing.Return) (string, int64) {
		return ret.ID.String(), ret.CreatedAt.UnixNano()
	})
	return out, nil
}

// sortByDate orders items by their date key, descending when orderBy starts
// with "-", with a stable tiebreak on the string key.
func sortByDate[T any](items []T, orderBy string, key func(T) (string, int64)) {
	desc := strings.HasPrefix(orderBy, "-")
	sort.Slice(items, func(i, j int) bool {
		ki, di := key(items[i])
		kj, dj := key(items[j])
		if di != dj {
			if desc {
				return di > dj
			}
			return di < dj
		}
		return ki < kj
	})
}

// paginate slices items by limit and offset, returning the page and the
// total count before slicing.
func paginate[T any](items []T, limit, offset int) ([]T, int64) {
	total := int64(len(items))
	if offset >= len(items) {
		return nil, total
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total
}
