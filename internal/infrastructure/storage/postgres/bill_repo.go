package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/billing"
)

const (
	billsTable     = "bills"
	billLinesTable = "bill_lines"
	returnsTable   = "bill_returns"
)

// BillRepo implements billing.Repository.
type BillRepo struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
}

// NewBillRepo creates a new bill repository.
func NewBillRepo(txm *TxManager) *BillRepo {
	return &BillRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var billColumns = []string{
	"id", "number", "date", "kind", "counterparty_id", "branch",
	"payment_status", "is_consignment", "total_amount",
	"version", "created_at", "updated_at", "created_by", "updated_by",
}

var billLineColumns = []string{
	"line_id", "line_no", "barcode", "name",
	"quantity", "net_price", "out_price", "expire_date",
}

var returnColumns = []string{
	"id", "bill_number", "counterparty_id", "branch",
	"barcode", "name", "quantity", "price",
	"is_consignment", "payment_status", "created_at", "created_by",
}

func (r *BillRepo) Create(ctx context.Context, bill *billing.Bill) error {
	q := r.builder.Insert(billsTable).Columns(billColumns...).Values(
		bill.ID, bill.Number, bill.Date, bill.Kind, bill.CounterpartyID, bill.Branch,
		string(bill.PaymentStatus), bill.IsConsignment, bill.TotalAmount,
		bill.Version, bill.CreatedAt, bill.UpdatedAt, bill.CreatedBy, bill.UpdatedBy,
	)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("Bill", "number", bill.Number)
		}
		return fmt.Errorf("insert bill: %w", err)
	}

	return r.insertLines(ctx, bill)
}

func (r *BillRepo) Update(ctx context.Context, bill *billing.Bill) error {
	q := r.builder.Update(billsTable).
		SetMap(map[string]any{
			"date":           bill.Date,
			"counterparty_id": bill.CounterpartyID,
			"branch":         bill.Branch,
			"payment_status": string(bill.PaymentStatus),
			"is_consignment": bill.IsConsignment,
			"total_amount":   bill.TotalAmount,
			"version":        bill.Version,
			"updated_at":     bill.UpdatedAt,
			"updated_by":     bill.UpdatedBy,
		}).
		Where(squirrel.Eq{"number": bill.Number, "version": bill.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByNumber(ctx, bill.Number); apperror.IsNotFound(getErr) {
			return getErr
		}
		return apperror.NewConcurrencyConflict("Bill", bill.ID.String())
	}

	if err := r.deleteLines(ctx, bill.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, bill)
}

func (r *BillRepo) Delete(ctx context.Context, number string) error {
	bill, err := r.GetByNumber(ctx, number)
	if err != nil {
		return err
	}
	if err := r.deleteLines(ctx, bill.ID); err != nil {
		return err
	}

	sql, args, err := r.builder.Delete(billsTable).Where(squirrel.Eq{"number": number}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	return nil
}

func (r *BillRepo) GetByNumber(ctx context.Context, number string) (*billing.Bill, error) {
	q := r.builder.Select(billColumns...).From(billsTable).
		Where(squirrel.Eq{"number": number}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var bill billing.Bill
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &bill, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("Bill", number)
		}
		return nil, fmt.Errorf("get bill: %w", err)
	}

	if err := r.loadLines(ctx, &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

func (r *BillRepo) GetByNumbers(ctx context.Context, numbers []string) ([]*billing.Bill, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	q := r.builder.Select(billColumns...).From(billsTable).
		Where(squirrel.Eq{"number": numbers})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var bills []*billing.Bill
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &bills, sql, args...); err != nil {
		return nil, fmt.Errorf("select bills: %w", err)
	}

	for _, bill := range bills {
		if err := r.loadLines(ctx, bill); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

func (r *BillRepo) List(ctx context.Context, filter billing.ListFilter) (domain.ListResult[*billing.Bill], error) {
	result := domain.ListResult[*billing.Bill]{Limit: filter.Limit, Offset: filter.Offset}

	base := r.builder.Select().From(billsTable)
	if filter.Kind != nil {
		base = base.Where(squirrel.Eq{"kind": *filter.Kind})
	}
	if filter.CounterpartyID != "" {
		base = base.Where(squirrel.Eq{"counterparty_id": filter.CounterpartyID})
	}
	if filter.Branch != "" {
		base = base.Where(squirrel.Eq{"branch": filter.Branch})
	}
	if filter.PaymentStatus != nil {
		base = base.Where(squirrel.Eq{"payment_status": *filter.PaymentStatus})
	}
	if filter.Search != "" {
		base = base.Where(squirrel.ILike{"number": "%" + filter.Search + "%"})
	}
	if filter.DateFrom != nil {
		base = base.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		base = base.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}

	countSQL, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count bills: %w", err)
	}

	q := base.Columns(billColumns...).OrderBy(orderClause(filter.OrderBy))
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("select bills: %w", err)
	}

	for _, bill := range result.Items {
		if err := r.loadLines(ctx, bill); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (r *BillRepo) ListSaleBillsByCounterparty(ctx context.Context, counterpartyID string) ([]*billing.Bill, error) {
	q := r.builder.Select(billColumns...).From(billsTable).
		Where(squirrel.Eq{"kind": billing.KindSale, "counterparty_id": counterpartyID}).
		OrderBy("date ASC", "number ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var bills []*billing.Bill
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &bills, sql, args...); err != nil {
		return nil, fmt.Errorf("select sale bills: %w", err)
	}
	for _, bill := range bills {
		if err := r.loadLines(ctx, bill); err != nil {
			return nil, err
		}
	}
	return bills, nil
}

func (r *BillRepo) CreateReturns(ctx context.Context, returns []*billing.Return) error {
	if len(returns) == 0 {
		return nil
	}

	q := r.builder.Insert(returnsTable).Columns(returnColumns...)
	for _, ret := range returns {
		q = q.Values(
			ret.ID, ret.BillNumber, ret.CounterpartyID, ret.Branch,
			ret.Barcode, ret.Name, ret.Quantity.Int64(), ret.Price,
			ret.IsConsignment, string(ret.PaymentStatus), ret.CreatedAt, ret.CreatedBy,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert returns: %w", err)
	}
	return nil
}

func (r *BillRepo) SumReturned(ctx context.Context, billNumber, barcode string) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM bill_returns
		WHERE bill_number = $1 AND barcode = $2
	`
	var total int64
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, billNumber, barcode).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum returned: %w", err)
	}
	return types.Quantity(total), nil
}

func (r *BillRepo) ListReturns(ctx context.Context, filter billing.ReturnFilter) ([]*billing.Return, error) {
	q := r.builder.Select(returnColumns...).From(returnsTable)
	if filter.CounterpartyID != "" {
		q = q.Where(squirrel.Eq{"counterparty_id": filter.CounterpartyID})
	}
	if filter.BillNumber != "" {
		q = q.Where(squirrel.Eq{"bill_number": filter.BillNumber})
	}
	q = q.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var returns []*billing.Return
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &returns, sql, args...); err != nil {
		return nil, fmt.Errorf("select returns: %w", err)
	}
	return returns, nil
}

func (r *BillRepo) GetReturnsByIDs(ctx context.Context, ids []id.ID) ([]*billing.Return, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q := r.builder.Select(returnColumns...).From(returnsTable).
		Where(squirrel.Eq{"id": ids})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var returns []*billing.Return
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &returns, sql, args...); err != nil {
		return nil, fmt.Errorf("select returns: %w", err)
	}
	return returns, nil
}

func (r *BillRepo) ListReturnsByCounterparty(ctx context.Context, counterpartyID string) ([]*billing.Return, error) {
	return r.ListReturns(ctx, billing.ReturnFilter{CounterpartyID: counterpartyID})
}

func (r *BillRepo) insertLines(ctx context.Context, bill *billing.Bill) error {
	if len(bill.Lines) == 0 {
		return nil
	}

	q := r.builder.Insert(billLinesTable).Columns(append([]string{"bill_id"}, billLineColumns...)...)
	for _, line := range bill.Lines {
		q = q.Values(
			bill.ID, line.LineID, line.LineNo, line.Barcode, line.Name,
			line.Quantity.Int64(), line.NetPrice, line.OutPrice, line.ExpireDate,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert bill lines: %w", err)
	}
	return nil
}

func (r *BillRepo) deleteLines(ctx context.Context, billID id.ID) error {
	sql, args, err := r.builder.Delete(billLinesTable).Where(squirrel.Eq{"bill_id": billID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete bill lines: %w", err)
	}
	return nil
}

func (r *BillRepo) loadLines(ctx context.Context, bill *billing.Bill) error {
	q := r.builder.Select(billLineColumns...).From(billLinesTable).
		Where(squirrel.Eq{"bill_id": bill.ID}).
		OrderBy("line_no ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &bill.Lines, sql, args...); err != nil {
		return fmt.Errorf("select bill lines: %w", err)
	}
	return nil
}

// orderClause maps a "-field" style order to SQL, defaulting to date DESC.
func orderClause(orderBy string) string {
	switch orderBy {
	case "date":
		return "date ASC"
	case "number":
		return "number ASC"
	case "-number":
		return "number DESC"
	default:
		return "date DESC"
	}
}


var _ billing.Repository = (*BillRepo)(nil)
