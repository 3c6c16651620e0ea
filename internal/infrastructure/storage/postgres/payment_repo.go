package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/payment"
)

const (
	paymentsTable       = "payments"
	paymentBillsTable   = "payment_bills"
	paymentReturnsTable = "payment_returns"
	paymentClaimsTable  = "payment_claims"
)

// PaymentRepo implements payment.Repository. Claim exclusivity rests on the
// unique (kind, ref) constraint of payment_claims.
type PaymentRepo struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
}

// NewPaymentRepo creates a new payment repository.
func NewPaymentRepo(txm *TxManager) *PaymentRepo {
	return &PaymentRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var paymentColumns = []string{
	"id", "number", "date", "counterparty_id", "payment_date",
	"hardcopy_bill_number", "sold_total", "return_total", "net_amount",
	"version", "created_at", "updated_at", "created_by", "updated_by",
}

func (r *PaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	q := r.builder.Insert(paymentsTable).Columns(paymentColumns...).Values(
		p.ID, p.Number, p.Date, p.CounterpartyID, p.PaymentDate,
		p.HardcopyBillNumber, p.SoldTotal, p.ReturnTotal, p.NetAmount,
		p.Version, p.CreatedAt, p.UpdatedAt, p.CreatedBy, p.UpdatedBy,
	)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("Payment", "number", p.Number)
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	return r.insertRefs(ctx, p)
}

func (r *PaymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	q := r.builder.Update(paymentsTable).
		SetMap(map[string]any{
			"payment_date":         p.PaymentDate,
			"hardcopy_bill_number": p.HardcopyBillNumber,
			"sold_total":           p.SoldTotal,
			"return_total":         p.ReturnTotal,
			"net_amount":           p.NetAmount,
			"version":              p.Version,
			"updated_at":           p.UpdatedAt,
			"updated_by":           p.UpdatedBy,
		}).
		Where(squirrel.Eq{"number": p.Number, "version": p.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByNumber(ctx, p.Number); apperror.IsNotFound(getErr) {
			return getErr
		}
		return apperror.NewConcurrencyConflict("Payment", p.ID.String())
	}

	if err := r.deleteRefs(ctx, p.ID); err != nil {
		return err
	}
	return r.insertRefs(ctx, p)
}

func (r *PaymentRepo) GetByNumber(ctx context.Context, number string) (*payment.Payment, error) {
	q := r.builder.Select(paymentColumns...).From(paymentsTable).
		Where(squirrel.Eq{"number": number}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p payment.Payment
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("Payment", number)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	if err := r.loadRefs(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) List(ctx context.Context, filter payment.ListFilter) (domain.ListResult[*payment.Payment], error) {
	result := domain.ListResult[*payment.Payment]{Limit: filter.Limit, Offset: filter.Offset}

	base := r.builder.Select().From(paymentsTable)
	if filter.CounterpartyID != "" {
		base = base.Where(squirrel.Eq{"counterparty_id": filter.CounterpartyID})
	}
	if filter.DateFrom != nil {
		base = base.Where(squirrel.GtOrEq{"payment_date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		base = base.Where(squirrel.LtOrEq{"payment_date": *filter.DateTo})
	}

	countSQL, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count payments: %w", err)
	}

	q := base.Columns(paymentColumns...).OrderBy("payment_date DESC")
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
		return result, fmt.Errorf("select payments: %w", err)
	}

	for _, p := range result.Items {
		if err := r.loadRefs(ctx, p); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ClaimRefs inserts claims one at a time so a conflict can name the exact
// document already held by another payment.
func (r *PaymentRepo) ClaimRefs(ctx context.Context, claims []payment.Claim) error {
	querier := r.txm.GetQuerier(ctx)
	sql := `INSERT INTO payment_claims (kind, ref, payment_id) VALUES ($1, $2, $3)`

	for _, c := range claims {
		if _, err := querier.Exec(ctx, sql, c.Kind, c.Ref, c.PaymentID); err != nil {
			if isUniqueViolation(err) {
				return apperror.NewAlreadyClaimed(string(c.Kind), c.Ref)
			}
			return fmt.Errorf("insert claim: %w", err)
		}
	}
	return nil
}

func (r *PaymentRepo) ReleaseByPayment(ctx context.Context, paymentID id.ID) error {
	sql, args, err := r.builder.Delete(paymentClaimsTable).
		Where(squirrel.Eq{"payment_id": paymentID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("release claims: %w", err)
	}
	return nil
}

func (r *PaymentRepo) ClaimedRefs(ctx context.Context, kind payment.ClaimKind, refs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	q := r.builder.Select("ref").From(paymentClaimsTable).
		Where(squirrel.Eq{"kind": kind, "ref": refs})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out[ref] = true
	}
	return out, rows.Err()
}

func (r *PaymentRepo) insertRefs(ctx context.Context, p *payment.Payment) error {
	querier := r.txm.GetQuerier(ctx)

	if len(p.BillNumbers) > 0 {
		q := r.builder.Insert(paymentBillsTable).Columns("payment_id", "bill_number")
		for _, number := range p.BillNumbers {
			q = q.Values(p.ID, number)
		}
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert payment bills: %w", err)
		}
	}

	if len(p.ReturnIDs) > 0 {
		q := r.builder.Insert(paymentReturnsTable).Columns("payment_id", "return_id")
		for _, returnID := range p.ReturnIDs {
			q = q.Values(p.ID, returnID)
		}
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert payment returns: %w", err)
		}
	}
	return nil
}

func (r *PaymentRepo) deleteRefs(ctx context.Context, paymentID id.ID) error {
	querier := r.txm.GetQuerier(ctx)
	for _, table := range []string{paymentBillsTable, paymentReturnsTable} {
		sql, args, err := r.builder.Delete(table).Where(squirrel.Eq{"payment_id": paymentID}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("delete payment refs: %w", err)
		}
	}
	return nil
}

func (r *PaymentRepo) loadRefs(ctx context.Context, p *payment.Payment) error {
	querier := r.txm.GetQuerier(ctx)

	billSQL, billArgs, err := r.builder.Select("bill_number").From(paymentBillsTable).
		Where(squirrel.Eq{"payment_id": p.ID}).OrderBy("bill_number").ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &p.BillNumbers, billSQL, billArgs...); err != nil {
		return fmt.Errorf("select payment bills: %w", err)
	}

	retSQL, retArgs, err := r.builder.Select("return_id").From(paymentReturnsTable).
		Where(squirrel.Eq{"payment_id": p.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &p.ReturnIDs, retSQL, retArgs...); err != nil {
		return fmt.Errorf("select payment returns: %w", err)
	}
	return nil
}

var _ payment.Repository = (*PaymentRepo)(nil)
