package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain/ledger"
)

const (
	batchesTable    = "ledger_batches"
	deductionsTable = "ledger_deductions"
)

// BatchRepo implements ledger.Repository.
type BatchRepo struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
}

// NewBatchRepo creates a new batch ledger repository.
func NewBatchRepo(txm *TxManager) *BatchRepo {
	return &BatchRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var batchColumns = []string{
	"id", "barcode", "branch", "net_price", "out_price",
	"quantity", "expire_date", "version", "created_at", "updated_at",
}

func (r *BatchRepo) FindBatches(ctx context.Context, barcode string, branch ledger.Branch, filter ledger.BatchFilter) ([]ledger.Batch, error) {
	q := r.builder.Select(batchColumns...).From(batchesTable).
		Where(squirrel.Eq{"barcode": barcode, "branch": branch})

	if filter.NetPrice != nil {
		q = q.Where(squirrel.Eq{"net_price": *filter.NetPrice})
	}
	if !filter.IncludeEmpty {
		q = q.Where(squirrel.Gt{"quantity": 0})
	}
	q = q.OrderBy("expire_date ASC", "created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []ledger.Batch
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}
	return batches, nil
}

func (r *BatchRepo) FindBatchesForUpdate(ctx context.Context, barcode string, branch ledger.Branch, netPrice types.Money) ([]ledger.Batch, error) {
	q := r.builder.Select(batchColumns...).From(batchesTable).
		Where(squirrel.Eq{"barcode": barcode, "branch": branch, "net_price": netPrice}).
		Where(squirrel.Gt{"quantity": 0}).
		OrderBy("expire_date ASC", "created_at ASC").
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []ledger.Batch
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select batches for update: %w", err)
	}
	return batches, nil
}

// AdjustQuantity upserts the unique (key, expiry) row, applying delta. The
// quantity CHECK constraint plus the conditional update keep the stored
// quantity non-negative under any interleaving.
func (r *BatchRepo) AdjustQuantity(ctx context.Context, key ledger.BatchKey, expireDate time.Time, delta types.Quantity) error {
	expireDate = types.NormalizeExpiry(expireDate)
	now := time.Now().UTC()

	sql := `
		INSERT INTO ledger_batches
			(id, barcode, branch, net_price, out_price, quantity, expire_date, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $8)
		ON CONFLICT (barcode, branch, net_price, out_price, expire_date)
		DO UPDATE SET
			quantity = ledger_batches.quantity + EXCLUDED.quantity,
			version = ledger_batches.version + 1,
			updated_at = EXCLUDED.updated_at
		WHERE ledger_batches.quantity + EXCLUDED.quantity >= 0
		RETURNING quantity
	`

	var resulting int64
	querier := r.txm.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql,
		id.New(), key.Barcode, key.Branch, key.NetPrice, key.OutPrice,
		delta.Int64(), expireDate, now,
	).Scan(&resulting)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isCheckViolation(err) {
			available, availErr := r.batchQuantity(ctx, key, expireDate)
			if availErr != nil {
				available = 0
			}
			return apperror.NewInsufficientStock(key.Barcode, delta.Neg().Int64(), available).
				WithDetail("branch", string(key.Branch))
		}
		return fmt.Errorf("adjust quantity: %w", err)
	}
	return nil
}

func (r *BatchRepo) batchQuantity(ctx context.Context, key ledger.BatchKey, expireDate time.Time) (int64, error) {
	sql := `
		SELECT quantity FROM ledger_batches
		WHERE barcode = $1 AND branch = $2 AND net_price = $3 AND out_price = $4 AND expire_date = $5
	`
	var qty int64
	querier := r.txm.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, key.Barcode, key.Branch, key.NetPrice, key.OutPrice, expireDate).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (r *BatchRepo) Availability(ctx context.Context, barcode string) (map[ledger.Branch]types.Quantity, error) {
	sql := `
		SELECT branch, COALESCE(SUM(quantity), 0)
		FROM ledger_batches
		WHERE barcode = $1
		GROUP BY branch
	`

	querier := r.txm.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, barcode)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	out := make(map[ledger.Branch]types.Quantity)
	for rows.Next() {
		var branch ledger.Branch
		var qty int64
		if err := rows.Scan(&branch, &qty); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		out[branch] = types.Quantity(qty)
	}
	return out, rows.Err()
}

func (r *BatchRepo) SaveDeductions(ctx context.Context, recorderID id.ID, recorderType string, deductions []ledger.BatchDeduction) error {
	if len(deductions) == 0 {
		return nil
	}

	q := r.builder.Insert(deductionsTable).Columns(
		"line_id", "recorder_id", "recorder_type",
		"barcode", "branch", "net_price", "out_price",
		"expire_date", "quantity", "created_at",
	)
	for _, d := range deductions {
		lineID := d.LineID
		if id.IsNil(lineID) {
			lineID = id.New()
		}
		q = q.Values(
			lineID, recorderID, recorderType,
			d.Barcode, d.Branch, d.NetPrice, d.OutPrice,
			d.ExpireDate, d.Quantity.Int64(), d.CreatedAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert deductions: %w", err)
	}
	return nil
}

func (r *BatchRepo) DeductionsByRecorder(ctx context.Context, recorderID id.ID) ([]ledger.BatchDeduction, error) {
	q := r.builder.Select(
		"line_id", "recorder_id", "recorder_type",
		"barcode", "branch", "net_price", "out_price",
		"expire_date", "quantity", "created_at",
	).From(deductionsTable).
		Where(squirrel.Eq{"recorder_id": recorderID}).
		OrderBy("created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var deductions []ledger.BatchDeduction
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &deductions, sql, args...); err != nil {
		return nil, fmt.Errorf("select deductions: %w", err)
	}
	return deductions, nil
}

func (r *BatchRepo) DeleteDeductionsByRecorder(ctx context.Context, recorderID id.ID) error {
	q := r.builder.Delete(deductionsTable).Where(squirrel.Eq{"recorder_id": recorderID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete deductions: %w", err)
	}
	return nil
}

// isCheckViolation reports a CHECK constraint failure (SQLSTATE 23514).
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

// isUniqueViolation reports a unique constraint failure (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ledger.Repository = (*BatchRepo)(nil)
