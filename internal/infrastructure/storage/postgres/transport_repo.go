package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/transport"
)

const (
	transportsTable     = "transports"
	transportItemsTable = "transport_items"
)

// TransportRepo implements transport.Repository.
type TransportRepo struct {
	txm     *TxManager
	builder squirrel.StatementBuilderType
}

// NewTransportRepo creates a new transport repository.
func NewTransportRepo(txm *TxManager) *TransportRepo {
	return &TransportRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var transportColumns = []string{
	"id", "number", "date", "from_branch", "to_branch", "status",
	"sender_id", "sent_at", "receiver_id", "received_at", "notes", "receiver_notes",
	"version", "created_at", "updated_at", "created_by", "updated_by",
}

var transportItemColumns = []string{
	"line_id", "line_no", "barcode", "name",
	"quantity", "net_price", "out_price", "expire_date",
}

func (r *TransportRepo) Create(ctx context.Context, t *transport.Transport) error {
	q := r.builder.Insert(transportsTable).Columns(transportColumns...).Values(
		t.ID, t.Number, t.Date, t.FromBranch, t.ToBranch, t.Status,
		t.SenderID, t.SentAt, t.ReceiverID, t.ReceivedAt, t.Notes, t.ReceiverNotes,
		t.Version, t.CreatedAt, t.UpdatedAt, t.CreatedBy, t.UpdatedBy,
	)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("Transport", "number", t.Number)
		}
		return fmt.Errorf("insert transport: %w", err)
	}

	return r.insertItems(ctx, t)
}

func (r *TransportRepo) Update(ctx context.Context, t *transport.Transport) error {
	q := r.builder.Update(transportsTable).
		SetMap(map[string]any{
			"status":         t.Status,
			"receiver_id":    t.ReceiverID,
			"received_at":    t.ReceivedAt,
			"receiver_notes": t.ReceiverNotes,
			"version":        t.Version,
			"updated_at":     t.UpdatedAt,
			"updated_by":     t.UpdatedBy,
		}).
		Where(squirrel.Eq{"id": t.ID, "version": t.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update transport: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, t.ID); apperror.IsNotFound(getErr) {
			return getErr
		}
		return apperror.NewConcurrencyConflict("Transport", t.ID.String())
	}
	return nil
}

func (r *TransportRepo) GetByID(ctx context.Context, transportID id.ID) (*transport.Transport, error) {
	q := r.builder.Select(transportColumns...).From(transportsTable).
		Where(squirrel.Eq{"id": transportID}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t transport.Transport
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("Transport", transportID.String())
		}
		return nil, fmt.Errorf("get transport: %w", err)
	}

	if err := r.loadItems(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransportRepo) List(ctx context.Context, filter transport.ListFilter) (domain.ListResult[*transport.Transport], error) {
	result := domain.ListResult[*transport.Transport]{Limit: filter.Limit, Offset: filter.Offset}

	base := r.builder.Select().From(transportsTable)
	if filter.Status != nil {
		base = base.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.FromBranch != nil {
		base = base.Where(squirrel.Eq{"from_branch": *filter.FromBranch})
	}
	if filter.ToBranch != nil {
		base = base.Where(squirrel.Eq{"to_branch": *filter.ToBranch})
	}
	if filter.DateFrom != nil {
		base = base.Where(squirrel.GtOrEq{"sent_at": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		base = base.Where(squirrel.LtOrEq{"sent_at": *filter.DateTo})
	}

	countSQL, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count transports: %w", err)
	}

	q := base.Columns(transportColumns...).OrderBy("sent_at DESC")
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
		return result, fmt.Errorf("select transports: %w", err)
	}

	for _, t := range result.Items {
		if err := r.loadItems(ctx, t); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (r *TransportRepo) insertItems(ctx context.Context, t *transport.Transport) error {
	if len(t.Items) == 0 {
		return nil
	}

	q := r.builder.Insert(transportItemsTable).Columns(append([]string{"transport_id"}, transportItemColumns...)...)
	for _, item := range t.Items {
		q = q.Values(
			t.ID, item.LineID, item.LineNo, item.Barcode, item.Name,
			item.Quantity.Int64(), item.NetPrice, item.OutPrice, item.ExpireDate,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert transport items: %w", err)
	}
	return nil
}

func (r *TransportRepo) loadItems(ctx context.Context, t *transport.Transport) error {
	q := r.builder.Select(transportItemColumns...).From(transportItemsTable).
		Where(squirrel.Eq{"transport_id": t.ID}).
		OrderBy("line_no ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &t.Items, sql, args...); err != nil {
		return fmt.Errorf("select transport items: %w", err)
	}
	return nil
}

var _ transport.Repository = (*TransportRepo)(nil)
