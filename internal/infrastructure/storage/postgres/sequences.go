package postgres

import (
	"context"
	"fmt"
)

// SequenceRepo implements numerator.Sequencer on the sys_sequences table.
type SequenceRepo struct {
	txm *TxManager
}

// NewSequenceRepo creates a sequence repository.
func NewSequenceRepo(txm *TxManager) *SequenceRepo {
	return &SequenceRepo{txm: txm}
}

// Next advances the named counter atomically and returns its new value.
func (r *SequenceRepo) Next(ctx context.Context, key string, increment int64) (int64, error) {
	sql := `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
		RETURNING current_val
	`

	var val int64
	querier := r.txm.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, key, increment).Scan(&val); err != nil {
		return 0, fmt.Errorf("next sequence value: %w", err)
	}
	return val, nil
}
