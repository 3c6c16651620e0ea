// Package ledger provides the authoritative batch ledger: quantity-bearing
// stock batches keyed by item, branch, price pair and expiry date.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
)

// Branch identifies a physical store location with its own ledger.
type Branch string

const (
	BranchSlemany Branch = "Slemany"
	BranchErbil   Branch = "Erbil"
)

// knownBranches is the set of branches the ledger accepts.
var knownBranches = map[Branch]struct{}{
	BranchSlemany: {},
	BranchErbil:   {},
}

// ParseBranch validates a branch name.
func ParseBranch(s string) (Branch, error) {
	b := Branch(s)
	if _, ok := knownBranches[b]; !ok {
		return "", apperror.NewValidation(fmt.Sprintf("unknown branch %q", s)).
			WithDetail("field", "branch")
	}
	return b, nil
}

// IsValid reports whether the branch is registered.
func (b Branch) IsValid() bool {
	_, ok := knownBranches[b]
	return ok
}

// BatchKey identifies a ledger position. Batches sharing a key but holding
// different expiry dates are distinct rows; deduction never merges them.
type BatchKey struct {
	Barcode  string      `db:"barcode" json:"barcode"`
	Branch   Branch      `db:"branch" json:"branch"`
	NetPrice types.Money `db:"net_price" json:"netPrice"`
	OutPrice types.Money `db:"out_price" json:"outPrice"`
}

// Validate checks key invariants.
func (k BatchKey) Validate(ctx context.Context) error {
	if strings.TrimSpace(k.Barcode) == "" {
		return apperror.NewValidation("barcode is required").
			WithDetail("field", "barcode")
	}
	if !k.Branch.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown branch %q", k.Branch)).
			WithDetail("field", "branch")
	}
	if k.NetPrice.IsNegative() || k.OutPrice.IsNegative() {
		return apperror.NewValidation("prices must not be negative").
			WithDetail("barcode", k.Barcode)
	}
	return nil
}

// String returns a canonical form usable as a map key.
// Prices are normalized so 100 and 100.00 address the same position.
func (k BatchKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Barcode, k.Branch, k.NetPrice.String(), k.OutPrice.String())
}

// Batch is a quantity of one item at one branch, acquired at one net price,
// with one expiry date.
type Batch struct {
	ID id.ID `db:"id" json:"id"`
	BatchKey

	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	ExpireDate time.Time      `db:"expire_date" json:"expireDate"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewBatch creates a batch row, normalizing the expiry date.
// Quantity must not be negative.
func NewBatch(key BatchKey, expireDate time.Time, quantity types.Quantity) (*Batch, error) {
	if err := key.Validate(context.Background()); err != nil {
		return nil, err
	}
	if quantity.IsNegative() {
		return nil, apperror.NewValidation("batch quantity must not be negative").
			WithDetail("barcode", key.Barcode)
	}
	now := time.Now().UTC()
	return &Batch{
		ID:         id.New(),
		BatchKey:   key,
		Quantity:   quantity,
		ExpireDate: types.NormalizeExpiry(expireDate),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// HasExpiry reports whether the batch carries a real expiry date.
func (b *Batch) HasExpiry() bool {
	return !b.ExpireDate.Equal(types.FarFuture)
}

// Clone returns a deep copy (decimal values are immutable).
func (b *Batch) Clone() *Batch {
	cp := *b
	return &cp
}

// BatchDeduction records one batch touched by an allocation, so a bill
// deletion, edit or rejected transfer can reverse it exactly.
type BatchDeduction struct {
	LineID       id.ID  `db:"line_id" json:"lineId"`
	RecorderID   id.ID  `db:"recorder_id" json:"recorderId"`
	RecorderType string `db:"recorder_type" json:"recorderType"`

	Barcode    string         `db:"barcode" json:"barcode"`
	Branch     Branch         `db:"branch" json:"branch"`
	NetPrice   types.Money    `db:"net_price" json:"netPrice"`
	OutPrice   types.Money    `db:"out_price" json:"outPrice"`
	ExpireDate time.Time      `db:"expire_date" json:"expireDate"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Key reconstructs the ledger position the deduction was taken from.
func (d BatchDeduction) Key() BatchKey {
	return BatchKey{
		Barcode:  d.Barcode,
		Branch:   d.Branch,
		NetPrice: d.NetPrice,
		OutPrice: d.OutPrice,
	}
}
