// Package transport provides inter-branch stock movement with sender and
// receiver confirmation. Stock leaves the source branch when the transport
// is sent and enters the destination branch only when the receiver accepts.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/entity"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain/ledger"
)

// Status is the transport workflow state. The only legal transitions are
// pending -> received and pending -> rejected; both are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReceived Status = "received"
	StatusRejected Status = "rejected"
)

// Transport moves items between branches. While pending the units are in
// transit: deducted from the source, not yet credited anywhere.
type Transport struct {
	entity.Document

	FromBranch ledger.Branch `db:"from_branch" json:"fromBranch"`
	ToBranch   ledger.Branch `db:"to_branch" json:"toBranch"`
	Status     Status        `db:"status" json:"status"`

	SenderID string    `db:"sender_id" json:"senderId"`
	SentAt   time.Time `db:"sent_at" json:"sentAt"`

	ReceiverID    string     `db:"receiver_id" json:"receiverId,omitempty"`
	ReceivedAt    *time.Time `db:"received_at" json:"receivedAt,omitempty"`
	Notes         string     `db:"notes" json:"notes,omitempty"`
	ReceiverNotes string     `db:"receiver_notes" json:"receiverNotes,omitempty"`

	// Table part
	Items []Item `db:"-" json:"items"`
}

// Item is one moved row. When ExpireDate is set the sender named a specific
// batch; otherwise the engine picks batches oldest-expiry-first.
type Item struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	Barcode    string         `db:"barcode" json:"barcode"`
	Name       string         `db:"name" json:"name"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	NetPrice   types.Money    `db:"net_price" json:"netPrice"`
	OutPrice   types.Money    `db:"out_price" json:"outPrice"`
	ExpireDate time.Time      `db:"expire_date" json:"expireDate,omitempty"`
}

// BatchKey returns the source-branch ledger position of this item.
func (i Item) BatchKey(from ledger.Branch) ledger.BatchKey {
	return ledger.BatchKey{
		Barcode:  i.Barcode,
		Branch:   from,
		NetPrice: i.NetPrice,
		OutPrice: i.OutPrice,
	}
}

// New creates an unnumbered pending transport.
func New(from, to ledger.Branch, items []Item, notes string) *Transport {
	t := &Transport{
		Document:   entity.NewDocument(),
		FromBranch: from,
		ToBranch:   to,
		Status:     StatusPending,
		Notes:      notes,
		SentAt:     time.Now().UTC(),
	}
	t.Items = make([]Item, 0, len(items))
	for n, item := range items {
		if id.IsNil(item.LineID) {
			item.LineID = id.New()
		}
		item.LineNo = n + 1
		t.Items = append(t.Items, item)
	}
	return t
}

// IsPending reports whether the transport still awaits the receiver.
func (t *Transport) IsPending() bool {
	return t.Status == StatusPending
}

// Validate checks transport invariants.
func (t *Transport) Validate(ctx context.Context) error {
	if !t.FromBranch.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown source branch %q", t.FromBranch)).
			WithDetail("field", "fromBranch")
	}
	if !t.ToBranch.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown destination branch %q", t.ToBranch)).
			WithDetail("field", "toBranch")
	}
	if t.FromBranch == t.ToBranch {
		return apperror.NewValidation("source and destination branch must differ").
			WithDetail("field", "toBranch")
	}
	if len(t.Items) == 0 {
		return apperror.NewValidation("at least one item is required").
			WithDetail("field", "items")
	}
	for n, item := range t.Items {
		if strings.TrimSpace(item.Barcode) == "" {
			return apperror.NewValidation("barcode is required").
				WithDetail("field", "items").WithDetail("lineNo", n+1)
		}
		if !item.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "items").WithDetail("lineNo", n+1)
		}
		if item.NetPrice.IsNegative() || item.OutPrice.IsNegative() {
			return apperror.NewValidation("prices must not be negative").
				WithDetail("field", "items").WithDetail("lineNo", n+1)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (t *Transport) Clone() *Transport {
	cp := *t
	cp.Items = make([]Item, len(t.Items))
	copy(cp.Items, t.Items)
	if t.ReceivedAt != nil {
		at := *t.ReceivedAt
		cp.ReceivedAt = &at
	}
	return &cp
}
