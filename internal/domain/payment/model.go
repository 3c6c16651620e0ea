// Package payment reconciles counterparty balances: a payment settles a set
// of unpaid sale bills net of returns. Every settled bill and return is
// claimed exclusively so two payments can never count the same document.
package payment

import (
	"context"
	"strings"
	"time"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/entity"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/types"
)

// ClaimKind names what a claim refers to.
type ClaimKind string

const (
	ClaimBill   ClaimKind = "bill"
	ClaimReturn ClaimKind = "return"
)

// Claim marks one bill or return as settled by a payment. Uniqueness over
// (kind, ref) is what enforces claim exclusivity.
type Claim struct {
	Kind      ClaimKind `db:"kind" json:"kind"`
	Ref       string    `db:"ref" json:"ref"`
	PaymentID id.ID     `db:"payment_id" json:"paymentId"`
}

// Payment settles sold bills minus returns for one counterparty. Payments
// are editable but never deletable; the audit log is their full history.
type Payment struct {
	entity.Document

	CounterpartyID string    `db:"counterparty_id" json:"counterpartyId"`
	PaymentDate    time.Time `db:"payment_date" json:"paymentDate"`

	// HardcopyBillNumber references the paper document handed over.
	HardcopyBillNumber string `db:"hardcopy_bill_number" json:"hardcopyBillNumber,omitempty"`

	SoldTotal   types.Money `db:"sold_total" json:"soldTotal"`
	ReturnTotal types.Money `db:"return_total" json:"returnTotal"`
	// NetAmount is SoldTotal minus ReturnTotal.
	NetAmount types.Money `db:"net_amount" json:"netAmount"`

	BillNumbers []string `db:"-" json:"billNumbers"`
	ReturnIDs   []id.ID  `db:"-" json:"returnIds"`
}

// New creates an unnumbered payment.
func New(counterpartyID string, billNumbers []string, returnIDs []id.ID) *Payment {
	return &Payment{
		Document:       entity.NewDocument(),
		CounterpartyID: counterpartyID,
		PaymentDate:    time.Now().UTC(),
		BillNumbers:    billNumbers,
		ReturnIDs:      returnIDs,
	}
}

// Claims returns the exclusivity claims this payment must hold.
func (p *Payment) Claims() []Claim {
	claims := make([]Claim, 0, len(p.BillNumbers)+len(p.ReturnIDs))
	for _, number := range p.BillNumbers {
		claims = append(claims, Claim{Kind: ClaimBill, Ref: number, PaymentID: p.ID})
	}
	for _, returnID := range p.ReturnIDs {
		claims = append(claims, Claim{Kind: ClaimReturn, Ref: returnID.String(), PaymentID: p.ID})
	}
	return claims
}

// Validate checks payment invariants.
func (p *Payment) Validate(ctx context.Context) error {
	if strings.TrimSpace(p.CounterpartyID) == "" {
		return apperror.NewValidation("counterparty is required").
			WithDetail("field", "counterpartyId")
	}
	if len(p.BillNumbers) == 0 && len(p.ReturnIDs) == 0 {
		return apperror.NewValidation("at least one bill or return is required").
			WithDetail("field", "billNumbers")
	}
	seen := make(map[string]struct{}, len(p.BillNumbers))
	for _, number := range p.BillNumbers {
		if _, dup := seen[number]; dup {
			return apperror.NewValidation("duplicate bill number").
				WithDetail("billNumber", number)
		}
		seen[number] = struct{}{}
	}
	seenReturns := make(map[id.ID]struct{}, len(p.ReturnIDs))
	for _, returnID := range p.ReturnIDs {
		if _, dup := seenReturns[returnID]; dup {
			return apperror.NewValidation("duplicate return").
				WithDetail("returnId", returnID.String())
		}
		seenReturns[returnID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy.
func (p *Payment) Clone() *Payment {
	cp := *p
	cp.BillNumbers = make([]string, len(p.BillNumbers))
	copy(cp.BillNumbers, p.BillNumbers)
	cp.ReturnIDs = make([]id.ID, len(p.ReturnIDs))
	copy(cp.ReturnIDs, p.ReturnIDs)
	return &cp
}
