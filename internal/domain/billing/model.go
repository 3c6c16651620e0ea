// Package billing provides purchase and sale bills and the return flow.
// Purchase bills feed batches into the ledger; sale bills consume stock
// through the allocation engine; returns bring units back.
package billing

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

// Kind distinguishes purchase bills (stock in, company counterparty) from
// sale bills (stock out, pharmacy counterparty).
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSale     Kind = "sale"
)

// PaymentStatus applies to sale bills only.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "Unpaid"
	PaymentPaid   PaymentStatus = "Paid"
	PaymentCash   PaymentStatus = "Cash"
)

// Bill is a purchase or sale document. The number is immutable once issued;
// editing preserves it.
type Bill struct {
	entity.Document

	Kind           Kind          `db:"kind" json:"kind"`
	CounterpartyID string        `db:"counterparty_id" json:"counterpartyId"`
	Branch         ledger.Branch `db:"branch" json:"branch"`

	// PaymentStatus is meaningful for sale bills only.
	PaymentStatus PaymentStatus `db:"payment_status" json:"paymentStatus,omitempty"`

	// IsConsignment marks purchase bills excluded from the instant payment
	// obligation. Still tracked for reconciliation.
	IsConsignment bool `db:"is_consignment" json:"isConsignment"`

	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`

	// Table part
	Lines []BillLine `db:"-" json:"lines"`
}

// BillLine is one item row on a bill.
type BillLine struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	Barcode    string         `db:"barcode" json:"barcode"`
	Name       string         `db:"name" json:"name"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	NetPrice   types.Money    `db:"net_price" json:"netPrice"`
	OutPrice   types.Money    `db:"out_price" json:"outPrice"`
	ExpireDate time.Time      `db:"expire_date" json:"expireDate"`
}

// BatchKey returns the ledger position this line maps to at the given branch.
func (l BillLine) BatchKey(branch ledger.Branch) ledger.BatchKey {
	return ledger.BatchKey{
		Barcode:  l.Barcode,
		Branch:   branch,
		NetPrice: l.NetPrice,
		OutPrice: l.OutPrice,
	}
}

// NewPurchaseBill creates an unnumbered purchase bill.
func NewPurchaseBill(companyID string, branch ledger.Branch, lines []BillLine, isConsignment bool) *Bill {
	b := &Bill{
		Document:       entity.NewDocument(),
		Kind:           KindPurchase,
		CounterpartyID: companyID,
		Branch:         branch,
		IsConsignment:  isConsignment,
	}
	b.ReplaceLines(lines)
	return b
}

// NewSaleBill creates an unnumbered sale bill.
func NewSaleBill(pharmacyID string, branch ledger.Branch, lines []BillLine, status PaymentStatus) *Bill {
	if status == "" {
		status = PaymentUnpaid
	}
	b := &Bill{
		Document:       entity.NewDocument(),
		Kind:           KindSale,
		CounterpartyID: pharmacyID,
		Branch:         branch,
		PaymentStatus:  status,
	}
	b.ReplaceLines(lines)
	return b
}

// ReplaceLines installs lines, renumbering them and recalculating the total.
func (b *Bill) ReplaceLines(lines []BillLine) {
	b.Lines = make([]BillLine, 0, len(lines))
	for i, line := range lines {
		if id.IsNil(line.LineID) {
			line.LineID = id.New()
		}
		line.LineNo = i + 1
		line.ExpireDate = types.NormalizeExpiry(line.ExpireDate)
		b.Lines = append(b.Lines, line)
	}
	b.recalculateTotal()
}

func (b *Bill) recalculateTotal() {
	total := types.ZeroMoney()
	for _, line := range b.Lines {
		price := line.NetPrice
		if b.Kind == KindSale {
			price = line.OutPrice
		}
		total = total.Add(price.Mul(types.NewMoney(float64(line.Quantity))))
	}
	b.TotalAmount = total
}

// LineByBarcode returns the first line holding the barcode.
func (b *Bill) LineByBarcode(barcode string) (BillLine, bool) {
	for _, line := range b.Lines {
		if line.Barcode == barcode {
			return line, true
		}
	}
	return BillLine{}, false
}

// Validate checks bill invariants.
func (b *Bill) Validate(ctx context.Context) error {
	if b.Kind != KindPurchase && b.Kind != KindSale {
		return apperror.NewValidation(fmt.Sprintf("unknown bill kind %q", b.Kind)).
			WithDetail("field", "kind")
	}
	if strings.TrimSpace(b.CounterpartyID) == "" {
		return apperror.NewValidation("counterparty is required").
			WithDetail("field", "counterpartyId")
	}
	if !b.Branch.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown branch %q", b.Branch)).
			WithDetail("field", "branch")
	}
	if b.Date.IsZero() {
		return apperror.NewValidation("date is required").WithDetail("field", "date")
	}
	if len(b.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	if b.Kind == KindSale {
		switch b.PaymentStatus {
		case PaymentUnpaid, PaymentPaid, PaymentCash:
		default:
			return apperror.NewValidation(fmt.Sprintf("unknown payment status %q", b.PaymentStatus)).
				WithDetail("field", "paymentStatus")
		}
	}
	for i, line := range b.Lines {
		if strings.TrimSpace(line.Barcode) == "" {
			return apperror.NewValidation("barcode is required").
				WithDetail("field", "lines").WithDetail("lineNo", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").WithDetail("lineNo", i+1)
		}
		if line.NetPrice.IsNegative() || line.OutPrice.IsNegative() {
			return apperror.NewValidation("prices must not be negative").
				WithDetail("field", "lines").WithDetail("lineNo", i+1)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (b *Bill) Clone() *Bill {
	cp := *b
	cp.Lines = make([]BillLine, len(b.Lines))
	copy(cp.Lines, b.Lines)
	return &cp
}

// Return records goods physically coming back against an origin bill.
// It reduces the counterparty's payable amount and increases the ledger.
type Return struct {
	ID id.ID `db:"id" json:"id"`

	BillNumber     string        `db:"bill_number" json:"billNumber"`
	CounterpartyID string        `db:"counterparty_id" json:"counterpartyId"`
	Branch         ledger.Branch `db:"branch" json:"branch"`

	Barcode  string         `db:"barcode" json:"barcode"`
	Name     string         `db:"name" json:"name"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	Price    types.Money    `db:"price" json:"price"`

	IsConsignment bool          `db:"is_consignment" json:"isConsignment"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"paymentStatus,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
}

// Total returns quantity times unit price.
func (r *Return) Total() types.Money {
	return r.Price.Mul(types.NewMoney(float64(r.Quantity)))
}

// Clone returns a copy.
func (r *Return) Clone() *Return {
	cp := *r
	return &cp
}
