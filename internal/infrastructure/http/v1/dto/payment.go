package dto

import (
	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/domain/payment"
)

// CreatePaymentRequest settles a set of bills net of returns.
type CreatePaymentRequest struct {
	CounterpartyID     string   `json:"counterpartyId" binding:"required"`
	BillNumbers        []string `json:"billNumbers"`
	ReturnIDs          []string `json:"returnIds"`
	HardcopyBillNumber string   `json:"hardcopyBillNumber"`
}

// ToPayment converts to an unnumbered payment.
func (r CreatePaymentRequest) ToPayment() (*payment.Payment, error) {
	returnIDs, err := parseReturnIDs(r.ReturnIDs)
	if err != nil {
		return nil, err
	}
	p := payment.New(r.CounterpartyID, r.BillNumbers, returnIDs)
	p.HardcopyBillNumber = r.HardcopyBillNumber
	return p, nil
}

// UpdatePaymentRequest replaces the payment's document set.
type UpdatePaymentRequest struct {
	BillNumbers        []string `json:"billNumbers"`
	ReturnIDs          []string `json:"returnIds"`
	HardcopyBillNumber string   `json:"hardcopyBillNumber"`
}

// ParsedReturnIDs converts the return id strings.
func (r UpdatePaymentRequest) ParsedReturnIDs() ([]id.ID, error) {
	return parseReturnIDs(r.ReturnIDs)
}

func parseReturnIDs(raw []string) ([]id.ID, error) {
	ids := make([]id.ID, 0, len(raw))
	for _, s := range raw {
		parsed, err := id.Parse(s)
		if err != nil {
			return nil, apperror.NewValidation("invalid return id").
				WithDetail("returnId", s)
		}
		ids = append(ids, parsed)
	}
	return ids, nil
}

// PaymentListRequest narrows payment listings.
type PaymentListRequest struct {
	ListRequest

	CounterpartyID string `form:"counterpartyId"`
}

// ToFilter converts to a payment list filter.
func (r PaymentListRequest) ToFilter() payment.ListFilter {
	return payment.ListFilter{
		ListFilter:     r.ListRequest.ToFilter(),
		CounterpartyID: r.CounterpartyID,
	}
}
