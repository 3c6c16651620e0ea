package dto

import (
	"time"

	"pharmstock/internal/core/types"
	"pharmstock/internal/domain/billing"
	"pharmstock/internal/domain/ledger"
)

// BillLineRequest is one item row on a bill request.
type BillLineRequest struct {
	Barcode  string      `json:"barcode" binding:"required"`
	Name     string      `json:"name"`
	Quantity int64       `json:"quantity" binding:"required,min=1"`
	NetPrice types.Money `json:"netPrice"`
	OutPrice types.Money `json:"outPrice"`
	// ExpireDate is optional; undated stock sorts after all dated batches.
	ExpireDate time.Time `json:"expireDate"`
}

// ToLine converts to a domain bill line.
func (r BillLineRequest) ToLine() billing.BillLine {
	return billing.BillLine{
		Barcode:    r.Barcode,
		Name:       r.Name,
		Quantity:   types.Quantity(r.Quantity),
		NetPrice:   r.NetPrice,
		OutPrice:   r.OutPrice,
		ExpireDate: r.ExpireDate,
	}
}

func toLines(reqs []BillLineRequest) []billing.BillLine {
	lines := make([]billing.BillLine, 0, len(reqs))
	for _, r := range reqs {
		lines = append(lines, r.ToLine())
	}
	return lines
}

// CreatePurchaseBillRequest records a purchase from a supplying company.
type CreatePurchaseBillRequest struct {
	CounterpartyID string            `json:"counterpartyId" binding:"required"`
	Branch         string            `json:"branch" binding:"required"`
	IsConsignment  bool              `json:"isConsignment"`
	Lines          []BillLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToBill converts to an unnumbered purchase bill.
func (r CreatePurchaseBillRequest) ToBill() *billing.Bill {
	return billing.NewPurchaseBill(r.CounterpartyID, ledger.Branch(r.Branch), toLines(r.Lines), r.IsConsignment)
}

// CreateSaleBillRequest records a sale to a pharmacy.
type CreateSaleBillRequest struct {
	CounterpartyID string            `json:"counterpartyId" binding:"required"`
	Branch         string            `json:"branch" binding:"required"`
	PaymentStatus  string            `json:"paymentStatus"`
	Lines          []BillLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToBill converts to an unnumbered sale bill.
func (r CreateSaleBillRequest) ToBill() *billing.Bill {
	return billing.NewSaleBill(r.CounterpartyID, ledger.Branch(r.Branch), toLines(r.Lines), billing.PaymentStatus(r.PaymentStatus))
}

// EditBillRequest replaces the item list of an existing bill.
// The bill number never changes.
type EditBillRequest struct {
	Lines         []BillLineRequest `json:"lines" binding:"required,min=1,dive"`
	PaymentStatus *string           `json:"paymentStatus"`
}

// ToLines converts the request lines.
func (r EditBillRequest) ToLines() []billing.BillLine {
	return toLines(r.Lines)
}

// ReturnItemRequest is one returned row.
type ReturnItemRequest struct {
	Barcode  string `json:"barcode" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,min=1"`
	// Price overrides the bill line's unit price when set.
	Price *types.Money `json:"price"`
}

// CreateReturnRequest records goods coming back against an origin bill.
type CreateReturnRequest struct {
	CounterpartyID string              `json:"counterpartyId" binding:"required"`
	BillNumber     string              `json:"billNumber" binding:"required"`
	Items          []ReturnItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ToItems converts the request items.
func (r CreateReturnRequest) ToItems() []billing.ReturnItem {
	items := make([]billing.ReturnItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, billing.ReturnItem{
			Barcode:  item.Barcode,
			Quantity: types.Quantity(item.Quantity),
			Price:    item.Price,
		})
	}
	return items
}

// BillListRequest narrows bill listings.
type BillListRequest struct {
	ListRequest

	Kind           string `form:"kind"`
	CounterpartyID string `form:"counterpartyId"`
	Branch         string `form:"branch"`
	PaymentStatus  string `form:"paymentStatus"`
}

// ToFilter converts to a billing list filter.
func (r BillListRequest) ToFilter() billing.ListFilter {
	f := billing.ListFilter{
		ListFilter:     r.ListRequest.ToFilter(),
		CounterpartyID: r.CounterpartyID,
		Branch:         r.Branch,
	}
	if r.Kind != "" {
		kind := billing.Kind(r.Kind)
		f.Kind = &kind
	}
	if r.PaymentStatus != "" {
		status := billing.PaymentStatus(r.PaymentStatus)
		f.PaymentStatus = &status
	}
	return f
}

// ReturnListRequest narrows return listings.
type ReturnListRequest struct {
	CounterpartyID string `form:"counterpartyId"`
	BillNumber     string `form:"billNumber"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset         int    `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter converts to a return filter.
func (r ReturnListRequest) ToFilter() billing.ReturnFilter {
	return billing.ReturnFilter{
		CounterpartyID: r.CounterpartyID,
		BillNumber:     r.BillNumber,
		Limit:          r.Limit,
		Offset:         r.Offset,
	}
}
