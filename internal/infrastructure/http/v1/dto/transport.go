package dto

import (
	"time"

	"pharmstock/internal/core/types"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/domain/transport"
)

// TransportItemRequest is one moved row. When ExpireDate is set the sender
// names a specific batch; otherwise the engine picks oldest-expiry-first.
type TransportItemRequest struct {
	Barcode    string      `json:"barcode" binding:"required"`
	Name       string      `json:"name"`
	Quantity   int64       `json:"quantity" binding:"required,min=1"`
	NetPrice   types.Money `json:"netPrice"`
	OutPrice   types.Money `json:"outPrice"`
	ExpireDate time.Time   `json:"expireDate"`
}

// SendTransportRequest starts a branch-to-branch movement.
type SendTransportRequest struct {
	FromBranch string                 `json:"fromBranch" binding:"required"`
	ToBranch   string                 `json:"toBranch" binding:"required"`
	Notes      string                 `json:"notes"`
	Items      []TransportItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ToTransport converts to an unnumbered pending transport.
func (r SendTransportRequest) ToTransport() *transport.Transport {
	items := make([]transport.Item, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, transport.Item{
			Barcode:    item.Barcode,
			Name:       item.Name,
			Quantity:   types.Quantity(item.Quantity),
			NetPrice:   item.NetPrice,
			OutPrice:   item.OutPrice,
			ExpireDate: item.ExpireDate,
		})
	}
	return transport.New(ledger.Branch(r.FromBranch), ledger.Branch(r.ToBranch), items, r.Notes)
}

// ReceiveTransportRequest resolves a pending transport.
type ReceiveTransportRequest struct {
	Accept *bool  `json:"accept" binding:"required"`
	Notes  string `json:"notes"`
}

// TransportListRequest narrows transport listings.
type TransportListRequest struct {
	ListRequest

	Status     string `form:"status"`
	FromBranch string `form:"fromBranch"`
	ToBranch   string `form:"toBranch"`
}

// ToFilter converts to a transport list filter.
func (r TransportListRequest) ToFilter() transport.ListFilter {
	f := transport.ListFilter{ListFilter: r.ListRequest.ToFilter()}
	if r.Status != "" {
		status := transport.Status(r.Status)
		f.Status = &status
	}
	if r.FromBranch != "" {
		branch := ledger.Branch(r.FromBranch)
		f.FromBranch = &branch
	}
	if r.ToBranch != "" {
		branch := ledger.Branch(r.ToBranch)
		f.ToBranch = &branch
	}
	return f
}
