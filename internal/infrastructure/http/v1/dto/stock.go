package dto

import (
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain/ledger"
)

// BatchListRequest narrows batch listings for one barcode.
type BatchListRequest struct {
	Branch       string  `form:"branch" binding:"required"`
	NetPrice     *string `form:"netPrice"`
	IncludeEmpty bool    `form:"includeEmpty"`
}

// ToFilter converts to a batch filter.
func (r BatchListRequest) ToFilter() (ledger.BatchFilter, error) {
	var f ledger.BatchFilter
	f.IncludeEmpty = r.IncludeEmpty
	if r.NetPrice != nil {
		price, err := types.MoneyFromString(*r.NetPrice)
		if err != nil {
			return f, err
		}
		f.NetPrice = &price
	}
	return f, nil
}

// AvailabilityResponse is the per-branch stock total for a barcode.
type AvailabilityResponse struct {
	Barcode  string           `json:"barcode"`
	Branches map[string]int64 `json:"branches"`
	Total    int64            `json:"total"`
}

// NewAvailabilityResponse flattens the domain availability map.
func NewAvailabilityResponse(barcode string, byBranch map[ledger.Branch]types.Quantity) AvailabilityResponse {
	resp := AvailabilityResponse{
		Barcode:  barcode,
		Branches: make(map[string]int64, len(byBranch)),
	}
	for branch, qty := range byBranch {
		resp.Branches[string(branch)] = qty.Int64()
		resp.Total += qty.Int64()
	}
	return resp
}

// BatchListResponse lists batches for one barcode at one branch.
type BatchListResponse struct {
	Barcode string         `json:"barcode"`
	Branch  string         `json:"branch"`
	Batches []ledger.Batch `json:"batches"`
}
