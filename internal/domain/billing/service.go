package billing

import (
	"context"
	"fmt"
	"time"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/tx"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/ledger"
	"pharmstock/pkg/logger"
	"pharmstock/pkg/numerator"
)

const (
	recorderTypeSaleBill = "SaleBill"

	purchasePrefix = "PB"
	salePrefix     = "SB"
)

// Service provides business operations for purchase and sale bills and
// returns. All ledger-touching operations run inside one transaction so a
// failing line never leaves a partial effect.
type Service struct {
	repo       Repository
	ledgerRepo ledger.Repository
	ledger     *ledger.Service
	alloc      *ledger.Allocator
	numerator  *numerator.Service
	txManager  tx.Manager
	audit      domain.AuditLogger
}

// NewService creates a new bill service.
func NewService(
	repo Repository,
	ledgerRepo ledger.Repository,
	num *numerator.Service,
	txManager tx.Manager,
	audit domain.AuditLogger,
) *Service {
	return &Service{
		repo:       repo,
		ledgerRepo: ledgerRepo,
		ledger:     ledger.NewService(ledgerRepo),
		alloc:      ledger.NewAllocator(ledgerRepo),
		numerator:  num,
		txManager:  txManager,
		audit:      audit,
	}
}

// CreatePurchaseBill records a purchase from a company: every line feeds a
// batch into the branch ledger, creating the batch row when absent.
func (s *Service) CreatePurchaseBill(ctx context.Context, bill *Bill) error {
	if bill.Kind != KindPurchase {
		return apperror.NewValidation("bill kind must be purchase").WithDetail("kind", string(bill.Kind))
	}
	if err := bill.Validate(ctx); err != nil {
		return err
	}
	if err := s.assignNumber(ctx, bill, purchasePrefix); err != nil {
		return err
	}

	err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			for _, line := range bill.Lines {
				if err := s.ledger.AdjustQuantity(ctx, line.BatchKey(bill.Branch), line.ExpireDate, line.Quantity); err != nil {
					return err
				}
			}
			if err := s.repo.Create(ctx, bill); err != nil {
				return err
			}
			return s.audit.LogChange(ctx, "Bill", bill.ID, domain.AuditActionCreate, map[string]any{
				"number": bill.Number,
				"kind":   string(bill.Kind),
				"total":  bill.TotalAmount.String(),
				"lines":  len(bill.Lines),
			})
		})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "purchase bill created", "number", bill.Number, "company", bill.CounterpartyID)
	return nil
}

// CreateSaleBill records a sale to a pharmacy. Every line is allocated
// FIFO-by-expiry at the line's exact net price; if any line cannot be
// covered the whole bill fails and earlier deductions are discarded.
func (s *Service) CreateSaleBill(ctx context.Context, bill *Bill) error {
	if bill.Kind != KindSale {
		return apperror.NewValidation("bill kind must be sale").WithDetail("kind", string(bill.Kind))
	}
	if err := bill.Validate(ctx); err != nil {
		return err
	}
	if err := s.assignNumber(ctx, bill, salePrefix); err != nil {
		return err
	}

	err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			deductions, err := s.allocateLines(ctx, bill)
			if err != nil {
				return err
			}
			if err := s.ledgerRepo.SaveDeductions(ctx, bill.ID, recorderTypeSaleBill, deductions); err != nil {
				return err
			}
			if err := s.repo.Create(ctx, bill); err != nil {
				return err
			}
			return s.audit.LogChange(ctx, "Bill", bill.ID, domain.AuditActionCreate, map[string]any{
				"number": bill.Number,
				"kind":   string(bill.Kind),
				"total":  bill.TotalAmount.String(),
				"lines":  len(bill.Lines),
			})
		})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "sale bill created", "number", bill.Number, "pharmacy", bill.CounterpartyID)
	return nil
}

// EditBill replaces the item list of an existing bill. The old ledger effect
// is reversed first, then the new list is applied as if created fresh; the
// record is only replaced after the new ledger state took hold. The bill
// number never changes.
func (s *Service) EditBill(ctx context.Context, number string, newLines []BillLine, paymentStatus *PaymentStatus) (*Bill, error) {
	var edited *Bill

	err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			bill, err := s.repo.GetByNumber(ctx, number)
			if err != nil {
				return err
			}

			if err := s.reverseLedgerEffect(ctx, bill); err != nil {
				return err
			}

			bill.ReplaceLines(newLines)
			if paymentStatus != nil && bill.Kind == KindSale {
				bill.PaymentStatus = *paymentStatus
			}
			if err := bill.Validate(ctx); err != nil {
				return err
			}

			if err := s.applyLedgerEffect(ctx, bill); err != nil {
				return err
			}

			bill.Touch()
			if err := s.repo.Update(ctx, bill); err != nil {
				return err
			}
			edited = bill
			return s.audit.LogChange(ctx, "Bill", bill.ID, domain.AuditActionUpdate, map[string]any{
				"number": bill.Number,
				"total":  bill.TotalAmount.String(),
				"lines":  len(bill.Lines),
			})
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "bill edited", "number", number)
	return edited, nil
}

// DeleteBill fully reverses the bill's ledger effect and removes the record.
// Deleting a purchase bill whose stock was already consumed elsewhere fails
// with InsufficientStock; that is a legitimate business error.
func (s *Service) DeleteBill(ctx context.Context, number string) error {
	err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			bill, err := s.repo.GetByNumber(ctx, number)
			if err != nil {
				return err
			}
			if err := s.reverseLedgerEffect(ctx, bill); err != nil {
				return err
			}
			if err := s.repo.Delete(ctx, number); err != nil {
				return err
			}
			return s.audit.LogChange(ctx, "Bill", bill.ID, domain.AuditActionDelete, map[string]any{
				"number": bill.Number,
				"kind":   string(bill.Kind),
			})
		})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "bill deleted", "number", number)
	return nil
}

// ReturnItem is one returned row of a ProcessReturn request.
type ReturnItem struct {
	Barcode  string
	Quantity types.Quantity
	// Price overrides the bill line's unit price when set.
	Price *types.Money
}

// ProcessReturn records goods coming back against an origin bill and puts
// the units back into the bill's branch ledger. The returned quantity per
// (bill, barcode) may never exceed what the bill carried minus what was
// already returned.
func (s *Service) ProcessReturn(ctx context.Context, counterpartyID, billNumber string, items []ReturnItem) ([]*Return, error) {
	if len(items) == 0 {
		return nil, apperror.NewValidation("at least one return item is required")
	}

	var created []*Return
	err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			bill, err := s.repo.GetByNumber(ctx, billNumber)
			if err != nil {
				if apperror.IsNotFound(err) {
					return apperror.NewReferentialViolation(fmt.Sprintf("origin bill %s does not exist", billNumber)).
						WithDetail("billNumber", billNumber)
				}
				return err
			}
			if bill.CounterpartyID != counterpartyID {
				return apperror.NewReferentialViolation("origin bill belongs to a different counterparty").
					WithDetail("billNumber", billNumber).
					WithDetail("counterpartyId", counterpartyID)
			}

			created = created[:0]
			// Quantities already requested for a barcode earlier in this
			// request count against the cap too.
			pending := make(map[string]types.Quantity, len(items))
			for _, item := range items {
				ret, line, err := s.buildReturn(ctx, bill, item, pending[item.Barcode])
				if err != nil {
					return err
				}
				pending[item.Barcode] += item.Quantity
				if err := s.ledger.AdjustQuantity(ctx, line.BatchKey(bill.Branch), line.ExpireDate, ret.Quantity); err != nil {
					return err
				}
				created = append(created, ret)
			}

			if err := s.repo.CreateReturns(ctx, created); err != nil {
				return err
			}
			for _, ret := range created {
				if err := s.audit.LogChange(ctx, "Return", ret.ID, domain.AuditActionCreate, map[string]any{
					"billNumber": ret.BillNumber,
					"barcode":    ret.Barcode,
					"quantity":   ret.Quantity.Int64(),
				}); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "return processed", "billNumber", billNumber, "items", len(created))
	return created, nil
}

// GetBill retrieves a bill with its lines.
func (s *Service) GetBill(ctx context.Context, number string) (*Bill, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List retrieves bills with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Bill], error) {
	return s.repo.List(ctx, filter)
}

// ListReturns retrieves returns with filtering.
func (s *Service) ListReturns(ctx context.Context, filter ReturnFilter) ([]*Return, error) {
	return s.repo.ListReturns(ctx, filter)
}

// --- internals ---

func (s *Service) assignNumber(ctx context.Context, bill *Bill, prefix string) error {
	if bill.Number != "" {
		return nil
	}
	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(prefix), nil, time.Now())
	if err != nil {
		return fmt.Errorf("generate number: %w", err)
	}
	bill.Number = number
	return nil
}

// allocateLines deducts stock for every line, returning the journal entries.
func (s *Service) allocateLines(ctx context.Context, bill *Bill) ([]ledger.BatchDeduction, error) {
	var deductions []ledger.BatchDeduction
	for _, line := range bill.Lines {
		taken, err := s.alloc.Allocate(ctx, line.Barcode, bill.Branch, line.NetPrice, line.Quantity)
		if err != nil {
			return nil, err
		}
		deductions = append(deductions, taken...)
	}
	return deductions, nil
}

// applyLedgerEffect applies the bill's forward effect to the ledger.
func (s *Service) applyLedgerEffect(ctx context.Context, bill *Bill) error {
	switch bill.Kind {
	case KindPurchase:
		for _, line := range bill.Lines {
			if err := s.ledger.AdjustQuantity(ctx, line.BatchKey(bill.Branch), line.ExpireDate, line.Quantity); err != nil {
				return err
			}
		}
		return nil
	case KindSale:
		deductions, err := s.allocateLines(ctx, bill)
		if err != nil {
			return err
		}
		return s.ledgerRepo.SaveDeductions(ctx, bill.ID, recorderTypeSaleBill, deductions)
	default:
		return apperror.NewValidation("unknown bill kind")
	}
}

// reverseLedgerEffect undoes the bill's current ledger effect: sale bills
// restore their journaled deductions, purchase bills take their added
// quantities back out (which can legitimately fail when the stock moved on).
func (s *Service) reverseLedgerEffect(ctx context.Context, bill *Bill) error {
	switch bill.Kind {
	case KindSale:
		deductions, err := s.ledgerRepo.DeductionsByRecorder(ctx, bill.ID)
		if err != nil {
			return err
		}
		if err := s.alloc.Restore(ctx, deductions); err != nil {
			return err
		}
		return s.ledgerRepo.DeleteDeductionsByRecorder(ctx, bill.ID)
	case KindPurchase:
		for _, line := range bill.Lines {
			if err := s.ledger.AdjustQuantity(ctx, line.BatchKey(bill.Branch), line.ExpireDate, line.Quantity.Neg()); err != nil {
				return err
			}
		}
		return nil
	default:
		return apperror.NewValidation("unknown bill kind")
	}
}

// buildReturn validates one return item against the origin bill. pending is
// the quantity already requested for the same barcode in the current batch.
func (s *Service) buildReturn(ctx context.Context, bill *Bill, item ReturnItem, pending types.Quantity) (*Return, BillLine, error) {
	if !item.Quantity.IsPositive() {
		return nil, BillLine{}, apperror.NewValidation("return quantity must be positive").
			WithDetail("barcode", item.Barcode)
	}
	line, ok := bill.LineByBarcode(item.Barcode)
	if !ok {
		return nil, BillLine{}, apperror.NewReferentialViolation(fmt.Sprintf("bill %s has no line for barcode %s", bill.Number, item.Barcode)).
			WithDetail("billNumber", bill.Number).
			WithDetail("barcode", item.Barcode)
	}

	alreadyReturned, err := s.repo.SumReturned(ctx, bill.Number, item.Barcode)
	if err != nil {
		return nil, BillLine{}, err
	}
	remaining := line.Quantity - alreadyReturned - pending
	if item.Quantity > remaining {
		return nil, BillLine{}, apperror.NewReferentialViolation("return quantity exceeds remaining returnable quantity").
			WithDetail("billNumber", bill.Number).
			WithDetail("barcode", item.Barcode).
			WithDetail("requested", item.Quantity.Int64()).
			WithDetail("remaining", remaining.Int64())
	}

	price := line.NetPrice
	if bill.Kind == KindSale {
		price = line.OutPrice
	}
	if item.Price != nil {
		price = *item.Price
	}

	return &Return{
		ID:             id.New(),
		BillNumber:     bill.Number,
		CounterpartyID: bill.CounterpartyID,
		Branch:         bill.Branch,
		Barcode:        line.Barcode,
		Name:           line.Name,
		Quantity:       item.Quantity,
		Price:          price,
		IsConsignment:  bill.IsConsignment,
		PaymentStatus:  bill.PaymentStatus,
		CreatedAt:      time.Now().UTC(),
	}, line, nil
}
