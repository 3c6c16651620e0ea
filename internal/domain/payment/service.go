package payment

import (
	"context"
	"fmt"
	"time"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/tx"
	"pharmstock/internal/core/types"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/billing"
	"pharmstock/pkg/logger"
	"pharmstock/pkg/numerator"
)

const paymentPrefix = "PAY"

// BillSource is the read side of the billing store the reconciler needs.
// The reconciler never mutates bills or returns.
type BillSource interface {
	GetByNumbers(ctx context.Context, numbers []string) ([]*billing.Bill, error)
	ListSaleBillsByCounterparty(ctx context.Context, counterpartyID string) ([]*billing.Bill, error)
	GetReturnsByIDs(ctx context.Context, ids []id.ID) ([]*billing.Return, error)
	ListReturnsByCounterparty(ctx context.Context, counterpartyID string) ([]*billing.Return, error)
}

// Outstanding is a counterparty's open position: unpaid, unclaimed sale
// bills and the unclaimed returns offsetting them.
type Outstanding struct {
	CounterpartyID string            `json:"counterpartyId"`
	Bills          []*billing.Bill   `json:"bills"`
	Returns        []*billing.Return `json:"returns"`
	SoldTotal      types.Money       `json:"soldTotal"`
	ReturnTotal    types.Money       `json:"returnTotal"`
	NetAmount      types.Money       `json:"netAmount"`
}

// Service reconciles counterparty balances.
type Service struct {
	repo      Repository
	bills     BillSource
	numerator *numerator.Service
	txManager tx.Manager
	audit     domain.AuditLogger
}

// NewService creates a new payment service.
func NewService(
	repo Repository,
	bills BillSource,
	num *numerator.Service,
	txManager tx.Manager,
	audit domain.AuditLogger,
) *Service {
	return &Service{
		repo:      repo,
		bills:     bills,
		numerator: num,
		txManager: txManager,
		audit:     audit,
	}
}

// ComputeOutstanding returns the counterparty's open position. Cash bills
// settle at the counter and never appear; bills and returns already claimed
// by a payment are excluded so the position only shows what a new payment
// could still settle.
func (s *Service) ComputeOutstanding(ctx context.Context, counterpartyID string) (*Outstanding, error) {
	saleBills, err := s.bills.ListSaleBillsByCounterparty(ctx, counterpartyID)
	if err != nil {
		return nil, err
	}

	var openBills []*billing.Bill
	billNumbers := make([]string, 0, len(saleBills))
	for _, bill := range saleBills {
		if bill.PaymentStatus != billing.PaymentUnpaid {
			continue
		}
		openBills = append(openBills, bill)
		billNumbers = append(billNumbers, bill.Number)
	}
	claimedBills, err := s.repo.ClaimedRefs(ctx, ClaimBill, billNumbers)
	if err != nil {
		return nil, err
	}

	returns, err := s.bills.ListReturnsByCounterparty(ctx, counterpartyID)
	if err != nil {
		return nil, err
	}
	var openReturns []*billing.Return
	returnRefs := make([]string, 0, len(returns))
	for _, ret := range returns {
		if ret.PaymentStatus == billing.PaymentCash {
			continue
		}
		openReturns = append(openReturns, ret)
		returnRefs = append(returnRefs, ret.ID.String())
	}
	claimedReturns, err := s.repo.ClaimedRefs(ctx, ClaimReturn, returnRefs)
	if err != nil {
		return nil, err
	}

	out := &Outstanding{
		CounterpartyID: counterpartyID,
		SoldTotal:      types.ZeroMoney(),
		ReturnTotal:    types.ZeroMoney(),
	}
	for _, bill := range openBills {
		if claimedBills[bill.Number] {
			continue
		}
		out.Bills = append(out.Bills, bill)
		out.SoldTotal = out.SoldTotal.Add(bill.TotalAmount)
	}
	for _, ret := range openReturns {
		if claimedReturns[ret.ID.String()] {
			continue
		}
		out.Returns = append(out.Returns, ret)
		out.ReturnTotal = out.ReturnTotal.Add(ret.Total())
	}
	out.NetAmount = out.SoldTotal.Sub(out.ReturnTotal)
	return out, nil
}

// CreatePayment settles the named bills and returns. Claims are taken
// atomically with the payment record: if any document is already claimed by
// another payment, nothing is claimed and the caller gets AlreadyClaimed.
func (s *Service) CreatePayment(ctx context.Context, p *Payment) error {
	if err := p.Validate(ctx); err != nil {
		return err
	}
	if p.Number == "" {
		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(paymentPrefix), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		p.Number = number
	}

	err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			if err := s.resolveTotals(ctx, p); err != nil {
				return err
			}
			if err := s.repo.ClaimRefs(ctx, p.Claims()); err != nil {
				return err
			}
			if err := s.repo.Create(ctx, p); err != nil {
				return err
			}
			return s.audit.LogChange(ctx, "Payment", p.ID, domain.AuditActionCreate, map[string]any{
				"number":  p.Number,
				"net":     p.NetAmount.String(),
				"bills":   len(p.BillNumbers),
				"returns": len(p.ReturnIDs),
			})
		})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "payment created", "number", p.Number, "counterparty", p.CounterpartyID)
	return nil
}

// UpdatePayment replaces the payment's document set. The old claims are
// released and the new ones taken in the same transaction, so refs dropped
// from the payment become claimable again and refs held by other payments
// still fail with AlreadyClaimed. Payments cannot be deleted.
func (s *Service) UpdatePayment(ctx context.Context, number string, billNumbers []string, returnIDs []id.ID, hardcopyBillNumber string) (*Payment, error) {
	var updated *Payment

	err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			p, err := s.repo.GetByNumber(ctx, number)
			if err != nil {
				return err
			}

			if err := s.repo.ReleaseByPayment(ctx, p.ID); err != nil {
				return err
			}

			p.BillNumbers = billNumbers
			p.ReturnIDs = returnIDs
			p.HardcopyBillNumber = hardcopyBillNumber
			if err := p.Validate(ctx); err != nil {
				return err
			}
			if err := s.resolveTotals(ctx, p); err != nil {
				return err
			}
			if err := s.repo.ClaimRefs(ctx, p.Claims()); err != nil {
				return err
			}

			p.Touch()
			if err := s.repo.Update(ctx, p); err != nil {
				return err
			}
			updated = p
			return s.audit.LogChange(ctx, "Payment", p.ID, domain.AuditActionUpdate, map[string]any{
				"number":  p.Number,
				"net":     p.NetAmount.String(),
				"bills":   len(p.BillNumbers),
				"returns": len(p.ReturnIDs),
			})
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "payment updated", "number", number)
	return updated, nil
}

// GetPayment retrieves a payment.
func (s *Service) GetPayment(ctx context.Context, number string) (*Payment, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List retrieves payments with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Payment], error) {
	return s.repo.List(ctx, filter)
}

// resolveTotals verifies every referenced document and recomputes the
// payment's totals from the documents themselves.
func (s *Service) resolveTotals(ctx context.Context, p *Payment) error {
	bills, err := s.bills.GetByNumbers(ctx, p.BillNumbers)
	if err != nil {
		return err
	}
	byNumber := make(map[string]*billing.Bill, len(bills))
	for _, bill := range bills {
		byNumber[bill.Number] = bill
	}

	sold := types.ZeroMoney()
	for _, number := range p.BillNumbers {
		bill, ok := byNumber[number]
		if !ok {
			return apperror.NewReferentialViolation(fmt.Sprintf("bill %s does not exist", number)).
				WithDetail("billNumber", number)
		}
		if bill.Kind != billing.KindSale {
			return apperror.NewReferentialViolation(fmt.Sprintf("bill %s is not a sale bill", number)).
				WithDetail("billNumber", number)
		}
		if bill.CounterpartyID != p.CounterpartyID {
			return apperror.NewReferentialViolation(fmt.Sprintf("bill %s belongs to a different counterparty", number)).
				WithDetail("billNumber", number)
		}
		if bill.PaymentStatus == billing.PaymentCash {
			return apperror.NewReferentialViolation(fmt.Sprintf("bill %s was settled in cash", number)).
				WithDetail("billNumber", number)
		}
		sold = sold.Add(bill.TotalAmount)
	}

	returns, err := s.bills.GetReturnsByIDs(ctx, p.ReturnIDs)
	if err != nil {
		return err
	}
	byID := make(map[id.ID]*billing.Return, len(returns))
	for _, ret := range returns {
		byID[ret.ID] = ret
	}

	returned := types.ZeroMoney()
	for _, returnID := range p.ReturnIDs {
		ret, ok := byID[returnID]
		if !ok {
			return apperror.NewReferentialViolation(fmt.Sprintf("return %s does not exist", returnID)).
				WithDetail("returnId", returnID.String())
		}
		if ret.CounterpartyID != p.CounterpartyID {
			return apperror.NewReferentialViolation(fmt.Sprintf("return %s belongs to a different counterparty", returnID)).
				WithDetail("returnId", returnID.String())
		}
		returned = returned.Add(ret.Total())
	}

	p.SoldTotal = sold
	p.ReturnTotal = returned
	p.NetAmount = sold.Sub(returned)
	return nil
}
