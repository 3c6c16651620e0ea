package transport

import (
	"context"
	"fmt"
	"time"

	"pharmstock/internal/core/apperror"
	appctx "pharmstock/internal/core/context"
	"pharmstock/internal/core/id"
	"pharmstock/internal/core/tx"
	"pharmstock/internal/domain"
	"pharmstock/internal/domain/ledger"
	"pharmstock/pkg/logger"
	"pharmstock/pkg/numerator"
)

const (
	recorderTypeTransport = "Transport"

	transportPrefix = "TR"
)

// Service runs the transport workflow. Send deducts from the source branch
// and journals exactly which batches were taken; Receive either credits the
// destination branch or puts the journaled batches back into the source.
type Service struct {
	repo       Repository
	ledgerRepo ledger.Repository
	ledger     *ledger.Service
	alloc      *ledger.Allocator
	numerator  *numerator.Service
	txManager  tx.Manager
	audit      domain.AuditLogger
}

// NewService creates a new transport service.
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

// Send creates a pending transport and deducts every item from the source
// branch. Items naming a batch (expiry set) deduct that batch exactly;
// items without one consume batches oldest-expiry-first. If any item cannot
// be covered the whole transport fails and nothing leaves the source.
func (s *Service) Send(ctx context.Context, t *Transport) error {
	if err := t.Validate(ctx); err != nil {
		return err
	}
	if t.SenderID == "" {
		t.SenderID = appctx.GetUserID(ctx)
	}
	if t.Number == "" {
		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(transportPrefix), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		t.Number = number
	}

	err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			deductions, err := s.deductItems(ctx, t)
			if err != nil {
				return err
			}
			if err := s.ledgerRepo.SaveDeductions(ctx, t.ID, recorderTypeTransport, deductions); err != nil {
				return err
			}
			if err := s.repo.Create(ctx, t); err != nil {
				return err
			}
			return s.audit.LogChange(ctx, "Transport", t.ID, domain.AuditActionCreate, map[string]any{
				"number": t.Number,
				"from":   string(t.FromBranch),
				"to":     string(t.ToBranch),
				"items":  len(t.Items),
			})
		})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "transport sent", "number", t.Number, "from", t.FromBranch, "to", t.ToBranch)
	return nil
}

// Receive resolves a pending transport. Accepting credits the journaled
// batches into the destination branch; rejecting puts them back into the
// source branch. A transport already resolved fails with
// InvalidStateTransition regardless of direction.
func (s *Service) Receive(ctx context.Context, transportID id.ID, accept bool, receiverNotes string) (*Transport, error) {
	var resolved *Transport

	err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			t, err := s.repo.GetByID(ctx, transportID)
			if err != nil {
				return err
			}
			if !t.IsPending() {
				attempted := StatusReceived
				if !accept {
					attempted = StatusRejected
				}
				return apperror.NewInvalidStateTransition("Transport", string(t.Status), string(attempted)).
					WithDetail("transportId", t.ID.String()).
					WithDetail("number", t.Number)
			}

			deductions, err := s.ledgerRepo.DeductionsByRecorder(ctx, t.ID)
			if err != nil {
				return err
			}

			if accept {
				// Credit the destination with the exact batch composition
				// that left the source.
				for _, d := range deductions {
					key := d.Key()
					key.Branch = t.ToBranch
					if err := s.ledger.AdjustQuantity(ctx, key, d.ExpireDate, d.Quantity); err != nil {
						return err
					}
				}
				t.Status = StatusReceived
			} else {
				if err := s.alloc.Restore(ctx, deductions); err != nil {
					return err
				}
				t.Status = StatusRejected
			}

			now := time.Now().UTC()
			t.ReceivedAt = &now
			t.ReceiverID = appctx.GetUserID(ctx)
			t.ReceiverNotes = receiverNotes
			t.Touch()

			if err := s.repo.Update(ctx, t); err != nil {
				return err
			}
			resolved = t
			return s.audit.LogChange(ctx, "Transport", t.ID, domain.AuditActionUpdate, map[string]any{
				"number": t.Number,
				"status": string(t.Status),
			})
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transport resolved", "number", resolved.Number, "status", resolved.Status)
	return resolved, nil
}

// Get retrieves a transport with its items.
func (s *Service) Get(ctx context.Context, transportID id.ID) (*Transport, error) {
	return s.repo.GetByID(ctx, transportID)
}

// List retrieves transports with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Transport], error) {
	return s.repo.List(ctx, filter)
}

// deductItems removes every item from the source branch, returning the
// journal entries describing exactly which batches were taken.
func (s *Service) deductItems(ctx context.Context, t *Transport) ([]ledger.BatchDeduction, error) {
	var deductions []ledger.BatchDeduction
	for _, item := range t.Items {
		if item.ExpireDate.IsZero() {
			taken, err := s.alloc.Allocate(ctx, item.Barcode, t.FromBranch, item.NetPrice, item.Quantity)
			if err != nil {
				return nil, err
			}
			deductions = append(deductions, taken...)
			continue
		}
		d, err := s.alloc.DeductExact(ctx, item.BatchKey(t.FromBranch), item.ExpireDate, item.Quantity)
		if err != nil {
			return nil, err
		}
		deductions = append(deductions, d)
	}
	return deductions, nil
}
