package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deleonpos/backend/internal/billsplit"
	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/store"
	"deleonpos/backend/internal/xid"
)

// SplitOrder divides an order among sub-accounts, either evenly or by explicit
// per-line quantities, and stores one bill per account. The allocation must cover
// every line exactly; anything else is rejected and nothing is stored.
func (s *Service) SplitOrder(ctx context.Context, orderID string, req domain.SplitOrderRequest) (domain.SplitOrderResponse, error) {
	actor, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.SplitOrderResponse{}, err
	}
	if !actor.Capabilities().CanCheckout {
		return domain.SplitOrderResponse{}, ErrForbidden
	}
	if err := s.check(req); err != nil {
		return domain.SplitOrderResponse{}, err
	}
	order, err := s.repo.GetOrder(ctx, tenantID, strings.TrimSpace(orderID))
	if err != nil {
		return domain.SplitOrderResponse{}, err
	}
	if order.Status == domain.OrderStatusCancelled {
		return domain.SplitOrderResponse{}, fmt.Errorf("%w: order is cancelled", store.ErrConflict)
	}

	alloc := billsplit.FromOrder(*order)
	switch {
	case req.EvenAccounts > 0 && len(req.Accounts) > 0:
		return domain.SplitOrderResponse{}, fmt.Errorf("%w: use either even_accounts or accounts", store.ErrInvalidInput)
	case req.EvenAccounts > 0:
		if err := alloc.SplitEvenly(req.EvenAccounts); err != nil {
			return domain.SplitOrderResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
		}
	case len(req.Accounts) > 0:
		if err := applyAccounts(alloc, req.Accounts); err != nil {
			return domain.SplitOrderResponse{}, err
		}
	default:
		return domain.SplitOrderResponse{}, fmt.Errorf("%w: even_accounts or accounts is required", store.ErrInvalidInput)
	}

	finalized, err := alloc.Save()
	if err != nil {
		return domain.SplitOrderResponse{}, fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}

	now := s.now().UTC()
	bills := make([]domain.SplitBill, 0, len(finalized))
	for _, bill := range finalized {
		lines := make([]domain.SplitLine, 0, len(bill.Lines))
		for _, line := range bill.Lines {
			lines = append(lines, domain.SplitLine{
				ItemID:    line.ItemID,
				Name:      line.Name,
				Qty:       line.Qty,
				UnitPrice: line.UnitPrice,
				Amount:    line.Amount,
			})
		}
		bills = append(bills, domain.SplitBill{
			ID:          xid.New("split"),
			TenantID:    tenantID,
			OrderID:     order.ID,
			AccountID:   bill.AccountID,
			AccountName: bill.AccountName,
			Lines:       lines,
			Subtotal:    bill.Subtotal,
			Tax:         bill.Tax,
			Tip:         bill.Tip,
			Total:       bill.Total,
			ChargeRule:  bill.ChargeRule,
			CreatedAt:   now,
		})
	}
	if err := s.repo.ReplaceSplitBills(ctx, tenantID, order.ID, bills); err != nil {
		return domain.SplitOrderResponse{}, err
	}

	s.logAudit(ctx, tenantID, "order_split", "order", order.ID, fmt.Sprintf("accounts=%d", len(bills)))
	s.publish(ctx, tenantID, domain.EventOrdersUpdated, order.ID)
	return domain.SplitOrderResponse{OrderID: order.ID, Bills: bills}, nil
}

func applyAccounts(alloc *billsplit.Allocator, accounts []domain.SplitAccountRequest) error {
	for _, req := range accounts {
		account := alloc.AddAccount(req.Name)
		for itemID, qty := range req.Allocations {
			if qty < 0 {
				return fmt.Errorf("%w: quantity for %s must not be negative", store.ErrInvalidInput, itemID)
			}
			stored, err := alloc.SetAllocation(itemID, account.ID, qty)
			if err != nil {
				if errors.Is(err, billsplit.ErrUnknownItem) {
					return fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
				}
				return err
			}
			if stored < qty {
				return fmt.Errorf("%w: %s allocates more of %s than remains", store.ErrInvalidInput, account.Name, itemID)
			}
		}
	}
	return nil
}

func (s *Service) ListSplitBills(ctx context.Context, orderID string) ([]domain.SplitBill, error) {
	_, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return nil, err
	}
	return s.repo.ListSplitBills(ctx, tenantID, strings.TrimSpace(orderID))
}
