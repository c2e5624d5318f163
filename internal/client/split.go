package client

import (
	"context"
	"fmt"
	"strings"

	"deleonpos/backend/internal/billsplit"
	"deleonpos/backend/internal/domain"
)

// NewSplit starts a split draft over the order's lines. Items are keyed by line ID.
func NewSplit(order domain.Order) *billsplit.Allocator {
	return billsplit.FromOrder(order)
}

// SubmitSplit sends a finished draft. Drafts without accounts or with unallocated
// quantities never reach the server.
func (c *Client) SubmitSplit(ctx context.Context, orderID string, draft *billsplit.Allocator) (domain.SplitOrderResponse, error) {
	accounts := draft.Accounts()
	if len(accounts) == 0 {
		return domain.SplitOrderResponse{}, fmt.Errorf("%w: %w", ErrInvalidLocalInput, billsplit.ErrNoAccounts)
	}
	if gaps := draft.Incomplete(); len(gaps) > 0 {
		parts := make([]string, 0, len(gaps))
		for _, gap := range gaps {
			parts = append(parts, fmt.Sprintf("%s %d/%d", gap.Name, gap.Allocated, gap.Ordered))
		}
		return domain.SplitOrderResponse{}, fmt.Errorf("%w: %w: %s", ErrInvalidLocalInput, billsplit.ErrIncompleteAllocation, strings.Join(parts, ", "))
	}

	req := domain.SplitOrderRequest{Accounts: make([]domain.SplitAccountRequest, 0, len(accounts))}
	for _, account := range accounts {
		allocations := make(map[string]int)
		for _, item := range draft.Items() {
			if qty := draft.Allocation(item.ID, account.ID); qty > 0 {
				allocations[item.ID] = qty
			}
		}
		req.Accounts = append(req.Accounts, domain.SplitAccountRequest{Name: account.Name, Allocations: allocations})
	}
	return c.SplitOrder(ctx, orderID, req)
}
