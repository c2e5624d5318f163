// Package billsplit distributes an order's line quantities across named
// sub-accounts and turns a complete allocation into one bill per account.
package billsplit

import (
	"errors"
	"fmt"
	"strings"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/money"
)

var (
	ErrIncompleteAllocation = errors.New("allocation incomplete")
	ErrUnknownItem          = errors.New("unknown item")
	ErrUnknownAccount       = errors.New("unknown account")
	ErrNoAccounts           = errors.New("at least one account is required")
)

type Item struct {
	ID        string
	Name      string
	Qty       int
	UnitPrice float64
}

type Account struct {
	ID   string
	Name string
}

type Line struct {
	ItemID    string
	Name      string
	Qty       int
	UnitPrice float64
	Amount    float64
}

// Bill is the finalized share of one account. Tax and Tip stay zero until a
// charge rule is chosen; ChargeRule records that they are unresolved.
type Bill struct {
	AccountID   string
	AccountName string
	Lines       []Line
	Subtotal    float64
	Tax         float64
	Tip         float64
	Total       float64
	ChargeRule  string
}

// Gap describes an item whose allocated quantity differs from its ordered quantity.
type Gap struct {
	ItemID    string
	Name      string
	Ordered   int
	Allocated int
}

// Allocator is not safe for concurrent use; one splitting session owns it.
type Allocator struct {
	items    []Item
	itemIdx  map[string]int
	accounts []Account
	// alloc[itemID][accountID] = qty
	alloc  map[string]map[string]int
	nextID int
}

// New builds an allocator for items. Quantities are clamped into the valid range
// and duplicate item ids keep their first occurrence.
func New(items []Item) *Allocator {
	a := &Allocator{
		itemIdx: make(map[string]int, len(items)),
		alloc:   make(map[string]map[string]int, len(items)),
	}
	for _, item := range items {
		if _, dup := a.itemIdx[item.ID]; dup {
			continue
		}
		item.Qty = money.ClampQty(item.Qty)
		item.UnitPrice = money.Amount(item.UnitPrice)
		a.itemIdx[item.ID] = len(a.items)
		a.items = append(a.items, item)
		a.alloc[item.ID] = make(map[string]int)
	}
	return a
}

// FromOrder builds an allocator over the order's lines.
func FromOrder(order domain.Order) *Allocator {
	items := make([]Item, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, Item{ID: line.ID, Name: line.Name, Qty: line.Qty, UnitPrice: line.UnitPrice})
	}
	return New(items)
}

func (a *Allocator) Items() []Item {
	return append([]Item(nil), a.items...)
}

func (a *Allocator) Accounts() []Account {
	return append([]Account(nil), a.accounts...)
}

// AddAccount appends an account. A blank name becomes "Cuenta N".
func (a *Allocator) AddAccount(name string) Account {
	a.nextID++
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Cuenta %d", len(a.accounts)+1)
	}
	account := Account{ID: fmt.Sprintf("acct-%d", a.nextID), Name: name}
	a.accounts = append(a.accounts, account)
	return account
}

// RemoveAccount drops the account and releases its allocations.
func (a *Allocator) RemoveAccount(accountID string) bool {
	for i, account := range a.accounts {
		if account.ID != accountID {
			continue
		}
		a.accounts = append(a.accounts[:i], a.accounts[i+1:]...)
		for _, perAccount := range a.alloc {
			delete(perAccount, accountID)
		}
		return true
	}
	return false
}

func (a *Allocator) hasAccount(accountID string) bool {
	for _, account := range a.accounts {
		if account.ID == accountID {
			return true
		}
	}
	return false
}

// SetAllocation sets the quantity of item assigned to account and returns the
// value actually stored. Requests beyond what the other accounts leave free are
// capped, never rejected.
func (a *Allocator) SetAllocation(itemID, accountID string, qty int) (int, error) {
	idx, ok := a.itemIdx[itemID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if !a.hasAccount(accountID) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	others := 0
	for id, q := range a.alloc[itemID] {
		if id != accountID {
			others += q
		}
	}
	free := a.items[idx].Qty - others
	if free < 0 {
		free = 0
	}
	qty = money.ClampQty(qty)
	if qty > free {
		qty = free
	}
	if qty == 0 {
		delete(a.alloc[itemID], accountID)
	} else {
		a.alloc[itemID][accountID] = qty
	}
	return qty, nil
}

func (a *Allocator) Allocation(itemID, accountID string) int {
	return a.alloc[itemID][accountID]
}

// SplitEvenly replaces the whole table with an even split over the first n
// accounts, creating accounts until n exist. Each item gets floor(Q/n) per
// account and the remainder goes one unit at a time to the earliest accounts.
// Accounts beyond n are left empty.
func (a *Allocator) SplitEvenly(n int) error {
	if n < 1 {
		return ErrNoAccounts
	}
	for len(a.accounts) < n {
		a.AddAccount("")
	}
	targets := a.accounts[:n]
	for _, item := range a.items {
		perAccount := make(map[string]int, n)
		base := item.Qty / n
		remainder := item.Qty - base*n
		for i, account := range targets {
			q := base
			if i < remainder {
				q++
			}
			if q > 0 {
				perAccount[account.ID] = q
			}
		}
		a.alloc[item.ID] = perAccount
	}
	return nil
}

func (a *Allocator) Allocated(itemID string) int {
	total := 0
	for _, q := range a.alloc[itemID] {
		total += q
	}
	return total
}

func (a *Allocator) Remaining(itemID string) int {
	idx, ok := a.itemIdx[itemID]
	if !ok {
		return 0
	}
	return a.items[idx].Qty - a.Allocated(itemID)
}

// ValidateComplete reports whether every item is allocated exactly.
func (a *Allocator) ValidateComplete() bool {
	return len(a.Incomplete()) == 0
}

func (a *Allocator) Incomplete() []Gap {
	var gaps []Gap
	for _, item := range a.items {
		if allocated := a.Allocated(item.ID); allocated != item.Qty {
			gaps = append(gaps, Gap{ItemID: item.ID, Name: item.Name, Ordered: item.Qty, Allocated: allocated})
		}
	}
	return gaps
}

// Save emits one bill per account, in account order. It refuses with
// ErrIncompleteAllocation unless ValidateComplete holds.
func (a *Allocator) Save() ([]Bill, error) {
	if len(a.accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if gaps := a.Incomplete(); len(gaps) > 0 {
		parts := make([]string, 0, len(gaps))
		for _, gap := range gaps {
			parts = append(parts, fmt.Sprintf("%s %d/%d", gap.Name, gap.Allocated, gap.Ordered))
		}
		return nil, fmt.Errorf("%w: %s", ErrIncompleteAllocation, strings.Join(parts, ", "))
	}

	bills := make([]Bill, 0, len(a.accounts))
	for _, account := range a.accounts {
		bill := Bill{
			AccountID:   account.ID,
			AccountName: account.Name,
			ChargeRule:  domain.SplitChargeRulePending,
		}
		for _, item := range a.items {
			q := a.alloc[item.ID][account.ID]
			if q == 0 {
				continue
			}
			amount := float64(q) * item.UnitPrice
			bill.Lines = append(bill.Lines, Line{
				ItemID:    item.ID,
				Name:      item.Name,
				Qty:       q,
				UnitPrice: item.UnitPrice,
				Amount:    amount,
			})
			bill.Subtotal += amount
		}
		bill.Total = bill.Subtotal + bill.Tax + bill.Tip
		bills = append(bills, bill)
	}
	return bills, nil
}
