package service

import (
	"context"
	"fmt"
	"strings"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/money"
	"deleonpos/backend/internal/store"
	"deleonpos/backend/internal/xid"
)

func (s *Service) ListDishes(ctx context.Context, tenantID string) ([]domain.Dish, error) {
	_, tenantID, err := s.scope(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDishes(ctx, tenantID)
}

func (s *Service) CreateDish(ctx context.Context, req domain.DishCreateRequest) (domain.Dish, error) {
	actor, tenantID, err := s.scope(ctx, req.TenantID)
	if err != nil {
		return domain.Dish{}, err
	}
	if !actor.Capabilities().CanManageMenu {
		return domain.Dish{}, ErrForbidden
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if err := s.check(req); err != nil {
		return domain.Dish{}, err
	}

	created, err := s.repo.CreateDish(ctx, domain.Dish{
		ID:       xid.New("dish"),
		TenantID: tenantID,
		Name:     req.Name,
		Category: req.Category,
		Price:    money.Amount(req.Price),
		Active:   true,
	})
	if err != nil {
		return domain.Dish{}, err
	}

	s.logAudit(ctx, tenantID, "dish_create", "dish", created.ID, fmt.Sprintf("name=%s,price=%.2f", created.Name, created.Price))
	s.publish(ctx, tenantID, domain.EventMenuUpdated, created.ID)
	return *created, nil
}

func (s *Service) UpdateDish(ctx context.Context, dishID string, req domain.DishUpdateRequest) (domain.Dish, error) {
	actor, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.Dish{}, err
	}
	if !actor.Capabilities().CanManageMenu {
		return domain.Dish{}, ErrForbidden
	}
	existing, err := s.repo.GetDish(ctx, tenantID, strings.TrimSpace(dishID))
	if err != nil {
		return domain.Dish{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Dish{}, fmt.Errorf("%w: name must not be blank", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if category == "" {
			return domain.Dish{}, fmt.Errorf("%w: category must not be blank", store.ErrInvalidInput)
		}
		updated.Category = category
	}
	if req.Price != nil {
		price := money.Amount(*req.Price)
		if price <= 0 {
			return domain.Dish{}, fmt.Errorf("%w: price must be positive", store.ErrInvalidInput)
		}
		updated.Price = price
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateDish(ctx, updated)
	if err != nil {
		return domain.Dish{}, err
	}

	s.logAudit(ctx, tenantID, "dish_update", "dish", saved.ID, fmt.Sprintf("active=%t,price=%.2f", saved.Active, saved.Price))
	s.publish(ctx, tenantID, domain.EventMenuUpdated, saved.ID)
	return *saved, nil
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	actor, tenantID, err := s.scope(ctx, req.TenantID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.Capabilities().CanTakeOrders {
		return domain.Order{}, ErrForbidden
	}
	if err := s.check(req); err != nil {
		return domain.Order{}, err
	}
	dishes, err := s.lookupDishes(ctx, tenantID, req.Items)
	if err != nil {
		return domain.Order{}, err
	}
	lines := mergeLines(nil, req.Items, dishes)
	if len(lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order needs at least one item", store.ErrInvalidInput)
	}

	order := domain.Order{
		ID:        xid.New("ord"),
		TenantID:  tenantID,
		TableID:   strings.TrimSpace(req.TableID),
		Items:     lines,
		Channel:   strings.TrimSpace(req.Channel),
		Delivery:  req.Delivery,
		Status:    domain.OrderStatusOpen,
		CreatedBy: actor.Username,
		CreatedAt: s.now().UTC(),
	}
	order.Bill.Subtotal = subtotal(order.Items)
	order.Bill.Total = order.Bill.Subtotal

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}
	s.afterOrderChange(ctx, created, "order_create", fmt.Sprintf("lines=%d,table=%s", len(created.Items), created.TableID))
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	_, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.Order{}, err
	}
	order, err := s.repo.GetOrder(ctx, tenantID, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, tenantID string, date string) (domain.OrderListResponse, error) {
	_, tenantID, err := s.scope(ctx, tenantID)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	dateKey, err := s.dateKey(date)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	from, to := s.dayWindow(dateKey)
	orders, err := s.repo.ListOrders(ctx, tenantID, from, to)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	return domain.OrderListResponse{Date: dateKey, Orders: orders}, nil
}

func (s *Service) AddOrderItems(ctx context.Context, orderID string, req domain.OrderItemsRequest) (domain.Order, error) {
	actor, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.Capabilities().CanTakeOrders {
		return domain.Order{}, ErrForbidden
	}
	if err := s.check(req); err != nil {
		return domain.Order{}, err
	}
	dishes, err := s.lookupDishes(ctx, tenantID, req.Items)
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := s.repo.UpdateOrder(ctx, tenantID, strings.TrimSpace(orderID), func(order *domain.Order) error {
		if order.Status != domain.OrderStatusOpen {
			return fmt.Errorf("%w: order is %s", store.ErrConflict, order.Status)
		}
		lines := mergeLines(order.Items, req.Items, dishes)
		order.Items = lines
		order.Bill = domain.Bill{Subtotal: subtotal(lines), Total: subtotal(lines)}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.afterOrderChange(ctx, updated, "order_add_items", fmt.Sprintf("added=%d", len(req.Items)))
	return *updated, nil
}

func (s *Service) RemoveOrderItem(ctx context.Context, orderID string, lineID string) (domain.Order, error) {
	actor, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.Capabilities().CanTakeOrders {
		return domain.Order{}, ErrForbidden
	}
	lineID = strings.TrimSpace(lineID)

	updated, err := s.repo.UpdateOrder(ctx, tenantID, strings.TrimSpace(orderID), func(order *domain.Order) error {
		if order.Status != domain.OrderStatusOpen {
			return fmt.Errorf("%w: order is %s", store.ErrConflict, order.Status)
		}
		kept := make([]domain.OrderLine, 0, len(order.Items))
		for _, line := range order.Items {
			if line.ID != lineID {
				kept = append(kept, line)
			}
		}
		if len(kept) == len(order.Items) {
			return fmt.Errorf("%w: line %s", store.ErrNotFound, lineID)
		}
		order.Items = kept
		order.Bill = domain.Bill{Subtotal: subtotal(kept), Total: subtotal(kept)}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.afterOrderChange(ctx, updated, "order_remove_item", "line="+lineID)
	return *updated, nil
}

// Checkout bills an open order: tax and tip are charged on the subtotal after
// discount, then the order is marked paid with the given payment text.
func (s *Service) Checkout(ctx context.Context, orderID string, req domain.CheckoutRequest) (domain.Order, error) {
	actor, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.Capabilities().CanCheckout {
		return domain.Order{}, ErrForbidden
	}
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if err := s.check(req); err != nil {
		return domain.Order{}, err
	}
	taxRate := s.taxRatePercent
	if req.TaxRatePercent != nil {
		taxRate = *req.TaxRatePercent
	}
	tipRate := s.tipRatePercent
	if req.TipRatePercent != nil {
		tipRate = *req.TipRatePercent
	}

	now := s.now().UTC()
	updated, err := s.repo.UpdateOrder(ctx, tenantID, strings.TrimSpace(orderID), func(order *domain.Order) error {
		if order.Status != domain.OrderStatusOpen {
			return fmt.Errorf("%w: order is %s", store.ErrConflict, order.Status)
		}
		if len(order.Items) == 0 {
			return fmt.Errorf("%w: order has no items", store.ErrInvalidInput)
		}
		order.Bill = computeBill(order.Items, req.Discount, taxRate, tipRate)
		order.PaymentMethod = req.PaymentMethod
		order.NCF = strings.TrimSpace(req.NCF)
		order.Status = domain.OrderStatusPaid
		order.PaidAt = &now
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.afterOrderChange(ctx, updated, "order_checkout", fmt.Sprintf("method=%s,total=%.2f", updated.PaymentMethod, updated.Bill.Total))
	return *updated, nil
}

// CancelOrder voids an order. Paid orders can only be voided by privileged roles.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	actor, tenantID, err := s.scope(ctx, "")
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.Capabilities().CanCheckout {
		return domain.Order{}, ErrForbidden
	}

	previous := ""
	updated, err := s.repo.UpdateOrder(ctx, tenantID, strings.TrimSpace(orderID), func(order *domain.Order) error {
		previous = order.Status
		switch order.Status {
		case domain.OrderStatusCancelled:
			return fmt.Errorf("%w: order already cancelled", store.ErrConflict)
		case domain.OrderStatusPaid:
			if !actor.Role.Privileged() {
				return fmt.Errorf("%w: only admins can void a paid order", ErrForbidden)
			}
		}
		order.Status = domain.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.afterOrderChange(ctx, updated, "order_cancel", "previous="+previous)
	return *updated, nil
}

func (s *Service) afterOrderChange(ctx context.Context, order *domain.Order, action string, detail string) {
	s.logAudit(ctx, order.TenantID, action, "order", order.ID, detail)
	s.touchDay(ctx, order.TenantID, s.dateKeyOf(order.CreatedAt))
	s.publish(ctx, order.TenantID, domain.EventOrdersUpdated, order.ID)
	if order.TableID != "" {
		s.publish(ctx, order.TenantID, domain.EventTablesUpdated, order.TableID)
	}
}

// lookupDishes loads every requested dish before any order row is locked.
func (s *Service) lookupDishes(ctx context.Context, tenantID string, items []domain.OrderItemRequest) (map[string]domain.Dish, error) {
	dishes := make(map[string]domain.Dish, len(items))
	for _, item := range items {
		dishID := strings.TrimSpace(item.DishID)
		if _, ok := dishes[dishID]; ok {
			continue
		}
		dish, err := s.repo.GetDish(ctx, tenantID, dishID)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown dish %s", store.ErrInvalidInput, dishID)
		}
		if !dish.Active {
			return nil, fmt.Errorf("%w: dish %s is not available", store.ErrInvalidInput, dish.Name)
		}
		dishes[dishID] = *dish
	}
	return dishes, nil
}

// mergeLines appends the requested dishes to existing, folding repeats of the
// same dish into one line. Quantities are clamped to the valid range.
func mergeLines(existing []domain.OrderLine, items []domain.OrderItemRequest, dishes map[string]domain.Dish) []domain.OrderLine {
	lines := append([]domain.OrderLine(nil), existing...)
	byDish := make(map[string]int, len(lines))
	for i, line := range lines {
		byDish[line.DishID] = i
	}

	for _, item := range items {
		dish := dishes[strings.TrimSpace(item.DishID)]
		if i, ok := byDish[dish.ID]; ok {
			lines[i].Qty = money.ClampQty(lines[i].Qty + item.Qty)
			continue
		}
		qty := money.ClampQty(item.Qty)
		if qty == 0 {
			continue
		}
		byDish[dish.ID] = len(lines)
		lines = append(lines, domain.OrderLine{
			ID:        xid.New("line"),
			DishID:    dish.ID,
			Name:      dish.Name,
			Qty:       qty,
			UnitPrice: dish.Price,
		})
	}
	return lines
}

func subtotal(lines []domain.OrderLine) float64 {
	total := 0.0
	for _, line := range lines {
		total += float64(money.ClampQty(line.Qty)) * money.Amount(line.UnitPrice)
	}
	return total
}

func computeBill(lines []domain.OrderLine, discount, taxRatePercent, tipRatePercent float64) domain.Bill {
	bill := domain.Bill{Subtotal: subtotal(lines)}
	bill.Discount = money.Amount(discount)
	if bill.Discount < 0 {
		bill.Discount = 0
	}
	if bill.Discount > bill.Subtotal {
		bill.Discount = bill.Subtotal
	}
	base := bill.Subtotal - bill.Discount
	bill.Tax = base * taxRatePercent / 100
	bill.Tip = base * tipRatePercent / 100
	bill.Total = base + bill.Tax + bill.Tip
	return bill
}
