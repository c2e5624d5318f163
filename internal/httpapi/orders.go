package httpapi

import (
	"errors"
	"net/http"

	"deleonpos/backend/internal/domain"
)

func (a *API) handleDishes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		dishes, err := a.service.ListDishes(r.Context(), r.URL.Query().Get("tenant_id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, dishes)
	case http.MethodPost:
		var req domain.DishCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		dish, err := a.service.CreateDish(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusCreated, dish)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDishActions(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/v1/dishes/")
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, errors.New("unknown dish path"))
		return
	}
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.DishUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dish, err := a.service.UpdateDish(r.Context(), parts[0], req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, dish)
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		resp, err := a.service.ListOrders(r.Context(), q.Get("tenant_id"), q.Get("date"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.OrderCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.CreateOrder(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusCreated, order)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleOrderActions routes /api/v1/orders/{id}[/action[/line]].
func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/v1/orders/")
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, errors.New("missing order id"))
		return
	}
	orderID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && len(parts) == 1:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		order, err := a.service.GetOrder(r.Context(), orderID)
		respondOrder(w, order, err)
	case action == "items" && len(parts) == 2:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.OrderItemsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.AddOrderItems(r.Context(), orderID, req)
		respondOrder(w, order, err)
	case action == "items" && len(parts) == 3:
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w)
			return
		}
		order, err := a.service.RemoveOrderItem(r.Context(), orderID, parts[2])
		respondOrder(w, order, err)
	case action == "checkout" && len(parts) == 2:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.CheckoutRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.Checkout(r.Context(), orderID, req)
		respondOrder(w, order, err)
	case action == "cancel" && len(parts) == 2:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		order, err := a.service.CancelOrder(r.Context(), orderID)
		respondOrder(w, order, err)
	case action == "split" && len(parts) == 2:
		a.handleOrderSplit(w, r, orderID)
	case action == "invoice" && len(parts) == 2:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		resp, err := a.service.BuildInvoice(r.Context(), domain.InvoiceRequest{
			OrderID:     orderID,
			SplitBillID: r.URL.Query().Get("split_bill_id"),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown order action"))
	}
}

func (a *API) handleOrderSplit(w http.ResponseWriter, r *http.Request, orderID string) {
	switch r.Method {
	case http.MethodGet:
		bills, err := a.service.ListSplitBills(r.Context(), orderID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, domain.SplitOrderResponse{OrderID: orderID, Bills: bills})
	case http.MethodPost:
		var req domain.SplitOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.SplitOrder(r.Context(), orderID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func respondOrder(w http.ResponseWriter, order domain.Order, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, order)
}
