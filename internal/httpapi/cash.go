package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/reconcile"
)

func (a *API) handleCashSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	resp, err := a.service.GetSession(r.Context(), q.Get("tenant_id"), q.Get("date"), q.Get("register_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (a *API) handleCashSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	sessions, err := a.service.ListSessions(r.Context(), q.Get("tenant_id"), q.Get("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, sessions)
}

func (a *API) handleCashOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SessionOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.OpenSession(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, resp)
}

func (a *API) handleCashAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SessionAddCashRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.AddCash(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (a *API) handleCashAdjustOpening(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SessionAdjustOpeningRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.AdjustOpening(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (a *API) handleCashClose(w http.ResponseWriter, r *http.Request) {
	a.closeSession(w, r, "close", false)
}

func (a *API) handleCashAdjustClose(w http.ResponseWriter, r *http.Request) {
	a.closeSession(w, r, "adjust-close", true)
}

// closeSession serves both close and adjust-close. Every attempt counts against the
// manager code limiter, successful or not.
func (a *API) closeSession(w http.ResponseWriter, r *http.Request, kind string, adjust bool) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SessionCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.codeLimiter.Allow("code:" + kind + ":" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager code attempts"))
		return
	}

	var (
		resp domain.SessionResponse
		err  error
	)
	if adjust {
		resp, err = a.service.AdjustClose(r.Context(), req)
	} else {
		resp, err = a.service.CloseSession(r.Context(), req)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (a *API) handleCashSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	summary, err := a.service.CashSummary(r.Context(), q.Get("tenant_id"), q.Get("date"), q.Get("register_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(q.Get("format"))) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"cuadre-%s.csv\"", summary.DateKey))
		_, _ = w.Write([]byte(reconcile.ToCSV(summary)))
	case "html", "pdf":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(reconcile.ToPrintableHTML(summary)))
	default:
		writeData(w, http.StatusOK, summary)
	}
}

func (a *API) handleManagerCode(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	switch r.Method {
	case http.MethodGet:
		status, err := a.service.ManagerCodeStatus(r.Context(), tenantID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, status)
	case http.MethodPut:
		var req domain.ManagerCodeSetRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.TenantID == "" {
			req.TenantID = tenantID
		}
		status, err := a.service.SetManagerCode(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, status)
	case http.MethodDelete:
		if err := a.service.ClearManagerCode(r.Context(), tenantID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}
