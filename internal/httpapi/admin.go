package httpapi

import (
	"errors"
	"net/http"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/service"
)

func (a *API) handleMerma(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		resp, err := a.service.ListMermaBatches(r.Context(), q.Get("tenant_id"), q.Get("date"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.MermaCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		batch, err := a.service.CreateMermaBatch(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusCreated, batch)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleMermaActions routes PATCH /merma/{id} and POST /merma/{id}/close.
func (a *API) handleMermaActions(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/v1/merma/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.MermaEditRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		batch, err := a.service.EditMermaBatch(r.Context(), parts[0], req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, batch)
	case len(parts) == 2 && parts[1] == "close":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.MermaCloseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		batch, err := a.service.CloseMermaBatch(r.Context(), parts[0], req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, batch)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown merma path"))
	}
}

func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenants, err := a.service.ListTenants(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, tenants)
	case http.MethodPost:
		var req domain.TenantCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tenant, err := a.service.CreateTenant(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusCreated, tenant)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTenantActions(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/v1/tenants/")
	if len(parts) != 2 || parts[1] != "active" {
		writeError(w, http.StatusNotFound, errors.New("unknown tenant path"))
		return
	}
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.TenantToggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tenant, err := a.service.SetTenantActive(r.Context(), parts[0], req.Active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, tenant)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	limit := parsePositiveLimit(q.Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), q.Get("tenant_id"), q.Get("date"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, logs)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		users, err := a.auth.ListUsers(r.Context(), actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, users)
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.auth.CreateUser(r.Context(), actor, req)
		if err != nil {
			if errors.Is(err, domain.ErrForbidden) {
				writeError(w, http.StatusForbidden, err)
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeData(w, http.StatusCreated, user)
	default:
		writeMethodNotAllowed(w)
	}
}
