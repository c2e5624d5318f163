// Package client is a typed Go client for the POS backend: REST calls, the
// realtime connection and a cash register view that recomputes the reconciliation
// locally.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"deleonpos/backend/internal/domain"
	"deleonpos/backend/internal/reconcile"
)

type Client struct {
	baseURL  string
	http     *http.Client
	stream   *http.Client
	validate *validator.Validate

	mu    sync.RWMutex
	token string
	csrf  string
}

// New builds a client for baseURL. A nil httpClient gets a 15 second timeout; event
// streams always use a client without a timeout on the same transport.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		stream:   &http.Client{Transport: httpClient.Transport},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Login(ctx context.Context, username, password string) (domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil, domain.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	c.SetToken(resp.AccessToken)
	return resp, nil
}

// decodeBody is the one place response shapes are interpreted. A JSON object whose
// only key is "data" is an envelope and the payload is its value; anything else is
// the payload itself. An empty body leaves out untouched.
func decodeBody(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope) == 1 {
		if data, ok := envelope["data"]; ok {
			raw = data
		}
	}
	return json.Unmarshal(raw, out)
}

func parseAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
	}
	if apiErr.Code == "" && status >= 500 {
		apiErr.Code = "internal"
	}
	return apiErr
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

func (c *Client) refreshCSRF(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"csrf_token"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/auth/csrf-token", nil, nil, "", &resp); err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	c.mu.Lock()
	c.csrf = resp.Token
	c.mu.Unlock()
	return resp.Token, nil
}

// do runs one request. Mutating calls carry a CSRF token, fetched on first use and
// refreshed once if the server rejects it.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}
	if !isMutating(method) || path == "/api/v1/auth/login" {
		return c.send(ctx, method, path, query, payload, "", out)
	}

	c.mu.RLock()
	csrf := c.csrf
	c.mu.RUnlock()
	if csrf == "" {
		var err error
		if csrf, err = c.refreshCSRF(ctx); err != nil {
			return err
		}
	}
	err := c.send(ctx, method, path, query, payload, csrf, out)
	if apiErr, ok := asAPIError(err); ok && apiErr.Status == http.StatusForbidden && strings.Contains(apiErr.Message, "CSRF") {
		if csrf, err = c.refreshCSRF(ctx); err != nil {
			return err
		}
		return c.send(ctx, method, path, query, payload, csrf, out)
	}
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, payload []byte) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, csrf string, out any) error {
	req, err := c.newRequest(ctx, method, path, query, payload)
	if err != nil {
		return err
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		return parseAPIError(res.StatusCode, raw)
	}
	return decodeBody(raw, out)
}

// check validates a request before it leaves the process.
func (c *Client) check(req any) error {
	if err := c.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: %s", ErrInvalidLocalInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidLocalInput, err)
	}
	return nil
}

func scopeQuery(tenantID, date string) url.Values {
	q := url.Values{}
	if tenantID != "" {
		q.Set("tenant_id", tenantID)
	}
	if date != "" {
		q.Set("date", date)
	}
	return q
}

type Me struct {
	Username     string              `json:"username"`
	Role         domain.Role         `json:"role"`
	TenantID     string              `json:"tenant_id"`
	Capabilities domain.Capabilities `json:"capabilities"`
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	err := c.do(ctx, http.MethodGet, "/api/v1/me/capabilities", nil, nil, &me)
	return me, err
}

func (c *Client) ListOrders(ctx context.Context, tenantID, date string) (domain.OrderListResponse, error) {
	var resp domain.OrderListResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/orders", scopeQuery(tenantID, date), nil, &resp)
	return resp, err
}

func (c *Client) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	if err := c.check(req); err != nil {
		return domain.Order{}, err
	}
	var order domain.Order
	err := c.do(ctx, http.MethodPost, "/api/v1/orders", nil, req, &order)
	return order, err
}

func (c *Client) Checkout(ctx context.Context, orderID string, req domain.CheckoutRequest) (domain.Order, error) {
	if err := c.check(req); err != nil {
		return domain.Order{}, err
	}
	var order domain.Order
	err := c.do(ctx, http.MethodPost, "/api/v1/orders/"+url.PathEscape(orderID)+"/checkout", nil, req, &order)
	return order, err
}

func (c *Client) SplitOrder(ctx context.Context, orderID string, req domain.SplitOrderRequest) (domain.SplitOrderResponse, error) {
	var resp domain.SplitOrderResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/orders/"+url.PathEscape(orderID)+"/split", nil, req, &resp)
	return resp, err
}

func (c *Client) Invoice(ctx context.Context, orderID, splitBillID string) (domain.InvoiceResponse, error) {
	q := url.Values{}
	if splitBillID != "" {
		q.Set("split_bill_id", splitBillID)
	}
	var resp domain.InvoiceResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(orderID)+"/invoice", q, nil, &resp)
	return resp, err
}

func (c *Client) GetSession(ctx context.Context, tenantID, date, registerID string) (domain.SessionResponse, error) {
	q := scopeQuery(tenantID, date)
	q.Set("register_id", registerID)
	var resp domain.SessionResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/cash/session", q, nil, &resp)
	return resp, err
}

func (c *Client) ListSessions(ctx context.Context, tenantID, date string) ([]domain.CashSession, error) {
	var sessions []domain.CashSession
	err := c.do(ctx, http.MethodGet, "/api/v1/cash/sessions", scopeQuery(tenantID, date), nil, &sessions)
	return sessions, err
}

func (c *Client) OpenSession(ctx context.Context, req domain.SessionOpenRequest) (domain.SessionResponse, error) {
	return c.cashMutation(ctx, "/api/v1/cash/open", req)
}

func (c *Client) AddCash(ctx context.Context, req domain.SessionAddCashRequest) (domain.SessionResponse, error) {
	return c.cashMutation(ctx, "/api/v1/cash/add", req)
}

func (c *Client) AdjustOpening(ctx context.Context, req domain.SessionAdjustOpeningRequest) (domain.SessionResponse, error) {
	return c.cashMutation(ctx, "/api/v1/cash/adjust-opening", req)
}

func (c *Client) CloseSession(ctx context.Context, req domain.SessionCloseRequest) (domain.SessionResponse, error) {
	return c.cashMutation(ctx, "/api/v1/cash/close", req)
}

func (c *Client) AdjustClose(ctx context.Context, req domain.SessionCloseRequest) (domain.SessionResponse, error) {
	return c.cashMutation(ctx, "/api/v1/cash/adjust-close", req)
}

func (c *Client) cashMutation(ctx context.Context, path string, req any) (domain.SessionResponse, error) {
	if err := c.check(req); err != nil {
		return domain.SessionResponse{}, err
	}
	var resp domain.SessionResponse
	err := c.do(ctx, http.MethodPost, path, nil, req, &resp)
	return resp, err
}

// CashSummary is the server-side reconciliation. CashRegisterView computes the
// same figures locally.
func (c *Client) CashSummary(ctx context.Context, tenantID, date, registerID string) (reconcile.Summary, error) {
	q := scopeQuery(tenantID, date)
	if registerID != "" {
		q.Set("register_id", registerID)
	}
	var summary reconcile.Summary
	err := c.do(ctx, http.MethodGet, "/api/v1/cash/summary", q, nil, &summary)
	return summary, err
}

func (c *Client) ManagerCodeStatus(ctx context.Context, tenantID string) (domain.ManagerCodeStatus, error) {
	var status domain.ManagerCodeStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/manager-code", scopeQuery(tenantID, ""), nil, &status)
	return status, err
}

func (c *Client) SetManagerCode(ctx context.Context, req domain.ManagerCodeSetRequest) (domain.ManagerCodeStatus, error) {
	if err := c.check(req); err != nil {
		return domain.ManagerCodeStatus{}, err
	}
	var status domain.ManagerCodeStatus
	err := c.do(ctx, http.MethodPut, "/api/v1/manager-code", nil, req, &status)
	return status, err
}

func (c *Client) ClearManagerCode(ctx context.Context, tenantID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/manager-code", scopeQuery(tenantID, ""), nil, nil)
}

func (c *Client) ListMerma(ctx context.Context, tenantID, date string) (domain.MermaListResponse, error) {
	var resp domain.MermaListResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/merma", scopeQuery(tenantID, date), nil, &resp)
	return resp, err
}

func (c *Client) CreateMerma(ctx context.Context, req domain.MermaCreateRequest) (domain.MermaBatch, error) {
	if err := c.check(req); err != nil {
		return domain.MermaBatch{}, err
	}
	var batch domain.MermaBatch
	err := c.do(ctx, http.MethodPost, "/api/v1/merma", nil, req, &batch)
	return batch, err
}

func (c *Client) CloseMerma(ctx context.Context, batchID string, req domain.MermaCloseRequest) (domain.MermaBatch, error) {
	if err := c.check(req); err != nil {
		return domain.MermaBatch{}, err
	}
	var batch domain.MermaBatch
	err := c.do(ctx, http.MethodPost, "/api/v1/merma/"+url.PathEscape(batchID)+"/close", nil, req, &batch)
	return batch, err
}

func (c *Client) EditMerma(ctx context.Context, batchID string, req domain.MermaEditRequest) (domain.MermaBatch, error) {
	if err := c.check(req); err != nil {
		return domain.MermaBatch{}, err
	}
	var batch domain.MermaBatch
	err := c.do(ctx, http.MethodPatch, "/api/v1/merma/"+url.PathEscape(batchID), nil, req, &batch)
	return batch, err
}

// openEvents starts the server-sent event stream. The caller closes the body.
func (c *Client) openEvents(ctx context.Context, tenantID string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/events", scopeQuery(tenantID, ""), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	res, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))
		return nil, parseAPIError(res.StatusCode, raw)
	}
	return res, nil
}
