package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tillpoint/backend/internal/authgate"
	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager,
// real Gate and real Service so handler tests exercise the complete
// request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, service.Options{})
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, repo)
	gate := authgate.New(repo)

	return New(svc, auth, gate, "*")
}

func postJSON(t *testing.T, api *API, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, api *API, path, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := getJSON(t, api, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := postJSON(t, api, "/api/v1/auth/login", "", "", map[string]string{
		"username": "alex",
		"password": "admin123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access_token in response")
	}
	if resp.Role != domain.RoleAdministration {
		t.Fatalf("expected administration role, got %s", resp.Role)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := postJSON(t, api, "/api/v1/auth/login", "", "", map[string]string{
		"username": "alex",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := getJSON(t, api, "/api/v1/products", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sam", "sales123")

	rec := getJSON(t, api, "/api/v1/products", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

func TestCreateProduct_RequiresAdministrationRole(t *testing.T) {
	api := newTestAPI(t)
	csrf := fetchCSRFToken(t, api)

	payload := domain.ProductCreateRequest{
		Name: "Desk Lamp", Category: "Homeware", PriceCents: 5999, InitialStock: 10, LowStockThreshold: 3,
	}

	salesToken := loginAs(t, api, "sam", "sales123")
	rec := postJSON(t, api, "/api/v1/products", salesToken, csrf, payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for sales role, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	adminToken := loginAsAdmin(t, api)
	rec = postJSON(t, api, "/api/v1/products", adminToken, csrf, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for administration role, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCreateSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sam", "sales123")
	csrf := fetchCSRFToken(t, api)

	rec := postJSON(t, api, "/api/v1/sales", token, csrf, domain.CreateSaleRequest{
		Lines:           []domain.SaleLine{{ProductID: "prod-7", Quantity: 2}},
		PaymentMethod:   domain.PaymentMethodCash,
		TaxRatePercent:  15,
		AmountPaidCents: 10000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if created.Sale.TotalCents != 9198 {
		t.Fatalf("expected total 9198, got %d", created.Sale.TotalCents)
	}
	// Operator is derived from the token, not the payload.
	if created.Sale.OperatorID != "user-sales" {
		t.Fatalf("expected operator from token, got %s", created.Sale.OperatorID)
	}

	rec = getJSON(t, api, "/api/v1/sales/"+created.Sale.ID, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching sale, got %d", rec.Code)
	}
}

func TestCreateSale_InsufficientStockIsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sam", "sales123")
	csrf := fetchCSRFToken(t, api)

	rec := postJSON(t, api, "/api/v1/sales", token, csrf, domain.CreateSaleRequest{
		Lines:           []domain.SaleLine{{ProductID: "prod-9", Quantity: 31}},
		PaymentMethod:   domain.PaymentMethodCash,
		AmountPaidCents: 10_000_000,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestVoidSale_RequiresValidPIN(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sam", "sales123")
	csrf := fetchCSRFToken(t, api)

	rec := postJSON(t, api, "/api/v1/sales", token, csrf, domain.CreateSaleRequest{
		Lines:           []domain.SaleLine{{ProductID: "prod-1", Quantity: 1}},
		PaymentMethod:   domain.PaymentMethodCash,
		AmountPaidCents: 100000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale creation failed: %d", rec.Code)
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	rec = postJSON(t, api, "/api/v1/sales/"+created.Sale.ID+"/void", token, csrf, domain.VoidSaleRequest{
		Reason: "wrong item", AuthorizationPIN: "000000",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong pin, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, api, "/api/v1/sales/"+created.Sale.ID+"/void", token, csrf, domain.VoidSaleRequest{
		Reason: "wrong item", AuthorizationPIN: "739154",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct pin, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var voided struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&voided); err != nil {
		t.Fatalf("decode voided sale: %v", err)
	}
	if voided.Sale.Status != domain.SaleStatusVoided {
		t.Fatalf("expected voided status, got %s", voided.Sale.Status)
	}
}

func TestReturnItemsEndpointRefunds(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sam", "sales123")
	csrf := fetchCSRFToken(t, api)

	rec := postJSON(t, api, "/api/v1/sales", token, csrf, domain.CreateSaleRequest{
		Lines:           []domain.SaleLine{{ProductID: "prod-7", Quantity: 2}},
		PaymentMethod:   domain.PaymentMethodCash,
		TaxRatePercent:  15,
		AmountPaidCents: 10000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale creation failed: %d", rec.Code)
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	rec = postJSON(t, api, "/api/v1/sales/"+created.Sale.ID+"/returns", token, csrf, domain.ReturnItemsRequest{
		Lines:            []domain.ReturnLine{{ProductID: "prod-7", Quantity: 1}},
		AuthorizationPIN: "739154",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var result struct {
		Sale        domain.Sale `json:"sale"`
		RefundCents int64       `json:"refund_cents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.RefundCents != 4599 {
		t.Fatalf("expected refund 4599, got %d", result.RefundCents)
	}
	if result.Sale.Status != domain.SaleStatusPartiallyReturned {
		t.Fatalf("expected partially_returned, got %s", result.Sale.Status)
	}
}

func TestTillSessionEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sam", "sales123")
	csrf := fetchCSRFToken(t, api)

	rec := postJSON(t, api, "/api/v1/till/sessions", token, csrf, domain.StartSessionRequest{
		OpeningBalanceCents: 500000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var started struct {
		Session domain.TillSession `json:"session"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&started); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if started.Session.OperatorID != "user-sales" {
		t.Fatalf("expected operator from token, got %s", started.Session.OperatorID)
	}

	rec = postJSON(t, api, "/api/v1/till/sessions", token, csrf, domain.StartSessionRequest{
		OpeningBalanceCents: 1000,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second active session, got %d", rec.Code)
	}

	rec = getJSON(t, api, "/api/v1/till/sessions/active", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for active session, got %d", rec.Code)
	}

	rec = postJSON(t, api, "/api/v1/till/sessions/"+started.Session.ID+"/close", token, csrf, domain.EndSessionRequest{
		CountedCashCents: 500000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 closing session, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var closed struct {
		Session domain.TillSession `json:"session"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&closed); err != nil {
		t.Fatalf("decode closed session: %v", err)
	}
	if closed.Session.Status != domain.SessionStatusClosed || closed.Session.DifferenceCents != 0 {
		t.Fatalf("expected balanced closed session, got %+v", closed.Session)
	}
}

func TestReportsRequireAdministration(t *testing.T) {
	api := newTestAPI(t)

	salesToken := loginAs(t, api, "sam", "sales123")
	if rec := getJSON(t, api, "/api/v1/reports/cashup", salesToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for sales role, got %d", rec.Code)
	}

	adminToken := loginAsAdmin(t, api)
	if rec := getJSON(t, api, "/api/v1/reports/cashup", adminToken); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for administration, got %d", rec.Code)
	}
	if rec := getJSON(t, api, "/api/v1/reports/reorder", adminToken); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for reorder report, got %d", rec.Code)
	}
}

func TestGetUnknownSaleIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "sam", "sales123")

	rec := getJSON(t, api, "/api/v1/sales/sale-missing", token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
