package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/afrobirthday/storefront/internal/models"
	"github.com/afrobirthday/storefront/internal/payments"
)

func adminRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/admin/login", h.AdminLogin).Methods("POST")
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/orders", h.AdminListOrders).Methods("GET")
	admin.HandleFunc("/orders/{id}", h.AdminGetOrder).Methods("GET")
	admin.HandleFunc("/orders/{id}", h.AdminUpdateOrder).Methods("PATCH")
	admin.HandleFunc("/orders/{id}", h.AdminDeleteOrder).Methods("DELETE")
	admin.HandleFunc("/orders/{id}/refresh", h.AdminRefreshOrder).Methods("POST")
	admin.HandleFunc("/pricing", h.AdminPricing).Methods("GET")
	admin.HandleFunc("/pricing", h.AdminUpdatePricing).Methods("PUT")
	admin.HandleFunc("/stripe-settings", h.AdminStripeSettings).Methods("GET")
	admin.HandleFunc("/stripe-settings", h.AdminUpdateStripeSettings).Methods("PUT")
	return r
}

func adminToken(t *testing.T, env *testEnv) string {
	t.Helper()
	token, _, err := env.auth.Login("admin", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return token
}

func serveAdmin(env *testEnv, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	adminRouter(env.handlers).ServeHTTP(rec, req)
	return rec
}

func TestAdminLogin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec := serveAdmin(env, http.MethodPost, "/api/admin/login", "", `{"username":"admin","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = serveAdmin(env, http.MethodPost, "/api/admin/login", "", `{"username":"admin","password":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp adminLoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" || !resp.Success {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	rec = serveAdmin(env, http.MethodGet, "/api/admin/orders", resp.Token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("token from login rejected: %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "wrong scheme", header: "Basic YWRtaW46cHc="},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		adminRouter(env.handlers).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tt.name, rec.Code)
		}
	}
}

func TestAdminUpdateOrder_LeavesPaymentFieldsAlone(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := adminToken(t, env)
	order := env.seedOrder(t, models.ProviderStripe, "pi_admin")

	rec := serveAdmin(env, http.MethodPatch, "/api/admin/orders/"+order.ID.String(), token,
		`{"orderStatus":"processing","notes":"editing","cost":"4.20","status":"paid","total_cents":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored, err := env.orders.GetByID(t.Context(), order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.OrderStatus != models.FulfillmentProcessing || stored.Notes != "editing" || stored.CostCents != 420 {
		t.Fatalf("back-office fields not updated: %+v", stored)
	}
	if stored.Status != models.StatusPending || stored.TotalCents != 1999 || stored.ProviderAttemptRef != "pi_admin" {
		t.Fatalf("payment fields changed: %+v", stored)
	}
	if paid, _ := env.notifier.counts(); paid != 0 {
		t.Fatalf("admin edit must not notify, got %d", paid)
	}

	rec = serveAdmin(env, http.MethodPatch, "/api/admin/orders/"+order.ID.String(), token, `{"orderStatus":"shipped"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", rec.Code)
	}
}

func TestAdminOrderLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := adminToken(t, env)
	order := env.seedOrder(t, models.ProviderPayPal, "PAYPAL-STALE")

	rec := serveAdmin(env, http.MethodGet, "/api/admin/orders/"+uuid.NewString(), token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", rec.Code)
	}
	rec = serveAdmin(env, http.MethodGet, "/api/admin/orders/not-a-uuid", token, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}

	env.paypal.set(payments.OutcomeSucceeded)
	for i, wantResult := range []string{"applied", "replayed"} {
		rec = serveAdmin(env, http.MethodPost, "/api/admin/orders/"+order.ID.String()+"/refresh", token, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("refresh %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["status"] != "paid" || resp["result"] != wantResult {
			t.Fatalf("refresh %d: unexpected response %v", i, resp)
		}
	}
	if paid, _ := env.notifier.counts(); paid != 1 {
		t.Fatalf("expected one paid notification, got %d", paid)
	}

	rec = serveAdmin(env, http.MethodGet, "/api/admin/orders", token, "")
	var list struct {
		Orders []map[string]any `json:"orders"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Orders) != 1 || list.Orders[0]["provider_capture_ref"] != "cap_PAYPAL-STALE" {
		t.Fatalf("unexpected list: %v", list.Orders)
	}

	rec = serveAdmin(env, http.MethodDelete, "/api/admin/orders/"+order.ID.String(), token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = serveAdmin(env, http.MethodDelete, "/api/admin/orders/"+order.ID.String(), token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestAdminPricing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := adminToken(t, env)

	rec := serveAdmin(env, http.MethodPut, "/api/admin/pricing", token, `{"base":24.99,"expressDelivery":"5"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"base":24.99,"customSong":9.99,"expressDelivery":5.00}` {
		t.Fatalf("unexpected body %s", got)
	}

	rec = serveAdmin(env, http.MethodPut, "/api/admin/pricing", token, `{"customSong":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative price, got %d", rec.Code)
	}

	rec = serveAdmin(env, http.MethodGet, "/api/admin/pricing", token, "")
	if got := strings.TrimSpace(rec.Body.String()); got != `{"base":24.99,"customSong":9.99,"expressDelivery":5.00}` {
		t.Fatalf("negative update must not be stored, got %s", got)
	}
}

func TestAdminStripeSettings_RequiresEncryptionKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := adminToken(t, env)

	rec := serveAdmin(env, http.MethodPut, "/api/admin/stripe-settings", token, `{"secretKey":"pk_wrong"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong prefix, got %d", rec.Code)
	}

	rec = serveAdmin(env, http.MethodPut, "/api/admin/stripe-settings", token, `{"secretKey":"sk_test_abc"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "encryption key") {
		t.Fatalf("expected 400 without a sealer, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serveAdmin(env, http.MethodGet, "/api/admin/stripe-settings", token, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"hasSecretKey":false`) {
		t.Fatalf("unexpected settings response %d: %s", rec.Code, rec.Body.String())
	}
}
