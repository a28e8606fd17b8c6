package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modalku/backend/internal/cache"
	"modalku/backend/internal/domain"
	"modalku/backend/internal/ledger"
	"modalku/backend/internal/service"
	"modalku/backend/internal/store/memory"
)

type testAPI struct {
	*API
	repo    *memory.Store
	handler http.Handler
}

// newTestAPI wires the real service, engine and auth manager over the seeded
// memory store so handler tests exercise the whole request path.
func newTestAPI(t *testing.T) *testAPI {
	return newTestAPIWithCache(t, cache.NoopIdempotencyCache{})
}

func newTestAPIWithCache(t *testing.T, idem cache.IdempotencyCache) *testAPI {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, ledger.NewEngine(repo), "main-store", nil, nil)
	auth := NewAuthManager(context.Background(), "test-secret-key", time.Hour, repo, nil)
	api := New(svc, auth, Options{AllowedOrigin: "*", Idempotency: idem, IdempotencyTTL: time.Minute})

	return &testAPI{API: api, repo: repo, handler: api.Handler()}
}

func (a *testAPI) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])

	rec = api.do(t, http.MethodPost, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "operator", Password: "operator123"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[domain.LoginResponse](t, rec)
	assert.Equal(t, RoleOperator, resp.Role)
	assert.NotEmpty(t, resp.ExpiresAt)

	rec = api.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "operator", Password: "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLedgerRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/v1/balance", "/api/v1/entries", "/api/v1/payments", "/api/v1/allocations", "/api/v1/ledger/verify"} {
		rec := api.do(t, http.MethodGet, path, "", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := api.do(t, http.MethodGet, "/api/v1/balance", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCapitalThenSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "operator", "operator123")

	rec := api.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{ProductID: "prd-kopi", Qty: 3, UnitPrice: 3500}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody[domain.SaleResponse](t, rec)
	assert.Equal(t, domain.LedgerRecorded, sale.Ledger)
	assert.Equal(t, int64(6000), sale.Debt.Remaining)

	rec = api.do(t, http.MethodPost, "/api/v1/payments", token, domain.CapitalRequest{Amount: "Rp 8.000", Note: "transfer"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	capital := decodeBody[domain.CapitalResponse](t, rec)
	assert.Equal(t, int64(8000), capital.Payment.Amount)
	assert.Equal(t, int64(2000), capital.Payment.Remaining)
	assert.Contains(t, capital.Confirmation, "Lunas: Kopi Sachet (Rp 6.000)")

	rec = api.do(t, http.MethodGet, "/api/v1/balance", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[domain.Balance](t, rec)
	assert.Equal(t, int64(6000), balance.TotalPayable)
	assert.Equal(t, int64(8000), balance.TotalPaid)
	assert.Equal(t, int64(2000), balance.Balance)
	assert.Equal(t, int64(2000), balance.AvailableCredit)

	rec = api.do(t, http.MethodGet, "/api/v1/entries?open=1", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[map[string][]domain.Entry](t, rec)
	assert.Empty(t, entries["entries"])

	rec = api.do(t, http.MethodGet, "/api/v1/payments?open=true", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payments := decodeBody[map[string][]domain.Payment](t, rec)
	require.Len(t, payments["payments"], 1)

	rec = api.do(t, http.MethodGet, "/api/v1/allocations?payment_id="+capital.Payment.PaymentID, token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	allocations := decodeBody[map[string][]domain.Allocation](t, rec)
	require.Len(t, allocations["allocations"], 1)
	assert.Equal(t, int64(6000), allocations["allocations"][0].Amount)
}

func TestCapitalErrors(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "operator", "operator123")

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "fractional amount", body: domain.CapitalRequest{Amount: "1500,50"}, want: http.StatusBadRequest},
		{name: "zero amount", body: domain.CapitalRequest{Amount: "0"}, want: http.StatusBadRequest},
		{name: "garbage amount", body: domain.CapitalRequest{Amount: "banyak"}, want: http.StatusBadRequest},
		{name: "unknown store", body: domain.CapitalRequest{StoreID: "ghost", Amount: "1000"}, want: http.StatusNotFound},
		{name: "unknown field", body: `{"amount":"1000","extra":true}`, want: http.StatusBadRequest},
		{name: "numeric amount", body: `{"amount":1000}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/v1/payments", token, tt.body, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSaleErrors(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(t, "operator", "operator123")

	rec := api.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{ProductID: "prd-missing", Qty: 1}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{ProductID: "prd-kopi"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/sales", token, nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestVoidSaleRoute(t *testing.T) {
	api := newTestAPI(t)
	operator := api.login(t, "operator", "operator123")
	admin := api.login(t, "admin", "admin123")

	rec := api.do(t, http.MethodPost, "/api/v1/payments", operator, domain.CapitalRequest{Amount: "10rb"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/v1/sales", operator, domain.SaleRequest{ProductID: "prd-kopi", Qty: 2, UnitPrice: 3500}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sale := decodeBody[domain.SaleResponse](t, rec)

	path := "/api/v1/sales/" + sale.Transaction.ID + "/void"
	rec = api.do(t, http.MethodPost, path, operator, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, path, admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[domain.VoidResult](t, rec)
	assert.Equal(t, int64(4000), result.CreditReleased)

	rec = api.do(t, http.MethodPost, path, admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sales/"+sale.Transaction.ID+"/refund", admin, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyRoute(t *testing.T) {
	api := newTestAPI(t)
	operator := api.login(t, "operator", "operator123")
	admin := api.login(t, "admin", "admin123")

	rec := api.do(t, http.MethodPost, "/api/v1/payments", operator, domain.CapitalRequest{Amount: "5000"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	capital := decodeBody[domain.CapitalResponse](t, rec)

	rec = api.do(t, http.MethodGet, "/api/v1/ledger/verify", operator, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/ledger/verify", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["ok"])

	api.repo.Corrupt(func(_ map[string]domain.Entry, payments map[string]domain.Payment, _ *[]domain.Allocation) {
		p := payments[capital.Payment.PaymentID]
		p.RemainingAmount = 1
		payments[p.ID] = p
	})

	rec = api.do(t, http.MethodGet, "/api/v1/ledger/verify", admin, nil, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		OK     bool                `json:"ok"`
		Report domain.VerifyReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.OK)
	require.Len(t, body.Report.Violations, 1)
	assert.Equal(t, domain.ViolationPaymentRemSum, body.Report.Violations[0].Kind)
}

func TestOperatorAccounts(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login(t, "admin", "admin123")

	rec := api.do(t, http.MethodPost, "/api/v1/users/operators", admin, OperatorCreateRequest{Username: "siti", Password: "rahasia1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/v1/users/operators", admin, OperatorCreateRequest{Username: "siti", Password: "rahasia1"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/users/operators", admin, OperatorCreateRequest{Username: "ab", Password: "rahasia1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/users/operators", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[map[string][]OperatorUser](t, rec)
	assert.Len(t, listed["operators"], 2)

	siti := api.login(t, "siti", "rahasia1")
	rec = api.do(t, http.MethodGet, "/api/v1/users/operators", siti, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIdempotentCapitalIsAppliedOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	idem := cache.NewRedisIdempotencyCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = idem.Close() })

	api := newTestAPIWithCache(t, idem)
	token := api.login(t, "operator", "operator123")
	headers := map[string]string{idempotencyHeader: "wa-msg-001"}

	first := api.do(t, http.MethodPost, "/api/v1/payments", token, domain.CapitalRequest{Amount: "8000"}, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := api.do(t, http.MethodPost, "/api/v1/payments", token, domain.CapitalRequest{Amount: "8000"}, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	payments, err := api.repo.ListPayments(context.Background(), "main-store", false)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	// The same key on another route is a different request.
	rec := api.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{ProductID: "prd-kopi", Qty: 1, UnitPrice: 3500}, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("Idempotent-Replayed"))
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	idem := cache.NewRedisIdempotencyCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = idem.Close() })

	api := newTestAPIWithCache(t, idem)
	token := api.login(t, "operator", "operator123")
	headers := map[string]string{idempotencyHeader: "retry-me"}

	rec := api.do(t, http.MethodPost, "/api/v1/payments", token, domain.CapitalRequest{Amount: "0"}, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/payments", token, domain.CapitalRequest{Amount: "3000"}, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Idempotent-Replayed"))
}

func TestIdempotencyKeyInFlight(t *testing.T) {
	mr := miniredis.RunT(t)
	idem := cache.NewRedisIdempotencyCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = idem.Close() })

	api := newTestAPIWithCache(t, idem)
	token := api.login(t, "operator", "operator123")

	fingerprint, err := requestFingerprint(domain.CapitalRequest{Amount: "3000"})
	require.NoError(t, err)
	claimed, err := idem.Claim(context.Background(), "/api/v1/payments:operator:busy", fingerprint, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	rec := api.do(t, http.MethodPost, "/api/v1/payments", token, domain.CapitalRequest{Amount: "3000"}, map[string]string{idempotencyHeader: "busy"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	payments, err := api.repo.ListPayments(context.Background(), "main-store", false)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestIdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	mr := miniredis.RunT(t)
	idem := cache.NewRedisIdempotencyCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = idem.Close() })

	api := newTestAPIWithCache(t, idem)
	token := api.login(t, "operator", "operator123")
	headers := map[string]string{idempotencyHeader: "wa-msg-002"}

	first := api.do(t, http.MethodPost, "/api/v1/payments", token, domain.CapitalRequest{Amount: "8000"}, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	rec := api.do(t, http.MethodPost, "/api/v1/payments", token, domain.CapitalRequest{Amount: "9000"}, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, rec.Header().Get("Idempotent-Replayed"))
	assert.Contains(t, rec.Body.String(), "different request")

	// Whitespace in the raw body does not change the decoded request.
	rec = api.do(t, http.MethodPost, "/api/v1/payments", token, `{ "amount" : "8000" }`, headers)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))

	payments, err := api.repo.ListPayments(context.Background(), "main-store", false)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(8000), payments[0].Amount)
}

func TestIdempotencyStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	idem := cache.NewRedisIdempotencyCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = idem.Close() })

	api := newTestAPIWithCache(t, idem)
	token := api.login(t, "operator", "operator123")
	mr.SetError("LOADING redis is loading the dataset")

	rec := api.do(t, http.MethodPost, "/api/v1/payments", token, domain.CapitalRequest{Amount: "3000"}, map[string]string{idempotencyHeader: "k1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
