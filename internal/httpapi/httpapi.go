package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"modalku/backend/internal/cache"
	"modalku/backend/internal/domain"
	"modalku/backend/internal/ledger"
	"modalku/backend/internal/service"
	"modalku/backend/internal/store"
)

const idempotencyHeader = "Idempotency-Key"

var (
	errIdempotencyInFlight = errors.New("a request with this idempotency key is still in progress")
	errIdempotencyReused   = errors.New("idempotency key was already used with a different request")
)

type Options struct {
	AllowedOrigin  string
	Idempotency    cache.IdempotencyCache
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigin  string
	idempotency    cache.IdempotencyCache
	idempotencyTTL time.Duration
	loginLimiter   *attemptLimiter
	logger         *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Idempotency == nil {
		opts.Idempotency = cache.NoopIdempotencyCache{}
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &API{
		service:        svc,
		auth:           auth,
		allowedOrigin:  opts.AllowedOrigin,
		idempotency:    opts.Idempotency,
		idempotencyTTL: opts.IdempotencyTTL,
		loginLimiter:   newAttemptLimiter(5, time.Minute),
		logger:         opts.Logger,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0]
	for _, ts := range l.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/payments", a.requireAuth(a.handlePayments, RoleOperator, RoleAdmin))
	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, RoleOperator, RoleAdmin))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, RoleAdmin))
	mux.HandleFunc("/api/v1/balance", a.requireAuth(a.handleBalance, RoleOperator, RoleAdmin))
	mux.HandleFunc("/api/v1/entries", a.requireAuth(a.handleEntries, RoleOperator, RoleAdmin))
	mux.HandleFunc("/api/v1/allocations", a.requireAuth(a.handleAllocations, RoleOperator, RoleAdmin))
	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, RoleOperator, RoleAdmin))
	mux.HandleFunc("/api/v1/ledger/verify", a.requireAuth(a.handleVerify, RoleAdmin))
	mux.HandleFunc("/api/v1/users/operators", a.requireAuth(a.handleOperators, RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrInactiveAccount) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		payments, err := a.service.ListPayments(r.Context(), r.URL.Query().Get("store_id"), queryFlag(r, "open"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
	case http.MethodPost:
		var req domain.CapitalRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.idempotent(w, r, req, func(ctx context.Context) (int, any, error) {
			resp, err := a.service.RecordCapital(ctx, req)
			return http.StatusCreated, resp, err
		})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.idempotent(w, r, req, func(ctx context.Context) (int, any, error) {
		resp, err := a.service.RecordSale(ctx, req)
		return http.StatusCreated, resp, err
	})
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/sales/"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/void") {
		writeError(w, http.StatusBadRequest, errors.New("invalid sale action path"))
		return
	}
	transactionID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/void")
	transactionID = strings.TrimSpace(strings.Trim(transactionID, "/"))
	if transactionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("transaction id required"))
		return
	}

	resp, err := a.service.VoidSale(r.Context(), transactionID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	balance, err := a.service.GetBalance(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	entries, err := a.service.ListEntries(r.Context(), r.URL.Query().Get("store_id"), queryFlag(r, "open"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleAllocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	allocations, err := a.service.ListAllocations(r.Context(), store.AllocationFilter{
		StoreID:   query.Get("store_id"),
		PaymentID: strings.TrimSpace(query.Get("payment_id")),
		EntryID:   strings.TrimSpace(query.Get("entry_id")),
		Limit:     parsePositiveLimit(query.Get("limit"), 100, 500),
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allocations": allocations})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	products, err := a.service.ListProducts(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

// handleVerify answers 200 for a clean ledger and 409 with the same report
// shape when rows disagree with their allocations.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	report, err := a.service.Verify(r.Context(), r.URL.Query().Get("store_id"))
	if errors.Is(err, ledger.ErrInvariantViolation) {
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "report": report})
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "report": report})
}

func (a *API) handleOperators(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"operators": a.auth.ListOperators(r.Context())})
	case http.MethodPost:
		var req OperatorCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.auth.CreateOperator(r.Context(), req)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"operator": user})
	default:
		writeMethodNotAllowed(w)
	}
}

// idempotent runs handle at most once per Idempotency-Key. Keys are scoped
// to the route and the caller, and a finished response is replayed verbatim.
// A key reused with a different decoded request is rejected.
func (a *API) idempotent(w http.ResponseWriter, r *http.Request, req any, handle func(ctx context.Context) (int, any, error)) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" {
		status, payload, err := handle(ctx)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, status, payload)
		return
	}

	fingerprint, err := requestFingerprint(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	actor, _ := service.ActorFromContext(ctx)
	scoped := r.URL.Path + ":" + actor.Username + ":" + key
	claimed, err := a.idempotency.Claim(ctx, scoped, fingerprint, a.idempotencyTTL)
	if err != nil {
		a.logger.Error("claim idempotency key", zap.String("key", scoped), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, errors.New("idempotency store unavailable"))
		return
	}
	if !claimed {
		stored, found, err := a.idempotency.Lookup(ctx, scoped)
		if err != nil {
			a.logger.Error("lookup idempotency key", zap.String("key", scoped), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, errors.New("idempotency store unavailable"))
			return
		}
		if found && stored.Fingerprint != fingerprint {
			writeError(w, http.StatusUnprocessableEntity, errIdempotencyReused)
			return
		}
		if !found || !stored.Done {
			writeError(w, http.StatusConflict, errIdempotencyInFlight)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		writeRaw(w, stored.Status, stored.Body)
		return
	}

	status, payload, err := handle(ctx)
	if err != nil {
		if relErr := a.idempotency.Release(context.WithoutCancel(ctx), scoped); relErr != nil {
			a.logger.Warn("release idempotency key", zap.String("key", scoped), zap.Error(relErr))
		}
		writeError(w, statusFor(err), err)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	saved := cache.StoredResponse{Status: status, Body: body, Fingerprint: fingerprint}
	if err := a.idempotency.Save(context.WithoutCancel(ctx), scoped, saved, a.idempotencyTTL); err != nil {
		a.logger.Error("save idempotent response", zap.String("key", scoped), zap.Error(err))
	}
	writeRaw(w, status, body)
}

func requestFingerprint(req any) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// statusFor maps domain and storage errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrStoreNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrStoreMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func queryFlag(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the cause of 5xx responses from the client; it goes to the
// log instead.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		zap.L().Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = http.StatusText(status)
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
