package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kedaipos/backend/internal/cart"
	"kedaipos/backend/internal/checkout"
	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/metrics"
	"kedaipos/backend/internal/period"
	"kedaipos/backend/internal/service"
	"kedaipos/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service         *service.Service
	auth            *AuthManager
	metrics         *metrics.Metrics
	logger          *zap.Logger
	allowedOrigin   string
	loginLimiter    *attemptLimiter
	registerLimiter *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, m *metrics.Metrics, logger *zap.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:         svc,
		auth:            auth,
		metrics:         m,
		logger:          logger,
		allowedOrigin:   allowedOrigin,
		loginLimiter:    newAttemptLimiter(5, time.Minute),
		registerLimiter: newAttemptLimiter(3, 10*time.Minute),
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

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
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
	anyone := []string{domain.RoleOwner, domain.RoleEmployee}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
	mux.HandleFunc("POST /api/v1/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("GET /api/v1/business", a.requireAuth(a.handleBusiness, anyone...))
	mux.HandleFunc("GET /api/v1/branches", a.requireAuth(a.handleListBranches, anyone...))
	mux.HandleFunc("POST /api/v1/branches", a.requireAuth(a.handleCreateBranch, domain.RoleOwner))
	mux.HandleFunc("GET /api/v1/users/employees", a.requireAuth(a.handleListEmployees, domain.RoleOwner))
	mux.HandleFunc("POST /api/v1/users/employees", a.requireAuth(a.handleCreateEmployee, domain.RoleOwner))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, anyone...))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, anyone...))
	mux.HandleFunc("GET /api/v1/stock-history", a.requireAuth(a.handleStockHistory, domain.RoleOwner))

	mux.HandleFunc("POST /api/v1/sessions", a.requireAuth(a.handleOpenSession, anyone...))
	mux.HandleFunc("GET /api/v1/sessions/{id}", a.requireAuth(a.handleGetSession, anyone...))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", a.requireAuth(a.handleDiscardSession, anyone...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/items", a.requireAuth(a.handleAddItem, anyone...))
	mux.HandleFunc("PATCH /api/v1/sessions/{id}/items/{index}", a.requireAuth(a.handleUpdateQuantity, anyone...))
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/items/{index}", a.requireAuth(a.handleRemoveItem, anyone...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/clear", a.requireAuth(a.handleClearCart, anyone...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/payment", a.requireAuth(a.handleBeginPayment, anyone...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/payment/method", a.requireAuth(a.handlePaymentMethod, anyone...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/payment/tender", a.requireAuth(a.handleTender, anyone...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/payment/cancel", a.requireAuth(a.handleCancelPayment, anyone...))
	mux.HandleFunc("POST /api/v1/sessions/{id}/complete", a.requireAuth(a.handleCompleteSale, anyone...))

	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales, anyone...))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale, anyone...))
	mux.HandleFunc("GET /api/v1/reports/{kind}", a.requireAuth(a.handleReport, anyone...))

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
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !a.registerLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many registration attempts"))
		return
	}

	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Register(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.logger.Info("business registered", zap.String("businessId", resp.BusinessID), zap.String("actor", resp.ActorID))
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
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
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleBusiness(w http.ResponseWriter, r *http.Request) {
	business, err := a.service.Business(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"business": business})
}

func (a *API) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := a.service.ListBranches(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (a *API) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req domain.BranchCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	branch, err := a.service.CreateBranch(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"branch": branch})
}

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := a.service.ListEmployees(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (a *API) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	owner, _ := service.ActorFromContext(r.Context())
	user, err := a.auth.CreateEmployee(r.Context(), owner, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.logger.Info("audit",
		zap.String("action", "employee_create"),
		zap.String("entityType", "user"),
		zap.String("entityId", user.ID),
		zap.String("actor", owner.ID),
		zap.String("businessId", owner.BusinessID),
		zap.String("branchId", user.BranchID))
	writeJSON(w, http.StatusCreated, map[string]any{"employee": user})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		products, err := a.service.ListProducts(r.Context(), query.Get("branchId"), query.Get("search"))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleProductActions serves everything below /api/v1/products/:
// low-stock, barcode/{code}, {id}, {id}/stock and {id}/history.
func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"), "/")
	parts := strings.Split(tail, "/")
	if tail == "" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, errors.New("unknown product route"))
		return
	}

	switch {
	case len(parts) == 1 && parts[0] == "low-stock":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		products, err := a.service.LowStock(r.Context(), r.URL.Query().Get("branchId"))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})

	case len(parts) == 2 && parts[0] == "barcode":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		resp, err := a.service.ScanBarcode(r.Context(), parts[1])
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case len(parts) == 1:
		a.handleProduct(w, r, parts[0])

	case parts[1] == "stock":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.StockAdjustRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.AdjustStock(r.Context(), parts[0], req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})

	case parts[1] == "history":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
		history, err := a.service.StockHistory(r.Context(), parts[0], limit)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})

	default:
		writeError(w, http.StatusNotFound, errors.New("unknown product route"))
	}
}

func (a *API) handleProduct(w http.ResponseWriter, r *http.Request, productID string) {
	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), productID)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), productID, req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	history, err := a.service.StockHistory(r.Context(), "", limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	list, err := a.service.ListSales(r.Context(), reportQuery(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": list})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func reportQuery(r *http.Request) domain.ReportQuery {
	query := r.URL.Query()
	topN, _ := strconv.Atoi(strings.TrimSpace(query.Get("topN")))
	return domain.ReportQuery{
		Period:   strings.TrimSpace(query.Get("period")),
		Start:    strings.TrimSpace(query.Get("start")),
		End:      strings.TrimSpace(query.Get("end")),
		BranchID: strings.TrimSpace(query.Get("branchId")),
		Search:   strings.TrimSpace(query.Get("search")),
		TopN:     topN,
	}
}

// writeServiceError maps domain and service errors onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSetupRequired):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error(), "redirect": "setup"})
		return
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, service.ErrForbidden), errors.Is(err, ErrAccountInactive):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, cart.ErrInsufficientStock),
		errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, checkout.ErrCartChanged):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrValidation),
		errors.Is(err, period.ErrInvalidDate),
		errors.Is(err, cart.ErrInactiveProduct),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, checkout.ErrInvalidState),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInsufficientPayment),
		errors.Is(err, checkout.ErrUnsupportedPaymentMethod),
		errors.Is(err, service.ErrConfirmationFirst):
		writeError(w, http.StatusBadRequest, err)
	default:
		a.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)

		a.metrics.ObserveRequest(r.Method, rec.status, elapsed)
		a.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed))
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

// writeError hides the message of 5xx responses; 4xx messages are user
// facing.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
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
