package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cherrybook/internal/metrics"
	"cherrybook/internal/ratelimit"
	"cherrybook/internal/util"
	"cherrybook/pkg/search"
	"cherrybook/services/storefront/internal/app"
)

const (
	serviceName          = "storefront"
	sessionHeader        = "X-Session-Id"
	defaultCookieName    = "cherry_session"
	defaultSearchPerMin  = 30
	maxRequestBodyBytes  = 64 << 10
	searchRatePrefix     = "cherrybook:storefront:ratelimit:search"
	defaultSessionMaxAge = 2 * time.Hour
	healthTimeout        = 2 * time.Second
)

// Config holds server dependencies and HTTP-level settings.
type Config struct {
	App *app.App

	// SearchLimiter overrides the limiter built from the Redis settings.
	SearchLimiter            ratelimit.Limiter
	RedisAddr                string
	RedisPassword            string
	SearchRateLimitPerMinute int

	TrustedProxyCIDRs []string
	AllowedOrigins    []string

	SessionCookieName   string
	SessionCookieSecure bool
	SessionMaxAge       time.Duration
}

// Server exposes the storefront over HTTP.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	searchLimiter  ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	cookieName     string
	cookieSecure   bool
	sessionMaxAge  time.Duration
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// New constructs the server with routes configured. Without a Redis
// address the search limiter is kept in process.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}
	limiter := cfg.SearchLimiter
	if limiter == nil {
		perMinute := cfg.SearchRateLimitPerMinute
		if perMinute <= 0 {
			perMinute = defaultSearchPerMin
		}
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, searchRatePrefix, perMinute, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("server: init search limiter: %w", err)
			}
		} else {
			limiter = ratelimit.NewKeyedLimiter(perMinute, time.Minute)
		}
	}
	cookieName := strings.TrimSpace(cfg.SessionCookieName)
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	maxAge := cfg.SessionMaxAge
	if maxAge <= 0 {
		maxAge = defaultSessionMaxAge
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		searchLimiter:  limiter,
		trustedProxies: trusted,
		allowedOrigins: cfg.AllowedOrigins,
		cookieName:     cookieName,
		cookieSecure:   cfg.SessionCookieSecure,
		sessionMaxAge:  maxAge,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(serviceName, util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

// Close releases the rate limiter.
func (s *Server) Close() error {
	return s.searchLimiter.Close()
}

func (s *Server) routes() {
	s.handle("/healthz", "/healthz", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("/metrics", metrics.Handler())

	s.handle("/api/books", "/api/books", http.HandlerFunc(s.handleBooks))
	s.handle("/api/books/", "/api/books/{id}", http.HandlerFunc(s.handleBookByID))

	s.handle("/api/search", "/api/search", s.withSession(s.handleSearch))

	s.handle("/api/cart", "/api/cart", s.withSession(s.handleCart))
	s.handle("/api/cart/items", "/api/cart/items", s.withSession(s.handleCartItems))
	s.handle("/api/cart/items/", "/api/cart/items/{id}", s.withSession(s.handleCartItem))
	s.handle("/api/cart/checkout", "/api/cart/checkout", s.withSession(s.handleCheckout))
	s.handle("/api/orders/", "/api/orders/{id}", s.withSession(s.handleOrder))

	s.handle("/", "unmatched", http.HandlerFunc(s.handleNotFound))
}

// handle registers h under pattern and records request metrics labelled
// with route.
func (s *Server) handle(pattern, route string, h http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w}
		h.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	}))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.app.Ping(ctx); err != nil {
		util.LoggerFromContext(r.Context()).Warn("health.degraded", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
}

// catalog

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	books, err := s.app.Books(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books, "count": len(books)})
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/books/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "BOOK_NOT_FOUND", "book not found")
		return
	}
	book, err := s.app.Book(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// sessions

type sessionHandler func(http.ResponseWriter, *http.Request, string)

// withSession resolves the visitor's session from the cookie or the
// X-Session-Id header and issues a new one when neither names a live
// session.
func (s *Server) withSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested := strings.TrimSpace(r.Header.Get(sessionHeader))
		if c, err := r.Cookie(s.cookieName); err == nil && strings.TrimSpace(c.Value) != "" {
			requested = strings.TrimSpace(c.Value)
		}
		sessionID, created := s.app.ResolveSession(requested)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     s.cookieName,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   int(s.sessionMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   s.cookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		w.Header().Set(sessionHeader, sessionID)
		next(w, r, sessionID)
	})
}

// search

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		view, err := s.app.SearchState(r.Context(), sessionID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPost:
		if !s.allowSearch(w, r) {
			return
		}
		var req searchRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "SEARCH_QUERY_REQUIRED", "invalid request body")
			return
		}
		view, err := s.app.Search(r.Context(), sessionID, req.Query)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		view, err := s.app.ClearSearch(r.Context(), sessionID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeMethodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (s *Server) allowSearch(w http.ResponseWriter, r *http.Request) bool {
	key := util.ClientIP(r, s.trustedProxies)
	d := s.searchLimiter.Allow(r.Context(), key)
	if d.Allowed {
		return true
	}
	metrics.RecordRateLimited("/api/search")
	util.LoggerFromContext(r.Context()).Warn("search.rate_limited", "ip", key)
	retry := int(math.Ceil(d.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many searches, please slow down")
	return false
}

// cart

type cartOpenRequest struct {
	Open *bool `json:"open"`
}

type addItemRequest struct {
	BookID string `json:"bookId"`
}

type adjustItemRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		view, err := s.app.Cart(sessionID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPatch:
		var req cartOpenRequest
		if err := decodeJSON(w, r, &req); err != nil || req.Open == nil {
			writeError(w, r, http.StatusBadRequest, "CART_INVALID_REQUEST", "open is required")
			return
		}
		view, err := s.app.SetCartOpen(sessionID, *req.Open)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeMethodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (s *Server) handleCartItems(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.BookID) == "" {
		writeError(w, r, http.StatusBadRequest, "CART_INVALID_REQUEST", "bookId is required")
		return
	}
	view, err := s.app.AddToCart(r.Context(), sessionID, req.BookID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCartItem(w http.ResponseWriter, r *http.Request, sessionID string) {
	bookID := strings.TrimPrefix(r.URL.Path, "/api/cart/items/")
	if bookID == "" || strings.Contains(bookID, "/") {
		writeError(w, r, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req adjustItemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "CART_INVALID_REQUEST", "invalid request body")
			return
		}
		view, err := s.app.AdjustQuantity(sessionID, bookID, req.Delta)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		view, err := s.app.RemoveFromCart(sessionID, bookID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeMethodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	receipt, err := s.app.Checkout(r.Context(), sessionID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	orderID := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	if orderID == "" || strings.Contains(orderID, "/") {
		writeError(w, r, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
		return
	}
	order, err := s.app.Order(r.Context(), sessionID, orderID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// helpers

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
	})
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorCodeFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err, "path", r.URL.Path)
		msg = "internal server error"
	}
	writeError(w, r, status, code, msg)
}

func errorCodeFor(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrBookNotFound):
		return http.StatusNotFound, "BOOK_NOT_FOUND"
	case errors.Is(err, app.ErrQueryRequired):
		return http.StatusBadRequest, "SEARCH_QUERY_REQUIRED"
	case errors.Is(err, search.ErrSearchInFlight):
		return http.StatusConflict, "SEARCH_IN_FLIGHT"
	case errors.Is(err, app.ErrCartEmpty):
		return http.StatusConflict, "CART_EMPTY"
	case errors.Is(err, app.ErrInvalidDelta):
		return http.StatusBadRequest, "CART_INVALID_REQUEST"
	case errors.Is(err, app.ErrOrderNotFound):
		return http.StatusNotFound, "ORDER_NOT_FOUND"
	case errors.Is(err, app.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	default:
		return http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR"
	}
}
