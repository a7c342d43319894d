package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cherrybook/internal/metrics"
	"cherrybook/internal/session"
	"cherrybook/internal/util"
	"cherrybook/pkg/cart"
	"cherrybook/pkg/catalog"
	"cherrybook/pkg/domain"
	"cherrybook/pkg/queue"
	"cherrybook/pkg/recommend"
	"cherrybook/pkg/search"
	"cherrybook/pkg/store"
)

// CheckoutMessage is shown after a successful order.
const CheckoutMessage = "Thank you for your order! The cherry is on its way."

const defaultSearchTimeout = 30 * time.Second

// Recommender ranks catalog books for a free-text query. It never fails.
type Recommender interface {
	Recommend(ctx context.Context, query string, books []domain.Book) domain.RecommendationResult
}

// OrderQueue hands checked-out carts to fulfilment.
type OrderQueue interface {
	Enqueue(ctx context.Context, order queue.Order) (queue.Order, error)
	GetOrder(ctx context.Context, orderID string) (queue.Order, bool, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	// Catalog overrides the catalog source. When nil, DatabaseURL selects
	// the Postgres store and an empty DatabaseURL the built-in seed.
	Catalog     catalog.Catalog
	DatabaseURL string

	Recommender Recommender
	Sessions    *session.Registry

	// Orders receives each checkout. Nil skips the hand-off.
	Orders OrderQueue

	// SearchTimeout bounds one recommendation call. The call is detached
	// from the HTTP request so a client disconnect still resolves the
	// session's search state.
	SearchTimeout time.Duration
}

// App is the storefront core: catalog, AI search, and per-session carts.
type App struct {
	catalog       catalog.Catalog
	keywords      *search.KeywordIndex
	recommender   Recommender
	sessions      *session.Registry
	orders        OrderQueue
	searchTimeout time.Duration
	closers       []func() error
}

// SearchView is what a visitor sees after or during a search.
type SearchView struct {
	State           domain.SearchState      `json:"state"`
	Books           []domain.Book           `json:"books"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	// Stale is set when a newer search or a clear superseded this one; the
	// view then reflects the newer state.
	Stale bool `json:"stale"`
}

// Receipt confirms a checkout.
type Receipt struct {
	Message   string      `json:"message"`
	OrderID   string      `json:"orderId,omitempty"`
	Items     cart.Ledger `json:"items"`
	Subtotal  float64     `json:"subtotal"`
	ItemCount int         `json:"itemCount"`
}

// New wires the application.
func New(cfg Config) (*App, error) {
	if cfg.Recommender == nil {
		return nil, errors.New("recommender required")
	}
	a := &App{
		recommender:   cfg.Recommender,
		sessions:      cfg.Sessions,
		orders:        cfg.Orders,
		searchTimeout: cfg.SearchTimeout,
	}
	if a.sessions == nil {
		a.sessions = session.NewRegistry(session.DefaultIdleTTL)
	}
	if a.searchTimeout <= 0 {
		a.searchTimeout = defaultSearchTimeout
	}

	switch {
	case cfg.Catalog != nil:
		a.catalog = cfg.Catalog
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		db, err := store.NewGormStore(cfg.DatabaseURL, catalog.Seed())
		if err != nil {
			return nil, fmt.Errorf("init postgres catalog: %w", err)
		}
		a.catalog = db
		a.closers = append(a.closers, db.Close)
	default:
		a.catalog = catalog.Default()
	}

	books, err := a.catalog.List(context.Background())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	idx, err := search.NewKeywordIndex(books)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build keyword index: %w", err)
	}
	a.keywords = idx
	a.closers = append(a.closers, idx.Close)
	return a, nil
}

// Close releases the keyword index and any database connection.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping reports whether the catalog backend is reachable. The in-memory
// catalog is always ready.
func (a *App) Ping(ctx context.Context) error {
	p, ok := a.catalog.(pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// Sessions exposes the registry for the sweeper.
func (a *App) Sessions() *session.Registry {
	return a.sessions
}

// ResolveSession returns the canonical session id for id, issuing a new
// session when id is blank or unknown.
func (a *App) ResolveSession(id string) (string, bool) {
	s, created := a.sessions.Resolve(id)
	return s.ID, created
}

func (a *App) session(id string) (*session.Session, error) {
	s, ok := a.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Books lists the catalog. A non-blank q narrows and ranks it by keyword
// relevance.
func (a *App) Books(ctx context.Context, q string) ([]domain.Book, error) {
	books, err := a.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	ids, err := a.keywords.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return search.Project(books, ids), nil
}

// Book returns one catalog entry.
func (a *App) Book(ctx context.Context, id string) (domain.Book, error) {
	b, ok, err := a.catalog.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return b, nil
}

// Search runs an AI recommendation for query and applies it to the
// session's search state unless a newer search has started since.
func (a *App) Search(ctx context.Context, sessionID, query string) (SearchView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchView{}, ErrQueryRequired
	}
	s, err := a.session(sessionID)
	if err != nil {
		return SearchView{}, err
	}
	books, err := a.catalog.List(ctx)
	if err != nil {
		return SearchView{}, fmt.Errorf("list catalog: %w", err)
	}

	tracker := s.Search()
	token, err := tracker.Begin(query)
	if err != nil {
		return SearchView{}, err
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.searchTimeout)
	result := a.recommender.Recommend(callCtx, query, books)
	cancel()

	applied := tracker.Resolve(token, recommend.RankedIDs(result), result.Message)
	state := tracker.Snapshot()
	view := SearchView{
		State:           state,
		Books:           search.Project(books, state.Results),
		Recommendations: []domain.Recommendation{},
		Stale:           !applied,
	}
	if applied {
		view.Recommendations = result.Recommendations
	} else {
		metrics.RecordStaleSearch()
		util.LoggerFromContext(ctx).Info("search.stale", "query", query, "session_id", sessionID)
	}
	return view, nil
}

// SearchState returns the session's search state and the books it displays.
func (a *App) SearchState(ctx context.Context, sessionID string) (SearchView, error) {
	s, err := a.session(sessionID)
	if err != nil {
		return SearchView{}, err
	}
	books, err := a.catalog.List(ctx)
	if err != nil {
		return SearchView{}, fmt.Errorf("list catalog: %w", err)
	}
	state := s.Search().Snapshot()
	return SearchView{
		State:           state,
		Books:           search.Project(books, state.Results),
		Recommendations: []domain.Recommendation{},
	}, nil
}

// ClearSearch returns the session to browsing the full catalog.
func (a *App) ClearSearch(ctx context.Context, sessionID string) (SearchView, error) {
	s, err := a.session(sessionID)
	if err != nil {
		return SearchView{}, err
	}
	s.Search().Clear()
	return a.SearchState(ctx, sessionID)
}

// Cart returns the session's cart.
func (a *App) Cart(sessionID string) (session.CartView, error) {
	s, err := a.session(sessionID)
	if err != nil {
		return session.CartView{}, err
	}
	return s.Cart(), nil
}

// AddToCart adds one copy of bookID and opens the cart.
func (a *App) AddToCart(ctx context.Context, sessionID, bookID string) (session.CartView, error) {
	s, err := a.session(sessionID)
	if err != nil {
		return session.CartView{}, err
	}
	book, err := a.Book(ctx, bookID)
	if err != nil {
		return session.CartView{}, err
	}
	_, view := s.UpdateCart(func(l cart.Ledger, _ bool) (cart.Ledger, bool) {
		return cart.Add(l, book), true
	})
	metrics.RecordCartOperation("add")
	return view, nil
}

// RemoveFromCart deletes bookID's line. Unknown ids are ignored.
func (a *App) RemoveFromCart(sessionID, bookID string) (session.CartView, error) {
	s, err := a.session(sessionID)
	if err != nil {
		return session.CartView{}, err
	}
	_, view := s.UpdateCart(func(l cart.Ledger, open bool) (cart.Ledger, bool) {
		return cart.Remove(l, bookID), open
	})
	metrics.RecordCartOperation("remove")
	return view, nil
}

// AdjustQuantity changes bookID's quantity by delta, never below one.
func (a *App) AdjustQuantity(sessionID, bookID string, delta int) (session.CartView, error) {
	if delta == 0 {
		return session.CartView{}, ErrInvalidDelta
	}
	s, err := a.session(sessionID)
	if err != nil {
		return session.CartView{}, err
	}
	_, view := s.UpdateCart(func(l cart.Ledger, open bool) (cart.Ledger, bool) {
		return cart.AdjustQuantity(l, bookID, delta), open
	})
	metrics.RecordCartOperation("adjust")
	return view, nil
}

// SetCartOpen shows or hides the cart.
func (a *App) SetCartOpen(sessionID string, open bool) (session.CartView, error) {
	s, err := a.session(sessionID)
	if err != nil {
		return session.CartView{}, err
	}
	_, view := s.UpdateCart(func(l cart.Ledger, _ bool) (cart.Ledger, bool) {
		return l, open
	})
	if open {
		metrics.RecordCartOperation("open")
	} else {
		metrics.RecordCartOperation("close")
	}
	return view, nil
}

// Checkout empties the cart and closes it. No payment is taken.
func (a *App) Checkout(ctx context.Context, sessionID string) (Receipt, error) {
	s, err := a.session(sessionID)
	if err != nil {
		return Receipt{}, err
	}
	empty := false
	before, _ := s.UpdateCart(func(l cart.Ledger, open bool) (cart.Ledger, bool) {
		if len(l) == 0 {
			empty = true
			return l, open
		}
		return cart.Clear(l), false
	})
	if empty {
		return Receipt{}, ErrCartEmpty
	}
	metrics.RecordCheckout(before.Subtotal)
	logger := util.LoggerFromContext(ctx)
	receipt := Receipt{
		Message:   CheckoutMessage,
		Items:     before.Lines,
		Subtotal:  before.Subtotal,
		ItemCount: before.ItemCount,
	}
	if a.orders != nil {
		order, err := a.orders.Enqueue(ctx, queue.NewOrder(sessionID, before.Lines))
		metrics.RecordOrderEnqueued(err)
		if err != nil {
			logger.Error("checkout.enqueue_failed", "session_id", sessionID, "err", err)
		} else {
			receipt.OrderID = order.ID
		}
	}
	logger.Info("checkout",
		"session_id", sessionID,
		"order_id", receipt.OrderID,
		"items", before.ItemCount,
		"subtotal", before.Subtotal,
	)
	return receipt, nil
}

// Order returns the fulfilment status of one of the session's orders.
func (a *App) Order(ctx context.Context, sessionID, orderID string) (queue.Order, error) {
	if _, err := a.session(sessionID); err != nil {
		return queue.Order{}, err
	}
	if a.orders == nil {
		return queue.Order{}, ErrOrderNotFound
	}
	order, ok, err := a.orders.GetOrder(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return queue.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !ok || order.SessionID != sessionID {
		return queue.Order{}, ErrOrderNotFound
	}
	return order, nil
}
