// Package cashier wires the cart, scan ingestion and checkout into one selling session.
package cashier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kasir/m/domain"
	"kasir/m/internal/cart"
	"kasir/m/internal/checkout"
	"kasir/m/internal/client"
	"kasir/m/internal/scan"
)

// AllCategories is the pseudo category that disables category filtering.
const AllCategories = "All"

// LowStockThreshold marks products shown with a low-stock warning.
const LowStockThreshold = 5

// API is the remote surface a selling session uses.
type API interface {
	checkout.Service
	Products(ctx context.Context) ([]domain.Product, error)
	ProductByBarcode(ctx context.Context, code string) (domain.Product, error)
}

type Level int

const (
	Info Level = iota
	Success
	Failure
)

// Notifier shows short status messages to the cashier.
type Notifier interface {
	Notify(level Level, msg string)
}

type NotifierFunc func(level Level, msg string)

func (f NotifierFunc) Notify(level Level, msg string) { f(level, msg) }

// Session is one cashier's selling context.
type Session struct {
	api        API
	cart       *cart.Cart
	dispatcher *scan.Dispatcher
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.RWMutex
	products []domain.Product
}

type Option func(*sessionConfig)

type sessionConfig struct {
	notifier Notifier
	beeper   scan.Beeper
	logger   *zap.Logger
	now      func() time.Time
}

func WithNotifier(n Notifier) Option {
	return func(c *sessionConfig) { c.notifier = n }
}

func WithBeeper(b scan.Beeper) Option {
	return func(c *sessionConfig) { c.beeper = b }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *sessionConfig) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *sessionConfig) { c.now = now }
}

func New(api API, opts ...Option) *Session {
	cfg := sessionConfig{
		notifier: NotifierFunc(func(Level, string) {}),
		beeper:   scan.NopBeeper{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		api:      api,
		cart:     cart.New(nil),
		notifier: cfg.notifier,
		logger:   cfg.logger,
		now:      cfg.now,
	}
	s.dispatcher = scan.NewDispatcher(s.HandleScan,
		scan.WithFilter(domain.SourceCamera, scan.NewDebouncer(scan.CameraWindow)),
		scan.WithFilter(domain.SourceUSB, scan.NewDebouncer(scan.BatchWindow)),
		scan.WithBeeper(cfg.beeper),
		scan.WithLogger(cfg.logger),
	)
	return s
}

func (s *Session) Cart() *cart.Cart { return s.cart }

// Dispatcher is where every scan source of this session delivers events.
func (s *Session) Dispatcher() *scan.Dispatcher { return s.dispatcher }

// RefreshProducts reloads the catalogue and the cart's stock snapshot.
func (s *Session) RefreshProducts(ctx context.Context) error {
	products, err := s.api.Products(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.products = products
	s.mu.Unlock()
	s.cart.Refresh(products)
	s.logger.Debug("products refreshed", zap.Int("count", len(products)))
	return nil
}

func (s *Session) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Product(nil), s.products...)
}

// Search filters the catalogue by name or barcode substring and by category.
func (s *Session) Search(query, category string) []domain.Product {
	query = strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Product
	for _, p := range s.products {
		if category != "" && category != AllCategories && p.Category != category {
			continue
		}
		if query != "" && !matches(p, query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matches(p domain.Product, query string) bool {
	if strings.Contains(strings.ToLower(p.Name), query) {
		return true
	}
	if p.Barcode != nil && strings.Contains(strings.ToLower(*p.Barcode), query) {
		return true
	}
	return false
}

// Categories lists AllCategories followed by each category once, sorted.
func (s *Session) Categories() []string {
	s.mu.RLock()
	seen := make(map[string]bool)
	var cats []string
	for _, p := range s.products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		cats = append(cats, p.Category)
	}
	s.mu.RUnlock()
	sort.Strings(cats)
	return append([]string{AllCategories}, cats...)
}

// ManualEntry dispatches typed text as a scan.
func (s *Session) ManualEntry(ctx context.Context, text string) bool {
	ev, ok := scan.Manual(text, s.now())
	if !ok {
		return false
	}
	return s.dispatcher.Dispatch(ctx, ev)
}

// HandleScan resolves a code against the server and adds the product to the cart.
func (s *Session) HandleScan(ctx context.Context, ev domain.ScanEvent) {
	p, err := s.api.ProductByBarcode(ctx, ev.Code)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			s.notifier.Notify(Failure, "Product not found")
			return
		}
		s.logger.Warn("barcode lookup failed", zap.String("code", ev.Code), zap.Error(err))
		s.notifier.Notify(Failure, "Scan failed: "+Describe(err))
		return
	}
	s.add(p)
}

// AddProduct adds one unit of a catalogue product, as when it is picked from the product list.
func (s *Session) AddProduct(id int64) error {
	p, ok := s.cart.Product(id)
	if !ok {
		s.notifier.Notify(Failure, "Product not found")
		return client.ErrNotFound
	}
	return s.add(p)
}

func (s *Session) add(p domain.Product) error {
	if !p.InStock() {
		err := &cart.StockError{Name: p.Name, Stock: p.Stock}
		s.notifier.Notify(Failure, err.Error())
		return err
	}
	if err := s.cart.Add(p); err != nil {
		s.notifier.Notify(Failure, err.Error())
		return err
	}
	s.notifier.Notify(Success, p.Name+" added")
	return nil
}

// UpdateQuantity changes a line by delta, reporting a stock warning to the notifier.
func (s *Session) UpdateQuantity(id, delta int64) error {
	err := s.cart.UpdateQuantity(id, delta)
	if err != nil {
		s.notifier.Notify(Failure, err.Error())
	}
	return err
}

func (s *Session) SetQuantity(id, qty int64) error {
	err := s.cart.SetQuantity(id, qty)
	if err != nil {
		s.notifier.Notify(Failure, err.Error())
	}
	return err
}

// StartCheckout freezes the current cart into a checkout.
func (s *Session) StartCheckout() (*checkout.Checkout, error) {
	if s.cart.Empty() {
		return nil, checkout.ErrEmptyCart
	}
	return checkout.New(s.api, s.cart.Items(), s.cart.Total(), checkout.WithLogger(s.logger)), nil
}

// FinishCheckout closes co; after a completed sale the cart is cleared and stock reloaded.
func (s *Session) FinishCheckout(ctx context.Context, co *checkout.Checkout) error {
	if !co.Close() {
		return nil
	}
	s.cart.Clear()
	if err := s.RefreshProducts(ctx); err != nil {
		return fmt.Errorf("reload products: %w", err)
	}
	return nil
}

// Describe turns an error from the core into text for the cashier.
func Describe(err error) string {
	var apiErr *client.APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, client.ErrUnauthorized):
		return "Session expired, please log in again"
	case errors.Is(err, client.ErrTransport):
		return "Cannot reach the server"
	case errors.As(err, &apiErr):
		return apiErr.Error()
	}
	return err.Error()
}
