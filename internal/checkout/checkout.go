// Package checkout turns a cart into a committed sale.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kasir/m/domain"
)

var (
	ErrCannotPay   = errors.New("paid amount does not cover the total")
	ErrInFlight    = errors.New("payment is already being processed")
	ErrCompleted   = errors.New("sale already completed")
	ErrEmptyCart   = errors.New("cart is empty")
	ErrEmptyCode   = errors.New("enter a promo code")
	ErrInvalidMode = errors.New("unknown payment method")
)

// QuickPayAmounts are the preset cash amounts offered next to the paid field.
var QuickPayAmounts = []int64{20000, 50000, 100000, 150000, 200000}

// Service is the part of the remote API a checkout needs.
type Service interface {
	ValidateDiscount(ctx context.Context, code string, subtotal int64) (domain.DiscountQuote, error)
	CreateTransaction(ctx context.Context, req domain.TransactionRequest, idempotencyKey string) (domain.Receipt, error)
}

type State int

const (
	Editing State = iota
	Completed
)

// Quote is the derived payment state shown while editing.
type Quote struct {
	Subtotal       int64
	DiscountAmount int64
	Total          int64
	Paid           int64
	Change         int64
	Shortfall      int64
	CanPay         bool
}

// Checkout is one payment attempt for a fixed set of cart items.
type Checkout struct {
	svc      Service
	items    []domain.TransactionItem
	subtotal int64
	key      string
	logger   *zap.Logger

	mu       sync.Mutex
	discount *domain.Discount
	method   domain.PaymentMethod
	paidText string
	notes    string
	state    State
	inFlight bool
	receipt  domain.Receipt
}

type Option func(*Checkout)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Checkout) { c.logger = logger }
}

// WithDiscount starts the checkout with a discount already applied.
func WithDiscount(d *domain.Discount) Option {
	return func(c *Checkout) { c.discount = d }
}

// WithIdempotencyKey overrides the generated key.
func WithIdempotencyKey(key string) Option {
	return func(c *Checkout) { c.key = key }
}

// New starts a checkout in cash mode. items and subtotal are taken from the cart at open time.
func New(svc Service, items []domain.TransactionItem, subtotal int64, opts ...Option) *Checkout {
	c := &Checkout{
		svc:      svc,
		items:    append([]domain.TransactionItem(nil), items...),
		subtotal: subtotal,
		key:      uuid.NewString(),
		logger:   zap.NewNop(),
		method:   domain.PaymentCash,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseAmount reads the leading digits of text, ignoring surrounding space. Anything else is 0.
func ParseAmount(text string) int64 {
	text = strings.TrimSpace(text)
	end := 0
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseInt(text[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (c *Checkout) Quote() Quote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quote()
}

func (c *Checkout) quote() Quote {
	q := Quote{Subtotal: c.subtotal}
	q.DiscountAmount = c.discount.Amount(c.subtotal)
	q.Total = c.subtotal - q.DiscountAmount
	q.Paid = ParseAmount(c.paidText)

	if q.Paid >= q.Total {
		q.Change = q.Paid - q.Total
		q.CanPay = true
	} else {
		q.Shortfall = q.Total - q.Paid
	}
	if c.method != domain.PaymentCash {
		// Non-cash tender is sent as the exact total, so it is always payable.
		q.Shortfall = 0
		q.CanPay = true
	}
	return q
}

// ApplyPromo validates code against the current subtotal. On failure the previous discount stays.
func (c *Checkout) ApplyPromo(ctx context.Context, code string) (domain.DiscountQuote, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.DiscountQuote{}, ErrEmptyCode
	}
	c.mu.Lock()
	if c.state == Completed {
		c.mu.Unlock()
		return domain.DiscountQuote{}, ErrCompleted
	}
	subtotal := c.subtotal
	c.mu.Unlock()

	q, err := c.svc.ValidateDiscount(ctx, code, subtotal)
	if err != nil {
		c.logger.Info("promo rejected", zap.String("code", code), zap.Error(err))
		return domain.DiscountQuote{}, err
	}

	c.mu.Lock()
	d := q.Discount
	c.discount = &d
	c.mu.Unlock()
	c.logger.Info("promo applied", zap.String("code", d.Code), zap.Int64("amount", d.Amount(subtotal)))
	return q, nil
}

// RemovePromo drops the applied discount.
func (c *Checkout) RemovePromo() {
	c.mu.Lock()
	c.discount = nil
	c.mu.Unlock()
}

func (c *Checkout) Discount() *domain.Discount {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discount == nil {
		return nil
	}
	d := *c.discount
	return &d
}

func (c *Checkout) SetMethod(m domain.PaymentMethod) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, m)
	}
	c.mu.Lock()
	c.method = m
	c.mu.Unlock()
	return nil
}

func (c *Checkout) Method() domain.PaymentMethod {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.method
}

// SetPaid stores the tendered amount as typed.
func (c *Checkout) SetPaid(text string) {
	c.mu.Lock()
	c.paidText = text
	c.mu.Unlock()
}

// PayExact sets the paid amount to the final total.
func (c *Checkout) PayExact() {
	c.mu.Lock()
	c.paidText = strconv.FormatInt(c.quote().Total, 10)
	c.mu.Unlock()
}

func (c *Checkout) SetNotes(notes string) {
	c.mu.Lock()
	c.notes = strings.TrimSpace(notes)
	c.mu.Unlock()
}

// Key is the idempotency key sent with every submission of this checkout.
func (c *Checkout) Key() string {
	return c.key
}

// Confirm submits the sale. Only one submission runs at a time, and a completed checkout
// cannot be submitted again.
func (c *Checkout) Confirm(ctx context.Context) (domain.Receipt, error) {
	c.mu.Lock()
	switch {
	case c.state == Completed:
		c.mu.Unlock()
		return domain.Receipt{}, ErrCompleted
	case c.inFlight:
		c.mu.Unlock()
		return domain.Receipt{}, ErrInFlight
	case len(c.items) == 0:
		c.mu.Unlock()
		return domain.Receipt{}, ErrEmptyCart
	}
	q := c.quote()
	if !q.CanPay {
		c.mu.Unlock()
		return domain.Receipt{}, ErrCannotPay
	}
	req := c.request(q)
	c.inFlight = true
	c.mu.Unlock()

	receipt, err := c.svc.CreateTransaction(ctx, req, c.key)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err != nil {
		c.logger.Warn("payment rejected", zap.String("key", c.key), zap.Error(err))
		return domain.Receipt{}, err
	}
	c.state = Completed
	c.receipt = receipt
	c.logger.Info("sale completed",
		zap.Int64("transaction_id", receipt.ID),
		zap.Int64("total", receipt.Total),
		zap.String("method", string(receipt.PaymentMethod)),
	)
	return receipt, nil
}

func (c *Checkout) request(q Quote) domain.TransactionRequest {
	req := domain.TransactionRequest{
		Items:         append([]domain.TransactionItem(nil), c.items...),
		PaymentMethod: c.method,
		Paid:          q.Paid,
	}
	if c.method != domain.PaymentCash {
		req.Paid = q.Total
	}
	if c.discount != nil {
		code := c.discount.Code
		req.DiscountCode = &code
	}
	if c.notes != "" {
		notes := c.notes
		req.Notes = &notes
	}
	return req
}

func (c *Checkout) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Receipt returns the server's receipt once the sale completed.
func (c *Checkout) Receipt() (domain.Receipt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipt, c.state == Completed
}

// Close ends the checkout and reports whether the sale went through, in which case the caller
// clears the cart and reloads products.
func (c *Checkout) Close() bool {
	return c.State() == Completed
}
