package cashier

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasir/m/domain"
	"kasir/m/internal/cart"
	"kasir/m/internal/checkout"
	"kasir/m/internal/client"
)

func strp(s string) *string { return &s }

type fakeAPI struct {
	mu        sync.Mutex
	products  []domain.Product
	lookups   []string
	lookupErr error
	receipt   domain.Receipt
	created   int
	loads     int
}

func (f *fakeAPI) Products(context.Context) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return append([]domain.Product(nil), f.products...), nil
}

func (f *fakeAPI) ProductByBarcode(_ context.Context, code string) (domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, code)
	if f.lookupErr != nil {
		return domain.Product{}, f.lookupErr
	}
	for _, p := range f.products {
		if p.Barcode != nil && *p.Barcode == code {
			return p, nil
		}
		for _, alt := range p.AltBarcodes {
			if alt == code {
				return p, nil
			}
		}
	}
	return domain.Product{}, &client.APIError{Status: http.StatusNotFound, Detail: "product not found"}
}

func (f *fakeAPI) ValidateDiscount(context.Context, string, int64) (domain.DiscountQuote, error) {
	return domain.DiscountQuote{}, &client.APIError{Status: http.StatusNotFound, Detail: "discount code not found"}
}

func (f *fakeAPI) CreateTransaction(_ context.Context, req domain.TransactionRequest, _ string) (domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	for _, it := range req.Items {
		for i := range f.products {
			if f.products[i].ID == it.ProductID {
				f.products[i].Stock -= it.Quantity
			}
		}
	}
	return f.receipt, nil
}

type messages struct {
	mu   sync.Mutex
	list []string
	last Level
}

func (m *messages) Notify(level Level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append(m.list, msg)
	m.last = level
}

func catalogue() []domain.Product {
	return []domain.Product{
		{ID: 1, Barcode: strp("8991234567"), Name: "Indomie Goreng", Price: 3500, Stock: 2, Category: "Makanan"},
		{ID: 2, Barcode: strp("8990000001"), Name: "Teh Botol", Price: 5000, Stock: 0, Category: "Minuman"},
		{ID: 3, Name: "Aqua 600ml", Price: 4000, Stock: 10, Category: "Minuman", AltBarcodes: []string{"AQ-600"}},
	}
}

func newSession(t *testing.T) (*Session, *fakeAPI, *messages) {
	t.Helper()
	api := &fakeAPI{products: catalogue(), receipt: domain.Receipt{ID: 1}}
	msgs := &messages{}
	s := New(api, WithNotifier(msgs))
	require.NoError(t, s.RefreshProducts(context.Background()))
	return s, api, msgs
}

func TestHandleScanAddsProduct(t *testing.T) {
	s, _, msgs := newSession(t)

	require.True(t, s.ManualEntry(context.Background(), " 8991234567 "))
	require.True(t, s.ManualEntry(context.Background(), "AQ-600"))

	assert.Equal(t, int64(1), s.Cart().Quantity(1))
	assert.Equal(t, int64(1), s.Cart().Quantity(3))
	assert.Equal(t, int64(7500), s.Cart().Total())
	assert.Equal(t, Success, msgs.last)
	assert.Contains(t, msgs.list, "Indomie Goreng added")
}

func TestHandleScanUnknownAndOutOfStock(t *testing.T) {
	s, _, msgs := newSession(t)
	ctx := context.Background()

	s.ManualEntry(ctx, "0000")
	assert.Equal(t, []string{"Product not found"}, msgs.list)

	s.ManualEntry(ctx, "8990000001")
	assert.Equal(t, "Teh Botol is out of stock", msgs.list[1])
	assert.Equal(t, Failure, msgs.last)
	assert.True(t, s.Cart().Empty())
}

func TestHandleScanStockCeiling(t *testing.T) {
	s, _, msgs := newSession(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.ManualEntry(ctx, "8991234567")
	}
	assert.Equal(t, int64(2), s.Cart().Quantity(1))
	assert.Equal(t, "insufficient stock for Indomie Goreng: 2 available", msgs.list[2])
}

func TestHandleScanTransportFailure(t *testing.T) {
	s, api, msgs := newSession(t)
	api.lookupErr = errors.Join(client.ErrTransport, errors.New("dial tcp: connection refused"))

	s.ManualEntry(context.Background(), "8991234567")
	assert.Equal(t, []string{"Scan failed: Cannot reach the server"}, msgs.list)
}

func TestCameraScansAreDebounced(t *testing.T) {
	s, api, _ := newSession(t)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ev := func(offset time.Duration) domain.ScanEvent {
		return domain.ScanEvent{Code: "AQ-600", Source: domain.SourceCamera, At: at.Add(offset)}
	}
	ctx := context.Background()

	assert.True(t, s.Dispatcher().Dispatch(ctx, ev(0)))
	assert.False(t, s.Dispatcher().Dispatch(ctx, ev(300*time.Millisecond)))
	assert.True(t, s.Dispatcher().Dispatch(ctx, ev(600*time.Millisecond)))

	assert.Equal(t, int64(2), s.Cart().Quantity(3))
	assert.Len(t, api.lookups, 2)
}

func TestSearchAndCategories(t *testing.T) {
	s, _, _ := newSession(t)

	assert.Equal(t, []string{AllCategories, "Makanan", "Minuman"}, s.Categories())
	assert.Len(t, s.Search("", AllCategories), 3)
	assert.Len(t, s.Search("", "Minuman"), 2)

	found := s.Search("indomie", "")
	require.Len(t, found, 1)
	assert.Equal(t, int64(1), found[0].ID)

	found = s.Search("899000", "Minuman")
	require.Len(t, found, 1)
	assert.Equal(t, "Teh Botol", found[0].Name)
}

func TestAddProductFromList(t *testing.T) {
	s, _, msgs := newSession(t)

	require.NoError(t, s.AddProduct(3))
	assert.ErrorIs(t, s.AddProduct(2), cart.ErrOutOfStock)
	assert.ErrorIs(t, s.AddProduct(99), client.ErrNotFound)
	assert.Equal(t, []string{"Aqua 600ml added", "Teh Botol is out of stock", "Product not found"}, msgs.list)
}

func TestCheckoutRoundTrip(t *testing.T) {
	s, api, _ := newSession(t)
	ctx := context.Background()

	_, err := s.StartCheckout()
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)

	require.NoError(t, s.AddProduct(1))
	require.NoError(t, s.UpdateQuantity(1, 1))
	require.NoError(t, s.AddProduct(3))

	co, err := s.StartCheckout()
	require.NoError(t, err)
	assert.Equal(t, int64(11000), co.Quote().Subtotal)

	co.SetPaid("20000")
	_, err = co.Confirm(ctx)
	require.NoError(t, err)

	loads := api.loads
	require.NoError(t, s.FinishCheckout(ctx, co))
	assert.True(t, s.Cart().Empty())
	assert.Equal(t, loads+1, api.loads)

	p, ok := s.Cart().Product(1)
	require.True(t, ok)
	assert.Zero(t, p.Stock)
}

func TestFinishCheckoutWithoutSaleKeepsCart(t *testing.T) {
	s, api, _ := newSession(t)
	require.NoError(t, s.AddProduct(3))

	co, err := s.StartCheckout()
	require.NoError(t, err)

	loads := api.loads
	require.NoError(t, s.FinishCheckout(context.Background(), co))
	assert.False(t, s.Cart().Empty())
	assert.Equal(t, loads, api.loads)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Session expired, please log in again",
		Describe(&client.APIError{Status: http.StatusUnauthorized, Detail: "token expired"}))
	assert.Equal(t, "minimum purchase is 50000",
		Describe(&client.APIError{Status: http.StatusBadRequest, Detail: "minimum purchase is 50000"}))
	assert.Equal(t, "paid amount does not cover the total", Describe(checkout.ErrCannotPay))
	assert.Empty(t, Describe(nil))
}
