package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kasir/m/domain"
	"kasir/m/internal/database"
	"kasir/m/internal/migrations"
	"kasir/m/internal/seed"
)

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	db      *sqlx.DB
	handler http.Handler
	now     time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))
	require.NoError(t, seed.EnsureUsers(db, zap.NewNop()))
	require.NoError(t, seed.EnsureDiscounts(db, zap.NewNop()))

	db.MustExec(`INSERT INTO products (id, barcode, name, price, cost_price, stock, min_stock, category, emoji, is_active) VALUES
        (1, '8991001101234', 'Indomie Goreng', 3500, 2500, 10, 5, 'Makanan', '🍜', 1),
        (2, '8992', 'Air Mineral', 4000, 2000, 3, 5, 'Minuman', '💧', 1),
        (3, '777', 'Discontinued', 1000, 500, 50, 5, 'Snack', '🍘', 0)`)
	db.MustExec(`INSERT INTO product_barcodes (barcode, product_id, description) VALUES ('1111', 1, 'old packaging')`)

	s := &testServer{t: t, db: db, now: testNow}
	s.handler = New(db, "test-secret", WithClock(func() time.Time { return s.now })).Router()
	return s
}

func (s *testServer) do(method, path, token string, body any, header map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: username, Password: password}, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(s.t, resp.AccessToken)
	return resp.AccessToken
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["detail"]
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "kasir", Password: "kasir123"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[domain.LoginResponse](t, rec)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, "Kasir 1", resp.User.FullName)
	assert.Equal(t, domain.RoleKasir, resp.User.Role)
	assert.Empty(t, resp.User.Password)

	rec = s.do(http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "kasir", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid username or password", detail(t, rec))

	rec = s.do(http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "ghost", Password: "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.db.MustExec(`UPDATE users SET is_active = 0 WHERE username = 'kasir'`)
	rec = s.do(http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "kasir", Password: "kasir123"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMeAndTokenExpiry(t *testing.T) {
	s := newTestServer(t)
	token := s.login("admin", "admin123")

	rec := s.do(http.MethodGet, "/api/auth/me", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decode[domain.User](t, rec).Username)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", "", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", "garbage", nil, nil).Code)

	s.now = s.now.Add(25 * time.Hour)
	rec = s.do(http.MethodGet, "/api/auth/me", token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired token", detail(t, rec))
}

func TestListProducts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/products", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decode[[]domain.Product](t, rec)
	require.Len(t, products, 2)
	assert.Equal(t, "Air Mineral", products[0].Name)
	assert.True(t, products[0].IsLowStock)
	assert.Empty(t, products[0].AltBarcodes)
	assert.Equal(t, "Indomie Goreng", products[1].Name)
	assert.False(t, products[1].IsLowStock)
	assert.Equal(t, []string{"1111"}, products[1].AltBarcodes)

	products = decode[[]domain.Product](t, s.do(http.MethodGet, "/api/products?search=INDO", "", nil, nil))
	require.Len(t, products, 1)
	assert.Equal(t, int64(1), products[0].ID)

	products = decode[[]domain.Product](t, s.do(http.MethodGet, "/api/products?category=Minuman", "", nil, nil))
	require.Len(t, products, 1)
	assert.Equal(t, int64(2), products[0].ID)

	products = decode[[]domain.Product](t, s.do(http.MethodGet, "/api/products?low_stock=true", "", nil, nil))
	require.Len(t, products, 1)
	assert.Equal(t, int64(2), products[0].ID)

	products = decode[[]domain.Product](t, s.do(http.MethodGet, "/api/products/low-stock", "", nil, nil))
	require.Len(t, products, 1)

	categories := decode[[]string](t, s.do(http.MethodGet, "/api/products/categories", "", nil, nil))
	assert.Equal(t, []string{"Makanan", "Minuman"}, categories)
}

func TestGetProduct(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/products/1", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Indomie Goreng", decode[domain.Product](t, rec).Name)

	rec = s.do(http.MethodGet, "/api/products/99", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product not found", detail(t, rec))

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/products/abc", "", nil, nil).Code)
}

func TestProductByBarcode(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		code   string
		status int
		id     int64
	}{
		{code: "8991001101234", status: http.StatusOK, id: 1},
		{code: "1111", status: http.StatusOK, id: 1},
		{code: "8992", status: http.StatusOK, id: 2},
		{code: "777", status: http.StatusNotFound},
		{code: "0000", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/api/products/barcode/"+tt.code, "", nil, nil)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.id, decode[domain.Product](t, rec).ID)
			} else {
				assert.Equal(t, "product not found", detail(t, rec))
			}
		})
	}
}

func TestBarcodeAliases(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin", "admin123")
	kasir := s.login("kasir", "kasir123")
	add := func(token, code string) *httptest.ResponseRecorder {
		return s.do(http.MethodPost, "/api/products/1/barcodes", token, barcodeRequest{Barcode: code, Description: "batch scan"}, nil)
	}

	assert.Equal(t, http.StatusUnauthorized, add("", "2222").Code)
	assert.Equal(t, http.StatusForbidden, add(kasir, "2222").Code)

	rec := add(admin, "2222")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Barcode](t, rec)
	require.NotNil(t, created.ID)
	assert.Equal(t, "2222", created.Barcode)
	assert.Equal(t, int64(1), created.ProductID)
	assert.Equal(t, "batch scan", created.Description)

	rec = add(admin, "8992")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "barcode already used by product: Air Mineral", detail(t, rec))

	rec = add(admin, "1111")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "barcode already used by product: Indomie Goreng", detail(t, rec))

	assert.Equal(t, http.StatusBadRequest, add(admin, "  ").Code)

	rec = s.do(http.MethodPost, "/api/products/99/barcodes", admin, barcodeRequest{Barcode: "3333"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/products/1/barcodes", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	barcodes := decode[[]domain.Barcode](t, rec)
	require.Len(t, barcodes, 3)
	assert.True(t, barcodes[0].IsPrimary)
	assert.Nil(t, barcodes[0].ID)
	assert.Equal(t, "8991001101234", barcodes[0].Barcode)
	assert.Equal(t, "old packaging", barcodes[1].Description)
	assert.Equal(t, "2222", barcodes[2].Barcode)

	path := "/api/products/1/barcodes/" + jsonNumber(*created.ID)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, path, kasir, nil, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodDelete, path, admin, nil, nil).Code)
	rec = s.do(http.MethodDelete, path, admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "barcode not found", detail(t, rec))

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/products/99/barcodes", "", nil, nil).Code)
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestValidateDiscount(t *testing.T) {
	s := newTestServer(t)
	s.db.MustExec(`INSERT INTO discounts (code, name, discount_type, value, valid_until) VALUES ('OLD', 'Old promo', 'fixed', 1000, '2020-01-01 00:00:00')`)
	s.db.MustExec(`INSERT INTO discounts (code, name, discount_type, value, usage_limit, usage_count) VALUES ('ONCE', 'One shot', 'fixed', 1000, 1, 1)`)
	s.db.MustExec(`INSERT INTO discounts (code, name, discount_type, value, is_active) VALUES ('OFF', 'Disabled', 'fixed', 1000, 0)`)

	tests := []struct {
		name     string
		path     string
		status   int
		amount   int64
		final    int64
		errorMsg string
	}{
		{name: "percentage", path: "/api/discounts/validate/welcome10?subtotal=100000", status: http.StatusOK, amount: 10000, final: 90000},
		{name: "capped", path: "/api/discounts/validate/WELCOME10?subtotal=300000", status: http.StatusOK, amount: 20000, final: 280000},
		{name: "fixed", path: "/api/discounts/validate/HEMAT5K?subtotal=30000", status: http.StatusOK, amount: 5000, final: 25000},
		{name: "below minimum", path: "/api/discounts/validate/WELCOME10?subtotal=10000", status: http.StatusBadRequest, errorMsg: "minimum purchase of Rp 50.000 for this promo"},
		{name: "unknown", path: "/api/discounts/validate/NOPE?subtotal=10000", status: http.StatusNotFound, errorMsg: "invalid promo code"},
		{name: "inactive", path: "/api/discounts/validate/OFF?subtotal=10000", status: http.StatusNotFound, errorMsg: "invalid promo code"},
		{name: "expired", path: "/api/discounts/validate/OLD?subtotal=10000", status: http.StatusBadRequest, errorMsg: "promo code has expired"},
		{name: "exhausted", path: "/api/discounts/validate/ONCE?subtotal=10000", status: http.StatusBadRequest, errorMsg: "promo code usage limit reached"},
		{name: "missing subtotal", path: "/api/discounts/validate/WELCOME10", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodGet, tt.path, "", nil, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				quote := decode[domain.DiscountQuote](t, rec)
				assert.Equal(t, tt.amount, quote.DiscountAmount)
				assert.Equal(t, tt.final, quote.FinalTotal)
				return
			}
			if tt.errorMsg != "" {
				assert.Equal(t, tt.errorMsg, detail(t, rec))
			}
		})
	}
}

func TestCreateTransaction(t *testing.T) {
	s := newTestServer(t)
	token := s.login("kasir", "kasir123")

	req := domain.TransactionRequest{
		Items:         []domain.TransactionItem{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 1}, {ProductID: 1, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
		Paid:          20000,
	}
	rec := s.do(http.MethodPost, "/api/transactions", token, req, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decode[domain.Receipt](t, rec)
	assert.Equal(t, int64(11000), receipt.Subtotal)
	assert.Equal(t, int64(11000), receipt.Total)
	assert.Equal(t, int64(9000), receipt.Change)
	assert.Equal(t, int64(7000), receipt.CostTotal)
	require.NotNil(t, receipt.UserName)
	assert.Equal(t, "Kasir 1", *receipt.UserName)
	require.Len(t, receipt.Items, 2)
	assert.Equal(t, "Indomie Goreng", receipt.Items[0].ProductName)
	assert.Equal(t, int64(2), receipt.Items[0].Quantity)
	assert.Equal(t, int64(7000), receipt.Items[0].Subtotal)

	var stock []int64
	require.NoError(t, s.db.Select(&stock, `SELECT stock FROM products WHERE id IN (1, 2) ORDER BY id`))
	assert.Equal(t, []int64{8, 2}, stock)
}

func TestCreateTransactionWithDiscount(t *testing.T) {
	s := newTestServer(t)
	token := s.login("kasir", "kasir123")
	code := "hemat5k"

	rec := s.do(http.MethodPost, "/api/transactions", token, domain.TransactionRequest{
		Items:         []domain.TransactionItem{{ProductID: 1, Quantity: 10}},
		DiscountCode:  &code,
		PaymentMethod: domain.PaymentQRIS,
		Paid:          30000,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decode[domain.Receipt](t, rec)
	assert.Equal(t, int64(35000), receipt.Subtotal)
	assert.Equal(t, int64(5000), receipt.DiscountAmount)
	assert.Equal(t, int64(30000), receipt.Total)
	assert.Equal(t, int64(0), receipt.Change)
	require.NotNil(t, receipt.DiscountCode)
	assert.Equal(t, "HEMAT5K", *receipt.DiscountCode)

	var used int64
	require.NoError(t, s.db.Get(&used, `SELECT usage_count FROM discounts WHERE code = 'HEMAT5K'`))
	assert.Equal(t, int64(1), used)
}

func TestCreateTransactionRejections(t *testing.T) {
	s := newTestServer(t)
	token := s.login("kasir", "kasir123")
	welcome := "WELCOME10"

	tests := []struct {
		name     string
		req      domain.TransactionRequest
		errorMsg string
	}{
		{
			name:     "empty cart",
			req:      domain.TransactionRequest{PaymentMethod: domain.PaymentCash, Paid: 1000},
			errorMsg: "cart is empty",
		},
		{
			name:     "insufficient stock",
			req:      domain.TransactionRequest{Items: []domain.TransactionItem{{ProductID: 2, Quantity: 4}}, PaymentMethod: domain.PaymentCash, Paid: 100000},
			errorMsg: "insufficient stock for Air Mineral: 3 available",
		},
		{
			name:     "merged quantities exceed stock",
			req:      domain.TransactionRequest{Items: []domain.TransactionItem{{ProductID: 2, Quantity: 2}, {ProductID: 2, Quantity: 2}}, PaymentMethod: domain.PaymentCash, Paid: 100000},
			errorMsg: "insufficient stock for Air Mineral: 3 available",
		},
		{
			name:     "short payment",
			req:      domain.TransactionRequest{Items: []domain.TransactionItem{{ProductID: 1, Quantity: 1}}, PaymentMethod: domain.PaymentCash, Paid: 1000},
			errorMsg: "payment short by Rp 2.500",
		},
		{
			name:     "discount below minimum",
			req:      domain.TransactionRequest{Items: []domain.TransactionItem{{ProductID: 1, Quantity: 1}}, DiscountCode: &welcome, PaymentMethod: domain.PaymentCash, Paid: 5000},
			errorMsg: "minimum purchase of Rp 50.000 for this promo",
		},
		{
			name:     "unknown payment method",
			req:      domain.TransactionRequest{Items: []domain.TransactionItem{{ProductID: 1, Quantity: 1}}, PaymentMethod: "cheque", Paid: 5000},
			errorMsg: "unknown payment method: cheque",
		},
		{
			name:     "zero quantity",
			req:      domain.TransactionRequest{Items: []domain.TransactionItem{{ProductID: 1, Quantity: 0}}, PaymentMethod: domain.PaymentCash, Paid: 5000},
			errorMsg: "quantity must be positive for product 1",
		},
		{
			name:     "inactive product",
			req:      domain.TransactionRequest{Items: []domain.TransactionItem{{ProductID: 3, Quantity: 1}}, PaymentMethod: domain.PaymentCash, Paid: 5000},
			errorMsg: "product 3 not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/transactions", token, tt.req, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.errorMsg, detail(t, rec))
		})
	}

	var count int
	require.NoError(t, s.db.Get(&count, `SELECT COUNT(*) FROM transactions`))
	assert.Zero(t, count)
	var stock int64
	require.NoError(t, s.db.Get(&stock, `SELECT stock FROM products WHERE id = 2`))
	assert.Equal(t, int64(3), stock)

	rec := s.do(http.MethodPost, "/api/transactions", "", domain.TransactionRequest{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTransactionIdempotent(t *testing.T) {
	s := newTestServer(t)
	token := s.login("kasir", "kasir123")
	req := domain.TransactionRequest{
		Items:         []domain.TransactionItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
		Paid:          5000,
	}
	header := map[string]string{"Idempotency-Key": "3b0c5a4e-0a0e-4d2b-9e6f-7f1a2b3c4d5e"}

	first := s.do(http.MethodPost, "/api/transactions", token, req, header)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := s.do(http.MethodPost, "/api/transactions", token, req, header)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, decode[domain.Receipt](t, first).ID, decode[domain.Receipt](t, second).ID)

	var stock int64
	require.NoError(t, s.db.Get(&stock, `SELECT stock FROM products WHERE id = 1`))
	assert.Equal(t, int64(9), stock)
}

func TestListAndGetTransactions(t *testing.T) {
	s := newTestServer(t)
	token := s.login("kasir", "kasir123")
	for _, method := range []domain.PaymentMethod{domain.PaymentCash, domain.PaymentDebit} {
		rec := s.do(http.MethodPost, "/api/transactions", token, domain.TransactionRequest{
			Items:         []domain.TransactionItem{{ProductID: 1, Quantity: 1}},
			PaymentMethod: method,
			Paid:          3500,
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	receipts := decode[[]domain.Receipt](t, s.do(http.MethodGet, "/api/transactions", token, nil, nil))
	require.Len(t, receipts, 2)
	assert.Equal(t, domain.PaymentDebit, receipts[0].PaymentMethod)
	assert.Len(t, receipts[0].Items, 1)

	receipts = decode[[]domain.Receipt](t, s.do(http.MethodGet, "/api/transactions?limit=1", token, nil, nil))
	assert.Len(t, receipts, 1)

	receipts = decode[[]domain.Receipt](t, s.do(http.MethodGet, "/api/transactions?payment_method=cash", token, nil, nil))
	require.Len(t, receipts, 1)
	assert.Equal(t, domain.PaymentCash, receipts[0].PaymentMethod)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/transactions?limit=-1", token, nil, nil).Code)

	rec := s.do(http.MethodGet, "/api/transactions/"+jsonNumber(receipts[0].ID), token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, receipts[0].ID, decode[domain.Receipt](t, rec).ID)

	rec = s.do(http.MethodGet, "/api/transactions/999", token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "transaction not found", detail(t, rec))
}

func TestDatabaseFailures(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()
	handler := New(sqlx.NewDb(mockDB, "sqlmock"), "secret").Router()

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	mock.ExpectQuery("SELECT DISTINCT category").WillReturnError(errors.New("disk I/O error"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/categories", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "unable to list categories", detail(t, rec))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTransactionReplaysConcurrentDuplicate(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	h := New(sqlx.NewDb(mockDB, "sqlmock"), "secret", WithClock(func() time.Time { return testNow }))
	token, err := h.generateToken(domain.User{ID: 2, Username: "kasir", Role: domain.RoleKasir})
	require.NoError(t, err)

	const key = "5d1f0c2e-9b8a-4c7d-8e6f-0a1b2c3d4e5f"
	mock.ExpectQuery(`SELECT id FROM transactions WHERE idempotency_key`).WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, price, cost_price, stock FROM products`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "cost_price", "stock"}).AddRow(1, "Indomie Goreng", 3500, 2500, 10))
	mock.ExpectExec(`INSERT INTO transactions`).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: transactions.idempotency_key (2067)"))
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT id FROM transactions WHERE idempotency_key`).WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`FROM transactions t`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "user_name", "discount_id", "discount_code", "subtotal", "discount_amount",
			"total", "cost_total", "paid", "change_amount", "payment_method", "notes", "created_at",
		}).AddRow(7, 2, "Kasir 1", nil, nil, 3500, 0, 3500, 2500, 5000, 1500, "cash", nil, "2026-10-18 09:00:00"))
	mock.ExpectQuery(`FROM transaction_items WHERE transaction_id IN`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "product_id", "product_name", "quantity", "price_at_sale", "subtotal"}).
			AddRow(1, 7, 1, "Indomie Goreng", 1, 3500, 3500))

	body, err := json.Marshal(domain.TransactionRequest{
		Items:         []domain.TransactionItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
		Paid:          5000,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", key)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode[domain.Receipt](t, rec)
	assert.Equal(t, int64(7), receipt.ID)
	assert.Equal(t, int64(1500), receipt.Change)
	require.Len(t, receipt.Items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
