package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"kasir/m/domain"
)

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (domain.User, error) {
	var resp domain.LoginResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   domain.LoginRequest{Username: username, Password: password},
	}, &resp)
	if err != nil {
		return domain.User{}, err
	}
	c.SetToken(resp.AccessToken)
	return resp.User, nil
}

// Products returns the active catalogue.
func (c *Client) Products(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/products"}, &products)
	return products, err
}

func (c *Client) Product(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/api/products/%d", id)}, &p)
	return p, err
}

// ProductByBarcode resolves a primary or alias barcode. Unknown codes match ErrNotFound.
func (c *Client) ProductByBarcode(ctx context.Context, code string) (domain.Product, error) {
	var p domain.Product
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/products/barcode/" + url.PathEscape(code)}, &p)
	return p, err
}

func (c *Client) ValidateDiscount(ctx context.Context, code string, subtotal int64) (domain.DiscountQuote, error) {
	var q domain.DiscountQuote
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/discounts/validate/" + url.PathEscape(code),
		query:  url.Values{"subtotal": {strconv.FormatInt(subtotal, 10)}},
	}, &q)
	return q, err
}

// CreateTransaction submits a sale. A non-empty idempotencyKey lets the server recognise a resend.
func (c *Client) CreateTransaction(ctx context.Context, req domain.TransactionRequest, idempotencyKey string) (domain.Receipt, error) {
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": {idempotencyKey}}
	}
	var receipt domain.Receipt
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/transactions",
		body:   req,
		header: header,
	}, &receipt)
	return receipt, err
}

type TransactionFilter struct {
	Limit         int
	PaymentMethod domain.PaymentMethod
}

func (c *Client) Transactions(ctx context.Context, f TransactionFilter) ([]domain.Receipt, error) {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.PaymentMethod != "" {
		q.Set("payment_method", string(f.PaymentMethod))
	}
	var receipts []domain.Receipt
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/transactions", query: q}, &receipts)
	return receipts, err
}

func (c *Client) Transaction(ctx context.Context, id int64) (domain.Receipt, error) {
	var r domain.Receipt
	err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/api/transactions/%d", id)}, &r)
	return r, err
}

// Barcodes lists the primary barcode and every alias of a product.
func (c *Client) Barcodes(ctx context.Context, productID int64) ([]domain.Barcode, error) {
	var codes []domain.Barcode
	err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/api/products/%d/barcodes", productID)}, &codes)
	return codes, err
}

func (c *Client) AddBarcode(ctx context.Context, productID int64, code, description string) (domain.Barcode, error) {
	body := struct {
		Barcode     string `json:"barcode"`
		Description string `json:"description,omitempty"`
	}{Barcode: code, Description: description}

	var b domain.Barcode
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/products/%d/barcodes", productID),
		body:   body,
	}, &b)
	return b, err
}

func (c *Client) DeleteBarcode(ctx context.Context, productID, barcodeID int64) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   fmt.Sprintf("/api/products/%d/barcodes/%d", productID, barcodeID),
	}, nil)
}
