package domain

// PaymentMethod is how a sale was settled. Only cash has a tendered amount that can differ
// from the total.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentQRIS   PaymentMethod = "qris"
	PaymentDebit  PaymentMethod = "debit"
	PaymentCredit PaymentMethod = "credit"
)

// PaymentMethods lists the accepted methods in display order.
var PaymentMethods = []PaymentMethod{PaymentCash, PaymentQRIS, PaymentDebit, PaymentCredit}

// Valid reports whether m is one of PaymentMethods.
func (m PaymentMethod) Valid() bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

// TransactionItem is a cart line as sent to the server; the server prices it.
type TransactionItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type TransactionRequest struct {
	Items         []TransactionItem `json:"items"`
	DiscountCode  *string           `json:"discount_code"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Paid          int64             `json:"paid"`
	Notes         *string           `json:"notes,omitempty"`
}

// Receipt is the server's record of a committed sale.
type Receipt struct {
	ID             int64         `db:"id" json:"id"`
	UserID         *int64        `db:"user_id" json:"user_id"`
	UserName       *string       `db:"user_name" json:"user_name"`
	DiscountID     *int64        `db:"discount_id" json:"discount_id"`
	DiscountCode   *string       `db:"discount_code" json:"discount_code"`
	Subtotal       int64         `db:"subtotal" json:"subtotal"`
	DiscountAmount int64         `db:"discount_amount" json:"discount_amount"`
	Total          int64         `db:"total" json:"total"`
	CostTotal      int64         `db:"cost_total" json:"cost_total"`
	Paid           int64         `db:"paid" json:"paid"`
	Change         int64         `db:"change_amount" json:"change"`
	PaymentMethod  PaymentMethod `db:"payment_method" json:"payment_method"`
	Notes          *string       `db:"notes" json:"notes"`
	Items          []ReceiptItem `db:"-" json:"items"`
	CreatedAt      string        `db:"created_at" json:"created_at"`
}

type ReceiptItem struct {
	ID            int64  `db:"id" json:"id"`
	TransactionID int64  `db:"transaction_id" json:"-"`
	ProductID     int64  `db:"product_id" json:"product_id"`
	ProductName   string `db:"product_name" json:"product_name"`
	Quantity      int64  `db:"quantity" json:"quantity"`
	Price         int64  `db:"price_at_sale" json:"price"`
	Subtotal      int64  `db:"subtotal" json:"subtotal"`
}
