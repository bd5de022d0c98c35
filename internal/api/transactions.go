package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"kasir/m/domain"
)

const receiptQuery = `SELECT t.id, t.user_id, u.full_name AS user_name, t.discount_id, d.code AS discount_code,
            t.subtotal, t.discount_amount, t.total, t.cost_total, t.paid, t.change_amount, t.payment_method, t.notes, t.created_at
        FROM transactions t
        LEFT JOIN users u ON u.id = t.user_id
        LEFT JOIN discounts d ON d.id = t.discount_id`

type pricedLine struct {
	productID int64
	name      string
	quantity  int64
	price     int64
	cost      int64
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := mergeItems(req.Items)
	if err != nil {
		respondStatusError(w, err, "invalid items")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if !req.PaymentMethod.Valid() {
		respondError(w, http.StatusBadRequest, "unknown payment method: "+string(req.PaymentMethod))
		return
	}

	ctx := r.Context()
	key := nullIfEmpty(r.Header.Get("Idempotency-Key"))
	if key != nil {
		existing, err := h.transactionByKey(ctx, *key)
		switch {
		case err == nil:
			h.respondReceipt(w, r, existing, http.StatusOK)
			return
		case !errors.Is(err, sql.ErrNoRows):
			respondError(w, http.StatusInternalServerError, "unable to check idempotency key")
			return
		}
	}

	uid, _ := userID(r)
	id, err := h.recordTransaction(ctx, uid, key, req, items)
	if err != nil && key != nil {
		// A request with the same key may have committed between the check and the insert.
		if existing, lookupErr := h.transactionByKey(ctx, *key); lookupErr == nil {
			h.logger.Info("replaying concurrent transaction", zap.Int64("id", existing))
			h.respondReceipt(w, r, existing, http.StatusOK)
			return
		}
	}
	if err != nil {
		var se *statusError
		if !errors.As(err, &se) {
			h.logger.Error("create transaction", zap.Error(err))
		}
		respondStatusError(w, err, "unable to create transaction")
		return
	}
	h.respondReceipt(w, r, id, http.StatusCreated)
}

func (h *Handler) transactionByKey(ctx context.Context, key string) (int64, error) {
	var id int64
	err := h.db.GetContext(ctx, &id, `SELECT id FROM transactions WHERE idempotency_key = ?`, key)
	return id, err
}

// mergeItems folds repeated product ids into one line, keeping first-seen order.
func mergeItems(items []domain.TransactionItem) ([]domain.TransactionItem, error) {
	if len(items) == 0 {
		return nil, badRequest("cart is empty")
	}
	merged := make([]domain.TransactionItem, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if item.ProductID <= 0 {
			return nil, badRequest("invalid product id: %d", item.ProductID)
		}
		if item.Quantity <= 0 {
			return nil, badRequest("quantity must be positive for product %d", item.ProductID)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// recordTransaction prices the sale from the database and commits it atomically.
func (h *Handler) recordTransaction(ctx context.Context, uid int64, key *string, req domain.TransactionRequest, items []domain.TransactionItem) (int64, error) {
	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	lines := make([]pricedLine, 0, len(items))
	var subtotal, costTotal int64
	for _, item := range items {
		var p domain.Product
		err := tx.GetContext(ctx, &p, `SELECT id, name, price, cost_price, stock FROM products WHERE id = ? AND is_active = 1`, item.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, badRequest("product %d not found", item.ProductID)
		}
		if err != nil {
			return 0, err
		}
		if p.Stock < item.Quantity {
			return 0, badRequest("insufficient stock for %s: %d available", p.Name, p.Stock)
		}
		lines = append(lines, pricedLine{productID: p.ID, name: p.Name, quantity: item.Quantity, price: p.Price, cost: p.CostPrice})
		subtotal += p.Price * item.Quantity
		costTotal += p.CostPrice * item.Quantity
	}

	var (
		discountID     *int64
		discountAmount int64
	)
	if req.DiscountCode != nil && strings.TrimSpace(*req.DiscountCode) != "" {
		discount, err := h.checkDiscount(ctx, tx, *req.DiscountCode, subtotal)
		if err != nil {
			return 0, err
		}
		discountID = &discount.ID
		discountAmount = discount.Amount(subtotal)
	}

	total := subtotal - discountAmount
	if req.Paid < total {
		return 0, badRequest("payment short by %s", domain.Rupiah(total-req.Paid))
	}

	var owner *int64
	if uid > 0 {
		owner = &uid
	}
	var notes *string
	if req.Notes != nil {
		notes = nullIfEmpty(*req.Notes)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO transactions (user_id, discount_id, idempotency_key, subtotal, discount_amount, total, cost_total, paid, change_amount, payment_method, notes)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		owner, discountID, key, subtotal, discountAmount, total, costTotal, req.Paid, req.Paid-total, req.PaymentMethod, notes)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, `INSERT INTO transaction_items (transaction_id, product_id, product_name, quantity, price_at_sale, cost_at_sale, subtotal)
                VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, line.productID, line.name, line.quantity, line.price, line.cost, line.price*line.quantity); err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND stock >= ?`,
			line.quantity, line.productID, line.quantity)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return 0, badRequest("insufficient stock for %s", line.name)
		}
	}

	if discountID != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE discounts SET usage_count = usage_count + 1 WHERE id = ?`, *discountID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	h.logger.Info("transaction recorded",
		zap.Int64("id", id),
		zap.Int64("total", total),
		zap.String("payment_method", string(req.PaymentMethod)),
	)
	return id, nil
}

func (h *Handler) respondReceipt(w http.ResponseWriter, r *http.Request, id int64, status int) {
	receipts, err := h.loadReceipts(r.Context(), ` WHERE t.id = ?`, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transaction")
		return
	}
	if len(receipts) == 0 {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}
	respondJSON(w, status, receipts[0])
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	where := ""
	var args []any
	if method := domain.PaymentMethod(r.URL.Query().Get("payment_method")); method != "" {
		if !method.Valid() {
			respondError(w, http.StatusBadRequest, "unknown payment method: "+string(method))
			return
		}
		where = ` WHERE t.payment_method = ?`
		args = append(args, method)
	}
	args = append(args, limit)

	receipts, err := h.loadReceipts(r.Context(), where+` ORDER BY t.id DESC LIMIT ?`, args...)
	if err != nil {
		h.logger.Error("list transactions", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, receipts)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	h.respondReceipt(w, r, id, http.StatusOK)
}

// loadReceipts runs receiptQuery with the given tail and attaches items to each receipt.
func (h *Handler) loadReceipts(ctx context.Context, tail string, args ...any) ([]domain.Receipt, error) {
	receipts := []domain.Receipt{}
	if err := h.db.SelectContext(ctx, &receipts, receiptQuery+tail, args...); err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return receipts, nil
	}

	ids := make([]int64, len(receipts))
	for i, rc := range receipts {
		ids[i] = rc.ID
	}
	itemsQuery, itemsArgs, err := sqlx.In(`SELECT id, transaction_id, product_id, product_name, quantity, price_at_sale, subtotal
        FROM transaction_items WHERE transaction_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	var items []domain.ReceiptItem
	if err := h.db.SelectContext(ctx, &items, h.db.Rebind(itemsQuery), itemsArgs...); err != nil {
		return nil, err
	}
	byTx := make(map[int64][]domain.ReceiptItem, len(receipts))
	for _, item := range items {
		byTx[item.TransactionID] = append(byTx[item.TransactionID], item)
	}
	for i := range receipts {
		receipts[i].Items = byTx[receipts[i].ID]
		if receipts[i].Items == nil {
			receipts[i].Items = []domain.ReceiptItem{}
		}
	}
	return receipts, nil
}
