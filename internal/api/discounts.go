package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"kasir/m/domain"
)

const discountColumns = `id, code, name, discount_type, value, min_purchase, max_discount, is_active, valid_until, usage_limit, usage_count, created_at`

func (h *Handler) validateDiscount(w http.ResponseWriter, r *http.Request) {
	subtotal, err := strconv.ParseInt(r.URL.Query().Get("subtotal"), 10, 64)
	if err != nil || subtotal < 0 {
		respondError(w, http.StatusBadRequest, "subtotal must be a non-negative integer")
		return
	}
	discount, err := h.checkDiscount(r.Context(), h.db, chi.URLParam(r, "code"), subtotal)
	if err != nil {
		respondStatusError(w, err, "unable to validate discount")
		return
	}
	amount := discount.Amount(subtotal)
	respondJSON(w, http.StatusOK, domain.DiscountQuote{
		Discount:       discount,
		DiscountAmount: amount,
		FinalTotal:     subtotal - amount,
	})
}

// checkDiscount loads an active discount by code and verifies it applies to subtotal.
// Rejections are returned as *statusError.
func (h *Handler) checkDiscount(ctx context.Context, q sqlx.QueryerContext, code string, subtotal int64) (domain.Discount, error) {
	var discount domain.Discount
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return discount, notFound("invalid promo code")
	}
	err := sqlx.GetContext(ctx, q, &discount, `SELECT `+discountColumns+` FROM discounts WHERE code = ? AND is_active = 1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return discount, notFound("invalid promo code")
	}
	if err != nil {
		return discount, err
	}
	if discount.Expired(h.now()) {
		return discount, badRequest("promo code has expired")
	}
	if discount.Exhausted() {
		return discount, badRequest("promo code usage limit reached")
	}
	if subtotal < discount.MinPurchase {
		return discount, badRequest("minimum purchase of %s for this promo", domain.Rupiah(discount.MinPurchase))
	}
	return discount, nil
}
