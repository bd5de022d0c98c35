package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"kasir/m/domain"
)

func (h *Handler) listBarcodes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var primary struct {
		Barcode *string `db:"barcode"`
	}
	err := h.db.GetContext(r.Context(), &primary, `SELECT barcode FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load product")
		return
	}

	barcodes := []domain.Barcode{}
	if primary.Barcode != nil && *primary.Barcode != "" {
		barcodes = append(barcodes, domain.Barcode{
			Barcode:     *primary.Barcode,
			ProductID:   id,
			IsPrimary:   true,
			Description: "primary barcode",
		})
	}

	var aliases []domain.Barcode
	if err := h.db.SelectContext(r.Context(), &aliases,
		`SELECT id, barcode, product_id, COALESCE(description, 'alternative barcode') AS description, created_at FROM product_barcodes WHERE product_id = ? ORDER BY id`, id); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list barcodes")
		return
	}
	respondJSON(w, http.StatusOK, append(barcodes, aliases...))
}

type barcodeRequest struct {
	Barcode     string `json:"barcode"`
	Description string `json:"description"`
}

// addBarcode registers an alias. A code may belong to one product only, as primary or alias.
func (h *Handler) addBarcode(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req barcodeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	code := strings.TrimSpace(req.Barcode)
	if code == "" {
		respondError(w, http.StatusBadRequest, "barcode is required")
		return
	}

	ctx := r.Context()
	if _, err := h.productName(ctx, id); err != nil {
		respondStatusError(w, err, "unable to load product")
		return
	}

	var owner string
	err := h.db.GetContext(ctx, &owner, `SELECT name FROM products WHERE barcode = ?
            UNION ALL
            SELECT p.name FROM product_barcodes b JOIN products p ON p.id = b.product_id WHERE b.barcode = ?
            LIMIT 1`, code, code)
	switch {
	case err == nil:
		respondError(w, http.StatusBadRequest, "barcode already used by product: "+owner)
		return
	case !errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusInternalServerError, "unable to check barcode")
		return
	}

	res, err := h.db.ExecContext(ctx, `INSERT INTO product_barcodes (barcode, product_id, description) VALUES (?, ?, ?)`,
		code, id, nullIfEmpty(req.Description))
	if err != nil {
		h.logger.Error("insert barcode", zap.String("barcode", code), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to add barcode")
		return
	}
	aliasID, err := res.LastInsertId()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to add barcode")
		return
	}

	var created domain.Barcode
	if err := h.db.GetContext(ctx, &created,
		`SELECT id, barcode, product_id, COALESCE(description, '') AS description, created_at FROM product_barcodes WHERE id = ?`, aliasID); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load barcode")
		return
	}
	h.logger.Info("barcode alias added", zap.Int64("product_id", id), zap.String("barcode", code))
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) deleteBarcode(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	id, ok := pathID(r, "id")
	barcodeID, ok2 := pathID(r, "barcodeID")
	if !ok || !ok2 {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	res, err := h.db.ExecContext(r.Context(), `DELETE FROM product_barcodes WHERE id = ? AND product_id = ?`, barcodeID, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to delete barcode")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondError(w, http.StatusNotFound, "barcode not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// respondStatusError writes a *statusError as is and anything else as a 500 with fallback.
func respondStatusError(w http.ResponseWriter, err error, fallback string) {
	var se *statusError
	if errors.As(err, &se) {
		respondError(w, se.status, se.msg)
		return
	}
	respondError(w, http.StatusInternalServerError, fallback)
}
