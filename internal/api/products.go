package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"kasir/m/domain"
)

const productColumns = `p.id, p.barcode, p.name, p.price, p.cost_price, p.stock, p.min_stock, p.category, p.emoji, p.image_url, p.is_active, p.created_at, p.updated_at`

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	var (
		args    []any
		clauses = []string{"p.is_active = 1"}
	)
	q := r.URL.Query()
	if search := strings.TrimSpace(q.Get("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		clauses = append(clauses, "(LOWER(p.name) LIKE ? OR LOWER(COALESCE(p.barcode, '')) LIKE ?)")
		args = append(args, like, like)
	}
	if category := strings.TrimSpace(q.Get("category")); category != "" {
		clauses = append(clauses, "p.category = ?")
		args = append(args, category)
	}
	if q.Get("low_stock") == "true" {
		clauses = append(clauses, "p.stock <= p.min_stock")
	}

	query := `SELECT ` + productColumns + ` FROM products p WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY p.name`
	products, err := h.selectProducts(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("list products", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to list products")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handler) lowStockProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.selectProducts(r.Context(),
		`SELECT `+productColumns+` FROM products p WHERE p.is_active = 1 AND p.stock <= p.min_stock ORDER BY p.stock, p.name`)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list low stock products")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories := []string{}
	if err := h.db.SelectContext(r.Context(), &categories,
		`SELECT DISTINCT category FROM products WHERE is_active = 1 AND category <> '' ORDER BY category`); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list categories")
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	products, err := h.selectProducts(r.Context(), `SELECT `+productColumns+` FROM products p WHERE p.id = ?`, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load product")
		return
	}
	if len(products) == 0 {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	respondJSON(w, http.StatusOK, products[0])
}

// productByBarcode checks the primary barcode first, then aliases. Inactive products never match.
func (h *Handler) productByBarcode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	products, err := h.selectProducts(r.Context(),
		`SELECT `+productColumns+` FROM products p WHERE p.barcode = ? AND p.is_active = 1`, code)
	if err == nil && len(products) == 0 {
		products, err = h.selectProducts(r.Context(),
			`SELECT `+productColumns+` FROM products p JOIN product_barcodes b ON b.product_id = p.id WHERE b.barcode = ? AND p.is_active = 1`, code)
	}
	if err != nil {
		h.logger.Error("barcode lookup", zap.String("code", code), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to look up barcode")
		return
	}
	if len(products) == 0 {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}
	respondJSON(w, http.StatusOK, products[0])
}

// selectProducts runs query and fills in derived fields and alias barcodes.
func (h *Handler) selectProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	products := []domain.Product{}
	if err := h.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return products, nil
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	aliasQuery, aliasArgs, err := sqlx.In(`SELECT product_id, barcode FROM product_barcodes WHERE product_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	var aliases []struct {
		ProductID int64  `db:"product_id"`
		Barcode   string `db:"barcode"`
	}
	if err := h.db.SelectContext(ctx, &aliases, h.db.Rebind(aliasQuery), aliasArgs...); err != nil {
		return nil, err
	}
	byProduct := make(map[int64][]string)
	for _, a := range aliases {
		byProduct[a.ProductID] = append(byProduct[a.ProductID], a.Barcode)
	}

	for i := range products {
		products[i].IsLowStock = products[i].Stock <= products[i].MinStock
		products[i].AltBarcodes = byProduct[products[i].ID]
		if products[i].AltBarcodes == nil {
			products[i].AltBarcodes = []string{}
		}
	}
	return products, nil
}

func (h *Handler) productName(ctx context.Context, id int64) (string, error) {
	var name string
	err := h.db.GetContext(ctx, &name, `SELECT name FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("product not found")
	}
	return name, err
}
