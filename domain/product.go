package domain

// Product is a sellable item. Price fields are in the smallest currency unit.
type Product struct {
	ID          int64    `db:"id" json:"id"`
	Barcode     *string  `db:"barcode" json:"barcode"`
	Name        string   `db:"name" json:"name"`
	Price       int64    `db:"price" json:"price"`
	CostPrice   int64    `db:"cost_price" json:"cost_price"`
	Stock       int64    `db:"stock" json:"stock"`
	MinStock    int64    `db:"min_stock" json:"min_stock"`
	IsLowStock  bool     `db:"-" json:"is_low_stock"`
	Category    string   `db:"category" json:"category"`
	Emoji       string   `db:"emoji" json:"emoji"`
	ImageURL    *string  `db:"image_url" json:"image_url"`
	IsActive    bool     `db:"is_active" json:"is_active"`
	AltBarcodes []string `db:"-" json:"alt_barcodes"`
	CreatedAt   string   `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt   string   `db:"updated_at" json:"updated_at,omitempty"`
}

// InStock reports whether at least one unit is available according to this snapshot.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Barcode is either the primary barcode of a product (ID nil) or an alias.
type Barcode struct {
	ID          *int64 `db:"id" json:"id"`
	Barcode     string `db:"barcode" json:"barcode"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	IsPrimary   bool   `db:"-" json:"is_primary"`
	Description string `db:"description" json:"description"`
	CreatedAt   string `db:"created_at" json:"created_at,omitempty"`
}
