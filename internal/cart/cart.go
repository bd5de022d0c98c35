// Package cart holds the terminal's in-memory shopping cart.
//
// Stock checks here run against the last product snapshot the terminal fetched and are advisory:
// the server re-validates everything when the sale is committed.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"kasir/m/domain"
)

var (
	// ErrOutOfStock matches every *StockError.
	ErrOutOfStock = errors.New("insufficient stock")
	ErrNotInCart  = errors.New("product not in cart")
)

// StockError is returned when a mutation would take a line past the known stock.
// The cart is left unchanged.
type StockError struct {
	Name  string
	Stock int64
}

func (e *StockError) Error() string {
	if e.Stock <= 0 {
		return fmt.Sprintf("%s is out of stock", e.Name)
	}
	return fmt.Sprintf("insufficient stock for %s: %d available", e.Name, e.Stock)
}

func (e *StockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// Line is a denormalized product copy plus a quantity that is always at least one.
type Line struct {
	domain.Product
	Quantity int64
}

func (l Line) Subtotal() int64 {
	return l.Price * l.Quantity
}

// Cart is an ordered set of lines keyed by product id.
type Cart struct {
	mu       sync.Mutex
	lines    []Line
	products map[int64]domain.Product
}

// New returns an empty cart using products as the initial stock snapshot.
func New(products []domain.Product) *Cart {
	c := &Cart{}
	c.Refresh(products)
	return c
}

// Refresh replaces the product snapshot used for stock ceilings. Existing lines are kept.
func (c *Cart) Refresh(products []domain.Product) {
	snapshot := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		snapshot[p.ID] = p
	}
	c.mu.Lock()
	c.products = snapshot
	c.mu.Unlock()
}

// Product looks a product up in the current snapshot.
func (c *Cart) Product(id int64) (domain.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	return p, ok
}

// Add puts one unit of product in the cart. Product carries the stock to check against.
func (c *Cart) Add(product domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(product)
}

func (c *Cart) add(product domain.Product) error {
	if i := c.find(product.ID); i >= 0 {
		if c.lines[i].Quantity >= product.Stock {
			return &StockError{Name: product.Name, Stock: product.Stock}
		}
		c.lines[i].Quantity++
		return nil
	}
	if product.Stock <= 0 {
		return &StockError{Name: product.Name, Stock: product.Stock}
	}
	c.lines = append(c.lines, Line{Product: product, Quantity: 1})
	return nil
}

// UpdateQuantity adds delta to a line. Lines that drop to zero or below are removed.
// Increments are checked against the snapshot stock; products missing from the snapshot
// are not constrained. A positive delta for a product with no line adds it afresh.
func (c *Cart) UpdateQuantity(productID, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.find(productID)
	if i < 0 {
		if delta <= 0 {
			return nil
		}
		product, ok := c.products[productID]
		if !ok {
			return ErrNotInCart
		}
		if delta > product.Stock {
			return &StockError{Name: product.Name, Stock: product.Stock}
		}
		c.lines = append(c.lines, Line{Product: product, Quantity: delta})
		return nil
	}
	return c.update(i, delta)
}

func (c *Cart) update(i int, delta int64) error {
	line := c.lines[i]
	next := line.Quantity + delta
	if next <= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
		return nil
	}
	if delta > 0 {
		if product, ok := c.products[line.ID]; ok && next > product.Stock {
			return &StockError{Name: product.Name, Stock: product.Stock}
		}
	}
	c.lines[i].Quantity = next
	return nil
}

// SetQuantity moves a line to an absolute quantity.
func (c *Cart) SetQuantity(productID, quantity int64) error {
	return c.UpdateQuantity(productID, quantity-c.Quantity(productID))
}

// Remove drops the line for productID, if any.
func (c *Cart) Remove(productID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.find(productID); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Quantity returns the quantity held for productID, zero when absent.
func (c *Cart) Quantity(productID int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.find(productID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

// Total is the sum of price times quantity over all lines.
func (c *Cart) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, l := range c.lines {
		total += l.Subtotal()
	}
	return total
}

// Count is the number of units in the cart.
func (c *Cart) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var count int64
	for _, l := range c.lines {
		count += l.Quantity
	}
	return count
}

func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// Items converts the lines into the request shape for a sale: ids and quantities only.
func (c *Cart) Items() []domain.TransactionItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]domain.TransactionItem, 0, len(c.lines))
	for _, l := range c.lines {
		items = append(items, domain.TransactionItem{ProductID: l.ID, Quantity: l.Quantity})
	}
	return items
}

func (c *Cart) find(productID int64) int {
	for i := range c.lines {
		if c.lines[i].ID == productID {
			return i
		}
	}
	return -1
}
