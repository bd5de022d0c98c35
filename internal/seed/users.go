package seed

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kasir/m/domain"
)

type defaultUser struct {
	username, password, fullName, role string
}

var defaultUsers = []defaultUser{
	{username: "admin", password: "admin123", fullName: "Administrator", role: domain.RoleAdmin},
	{username: "kasir", password: "kasir123", fullName: "Kasir 1", role: domain.RoleKasir},
}

// EnsureUsers creates the default admin and cashier accounts when no user exists yet.
func EnsureUsers(db *sqlx.DB, logger *zap.Logger) error {
	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM users`); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("start user seed: %w", err)
	}
	defer tx.Rollback()

	for _, u := range defaultUsers {
		hashed, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", u.username, err)
		}
		if _, err := tx.Exec(`INSERT INTO users (username, password_hash, full_name, role) VALUES (?, ?, ?, ?)`,
			u.username, string(hashed), u.fullName, u.role); err != nil {
			return fmt.Errorf("insert user %s: %w", u.username, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user seed: %w", err)
	}
	logger.Info("default users created", zap.Strings("usernames", []string{"admin", "kasir"}))
	return nil
}

// EnsureDiscounts creates the sample promo codes when the discounts table is empty.
func EnsureDiscounts(db *sqlx.DB, logger *zap.Logger) error {
	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM discounts`); err != nil {
		return fmt.Errorf("count discounts: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err := db.Exec(`INSERT INTO discounts (code, name, discount_type, value, min_purchase, max_discount) VALUES
            ('WELCOME10', 'Welcome Discount 10%', 'percentage', 10, 50000, 20000),
            ('HEMAT5K', 'Potongan Rp 5.000', 'fixed', 5000, 30000, NULL)`)
	if err != nil {
		return fmt.Errorf("insert sample discounts: %w", err)
	}
	logger.Info("sample discounts created")
	return nil
}
