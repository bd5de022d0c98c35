package domain

const (
	RoleAdmin = "admin"
	RoleKasir = "kasir"
)

type User struct {
	ID        int64  `json:"id" db:"id"`
	Username  string `json:"username" db:"username"`
	FullName  string `json:"full_name" db:"full_name"`
	Password  string `json:"password,omitempty" db:"password_hash"`
	Role      string `json:"role" db:"role"`
	IsActive  bool   `json:"is_active" db:"is_active"`
	CreatedAt string `json:"created_at,omitempty" db:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}
