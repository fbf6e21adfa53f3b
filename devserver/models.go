package devserver

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Token scopes, matching the production token table.
const (
	ScopeRefresh       = "refresh"
	ScopeActivation    = "activation"
	ScopePasswordReset = "password-reset"
)

// User is the stored account. JSON tags are the wire's snake_case; the
// password hash never leaves the server.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID              int64      `bun:"id,pk,autoincrement" json:"id"`
	FullName        string     `bun:"full_name,notnull" json:"full_name"`
	Username        string     `bun:"username,notnull,unique" json:"username"`
	Email           string     `bun:"email,notnull,unique" json:"email"`
	ProfileImageURL string     `bun:"profile_image_url" json:"profile_image_url,omitempty"`
	PasswordHash    string     `bun:"password_hash,notnull" json:"-"`
	Activated       bool       `bun:"activated" json:"activated"`
	LastLoginAt     *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Token is a stored opaque credential: only the SHA-256 hash is persisted,
// the plaintext goes to the client (or the token sink) once.
type Token struct {
	bun.BaseModel `bun:"table:tokens,alias:tok"`

	Hash   []byte    `bun:"hash,pk" json:"-"`
	UserID int64     `bun:"user_id,notnull" json:"-"`
	Scope  string    `bun:"scope,notnull" json:"-"`
	Expiry time.Time `bun:"expiry,notnull" json:"expiry"`
}

// authTokenEnvelope is the authentication_token object the API returns.
type authTokenEnvelope struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] DEVSERVER "+format+"\n", args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] DEVSERVER "+format+"\n", args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] DEVSERVER "+format+"\n", args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] DEVSERVER "+format+"\n", args...)
}
