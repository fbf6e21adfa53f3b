package authclient

import (
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Password rules mirror what the API enforces server side so the common
// failures never leave the client.
var (
	hasLowerRX   = regexp.MustCompile(`[a-z]`)
	hasUpperRX   = regexp.MustCompile(`[A-Z]`)
	hasDigitRX   = regexp.MustCompile(`[0-9]`)
	hasSpecialRX = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// User is the account identity as the API reports it. Field tags carry the
// internal camelCase convention; the transport layer transcodes to and from
// the wire's snake_case at the boundary.
type User struct {
	ID              int64      `json:"id"`
	FullName        string     `json:"fullName"`
	Username        string     `json:"username,omitempty"`
	Email           string     `json:"email,omitempty"`
	ProfileImageURL string     `json:"profileImageUrl,omitempty"`
	Activated       bool       `json:"activated,omitempty"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// Validate checks the minimal identity shape every user-bearing response
// must satisfy.
func (u User) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.ID, validation.Required),
		validation.Field(&u.Email, validation.Required, is.Email),
	)
}

// AuthToken is the bearer credential the API issues. The expiry crosses the
// wire as an RFC 3339 string and is parsed during decoding.
type AuthToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

func (t AuthToken) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Token, validation.Required),
		validation.Field(&t.Expiry, validation.By(requiredTime)),
	)
}

func requiredTime(value any) error {
	ts, ok := value.(time.Time)
	if !ok || ts.IsZero() {
		return errors.New("must be a valid timestamp")
	}
	return nil
}

// LoginRequest authenticates by email or username.
type LoginRequest struct {
	Identifier string `json:"usernameOrEmail"`
	Password   string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginResponse is the payload shared by login, register, and refresh.
type LoginResponse struct {
	User                User      `json:"user"`
	AuthenticationToken AuthToken `json:"authenticationToken"`
}

func (r LoginResponse) Validate() error {
	if err := r.User.Validate(); err != nil {
		return err
	}
	return r.AuthenticationToken.Validate()
}

// RegisterRequest creates a new, not-yet-activated account.
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 32)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password,
			validation.Required,
			validation.Length(8, 72),
			validation.Match(hasLowerRX).Error("must contain a lowercase letter"),
			validation.Match(hasUpperRX).Error("must contain an uppercase letter"),
			validation.Match(hasDigitRX).Error("must contain a digit"),
			validation.Match(hasSpecialRX).Error("must contain a special character"),
		),
	)
}

// ActivateAccountRequest consumes an activation token.
type ActivateAccountRequest struct {
	Token string `json:"token"`
}

func (r ActivateAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

// ResetPasswordRequest consumes a password-reset token.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
	)
}

// MessageResponse is the generic acknowledgement envelope some operations
// return.
type MessageResponse struct {
	Message string `json:"message"`
}

func (r MessageResponse) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required),
	)
}

// CurrentUserResponse wraps the /me payload.
type CurrentUserResponse struct {
	User User `json:"user"`
}

func (r CurrentUserResponse) Validate() error {
	return r.User.Validate()
}

// LogoutScope selects which sessions a logout revokes.
type LogoutScope string

const (
	// LogoutLocal revokes only the calling session.
	LogoutLocal LogoutScope = "local"
	// LogoutGlobal revokes every session for the user.
	LogoutGlobal LogoutScope = "global"
	// LogoutOthers revokes every session except the calling one.
	LogoutOthers LogoutScope = "others"
)
