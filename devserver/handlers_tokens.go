package devserver

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type loginInput struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

func (in loginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.UsernameOrEmail, validation.Required),
		validation.Field(&in.Password, validation.Required),
	)
}

func (s *Server) createAuthenticationToken(c *fiber.Ctx) error {
	var input loginInput
	if err := c.BodyParser(&input); err != nil {
		return errBadRequest(err)
	}
	if err := input.Validate(); err != nil {
		return errValidation(fieldErrorMap(err))
	}

	ctx := c.Context()

	var user *User
	var err error
	if strings.Contains(input.UsernameOrEmail, "@") {
		user, err = s.userByEmail(ctx, input.UsernameOrEmail)
	} else {
		user, err = s.userByUsername(ctx, input.UsernameOrEmail)
	}
	if err != nil {
		if err == errRecordNotFound {
			// Burn a comparison anyway so response timing does not reveal
			// whether the account exists.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(input.Password))
			return errInvalidCredentials()
		}
		return errServer(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		return errInvalidCredentials()
	}

	now := time.Now()
	user.LastLoginAt = &now
	if _, err := s.db.NewUpdate().Model(user).WherePK().Exec(ctx); err != nil {
		return errServer(err)
	}

	return s.issueSession(c, user, fiber.StatusCreated)
}

func (s *Server) refreshAuthenticationToken(c *fiber.Ctx) error {
	ctx := c.Context()

	plaintext := c.Cookies(refreshCookieName)
	if len(plaintext) != 26 {
		return errInvalidCredentials()
	}

	user, err := s.userForToken(ctx, ScopeRefresh, plaintext)
	if err != nil {
		if err == errRecordNotFound {
			return errInvalidCredentials()
		}
		return errServer(err)
	}

	// Rotation: the presented refresh token is single use.
	if err := s.deleteTokenByPlaintext(ctx, plaintext); err != nil {
		return errServer(err)
	}

	now := time.Now()
	user.LastLoginAt = &now
	if _, err := s.db.NewUpdate().Model(user).WherePK().Exec(ctx); err != nil {
		return errServer(err)
	}

	return s.issueSession(c, user, fiber.StatusCreated)
}

func (s *Server) deleteAuthenticationToken(c *fiber.Ctx) error {
	ctx := c.Context()
	user := currentUser(c)
	refreshToken := c.Cookies(refreshCookieName)

	switch c.Query("scope", "local") {
	case "local":
		if len(refreshToken) == 26 {
			if err := s.deleteTokenByPlaintext(ctx, refreshToken); err != nil {
				return errServer(err)
			}
		}
		s.clearRefreshCookie(c)
	case "global":
		if err := s.deleteAllTokensForUser(ctx, ScopeRefresh, user.ID); err != nil {
			return errServer(err)
		}
		s.clearRefreshCookie(c)
	case "others":
		if len(refreshToken) != 26 {
			return errInvalidCredentials()
		}
		if err := s.deleteAllTokensForUserExcept(ctx, ScopeRefresh, user.ID, refreshToken); err != nil {
			return errServer(err)
		}
	default:
		return errValidation(map[string]string{"scope": "invalid scope"})
	}

	return c.SendStatus(fiber.StatusOK)
}

type emailInput struct {
	Email string `json:"email"`
}

func (in emailInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
	)
}

func (s *Server) createActivationToken(c *fiber.Ctx) error {
	var input emailInput
	if err := c.BodyParser(&input); err != nil {
		return errBadRequest(err)
	}
	if err := input.Validate(); err != nil {
		return errValidation(fieldErrorMap(err))
	}

	ctx := c.Context()
	user, err := s.userByEmail(ctx, input.Email)
	if err != nil {
		if err == errRecordNotFound {
			return errValidation(map[string]string{"email": "No matching email address found"})
		}
		return errServer(err)
	}
	if user.Activated {
		return errValidation(map[string]string{"email": "Your account has already been activated"})
	}

	plaintext, _, err := s.newToken(ctx, user.ID, activationTokenTTL, ScopeActivation)
	if err != nil {
		return errServer(err)
	}
	s.sink(ScopeActivation, user.Email, plaintext)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "An email will be sent to you containing the activation token",
	})
}

func (s *Server) createPasswordResetToken(c *fiber.Ctx) error {
	var input emailInput
	if err := c.BodyParser(&input); err != nil {
		return errBadRequest(err)
	}
	if err := input.Validate(); err != nil {
		return errValidation(fieldErrorMap(err))
	}

	ctx := c.Context()
	user, err := s.userByEmail(ctx, input.Email)
	if err != nil {
		if err == errRecordNotFound {
			return errValidation(map[string]string{"email": "No matching email address found"})
		}
		return errServer(err)
	}
	if !user.Activated {
		return errValidation(map[string]string{"email": "Your account must be activated first"})
	}

	plaintext, _, err := s.newToken(ctx, user.ID, passwordResetTokenTTL, ScopePasswordReset)
	if err != nil {
		return errServer(err)
	}
	s.sink(ScopePasswordReset, user.Email, plaintext)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "An email will be sent to you containing password reset instructions",
	})
}

// issueSession mints the access token, rotates in a fresh refresh cookie, and
// writes the {user, authentication_token} envelope.
func (s *Server) issueSession(c *fiber.Ctx, user *User, status int) error {
	ctx := c.Context()

	refreshPlain, refreshRow, err := s.newToken(ctx, user.ID, refreshTokenTTL, ScopeRefresh)
	if err != nil {
		return errServer(err)
	}

	signed, expiry, err := s.mintAccessToken(user)
	if err != nil {
		return errServer(err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    refreshPlain,
		Expires:  refreshRow.Expiry,
		Path:     "/v1",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})

	return c.Status(status).JSON(fiber.Map{
		"user":                 user,
		"authentication_token": authTokenEnvelope{Token: signed, Expiry: expiry},
	})
}

func (s *Server) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		Path:     "/v1",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func fieldErrorMap(err error) map[string]string {
	fields, ok := err.(validation.Errors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(fields))
	for name, fieldErr := range fields {
		out[name] = fieldErr.Error()
	}
	return out
}

// dummyHash is a valid bcrypt hash that matches no password.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("dummy-password-placeholder"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}()
