package devserver

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/hashid/pkg/hashid"
	"golang.org/x/crypto/bcrypt"
)

type registerInput struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in registerInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FullName, validation.Required, validation.Length(1, 32)),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 72)),
	)
}

func (s *Server) registerUser(c *fiber.Ctx) error {
	var input registerInput
	if err := c.BodyParser(&input); err != nil {
		return errBadRequest(err)
	}
	if err := input.Validate(); err != nil {
		return errValidation(fieldErrorMap(err))
	}

	ctx := c.Context()

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return errServer(err)
	}

	user := &User{
		FullName:        input.FullName,
		Email:           input.Email,
		Username:        usernameFromEmail(input.Email),
		ProfileImageURL: defaultProfileImageURL(input.Email),
		PasswordHash:    string(hash),
	}

	if _, err := s.db.NewInsert().Model(user).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			if _, lookupErr := s.userByEmail(ctx, input.Email); lookupErr == nil {
				return errValidation(map[string]string{"email": "A user with this email address already exists"})
			}
			// Username collision between distinct emails: retry once with a
			// disambiguated username.
			user.Username = user.Username + "-" + shortEmailID(input.Email)
			if _, err := s.db.NewInsert().Model(user).Exec(ctx); err != nil {
				return errServer(err)
			}
		} else {
			return errServer(err)
		}
	}

	return s.issueSession(c, user, fiber.StatusCreated)
}

type activateInput struct {
	Token string `json:"token"`
}

func (in activateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Token, validation.Required, validation.Length(26, 26)),
	)
}

func (s *Server) activateUser(c *fiber.Ctx) error {
	var input activateInput
	if err := c.BodyParser(&input); err != nil {
		return errBadRequest(err)
	}
	if err := input.Validate(); err != nil {
		return errValidation(fieldErrorMap(err))
	}

	ctx := c.Context()
	user, err := s.userForToken(ctx, ScopeActivation, input.Token)
	if err != nil {
		if err == errRecordNotFound {
			return errValidation(map[string]string{"token": "Invalid or expired activation token"})
		}
		return errServer(err)
	}

	user.Activated = true
	if _, err := s.db.NewUpdate().Model(user).WherePK().Exec(ctx); err != nil {
		return errServer(err)
	}
	if err := s.deleteAllTokensForUser(ctx, ScopeActivation, user.ID); err != nil {
		return errServer(err)
	}

	return c.JSON(fiber.Map{"user": user})
}

type updatePasswordInput struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (in updatePasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Token, validation.Required, validation.Length(26, 26)),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 72)),
	)
}

func (s *Server) updateUserPassword(c *fiber.Ctx) error {
	var input updatePasswordInput
	if err := c.BodyParser(&input); err != nil {
		return errBadRequest(err)
	}
	if err := input.Validate(); err != nil {
		return errValidation(fieldErrorMap(err))
	}

	ctx := c.Context()
	user, err := s.userForToken(ctx, ScopePasswordReset, input.Token)
	if err != nil {
		if err == errRecordNotFound {
			return errValidation(map[string]string{"token": "Invalid or expired password reset token"})
		}
		return errServer(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return errServer(err)
	}

	user.PasswordHash = string(hash)
	if _, err := s.db.NewUpdate().Model(user).WherePK().Exec(ctx); err != nil {
		return errServer(err)
	}

	// Changing the password invalidates every outstanding reset token and
	// refresh session.
	if err := s.deleteAllTokensForUser(ctx, ScopePasswordReset, user.ID); err != nil {
		return errServer(err)
	}
	if err := s.deleteAllTokensForUser(ctx, ScopeRefresh, user.ID); err != nil {
		return errServer(err)
	}

	return c.JSON(fiber.Map{"message": "Your password was successfully reset"})
}

func (s *Server) getCurrentUser(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"user": currentUser(c)})
}

func usernameFromEmail(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	return strings.ToLower(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '-'
	}, local))
}

// defaultProfileImageURL derives a stable avatar reference from the email so
// repeated registrations of the same address render the same icon.
func defaultProfileImageURL(email string) string {
	return fmt.Sprintf("https://avatars.adcentra.dev/%s", shortEmailID(email))
}

func shortEmailID(email string) string {
	id, err := hashid.NewUUID(strings.ToLower(email))
	if err != nil {
		return "anonymous"
	}
	return strings.SplitN(id.String(), "-", 2)[0]
}
