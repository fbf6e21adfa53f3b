package devserver

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// mintAccessToken signs an HS256 access token for the user and returns the
// token with its expiry.
func (s *Server) mintAccessToken(user *User) (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(authTokenTTL)

	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SigningKey))
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign access token")
	}
	return signed, expiry, nil
}

// parseAccessToken validates a signed access token and returns the subject
// user ID.
func (s *Server) parseAccessToken(tokenString string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, goerrors.New(goerrors.CategoryAuth, "unexpected signing method")
		}
		return []byte(s.cfg.SigningKey), nil
	}, jwt.WithIssuer(s.cfg.Issuer))
	if err != nil {
		return 0, err
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, goerrors.New(goerrors.CategoryAuth, "unable to map claims")
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}

// requireAuthentication guards /me and the logout endpoint. The resolved user
// is stashed in locals for the handler.
func (s *Server) requireAuthentication(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return errInvalidAuthToken()
	}

	userID, err := s.parseAccessToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return errInvalidAuthToken()
	}

	user, err := s.userByID(c.Context(), userID)
	if err != nil {
		return errInvalidAuthToken()
	}

	c.Locals("user", user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *User {
	user, _ := c.Locals("user").(*User)
	return user
}
