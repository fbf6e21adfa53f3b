// Package devserver is a self-contained reconstruction of the adcentra auth
// API surface, backed by an in-process SQLite database. It exists so the SDK
// can be exercised end to end (and so integration tests have a realistic
// target) without standing up the production stack. Wire format and endpoint
// semantics follow the real server: snake_case JSON bodies, opaque
// SHA-256-hashed refresh/activation/reset tokens, an http-only refresh
// cookie, and HS256 access tokens.
package devserver

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
)

const (
	authTokenTTL          = 1 * time.Hour
	refreshTokenTTL       = 15 * 24 * time.Hour
	activationTokenTTL    = 12 * time.Hour
	passwordResetTokenTTL = 45 * time.Minute

	refreshCookieName = "refresh_token"
)

// Logger is the logging surface the server needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// TokenSink receives the plaintext activation and password-reset tokens the
// real server would email out. Tests use it to capture tokens.
type TokenSink func(scope, email, token string)

// Config holds the server options.
type Config struct {
	// SigningKey signs access tokens. Required.
	SigningKey string
	// Issuer is stamped into access token claims.
	Issuer string
	// DSN is the SQLite DSN; defaults to a private in-memory database.
	DSN string
	// BcryptCost defaults to a low cost suitable for tests.
	BcryptCost int
	// Debug enables request/response dumps through the logger.
	Debug bool
	// Logger defaults to a stdout logger.
	Logger Logger
	// TokenSink defaults to logging the token at debug level.
	TokenSink TokenSink
}

// Server hosts the API on a fiber app.
type Server struct {
	cfg    Config
	app    *fiber.App
	db     *bun.DB
	logger Logger
	sink   TokenSink
}

// New builds the server, opens the database, and creates the schema.
func New(cfg Config) (*Server, error) {
	if cfg.SigningKey == "" {
		return nil, goerrors.New(goerrors.CategoryBadInput, "devserver requires a signing key")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "adcentra.dev"
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 6
	}
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	db, err := openDB(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := createSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		db:     db,
		logger: cfg.Logger,
	}
	s.sink = cfg.TokenSink
	if s.sink == nil {
		s.sink = func(scope, email, token string) {
			s.logger.Debug("issued %s token for %s: %s", scope, email, token)
		}
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.routes()

	return s, nil
}

func (s *Server) routes() {
	v1 := s.app.Group("/v1")

	v1.Get("/healthcheck", s.healthcheck)

	v1.Post("/users", s.registerUser)
	v1.Put("/users/activate", s.activateUser)
	v1.Put("/users/password", s.updateUserPassword)

	v1.Post("/tokens/authentication", s.createAuthenticationToken)
	v1.Post("/tokens/refresh", s.refreshAuthenticationToken)
	v1.Post("/tokens/activation", s.createActivationToken)
	v1.Post("/tokens/password-reset", s.createPasswordResetToken)

	auth := v1.Group("", s.requireAuthentication)
	auth.Get("/me", s.getCurrentUser)
	auth.Delete("/tokens/authentication", s.deleteAuthenticationToken)
}

// Listener serves on an existing listener; callers own the listener address.
func (s *Server) Listener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Listen serves on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops the app and closes the database.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	if dbErr := s.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

// errorHandler maps rich errors onto the wire's error envelope.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(fiber.StatusInternalServerError)
	}

	if s.cfg.Debug {
		s.logger.Debug(
			"request error: %s category=%s details=%s",
			richErr.Message,
			richErr.Category,
			print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	body := fiber.Map{"message": richErr.Message}
	if fields, ok := richErr.Metadata["field_errors"]; ok {
		body["field_errors"] = fields
	}
	return c.Status(status).JSON(body)
}

func (s *Server) healthcheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "available"})
}
