package authclient

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// Service is the auth operation set on top of Client. Each operation issues
// one request, forwards transport errors unchanged as *ServiceError, and
// validates successful payloads against their expected shape before they
// reach the caller. A shape mismatch surfaces as a generic message; the
// original cause is logged, never shown.
type Service struct {
	client    *Client
	logger    Logger
	localizer *i18n.Localizer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger overrides the default logger.
func WithServiceLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceLocalizer sets the localizer for user-facing messages.
func WithServiceLocalizer(loc *i18n.Localizer) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.localizer = loc
		}
	}
}

// NewService returns a Service issuing requests through the given client.
func NewService(client *Client, opts ...ServiceOption) *Service {
	s := &Service{
		client:    client,
		logger:    defLogger{},
		localizer: NewLocalizer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates with email or username and commits the validated
// user+token pair into the session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, s.invalidPayload(err)
	}

	resp, err := s.client.Post(ctx, "/tokens/authentication", req)
	if err != nil {
		return nil, s.forward(err)
	}

	out := &LoginResponse{}
	if err := s.decodeValidated(resp.Data, out, "login"); err != nil {
		return nil, err
	}

	s.client.Session().SetAuth(out.User, out.AuthenticationToken)
	return out, nil
}

// Logout revokes the session server side (best effort) and unconditionally
// clears the local session. The revoke call's own failure is logged, not
// returned; the local clear must never be blocked by the network.
func (s *Service) Logout(ctx context.Context, scope LogoutScope) error {
	if scope == "" {
		scope = LogoutLocal
	}
	switch scope {
	case LogoutLocal, LogoutGlobal, LogoutOthers:
	default:
		return newServiceError(s.t("errors.somethingWentWrong"), nil, fmt.Errorf("invalid logout scope %q", scope))
	}

	defer s.client.Session().ClearAuth()

	if _, err := s.client.Delete(ctx, "/tokens/authentication?scope="+string(scope)); err != nil {
		s.logger.Warn("logout revoke call failed: %v", err)
	}
	return nil
}

// GetCurrentUser fetches the authenticated identity from /me.
func (s *Service) GetCurrentUser(ctx context.Context) (*User, error) {
	resp, err := s.client.Get(ctx, "/me")
	if err != nil {
		return nil, s.forward(err)
	}

	out := &CurrentUserResponse{}
	if err := s.decodeValidated(resp.Data, out, "current user"); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Register creates a new account. The account still needs activation; the
// returned token pair lets hosts sign the user in immediately.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, s.invalidPayload(err)
	}

	resp, err := s.client.Post(ctx, "/users", req)
	if err != nil {
		return nil, s.forward(err)
	}

	out := &LoginResponse{}
	if err := s.decodeValidated(resp.Data, out, "register"); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestActivationToken asks the server to email an activation token.
func (s *Service) RequestActivationToken(ctx context.Context, email string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", s.invalidPayload(err)
	}

	resp, err := s.client.Post(ctx, "/tokens/activation", map[string]any{"email": email})
	if err != nil {
		return "", s.forward(err)
	}

	out := &MessageResponse{}
	if err := s.decodeValidated(resp.Data, out, "activation token request"); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ActivateAccount consumes an activation token.
func (s *Service) ActivateAccount(ctx context.Context, token string) error {
	req := ActivateAccountRequest{Token: token}
	if err := req.Validate(); err != nil {
		return s.invalidPayload(err)
	}

	if _, err := s.client.Put(ctx, "/users/activate", req); err != nil {
		return s.forward(err)
	}
	return nil
}

// RequestPasswordReset asks the server to email a password-reset token.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", s.invalidPayload(err)
	}

	resp, err := s.client.Post(ctx, "/tokens/password-reset", map[string]any{"email": email})
	if err != nil {
		return "", s.forward(err)
	}

	out := &MessageResponse{}
	if err := s.decodeValidated(resp.Data, out, "password reset request"); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ResetPassword consumes a password-reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", s.invalidPayload(err)
	}

	resp, err := s.client.Put(ctx, "/users/password", req)
	if err != nil {
		return "", s.forward(err)
	}

	out := &MessageResponse{}
	if err := s.decodeValidated(resp.Data, out, "password reset"); err != nil {
		return "", err
	}
	return out.Message, nil
}

// RefreshAccessToken forces a token refresh outside the regular request path.
func (s *Service) RefreshAccessToken(ctx context.Context) error {
	if err := s.client.Refresh(ctx); err != nil {
		return s.forward(err)
	}
	return nil
}

// forward re-raises a transport error as a ServiceError carrying message and
// field errors unchanged. Status codes are never re-interpreted here.
func (s *Service) forward(err error) error {
	if apiErr, ok := AsAPIError(err); ok {
		return newServiceError(apiErr.Message, apiErr.FieldErrors, err)
	}
	return newServiceError(s.t("errors.somethingWentWrong"), nil, err)
}

// invalidPayload converts ozzo's per-field errors into the service error
// shape so form surfaces can render them directly.
func (s *Service) invalidPayload(err error) error {
	if fieldErrs, ok := err.(validation.Errors); ok {
		fields := make(map[string]string, len(fieldErrs))
		for name, fieldErr := range fieldErrs {
			fields[name] = fieldErr.Error()
		}
		return newServiceError(s.t("errors.generic"), fields, err)
	}
	return newServiceError(err.Error(), nil, err)
}

// decodeValidated unwraps a response payload into out and schema-validates
// it. Mismatches never leak the parse error to the caller.
func (s *Service) decodeValidated(data any, out interface{ Validate() error }, op string) error {
	if err := decodeInto(data, out); err != nil {
		s.logger.Error("failed to parse the %s response: %v", op, err)
		return newServiceError(s.t("errors.somethingWentWrong"), nil, err)
	}
	if err := out.Validate(); err != nil {
		s.logger.Error("unexpected %s response shape: %v", op, err)
		return newServiceError(s.t("errors.somethingWentWrong"), nil, err)
	}
	return nil
}

func (s *Service) t(id string) string {
	return localize(s.localizer, id)
}

func validateEmail(email string) error {
	err := validation.Validate(email, validation.Required, is.Email)
	if err != nil {
		return validation.Errors{"email": err}
	}
	return nil
}
