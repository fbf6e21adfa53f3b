package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBaseURL is the local development address used when neither the
	// WithBaseURL option nor the environment variable is set.
	DefaultBaseURL = "http://localhost:5500/v1"

	// BaseURLEnvVar overrides the API base URL from the environment.
	BaseURLEnvVar = "ADCENTRA_API_BASE_URL"

	refreshEndpoint = "/tokens/refresh"

	defaultRequestTimeout = 30 * time.Second
)

// Response is what a successful request resolves to: the decoded body with
// keys transcoded to the internal camelCase convention, plus the HTTP status.
type Response struct {
	Data   any
	Status int
}

// Client is the authenticated transport. For every outbound request it
// snake_cases the body, attaches a bearer token while the session holds a
// valid one, refreshes through the http-only cookie when it does not, retries
// a 401'd request exactly once after a successful refresh, and normalizes all
// failures into *Error.
//
// The refresh token never passes through this layer: it lives in a
// server-set, http-only cookie carried by the http.Client's cookie jar.
type Client struct {
	baseURL       string
	http          *http.Client
	session       *Session
	logger        Logger
	localizer     *i18n.Localizer
	onAuthFailure AuthFailureHandler

	// refreshGroup makes refresh single-flight: concurrent callers that race
	// the expiry check share one in-flight refresh call instead of issuing
	// duplicates.
	refreshGroup singleflight.Group
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the API base URL, taking precedence over the environment.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the underlying http.Client. A cookie jar is added
// if the given client has none; without one the refresh cookie is lost.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLocalizer sets the localizer used for user-facing messages.
func WithLocalizer(loc *i18n.Localizer) ClientOption {
	return func(c *Client) {
		if loc != nil {
			c.localizer = loc
		}
	}
}

// WithAuthFailureHandler registers the hook invoked on terminal auth
// failures, after the session has been cleared.
func WithAuthFailureHandler(handler AuthFailureHandler) ClientOption {
	return func(c *Client) {
		c.onAuthFailure = handler
	}
}

// NewClient returns a Client bound to the given session.
func NewClient(session *Session, opts ...ClientOption) *Client {
	c := &Client{
		session:   session,
		logger:    defLogger{},
		localizer: NewLocalizer(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		c.baseURL = os.Getenv(BaseURLEnvVar)
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	if c.http == nil {
		c.http = &http.Client{Timeout: defaultRequestTimeout}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err == nil {
			c.http.Jar = jar
		}
	}

	return c
}

// Session returns the session this client reads and writes.
func (c *Client) Session() *Session {
	return c.session
}

// BaseURL returns the resolved API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues an authenticated GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post issues an authenticated POST request with an optional body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put issues an authenticated PUT request with an optional body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Delete issues an authenticated DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do runs the full request lifecycle against {base}+path. The body, when
// present, is marshalled and its keys rewritten to the wire's snake_case.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, newError(KindValidation, 0, c.t("errors.somethingWentWrong"), err)
	}
	return c.do(ctx, method, path, payload, false)
}

// do is the dispatch loop. retried guards the single refresh-and-retry cycle:
// a request that has already been re-issued once resolves as a failure on the
// next 401, never another refresh.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, retried bool) (*Response, error) {
	token, err := c.beforeRequest(ctx)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, method, path, payload, token)
	if err != nil {
		return nil, newError(KindValidation, 0, c.t("errors.somethingWentWrong"), err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// No response reached us at all. Never retried automatically.
		return nil, newError(KindNetwork, 0, c.t("errors.network"), err)
	}
	defer resp.Body.Close()

	raw := decodeRawBody(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{Data: CamelKeys(raw, nil), Status: resp.StatusCode}, nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return c.onUnauthorized(ctx, method, path, payload, raw, retried)
	}

	return nil, c.protocolError(resp.StatusCode, raw)
}

// beforeRequest inspects the session and returns the bearer token to attach,
// refreshing first when the token is present but expired. An empty token
// means the request goes out unauthenticated.
func (c *Client) beforeRequest(ctx context.Context) (string, error) {
	if c.session == nil {
		return "", nil
	}

	if c.session.IsTokenValid() {
		return c.session.AccessToken(), nil
	}

	if c.session.IsAuthenticated() && c.session.IsTokenExpired() {
		if err := c.refresh(ctx); err != nil {
			// Session already cleared by the refresh path; the request is
			// cancelled before any network I/O.
			apiErr := newError(KindRefresh, 0, c.t("errors.sessionExpired"), errors.Join(ErrRequestCancelled, err))
			c.notifyAuthFailure(apiErr)
			return "", apiErr
		}
		return c.session.AccessToken(), nil
	}

	return "", nil
}

// onUnauthorized handles a 401 response: one refresh-and-retry cycle when the
// token is expired per the same predicate the pre-request hook uses, a
// terminal authorization rejection otherwise. The rejection keeps the server's
// message and field errors, so a wrong-credentials login reads as "Invalid
// credentials" on the form, not as a lost session.
func (c *Client) onUnauthorized(ctx context.Context, method, path string, payload []byte, raw any, retried bool) (*Response, error) {
	if !retried && c.session != nil && c.session.IsAuthenticated() && c.session.IsTokenExpired() {
		if err := c.refresh(ctx); err != nil {
			apiErr := newError(KindRefresh, 0, c.t("errors.sessionExpired"), err)
			c.notifyAuthFailure(apiErr)
			return nil, apiErr
		}
		// The retried request reads the just-committed session; no stale
		// token re-send.
		return c.do(ctx, method, path, payload, true)
	}

	message := c.t("errors.sessionExpired")
	var fieldErrors map[string]string
	if body, ok := raw.(map[string]any); ok {
		if msg, ok := body["message"].(string); ok && msg != "" {
			message = msg
		}
		fieldErrors = camelFieldErrors(body)
	}
	apiErr := &Error{
		Kind:        KindAuthorization,
		Status:      http.StatusUnauthorized,
		Message:     message,
		FieldErrors: fieldErrors,
		cause:       ErrNoViableToken,
	}

	// Losing a session is an event; never having one is not. A rejected
	// unauthenticated request (a bad login attempt) must not route the host
	// to its login surface.
	if c.session != nil && c.session.IsAuthenticated() {
		c.session.ClearAuth()
		c.notifyAuthFailure(apiErr)
	}
	return nil, apiErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte, token string) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// protocolError surfaces the server's message and field errors, or a generic
// fallback when the body was absent or undecodable.
func (c *Client) protocolError(status int, raw any) *Error {
	message := c.t("errors.generic")
	var fieldErrors map[string]string

	if body, ok := raw.(map[string]any); ok {
		if msg, ok := body["message"].(string); ok && msg != "" {
			message = msg
		}
		fieldErrors = camelFieldErrors(body)
	}

	return &Error{Kind: KindProtocol, Status: status, Message: message, FieldErrors: fieldErrors}
}

// camelFieldErrors lifts a wire field_errors object into the internal
// camelCase convention.
func camelFieldErrors(body map[string]any) map[string]string {
	fe, ok := body["field_errors"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(fe))
	for k, v := range fe {
		if s, ok := v.(string); ok {
			out[camelString(k)] = s
		}
	}
	return out
}

// Refresh exchanges the http-only refresh cookie for a fresh user+token pair
// and commits it to the session. Concurrent callers share one in-flight call.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) error {
	// The shared call runs on a detached context: the result is committed to
	// the session for every waiter, so one caller cancelling mid-flight must
	// not fail the others and clear the session they still depend on.
	refreshCtx := context.WithoutCancel(ctx)
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(refreshCtx)
	})
	return err
}

// doRefresh is deliberately independent of the generic dispatch loop so the
// two never recurse into each other. Any failure clears the session before
// propagating, so every call site reacts uniformly.
func (c *Client) doRefresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshEndpoint, nil)
	if err != nil {
		c.clearSession()
		return newError(KindRefresh, 0, c.t("errors.sessionExpired"), err)
	}
	// The refresh cookie rides the jar; no Authorization header here.
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.clearSession()
		return newError(KindRefresh, 0, c.t("errors.network"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.clearSession()
		c.logger.Warn("token refresh rejected with status %d", resp.StatusCode)
		return newError(KindRefresh, resp.StatusCode, c.t("errors.sessionExpired"), ErrRefreshFailed)
	}

	raw := decodeRawBody(resp.Body)

	var payload LoginResponse
	if err := decodeInto(CamelKeys(raw, nil), &payload); err != nil {
		c.clearSession()
		return newError(KindRefresh, resp.StatusCode, c.t("errors.sessionExpired"), err)
	}
	if err := payload.Validate(); err != nil {
		c.clearSession()
		c.logger.Error("refresh response failed validation: %v", err)
		return newError(KindRefresh, resp.StatusCode, c.t("errors.sessionExpired"), ErrRefreshFailed)
	}

	c.session.SetAuth(payload.User, payload.AuthenticationToken)
	return nil
}

func (c *Client) clearSession() {
	if c.session != nil {
		c.session.ClearAuth()
	}
}

func (c *Client) notifyAuthFailure(apiErr *Error) {
	c.logger.Warn("auth failure (%s): %s", apiErr.Kind, apiErr.Message)
	if c.onAuthFailure != nil {
		c.onAuthFailure(apiErr)
	}
}

func (c *Client) t(id string) string {
	return localize(c.localizer, id)
}

// encodeBody marshals the body and rewrites its keys to the wire's
// snake_case. Raw []byte and json.RawMessage bodies pass through untouched.
func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	switch b := body.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}

	return json.Marshal(SnakeKeys(generic, nil))
}

// decodeRawBody reads and decodes a JSON body, returning nil when the body is
// empty or not decodable. Callers treat nil as "no body".
func decodeRawBody(r io.Reader) any {
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	return raw
}

// decodeInto re-marshals a camelized generic value into a typed struct.
func decodeInto(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
