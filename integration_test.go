package authclient_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	authclient "github.com/adcentra/go-auth-client"
	"github.com/adcentra/go-auth-client/devserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenBox captures the plaintext tokens the server would email out.
type tokenBox struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (b *tokenBox) put(scope, email, token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[scope] = token
}

func (b *tokenBox) get(scope string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[scope]
}

// Each server gets its own named in-memory database so parallel tests never
// share state through SQLite's shared cache.
var devDBSeq int64

func startDevServer(t *testing.T) (string, *tokenBox) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	box := &tokenBox{tokens: map[string]string{}}
	srv, err := devserver.New(devserver.Config{
		SigningKey: "integration-test-signing-key",
		DSN:        fmt.Sprintf("file:devtest%d?mode=memory&cache=shared", atomic.AddInt64(&devDBSeq, 1)),
		Logger:     nopLogger{},
		TokenSink:  box.put,
	})
	require.NoError(t, err)

	go func() { _ = srv.Listener(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	baseURL := "http://" + ln.Addr().String() + "/v1"
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/healthcheck")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 25*time.Millisecond, "devserver did not come up")

	return baseURL, box
}

func newJourney(t *testing.T, baseURL string) (*authclient.Session, *authclient.Service) {
	t.Helper()
	session := authclient.NewSession()
	client := newClient(t, baseURL, session)
	return session, authclient.NewService(client, authclient.WithServiceLogger(nopLogger{}))
}

func TestFullAuthenticationJourney(t *testing.T) {
	baseURL, box := startDevServer(t)
	session, svc := newJourney(t, baseURL)
	ctx := context.Background()

	reg, err := svc.Register(ctx, authclient.RegisterRequest{
		FullName: "Grace Hopper",
		Email:    "grace@example.com",
		Password: "c0bolRulez!",
	})
	require.NoError(t, err)
	assert.False(t, reg.User.Activated)
	assert.Equal(t, "grace", reg.User.Username)
	assert.NotEmpty(t, reg.User.ProfileImageURL)
	assert.False(t, session.IsAuthenticated(), "registration alone does not sign in")

	msg, err := svc.RequestActivationToken(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, msg)

	activationToken := box.get(devserver.ScopeActivation)
	require.Len(t, activationToken, 26)
	require.NoError(t, svc.ActivateAccount(ctx, activationToken))

	// Login by username rather than email.
	out, err := svc.Login(ctx, authclient.LoginRequest{Identifier: "grace", Password: "c0bolRulez!"})
	require.NoError(t, err)
	assert.True(t, out.User.Activated)
	assert.NotNil(t, out.User.LastLoginAt)
	assert.True(t, session.IsTokenValid())

	me, err := svc.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", me.Email)

	// Force local expiry. The next request must renew through the http-only
	// refresh cookie without the caller noticing.
	stale := session.AccessToken()
	session.SetAccessToken(authclient.AuthToken{Token: stale, Expiry: time.Now().Add(-time.Minute)})

	me, err = svc.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", me.Email)
	assert.True(t, session.IsTokenValid())
	assert.NotEqual(t, stale, session.AccessToken())

	require.NoError(t, svc.Logout(ctx, authclient.LogoutGlobal))
	assert.False(t, session.IsAuthenticated())

	// Every refresh token is revoked, and the cookie is gone.
	err = svc.RefreshAccessToken(ctx)
	require.Error(t, err)
	assert.True(t, authclient.IsRefreshFailure(err))

	_, err = svc.GetCurrentUser(ctx)
	require.Error(t, err)
	assert.True(t, authclient.IsAuthorizationError(err))
}

func TestPasswordResetJourney(t *testing.T) {
	baseURL, box := startDevServer(t)
	session, svc := newJourney(t, baseURL)
	ctx := context.Background()

	_, err := svc.Register(ctx, authclient.RegisterRequest{
		FullName: "Grace Hopper",
		Email:    "grace@example.com",
		Password: "c0bolRulez!",
	})
	require.NoError(t, err)

	// Reset is refused until the account is activated.
	_, err = svc.RequestPasswordReset(ctx, "grace@example.com")
	require.Error(t, err)
	var svcErr *authclient.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.NotEmpty(t, svcErr.FieldErrors["email"])

	_, err = svc.RequestActivationToken(ctx, "grace@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.ActivateAccount(ctx, box.get(devserver.ScopeActivation)))

	_, err = svc.RequestPasswordReset(ctx, "grace@example.com")
	require.NoError(t, err)
	resetToken := box.get(devserver.ScopePasswordReset)
	require.Len(t, resetToken, 26)

	msg, err := svc.ResetPassword(ctx, authclient.ResetPasswordRequest{
		Token:    resetToken,
		Password: "n3wPa55word!",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your password was successfully reset", msg)

	// The old password is dead, the new one works. The rejection reads as a
	// credentials problem, not an expired session.
	_, err = svc.Login(ctx, authclient.LoginRequest{Identifier: "grace@example.com", Password: "c0bolRulez!"})
	require.Error(t, err)
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "Invalid credentials", svcErr.Message)

	_, err = svc.Login(ctx, authclient.LoginRequest{Identifier: "grace@example.com", Password: "n3wPa55word!"})
	require.NoError(t, err)
	assert.True(t, session.IsTokenValid())
}

func TestRegisterCollisions(t *testing.T) {
	baseURL, _ := startDevServer(t)
	_, svc := newJourney(t, baseURL)
	ctx := context.Background()

	first, err := svc.Register(ctx, authclient.RegisterRequest{
		FullName: "Grace Hopper",
		Email:    "grace@example.com",
		Password: "c0bolRulez!",
	})
	require.NoError(t, err)
	assert.Equal(t, "grace", first.User.Username)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, authclient.RegisterRequest{
			FullName: "Grace Impostor",
			Email:    "grace@example.com",
			Password: "c0bolRulez!",
		})
		require.Error(t, err)

		var svcErr *authclient.ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "A user with this email address already exists", svcErr.FieldErrors["email"])
	})

	t.Run("same username different email", func(t *testing.T) {
		// A second client so the two accounts keep separate cookies.
		_, other := newJourney(t, baseURL)

		out, err := other.Register(ctx, authclient.RegisterRequest{
			FullName: "Other Grace",
			Email:    "grace@other.org",
			Password: "c0bolRulez!",
		})
		require.NoError(t, err)
		assert.NotEqual(t, "grace", out.User.Username)
		assert.Contains(t, out.User.Username, "grace-")
	})
}

func TestLogoutOthersScope(t *testing.T) {
	baseURL, _ := startDevServer(t)
	ctx := context.Background()

	sessionA, svcA := newJourney(t, baseURL)
	sessionB, svcB := newJourney(t, baseURL)

	_, err := svcA.Register(ctx, authclient.RegisterRequest{
		FullName: "Grace Hopper",
		Email:    "grace@example.com",
		Password: "c0bolRulez!",
	})
	require.NoError(t, err)

	_, err = svcA.Login(ctx, authclient.LoginRequest{Identifier: "grace@example.com", Password: "c0bolRulez!"})
	require.NoError(t, err)
	_, err = svcB.Login(ctx, authclient.LoginRequest{Identifier: "grace@example.com", Password: "c0bolRulez!"})
	require.NoError(t, err)

	// A revokes every session but its own. Its local state still clears; the
	// refresh cookie it holds stays valid server side.
	require.NoError(t, svcA.Logout(ctx, authclient.LogoutOthers))
	assert.False(t, sessionA.IsAuthenticated())

	err = svcB.RefreshAccessToken(ctx)
	require.Error(t, err)
	assert.True(t, authclient.IsRefreshFailure(err))
	assert.False(t, sessionB.IsAuthenticated())

	require.NoError(t, svcA.RefreshAccessToken(ctx))
	assert.True(t, sessionA.IsTokenValid())
}
