package authclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	authclient "github.com/adcentra/go-auth-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, baseURL string, session *authclient.Session) *authclient.Service {
	t.Helper()
	client := newClient(t, baseURL, session)
	return authclient.NewService(client, authclient.WithServiceLogger(nopLogger{}))
}

func TestLoginCommitsSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokens/authentication", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["username_or_email"])

		writeSessionPayload(w, http.StatusCreated, "login-token", time.Hour)
	}))
	defer ts.Close()

	session := authclient.NewSession()
	svc := newService(t, ts.URL, session)

	out, err := svc.Login(context.Background(), authclient.LoginRequest{
		Identifier: "ada@example.com",
		Password:   "pa55word!X",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", out.User.Email)

	assert.True(t, session.IsTokenValid())
	assert.Equal(t, "login-token", session.AccessToken())
}

func TestLoginValidatesBeforeDispatch(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer ts.Close()

	svc := newService(t, ts.URL, authclient.NewSession())

	_, err := svc.Login(context.Background(), authclient.LoginRequest{})
	require.Error(t, err)

	var svcErr *authclient.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.NotEmpty(t, svcErr.FieldErrors["usernameOrEmail"])
	assert.NotEmpty(t, svcErr.FieldErrors["password"])
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits), "invalid input never reaches the network")
}

func TestLoginForwardsServerRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "Invalid credentials", "field_errors": {"username_or_email": "no such account"}}`)
	}))
	defer ts.Close()

	session := authclient.NewSession()
	svc := newService(t, ts.URL, session)

	_, err := svc.Login(context.Background(), authclient.LoginRequest{
		Identifier: "nobody@example.com",
		Password:   "pa55word!X",
	})
	require.Error(t, err)

	var svcErr *authclient.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "Invalid credentials", svcErr.Message)
	assert.Equal(t, "no such account", svcErr.FieldErrors["usernameOrEmail"])
	assert.False(t, session.IsAuthenticated())
}

func TestLoginWrongPasswordSurfacesServerMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Invalid credentials"}`)
	}))
	defer ts.Close()

	session := authclient.NewSession()
	svc := newService(t, ts.URL, session)

	_, err := svc.Login(context.Background(), authclient.LoginRequest{
		Identifier: "ada@example.com",
		Password:   "not-her-password",
	})
	require.Error(t, err)

	var svcErr *authclient.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "Invalid credentials", svcErr.Message)
	assert.False(t, session.IsAuthenticated())
}

func TestLoginRejectsMalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A 2xx with a body missing the token envelope.
		fmt.Fprint(w, `{"user": {"id": 7, "email": "ada@example.com"}}`)
	}))
	defer ts.Close()

	session := authclient.NewSession()
	svc := newService(t, ts.URL, session)

	_, err := svc.Login(context.Background(), authclient.LoginRequest{
		Identifier: "ada@example.com",
		Password:   "pa55word!X",
	})
	require.Error(t, err)

	var svcErr *authclient.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "Something went wrong. Please try again later.", svcErr.Message)
	assert.False(t, session.IsAuthenticated(), "a malformed payload never reaches the session")
}

func TestLogout(t *testing.T) {
	t.Run("revokes and clears", func(t *testing.T) {
		var scope string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			require.Equal(t, "/tokens/authentication", r.URL.Path)
			scope = r.URL.Query().Get("scope")
			fmt.Fprint(w, `{"message": "ok"}`)
		}))
		defer ts.Close()

		session := authclient.NewSession()
		session.SetAuth(testUser(), validToken())
		svc := newService(t, ts.URL, session)

		require.NoError(t, svc.Logout(context.Background(), authclient.LogoutGlobal))
		assert.Equal(t, "global", scope)
		assert.False(t, session.IsAuthenticated())
	})

	t.Run("defaults to local scope", func(t *testing.T) {
		var scope string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope = r.URL.Query().Get("scope")
			fmt.Fprint(w, `{"message": "ok"}`)
		}))
		defer ts.Close()

		session := authclient.NewSession()
		session.SetAuth(testUser(), validToken())
		svc := newService(t, ts.URL, session)

		require.NoError(t, svc.Logout(context.Background(), ""))
		assert.Equal(t, "local", scope)
	})

	t.Run("clears locally even when the network is down", func(t *testing.T) {
		session := authclient.NewSession()
		session.SetAuth(testUser(), validToken())
		svc := newService(t, "http://127.0.0.1:1", session)

		require.NoError(t, svc.Logout(context.Background(), authclient.LogoutLocal))
		assert.False(t, session.IsAuthenticated())
	})

	t.Run("rejects an unknown scope", func(t *testing.T) {
		session := authclient.NewSession()
		session.SetAuth(testUser(), validToken())
		svc := newService(t, "http://127.0.0.1:1", session)

		err := svc.Logout(context.Background(), authclient.LogoutScope("everything"))
		require.Error(t, err)
		assert.True(t, session.IsAuthenticated(), "nothing happened")
	})
}

func TestGetCurrentUser(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me", r.URL.Path)
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"user": {"id": 7, "full_name": "Ada Lovelace", "email": "ada@example.com", "profile_image_url": "https://avatars.adcentra.dev/ada"}}`)
	}))
	defer ts.Close()

	session := authclient.NewSession()
	session.SetAuth(testUser(), validToken())
	svc := newService(t, ts.URL, session)

	user, err := svc.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "Ada Lovelace", user.FullName)
	assert.Equal(t, "https://avatars.adcentra.dev/ada", user.ProfileImageURL)
}

func TestRegisterDoesNotCommitSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada Lovelace", body["full_name"])

		writeSessionPayload(w, http.StatusCreated, "register-token", time.Hour)
	}))
	defer ts.Close()

	session := authclient.NewSession()
	svc := newService(t, ts.URL, session)

	out, err := svc.Register(context.Background(), authclient.RegisterRequest{
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "pa55word!X",
	})
	require.NoError(t, err)
	assert.Equal(t, "register-token", out.AuthenticationToken.Token)

	// Hosts decide whether to sign the user in with the returned pair.
	assert.False(t, session.IsAuthenticated())
}

func TestRegisterPasswordRules(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"too short", "aB1!", "the length must be between 8 and 72"},
		{"missing uppercase", "pa55word!", "must contain an uppercase letter"},
		{"missing digit", "passWord!", "must contain a digit"},
		{"missing special", "pa55wordX", "must contain a special character"},
	}

	svc := newService(t, "http://127.0.0.1:1", authclient.NewSession())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), authclient.RegisterRequest{
				FullName: "Ada Lovelace",
				Email:    "ada@example.com",
				Password: tt.password,
			})
			require.Error(t, err)

			var svcErr *authclient.ServiceError
			require.ErrorAs(t, err, &svcErr)
			assert.Contains(t, svcErr.FieldErrors["password"], tt.wantErr)
		})
	}
}

func TestTokenRequestOperations(t *testing.T) {
	tests := []struct {
		name string
		path string
		call func(svc *authclient.Service) (string, error)
	}{
		{
			name: "activation token",
			path: "/tokens/activation",
			call: func(svc *authclient.Service) (string, error) {
				return svc.RequestActivationToken(context.Background(), "ada@example.com")
			},
		},
		{
			name: "password reset token",
			path: "/tokens/password-reset",
			call: func(svc *authclient.Service) (string, error) {
				return svc.RequestPasswordReset(context.Background(), "ada@example.com")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, tt.path, r.URL.Path)

				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "ada@example.com", body["email"])

				w.WriteHeader(http.StatusAccepted)
				fmt.Fprint(w, `{"message": "an email is on the way"}`)
			}))
			defer ts.Close()

			msg, err := tt.call(newService(t, ts.URL, authclient.NewSession()))
			require.NoError(t, err)
			assert.Equal(t, "an email is on the way", msg)
		})
	}
}

func TestTokenRequestRejectsBadEmail(t *testing.T) {
	svc := newService(t, "http://127.0.0.1:1", authclient.NewSession())

	_, err := svc.RequestActivationToken(context.Background(), "not-an-email")
	require.Error(t, err)

	var svcErr *authclient.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.NotEmpty(t, svcErr.FieldErrors["email"])
}

func TestActivateAccount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/users/activate", r.URL.Path)
		fmt.Fprint(w, `{"user": {"id": 7, "email": "ada@example.com", "activated": true}}`)
	}))
	defer ts.Close()

	svc := newService(t, ts.URL, authclient.NewSession())
	require.NoError(t, svc.ActivateAccount(context.Background(), "SOMEACTIVATIONTOKENVALUE26"))
}

func TestResetPassword(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/users/password", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["token"])
		assert.NotEmpty(t, body["password"])

		fmt.Fprint(w, `{"message": "Your password was successfully reset"}`)
	}))
	defer ts.Close()

	svc := newService(t, ts.URL, authclient.NewSession())
	msg, err := svc.ResetPassword(context.Background(), authclient.ResetPasswordRequest{
		Token:    "SOMERESETTOKENVALUE2626262",
		Password: "n3wPa55word!",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your password was successfully reset", msg)
}

func TestRefreshAccessToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tokens/refresh", r.URL.Path)
		writeSessionPayload(w, http.StatusCreated, "forced-refresh", time.Hour)
	}))
	defer ts.Close()

	session := authclient.NewSession()
	session.SetAuth(testUser(), validToken())

	client := newClient(t, ts.URL, session)
	svc := authclient.NewService(client, authclient.WithServiceLogger(nopLogger{}))

	require.NoError(t, svc.RefreshAccessToken(context.Background()))
	assert.Equal(t, "forced-refresh", session.AccessToken())
}

func TestServiceErrorKeepsCause(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message": "already exists"}`)
	}))
	defer ts.Close()

	svc := newService(t, ts.URL, authclient.NewSession())

	_, err := svc.GetCurrentUser(context.Background())
	require.Error(t, err)

	// The typed transport error stays reachable underneath the service shape.
	assert.True(t, authclient.IsProtocolError(err))
	apiErr, ok := authclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.False(t, errors.Is(err, authclient.ErrRefreshFailed))
}
