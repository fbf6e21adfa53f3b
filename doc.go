// Package authclient is the Go client SDK for the adcentra authentication
// API. It bundles the pieces a frontend or service needs to talk to the API
// without re-implementing token plumbing:
//
// Session state:
//   - Session holds the current user, access token, and token expiry behind a
//     mutex. Validity predicates (IsAuthenticated, IsTokenExpired,
//     IsTokenValid) are computed at call time from the live state, never
//     cached, so callers cannot observe a stale decision. Snapshots can be
//     persisted through a pluggable SnapshotStore and restored across
//     process restarts.
//
// Authenticated transport:
//   - Client wraps net/http with the request lifecycle the API expects:
//     snake_case the outgoing body, attach a bearer token while it is valid,
//     refresh it through the http-only cookie when it is not, retry a 401'd
//     request exactly once after a successful refresh, and normalize every
//     failure into a typed *Error. Refreshes are single-flight; concurrent
//     requests share one in-flight refresh call.
//
// Service operations:
//   - Service exposes the auth operation set (Login, Logout, GetCurrentUser,
//     Register, account activation, password reset) on top of Client. Request
//     payloads are validated before they hit the wire and responses are
//     validated against their expected shape before they reach the caller.
package authclient
