package authclient

import "fmt"

// Logger is the minimal logging surface the SDK needs. Plug in your own
// implementation with WithLogger; the default writes to stdout.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AuthFailureHandler is invoked when the SDK decides the session is no longer
// viable: a refresh that failed or a 401 with no refresh path. The session has
// already been cleared by the time the handler runs. Hosts use it to route to
// their login surface and show a notice; the reason carries the localized
// user-facing message.
type AuthFailureHandler func(reason *Error)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHCLIENT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
