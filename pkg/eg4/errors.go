package eg4

import "fmt"

// AuthError reports a credential or session failure: a rejected login, a
// login body without success, or a login response missing its session
// cookie.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "eg4 auth: " + e.Message
}

// APIError reports a vendor-call failure other than authentication: an
// unexpected HTTP status, an account with no inverters, or an invalid
// inverter selection. StatusCode is zero when no HTTP status applies.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("eg4 api: %s (status %d)", e.Message, e.StatusCode)
	}
	return "eg4 api: " + e.Message
}
