package idp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2 error codes the flows act on (RFC 6749, RFC 8628).
const (
	ErrorCodeInvalidRequest         = "invalid_request"
	ErrorCodeInvalidClient          = "invalid_client"
	ErrorCodeInvalidGrant           = "invalid_grant"
	ErrorCodeAccessDenied           = "access_denied"
	ErrorCodeServerError            = "server_error"
	ErrorCodeTemporarilyUnavailable = "temporarily_unavailable"
	ErrorCodeAuthorizationPending   = "authorization_pending"
	ErrorCodeSlowDown               = "slow_down"
	ErrorCodeExpiredToken           = "expired_token"
)

// Error is an OAuth2 error response returned by the identity provider.
type Error struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return "idp: " + e.Code
	}
	return fmt.Sprintf("idp: %s: %s", e.Code, e.Description)
}

// Pending reports whether a device poll should simply be retried.
func (e *Error) Pending() bool {
	return e.Code == ErrorCodeAuthorizationPending || e.Code == ErrorCodeSlowDown
}

// Retryable reports whether the same request may succeed later: a pending
// device authorization or a transient provider failure.
func (e *Error) Retryable() bool {
	switch {
	case e.Pending():
		return true
	case e.StatusCode >= 500, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.Code == ErrorCodeServerError || e.Code == ErrorCodeTemporarilyUnavailable
	}
}

// IsPending reports whether err is an authorization_pending or slow_down
// response from the token endpoint.
func IsPending(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Pending()
}

// ErrMalformedResponse is returned when a 2xx body cannot be understood.
var ErrMalformedResponse = errors.New("idp: malformed response")

// parseErrorResponse turns a non-2xx response into an *Error.
func parseErrorResponse(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var e Error
	if err := json.Unmarshal(body, &e); err == nil && e.Code != "" {
		e.StatusCode = status
		return &e
	}

	return &Error{
		StatusCode:  status,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}

// fromOAuth2 normalises x/oauth2 failures into *Error where possible.
func fromOAuth2(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	if re.ErrorCode != "" {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &Error{StatusCode: status, Code: re.ErrorCode, Description: re.ErrorDescription}
	}
	if re.Response != nil {
		return parseErrorResponse(re.Response.StatusCode, re.Body)
	}
	return err
}
