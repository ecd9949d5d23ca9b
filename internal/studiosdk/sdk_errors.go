package studiosdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrNoAPIKey         = errors.New("sdk: api key missing")
	ErrNotFound         = errors.New("sdk: not found")
	ErrUnknownInstance  = errors.New("sdk: unknown instance")
	ErrInvalidRemoteDir = errors.New("sdk: invalid remote path")
)

type SDKError interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

type BaseError struct {
	Code    string `json:"errorType"`
	Message string `json:"message"`
}

func (e *BaseError) ErrorCode() string    { return e.Code }
func (e *BaseError) ErrorMessage() string { return e.Message }

// APIError is the error body returned by the studio public API.
type APIError struct {
	BaseError
	StatusCode int `json:"-"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		BaseError: BaseError{
			Code:    code,
			Message: message,
		},
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

var _ SDKError = (*APIError)(nil)

// handleAPIError maps a req response to an error. 404s are reported as ErrNotFound
// so callers can tell a vanished item apart from a transient failure.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", operation, ErrNotFound)
	}

	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if !resp.IsErrorState() {
		return nil
	}

	if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return fmt.Errorf("%s %w", operation, apiErr)
	}

	return fmt.Errorf("api error: %s status %d: %s", operation, resp.StatusCode, resp.String())
}
