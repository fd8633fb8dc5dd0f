package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jcowley/roomcast/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

// NewChatError maps a core error kind onto an HTTP status. Membership
// conflicts use 409 so they stay distinguishable from authorization
// failures.
func NewChatError(err error) *ApiError {
	var code int
	switch chat.KindOf(err) {
	case chat.KindValidation:
		code = http.StatusBadRequest
	case chat.KindNotFound:
		code = http.StatusNotFound
	case chat.KindAuthorization:
		code = http.StatusForbidden
	case chat.KindMembership:
		code = http.StatusConflict
	default:
		return NewInternalServerError(err)
	}

	return &ApiError{
		StatusCode: code,
		Message:    err.Error(),
		Err:        err,
	}
}
