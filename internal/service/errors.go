package service

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration          = errors.New("configuration error")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidState           = fmt.Errorf("%w: invalid state", ErrInvalidRequest)
	ErrTokenExchangeFailed    = errors.New("token exchange failed")
	ErrProfileFetchFailed     = errors.New("profile fetch failed")
	ErrNoCredentialsAvailable = errors.New("no credentials available")
	ErrMediaUploadFailed      = errors.New("media upload failed")
	ErrUpstreamAPI            = errors.New("upstream api error")
	ErrUpstreamTimeout        = errors.New("upstream timeout")
	ErrUnsupportedPlatform    = errors.New("unsupported platform")
)

// Error carries one of the kinds above plus a caller-facing message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// reclassify keeps the message of err but reports it under kind.
func reclassify(kind error, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return &Error{Kind: kind, Message: se.Error()}
	}
	return &Error{Kind: kind, Err: err}
}
