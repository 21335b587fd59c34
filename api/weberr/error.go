package weberr

import (
	"errors"
	"net/http"
)

// ErrorResponse is the body of every error returned by the API.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type RequestError struct {
	Err error
}

func (r *RequestError) Error() string { return r.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

func NewError(err error, msg string, status int, opts ...Opt) error {
	return NewCodedError(err, "", msg, status, nil, opts...)
}

// NewCodedError is NewError with a stable machine-readable code and optional
// per-field messages in the response body.
func NewCodedError(err error, code string, msg string, status int, fields map[string]string, opts ...Opt) error {
	e := &RequestError{Err: err}
	opts = append(opts, WithResponse(
		&ErrorResponse{Error: msg, Code: code, Fields: fields},
		status,
	))

	return Wrap(e, opts...)
}

func NotFound(err error, opts ...Opt) error {
	return NewError(
		err,
		"the resource could not be found",
		http.StatusNotFound,
		opts...,
	)
}

func InternalError(err error, opts ...Opt) error {
	return NewError(
		err,
		"the server encountered a problem and could not process your request",
		http.StatusInternalServerError,
		opts...,
	)
}

func BadRequest(err error, opts ...Opt) error {
	return NewError(
		err,
		"bad request",
		http.StatusBadRequest,
		opts...,
	)
}

// Conflict is returned when an operation is not allowed in the current state.
func Conflict(err error, opts ...Opt) error {
	return NewCodedError(
		err,
		"CONFLICT",
		err.Error(),
		http.StatusConflict,
		nil,
		opts...,
	)
}

func Validation(err error, fields map[string]string, opts ...Opt) error {
	return NewCodedError(
		err,
		"VALIDATION_ERROR",
		err.Error(),
		http.StatusUnprocessableEntity,
		fields,
		opts...,
	)
}

func TooManyRequests(err error, opts ...Opt) error {
	return NewCodedError(
		err,
		"RATE_LIMITED",
		"rate limit exceeded, retry later",
		http.StatusTooManyRequests,
		nil,
		opts...,
	)
}

// Invalid turns a validation failure into a 422 carrying its field messages.
// Any other error is a plain bad request.
func Invalid(err error, opts ...Opt) error {
	var fm interface{ FieldMessages() map[string]string }
	if errors.As(err, &fm) {
		return Validation(err, fm.FieldMessages(), opts...)
	}
	return BadRequest(err, opts...)
}
