package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failed backend call.
type Code string

const (
	CodeRequest      Code = "REQUEST_ERROR"
	CodeNetwork      Code = "NETWORK_ERROR"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeServer       Code = "SERVER_ERROR"
	CodeUnknown      Code = "UNKNOWN_ERROR"
	CodeCircuitOpen  Code = "CIRCUIT_OPEN"
)

const (
	msgRequest      = "an error occurred while preparing the request"
	msgNetwork      = "could not connect to the server, check your internet connection"
	msgBadRequest   = "invalid request"
	msgUnauthorized = "unauthorized access"
	msgNotFound     = "the resource could not be found"
	msgValidation   = "validation failed"
	msgServer       = "a server error occurred"
	msgUnknown      = "an unknown error occurred"
	msgCircuitOpen  = "the service is temporarily unavailable, try again shortly"
)

// Error is returned by every failed Client call. Message is safe to show to
// a customer.
type Error struct {
	Code    Code
	Message string
	Status  int
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError finds a gateway error in err's chain.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// Message returns the customer-facing message of a gateway error, or
// fallback for anything else.
func Message(err error, fallback string) string {
	if ge, ok := AsError(err); ok && ge.Message != "" {
		return ge.Message
	}
	return fallback
}

func requestError(err error) *Error {
	msg := msgRequest
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &Error{Code: CodeRequest, Message: msg, Err: err}
}

func networkError(err error) *Error {
	return &Error{Code: CodeNetwork, Message: msgNetwork, Err: err}
}

// errorBody covers the backend envelope {success, error:{code, message, details}}
// as well as flat {message, errors} bodies.
type errorBody struct {
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

func (b errorBody) message() string {
	if b.Error != nil && b.Error.Message != "" {
		return b.Error.Message
	}
	return b.Message
}

func (b errorBody) fields() map[string]string {
	if b.Error != nil {
		if f := decodeFields(b.Error.Details); len(f) > 0 {
			return f
		}
	}
	return decodeFields(b.Errors)
}

// decodeFields accepts [{field, message}] or {field: message}.
func decodeFields(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var list []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make(map[string]string, len(list))
		for _, fe := range list {
			if fe.Field != "" {
				out[fe.Field] = fe.Message
			}
		}
		return out
	}

	var m map[string]string
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return nil
}

func statusError(status int, body []byte) *Error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	e := &Error{Status: status}
	switch status {
	case http.StatusBadRequest:
		e.Code, e.Message = CodeBadRequest, orDefault(eb.message(), msgBadRequest)
	case http.StatusUnauthorized:
		e.Code, e.Message = CodeUnauthorized, msgUnauthorized
	case http.StatusNotFound:
		e.Code, e.Message = CodeNotFound, msgNotFound
	case http.StatusUnprocessableEntity:
		e.Code, e.Message = CodeValidation, orDefault(eb.message(), msgValidation)
		e.Fields = eb.fields()
	case http.StatusInternalServerError:
		e.Code, e.Message = CodeServer, msgServer
	default:
		e.Code, e.Message = CodeUnknown, msgUnknown
	}
	return e
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
