package core

import (
	"encoding/json"
	"fmt"
)

// Error is the common error shape carried across engine boundaries: a
// machine-readable code, the wrapped cause, and structured details safe to
// log (callers must not place secrets or raw provider output in Details).
type Error struct {
	Err     error          `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewError wraps err with a code and optional details.
func NewError(err error, code string, details map[string]any) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Err: err, Code: code, Message: msg, Details: details}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// JSON renders the error for transcripts and event payloads.
func (e *Error) JSON() json.RawMessage {
	data, err := json.Marshal(e)
	if err != nil {
		return json.RawMessage(fmt.Sprintf("{%q:%q}", "code", e.Code))
	}
	return data
}
