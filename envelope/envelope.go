// Package envelope shapes application results into uniform JSON HTTP
// responses of the form {"code": <int>, "data"?: <T>, "msg"?: <string>}.
//
// Every constructor returns a complete [Response] (status, headers, body).
// None of them can fail: if the envelope cannot be serialized, the response
// degrades to a plain-text 500 describing the fault.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/probe-lab/go-envelope/ptr"
)

const (
	CodeSuccess = 200
	CodeError   = 500

	MsgSuccess = "success"
)

// Envelope is the serialization model of every response body. Data and Msg
// are pointers so that omission follows presence, not zero-ness: a nil field
// is left out of the JSON output, while a pointer to a zero value is rendered.
type Envelope[T any] struct {
	Code int     `json:"code"`
	Data *T      `json:"data,omitempty"`
	Msg  *string `json:"msg,omitempty"`
}

// Message returns the message or an empty string if none is set.
func (e Envelope[T]) Message() string {
	return ptr.Deref(e.Msg)
}

// Marshal renders the envelope as compact JSON without HTML escaping and
// without a trailing newline. The output is deterministic for a given
// envelope. A panic raised while serializing the payload is returned as an
// error.
func (e Envelope[T]) Marshal() (data []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			data = nil
			err = fmt.Errorf("marshal envelope: panic: %v", rec)
		}
	}()

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses a JSON envelope carrying a payload of type T.
func Decode[T any](r io.Reader) (*Envelope[T], error) {
	env := &Envelope[T]{}
	if err := json.NewDecoder(r).Decode(env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
