package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names carried in the envelope
const (
	EventWrite = "write"
	EventWrote = "wrote"
	EventErr   = "err"
)

// Error kinds reported in WriteResult.Kind
const (
	KindMalformed = "malformed"
	KindAcquire   = "acquire"
	KindWrite     = "write"
	KindClosed    = "closed"
)

var (
	ErrMalformed = errors.New("malformed request")
	ErrAcquire   = errors.New("pin acquisition failed")
	ErrWrite     = errors.New("pin write failed")
	ErrClosed    = errors.New("relay closed")
)

// Envelope is the frame exchanged over the channel in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for the named event
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type WriteRequest struct {
	Pin   int `json:"pin"`
	Value int `json:"value"`

	// Source identifies the requesting connection in logs and history
	Source string `json:"-"`
}

// WriteResult is either a success echo of a WriteRequest or, when Kind is
// set, its error variant.
type WriteResult struct {
	Pin     int    `json:"pin"`
	Value   int    `json:"value"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`

	// Request is the raw payload, echoed back when it could not be decoded
	Request json.RawMessage `json:"request,omitempty"`
}

func (wr WriteResult) OK() bool {
	return wr.Kind == ""
}

// Event is the envelope event name this result is sent under
func (wr WriteResult) Event() string {
	if wr.OK() {
		return EventWrote
	}
	return EventErr
}

// Err rebuilds the error carried by an error variant
func (wr WriteResult) Err() error {
	if wr.OK() {
		return nil
	}
	return fmt.Errorf("%s: %s", wr.Kind, wr.Message)
}

func succeeded(req WriteRequest) WriteResult {
	return WriteResult{Pin: req.Pin, Value: req.Value}
}

func failed(req WriteRequest, err error) WriteResult {
	return WriteResult{
		Pin:     req.Pin,
		Value:   req.Value,
		Message: err.Error(),
		Kind:    KindOf(err),
	}
}

// KindOf classifies err into one of the Kind constants
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	case errors.Is(err, ErrAcquire):
		return KindAcquire
	case errors.Is(err, ErrClosed):
		return KindClosed
	default:
		return KindWrite
	}
}

// DecodeWriteRequest strictly decodes a write payload. Both fields must be
// present and integral, and value must be 0 or 1.
func DecodeWriteRequest(raw json.RawMessage) (WriteRequest, error) {
	var body struct {
		Pin   *int `json:"pin"`
		Value *int `json:"value"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return WriteRequest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var req WriteRequest
	if body.Pin != nil {
		req.Pin = *body.Pin
	}
	if body.Value != nil {
		req.Value = *body.Value
	}

	switch {
	case body.Pin == nil:
		return req, fmt.Errorf("%w: pin is required", ErrMalformed)
	case body.Value == nil:
		return req, fmt.Errorf("%w: value is required", ErrMalformed)
	case req.Pin < 0:
		return req, fmt.Errorf("%w: pin %d is negative", ErrMalformed, req.Pin)
	case req.Value != 0 && req.Value != 1:
		return req, fmt.Errorf("%w: value %d must be 0 or 1", ErrMalformed, req.Value)
	}

	return req, nil
}

// MalformedResult builds the err reply for a payload that failed decoding
func MalformedResult(req WriteRequest, raw json.RawMessage, err error) WriteResult {
	res := failed(req, err)
	if json.Valid(raw) {
		res.Request = raw
	}
	return res
}
