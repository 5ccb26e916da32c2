package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies adapter failures.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindStatus      Kind = "status"
	KindNotFound    Kind = "not_found"
	KindDecode      Kind = "decode"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

var (
	// ErrNotFound is returned by sources that know the ticker does not exist.
	ErrNotFound = errors.New("symbol not found")
	// ErrUnavailable is returned when a source refuses to be called (breaker open, disabled).
	ErrUnavailable = errors.New("source unavailable")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s -> %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// DecodeError wraps a payload that could not be parsed.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return "decode: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Error is the normalized adapter failure carried into records.
type Error struct {
	Source string
	Ticker string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s(%s): %s: %v", e.Source, e.Ticker, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Normalize converts any adapter error into *Error. nil stays nil.
func Normalize(source, ticker string, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Source: source, Ticker: ticker, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	var se *StatusError
	var de *DecodeError
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.Canceled):
		return KindUnavailable
	case errors.As(err, &se):
		if se.Code == http.StatusNotFound {
			return KindNotFound
		}
		return KindStatus
	case errors.As(err, &de):
		return KindDecode
	case errors.As(err, &ne):
		if ne.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindInternal
}
