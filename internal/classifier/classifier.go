// internal/classifier/classifier.go
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalnine/logsentry/internal/protocol"
)

// Item is one verdict returned by the remote model.
// LogIndex is the 0-based position of the entry within the submitted batch.
type Item struct {
	Classification protocol.Classification `json:"classification"`
	Reason         string                  `json:"reason"`
	LogIndex       int                     `json:"logIndex"`
}

// NoIndex marks an item whose logIndex was absent or null; it never places
const NoIndex = -1

// Client classifies a batch of log entries. Items may come back in any order
// and may be incomplete; callers place them using LogIndex.
type Client interface {
	Classify(ctx context.Context, batch []protocol.LogEntry) ([]Item, error)
}

// ClientFunc adapts a function to the Client interface
type ClientFunc func(ctx context.Context, batch []protocol.LogEntry) ([]Item, error)

func (f ClientFunc) Classify(ctx context.Context, batch []protocol.LogEntry) ([]Item, error) {
	return f(ctx, batch)
}

// ErrUnavailable indicates every configured endpoint was unreachable
var ErrUnavailable = errors.New("all classifier endpoints unavailable")

// TransientError is a failure talking to an endpoint that may succeed on retry:
// connection errors, timeouts, 429 and 5xx responses.
type TransientError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("endpoint %s: HTTP %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProtocolError means the endpoint answered but the payload did not match the
// expected {"classifications": [...]} shape.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Msg, e.Err)
	}
	return "protocol error: " + e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ExhaustedError is returned by Retrying once every attempt has failed
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("classification failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsTransient reports whether err wraps a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsProtocol reports whether err wraps a ProtocolError
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsUnavailable checks if the error indicates all endpoints are down
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
