package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/linguahub/aui-stream/internal/endpoint"
)

// Errors
var (
	// ErrRetriesExhausted is reported once when the reconnection budget is
	// spent. The transport is terminal afterwards; callers wanting to try
	// again must construct a new one.
	ErrRetriesExhausted = errors.New("max retries reached")
)

// Default policy values.
const (
	DefaultMaxRetries     = 5
	DefaultRetryBaseDelay = 1 * time.Second
	DefaultEndSentinel    = "stream_end"
	DefaultErrorSentinel  = "error"
)

// Frame is one decoded inbound message. Raw holds the full frame as
// received, so callers can unmarshal payload fields the transport does not
// interpret.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

// StreamError is the error carried by an inbound error sentinel.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return "stream error"
	}
	return "stream error: " + e.Message
}

// CloseError reports that the peer closed the connection with the given
// status code. Socket implementations return it from ReadMessage so the
// transport can classify the closure.
type CloseError struct {
	Code   int
	Reason string
}

// CloseNormal is the normal-closure status code.
const CloseNormal = 1000

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: code %d %s", e.Code, e.Reason)
}

// Config is the caller-owned stream configuration. The transport reads it at
// event time, so Update takes effect without tearing down an open
// connection. Callbacks may be nil.
type Config struct {
	// Endpoint in any accepted form (canonical path, legacy paths, or a
	// bare stream-type token), optionally with a query string.
	Endpoint string

	// Params are merged over query-derived parameters in the handshake
	// frame sent after every successful open.
	Params map[string]any

	OnMessage  func(Frame)
	OnError    func(error)
	OnComplete func()
}

// HeaderSource supplies headers for the WebSocket handshake, typically a
// refreshed bearer token.
type HeaderSource interface {
	Headers(ctx context.Context) (http.Header, error)
}

// Options tune transport behavior. Zero values select the defaults.
type Options struct {
	// Base is the origin the canonical stream URL is built against.
	Base endpoint.Base

	MaxRetries     int
	RetryBaseDelay time.Duration

	// Sentinel frame types are a convention shared with the backend and
	// vary per deployment.
	EndSentinel   string
	ErrorSentinel string

	Dialer     Dialer       // nil selects the gorilla dialer
	Headers    HeaderSource // optional
	Clock      Clock        // nil selects real timers
	Visibility Visibility   // optional
	Logger     *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryBaseDelay == 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if o.EndSentinel == "" {
		o.EndSentinel = DefaultEndSentinel
	}
	if o.ErrorSentinel == "" {
		o.ErrorSentinel = DefaultErrorSentinel
	}
	if o.Dialer == nil {
		o.Dialer = &GorillaDialer{}
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}
