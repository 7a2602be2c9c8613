package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/linguahub/aui-stream/internal/endpoint"
)

// handle wraps one socket with an identity token. Every event handler
// captures the handle it was created for and acts only while that handle is
// still the transport's current one; events from a superseded connection are
// dropped. This is what keeps a duplicate-initialization race (two rapid
// Connect cycles) from letting the first, stale socket corrupt state owned
// by the second.
type handle struct {
	id   uuid.UUID
	sock Socket
	open bool
}

// Transport is a reconnect-capable duplex stream. At most one logical
// connection exists per instance. All methods are safe for concurrent use.
type Transport struct {
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	cfg         Config
	current     *handle
	mounted     bool
	intentional bool
	attempt     int
	retryTimer  Timer
	completed   bool
	done        chan struct{}
}

// New creates a transport with the given configuration. It does not connect;
// call Connect. If opts.Visibility is set, the transport reconnects when the
// host becomes visible again.
func New(cfg Config, opts Options) *Transport {
	opts.applyDefaults()

	t := &Transport{
		opts:    opts,
		logger:  opts.Logger,
		cfg:     cfg,
		mounted: true,
		done:    make(chan struct{}),
	}

	if opts.Visibility != nil {
		go t.watchVisibility(opts.Visibility)
	}

	return t
}

// Update replaces the current configuration. Handlers read the config at
// event time, so new callbacks and params take effect without reconnecting.
func (t *Transport) Update(cfg Config) {
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

// Connected reports whether an open connection exists.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil && t.current.open
}

// Connect opens the stream. It is a no-op when a connection already exists
// (open or still dialing) or after Close, so duplicate initialization is
// harmless. Any pending retry timer is cancelled.
func (t *Transport) Connect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.mounted || t.current != nil {
		return
	}
	t.cancelRetryLocked()
	t.intentional = false
	t.completed = false
	t.connectLocked()
}

// connectLocked installs a pending handle and starts the dial. The handle is
// installed before dialing so a racing second Connect sees it and no-ops.
// Callers hold t.mu.
func (t *Transport) connectLocked() {
	if !t.mounted || t.current != nil {
		return
	}
	h := &handle{id: uuid.New()}
	t.current = h
	go t.dial(h, t.cfg)
}

// Disconnect closes the stream intentionally and clears all connection state
// synchronously, so an immediate Connect starts clean. No callback fires.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.intentional = true
	t.cancelRetryLocked()
	h := t.current
	t.current = nil
	t.attempt = 0
	t.mu.Unlock()

	closeSocket(h)
}

// Close unmounts the transport in one synchronous step: no retry fires, the
// current connection dies, and events observed afterwards are dropped.
func (t *Transport) Close() {
	t.mu.Lock()
	if !t.mounted {
		t.mu.Unlock()
		return
	}
	t.mounted = false
	t.intentional = true
	t.cancelRetryLocked()
	h := t.current
	t.current = nil
	close(t.done)
	t.mu.Unlock()

	closeSocket(h)
}

// Send writes one JSON-encoded frame when the connection is open. It returns
// false, without buffering or retrying, when there is no open connection or
// the write fails.
func (t *Transport) Send(v any) bool {
	t.mu.Lock()
	h := t.current
	open := h != nil && h.open
	t.mu.Unlock()

	if !open {
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return h.sock.WriteMessage(data) == nil
}

// dial resolves the endpoint and establishes the socket for h. The result is
// applied only if h is still current; a socket that lost the race is closed
// and never observed.
func (t *Transport) dial(h *handle, cfg Config) {
	res := endpoint.Resolve(cfg.Endpoint, t.opts.Base)

	header := http.Header{}
	if t.opts.Headers != nil {
		hd, err := t.opts.Headers.Headers(context.Background())
		if err != nil {
			t.dialFailed(h, err)
			return
		}
		header = hd
	}

	sock, err := t.opts.Dialer.Dial(context.Background(), res.URL, header)
	if err != nil {
		t.dialFailed(h, err)
		return
	}

	t.mu.Lock()
	if !t.mounted || t.current != h {
		t.mu.Unlock()
		sock.Close()
		return
	}
	h.sock = sock
	h.open = true
	t.attempt = 0
	t.mu.Unlock()

	t.logger.Debug("stream connected", "url", res.URL, "conn_id", h.id)

	if merged := mergeParams(res.Params, cfg.Params); len(merged) > 0 {
		frame, err := json.Marshal(handshakeFrame{Type: "params", Data: merged})
		if err == nil {
			if err := sock.WriteMessage(frame); err != nil {
				t.logger.Warn("params handshake failed", "error", err)
			}
		}
	}

	go t.readLoop(h)
}

// handshakeFrame is the first frame sent after every successful open.
type handshakeFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func mergeParams(extracted endpoint.Params, overrides map[string]any) map[string]any {
	if len(extracted) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]any, len(extracted)+len(overrides))
	for k, v := range extracted {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// dialFailed treats a failed connection attempt as an unexpected closure:
// logged, then handed to the retry policy. Only exhaustion surfaces to the
// caller as an error.
func (t *Transport) dialFailed(h *handle, err error) {
	t.mu.Lock()
	if !t.mounted || t.current != h {
		t.mu.Unlock()
		return
	}
	t.current = nil
	t.mu.Unlock()

	t.logger.Warn("stream dial failed", "error", err, "conn_id", h.id)
	t.scheduleRetry()
}

func (t *Transport) readLoop(h *handle) {
	for {
		data, err := h.sock.ReadMessage()
		if err != nil {
			t.handleClose(h, err)
			return
		}
		if !t.handleFrame(h, data) {
			return
		}
	}
}

// handleFrame dispatches one inbound frame. It returns false when the read
// loop should stop: the handle was superseded or a sentinel ended the
// stream. Unparseable frames are dropped without surfacing an error.
func (t *Transport) handleFrame(h *handle, data []byte) bool {
	t.mu.Lock()
	if !t.mounted || t.current != h {
		t.mu.Unlock()
		return false
	}
	cfg := t.cfg
	t.mu.Unlock()

	var head struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		t.logger.Debug("dropping unparseable frame", "error", err)
		return true
	}

	switch head.Type {
	case t.opts.EndSentinel:
		t.finishStream(h, nil)
		return false
	case t.opts.ErrorSentinel:
		t.finishStream(h, &StreamError{Message: head.Message})
		return false
	}

	if cfg.OnMessage != nil {
		cfg.OnMessage(Frame{Type: head.Type, Raw: json.RawMessage(data)})
	}
	return true
}

// finishStream ends the logical stream on a protocol sentinel: the closure
// becomes intentional (no retry), the socket closes, and OnComplete fires
// exactly once. An error sentinel additionally surfaces via OnError first.
func (t *Transport) finishStream(h *handle, streamErr error) {
	t.mu.Lock()
	if !t.mounted || t.current != h {
		t.mu.Unlock()
		return
	}
	t.intentional = true
	t.cancelRetryLocked()
	t.current = nil
	cfg := t.cfg
	fire := !t.completed
	t.completed = true
	t.mu.Unlock()

	closeSocket(h)

	if streamErr != nil && cfg.OnError != nil {
		cfg.OnError(streamErr)
	}
	if fire && cfg.OnComplete != nil {
		cfg.OnComplete()
	}
}

// handleClose classifies a dead socket. Intentional closures were already
// resolved elsewhere; a normal closure ends the stream cleanly; anything
// else goes through the retry policy.
func (t *Transport) handleClose(h *handle, err error) {
	t.mu.Lock()
	if !t.mounted || t.current != h {
		t.mu.Unlock()
		closeSocket(h)
		return
	}
	t.current = nil
	intentional := t.intentional
	cfg := t.cfg
	t.mu.Unlock()

	var ce *CloseError
	isClose := errors.As(err, &ce)

	switch {
	case intentional:
	case isClose && ce.Code == CloseNormal:
		t.logger.Debug("stream closed normally", "conn_id", h.id)
		t.completeOnce(cfg)
	default:
		if !isClose && cfg.OnError != nil {
			// Low-level socket error: surfaced for visibility, while the
			// closure itself drives the retry decision.
			cfg.OnError(err)
		}
		t.logger.Warn("stream closed unexpectedly", "error", err, "conn_id", h.id)
		t.scheduleRetry()
	}
}

// completeOnce fires OnComplete unless it already fired for this stream.
func (t *Transport) completeOnce(cfg Config) {
	t.mu.Lock()
	fire := !t.completed
	t.completed = true
	t.mu.Unlock()

	if fire && cfg.OnComplete != nil {
		cfg.OnComplete()
	}
}

// scheduleRetry applies the backoff policy after an unexpected closure.
func (t *Transport) scheduleRetry() {
	t.mu.Lock()
	if !t.mounted || t.intentional || t.current != nil {
		t.mu.Unlock()
		return
	}

	if t.attempt >= t.opts.MaxRetries {
		cfg := t.cfg
		fire := !t.completed
		t.completed = true
		t.mu.Unlock()

		t.logger.Error("stream retries exhausted", "attempts", t.opts.MaxRetries)
		if cfg.OnError != nil {
			cfg.OnError(ErrRetriesExhausted)
		}
		if fire && cfg.OnComplete != nil {
			cfg.OnComplete()
		}
		return
	}

	delay := t.opts.RetryBaseDelay << t.attempt
	t.attempt++
	t.cancelRetryLocked()
	t.retryTimer = t.opts.Clock.AfterFunc(delay, t.retryFire)
	t.logger.Info("scheduling reconnect", "delay", delay, "attempt", t.attempt)
	t.mu.Unlock()
}

func (t *Transport) retryFire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.intentional {
		return
	}
	t.retryTimer = nil
	t.connectLocked()
}

func (t *Transport) watchVisibility(v Visibility) {
	for {
		select {
		case <-t.done:
			return
		case visible, ok := <-v.Events():
			if !ok {
				return
			}
			if visible {
				t.handleVisible()
			}
		}
	}
}

// handleVisible treats return-to-foreground as a fresh connection cycle:
// the attempt counter resets instead of continuing prior backoff.
func (t *Transport) handleVisible() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.mounted || t.current != nil || t.intentional || t.completed || t.cfg.Endpoint == "" {
		return
	}
	t.attempt = 0
	t.logger.Info("host visible again, reconnecting")
	t.connectLocked()
}

// cancelRetryLocked stops a pending retry timer. Callers hold t.mu.
func (t *Transport) cancelRetryLocked() {
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
}

func closeSocket(h *handle) {
	if h != nil && h.sock != nil {
		h.sock.Close()
	}
}
