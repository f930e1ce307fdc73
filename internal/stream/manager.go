// Package stream owns the live server-push connection to the alert
// aggregation service and turns raw events into relevant alert batches.
//
// Delivery model: all callbacks of one Handle run on that handle's single
// transport goroutine, in arrival order, one at a time. Callbacks must not
// block for long; they hold up the next event.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// ErrStreamCapabilityMissing is reported when no transport was supplied
var ErrStreamCapabilityMissing = errors.New("no server-push transport available")

// ErrStreamEnded is returned by transports when upstream closes the stream
var ErrStreamEnded = errors.New("stream ended by upstream")

// ParseError describes an event body that is not a stream message
type ParseError struct {
	Data []byte
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed stream message: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Transport opens a server-push connection.
//
// Stream blocks for the life of the connection. It calls onOpen once the
// connection is established and onMessage for every event body, both from
// the calling goroutine and in arrival order. It returns nil after ctx is
// cancelled and a non-nil error when the connection fails or ends.
type Transport interface {
	Stream(ctx context.Context, url string, onOpen func(), onMessage func(data []byte)) error
}

// State is the connection lifecycle of a Handle
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Manager opens live stream handles. The transport is the host's streaming
// capability; nil means the environment has none.
type Manager struct {
	transport Transport
	url       string
	logger    *zap.Logger
}

// NewManager creates a stream manager for url
func NewManager(transport Transport, url string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{transport: transport, url: url, logger: logger}
}

// Handle is one live connection. Closed is terminal: open a new handle to
// reconnect.
type Handle struct {
	cancel  context.CancelFunc
	state   atomic.Int32
	closed  atomic.Bool
	done    chan struct{}
	onAlert func([]alerts.Alert)
	onError func(error)
	logger  *zap.Logger

	// dispatchMu serializes callbacks against Close. callbackG is the id of
	// the goroutine running a callback, zero when none is.
	dispatchMu sync.Mutex
	callbackG  atomic.Uint64

	mu  sync.Mutex
	err error
}

// Open starts a connection and returns its handle immediately.
//
// onAlert receives only non-empty batches of relevant alerts. onError
// receives connection-level errors; the manager never retries. Without a
// transport, onError is called once with ErrStreamCapabilityMissing and
// Open returns nil without connecting.
func (m *Manager) Open(ctx context.Context, onAlert func([]alerts.Alert), onError func(error)) *Handle {
	if m.transport == nil {
		m.logger.Error("Live stream unavailable", zap.Error(ErrStreamCapabilityMissing))
		if onError != nil {
			onError(ErrStreamCapabilityMissing)
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel:  cancel,
		done:    make(chan struct{}),
		onAlert: onAlert,
		onError: onError,
		logger:  m.logger.With(zap.String("url", m.url)),
	}
	h.state.Store(int32(StateConnecting))

	go h.run(ctx, m.transport, m.url)
	return h
}

func (h *Handle) run(ctx context.Context, transport Transport, url string) {
	defer close(h.done)
	defer h.cancel()

	err := transport.Stream(ctx, url, h.handleOpen, h.handleMessage)
	h.state.Store(int32(StateClosed))

	if err == nil || h.closed.Load() || ctx.Err() != nil {
		h.logger.Info("Live stream closed")
		return
	}

	h.mu.Lock()
	h.err = err
	h.mu.Unlock()

	h.logger.Error("Live stream connection error", zap.Error(err))
	if h.onError != nil {
		h.deliver(func() { h.onError(err) })
	}
}

// deliver runs fn unless the handle is closed
func (h *Handle) deliver(fn func()) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	if h.closed.Load() {
		return
	}
	h.callbackG.Store(goroutineID())
	defer h.callbackG.Store(0)
	fn()
}

// goroutineID reads the current goroutine's id from its stack header
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

func (h *Handle) handleOpen() {
	if h.closed.Load() {
		return
	}
	h.state.Store(int32(StateOpen))
	h.logger.Info("Live stream connected")
}

func (h *Handle) handleMessage(data []byte) {
	if h.closed.Load() {
		return
	}

	var msg alerts.StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("Dropping stream message", zap.Error(&ParseError{Data: data, Err: err}))
		return
	}

	// heartbeats are marked on the first entry only
	if len(msg.Alerts) > 0 && msg.Alerts[0].IsKeepAlive() {
		return
	}

	relevant := alerts.FilterRelevant(msg.Alerts)
	if len(relevant) == 0 {
		return
	}
	if h.onAlert == nil {
		return
	}
	h.deliver(func() { h.onAlert(relevant) })
}

// Close terminates the connection. Called from any other goroutine, Close
// waits for a callback in flight, so no callback is running or starts after
// it returns. Close is idempotent and safe to call from inside a callback.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	if h.closed.Swap(true) {
		return
	}
	h.state.Store(int32(StateClosed))
	h.cancel()

	// wait out a callback in flight, unless we are inside it
	if h.callbackG.Load() != goroutineID() {
		h.dispatchMu.Lock()
		h.dispatchMu.Unlock()
	}
}

// State returns the current lifecycle state
func (h *Handle) State() State {
	if h == nil {
		return StateClosed
	}
	return State(h.state.Load())
}

// Done is closed once the transport goroutine has exited
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the connection error that ended the stream, if any
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
