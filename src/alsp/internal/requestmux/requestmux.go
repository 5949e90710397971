// Package requestmux serializes a high-churn request class with latest-wins
// semantics: at most one completion request is outstanding per server
// instance, and a newer request cancels the previous one server-side before
// proceeding.
package requestmux

import (
	"context"
	"errors"
	"sync"

	"github.com/acornide/assist-lsp/src/alsp/internal/rpcclient"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Invoke issues the underlying RPC. The context is canceled when the request
// is superseded or canceled by its caller; transport-level abort is
// best-effort and in-flight bytes may still be exchanged.
type Invoke func(ctx context.Context) ([]byte, error)

// Canceler sends a best-effort server-side cancellation for a superseded
// request id. Fire-and-forget; failures are logged, never surfaced.
type Canceler func(requestID int64)

// Callback receives the outcome of a submitted request exactly once.
// ok=true with the response body on success. ok=false with nil error when the
// request was canceled, superseded, or terminated by a benign control outcome
// (service inactive, canceled, rate-limit/timeout status). Any other failure
// is delivered through err.
type Callback func(ok bool, body []byte, err error)

// Mux tracks the single pending cancelable request.
type Mux struct {
	mu      sync.Mutex
	pending *descriptor
	logger  *zap.SugaredLogger
	stats   tally.Scope
}

// Params define values to be used by the mux.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

// New creates a Mux with an empty pending slot.
func New(p Params) *Mux {
	return &Mux{
		logger: p.Logger.With("component", "requestmux"),
		stats:  p.Stats.SubScope("mux"),
	}
}

// descriptor is the single-slot record of the in-flight cancelable request.
// resolved guards the one-shot completion path: whichever of cancellation or
// settlement flips it first delivers the callback, the other is a no-op.
type descriptor struct {
	requestID int64
	resolved  *atomic.Bool
	cancelCtx context.CancelFunc
	canceler  Canceler
	cb        Callback
}

// cancel resolves the descriptor as canceled. Idempotent: a second call is a
// no-op, with no duplicate cancellation RPC and no duplicate callback.
// The callback is delivered on a fresh goroutine: cancellation can originate
// inside a caller's critical section, and callbacks may re-enter the caller.
func (d *descriptor) cancel() {
	if !d.resolved.CompareAndSwap(false, true) {
		return
	}
	d.cancelCtx()
	if d.canceler != nil {
		go d.canceler(d.requestID)
	}
	go d.cb(false, nil, nil)
}

// Submit cancels any pending request and issues a new one. The returned
// function cancels this request early and may be called more than once.
func (m *Mux) Submit(ctx context.Context, requestID int64, invoke Invoke, canceler Canceler, cb Callback) (cancel func()) {
	// Supersede the previous request before installing the new descriptor.
	m.mu.Lock()
	old := m.pending
	m.pending = nil
	m.mu.Unlock()
	if old != nil {
		old.cancel()
		m.stats.Counter("superseded").Inc(1)
		m.logger.Debugw("superseded pending request", "request_id", old.requestID)
	}

	reqCtx, cancelCtx := context.WithCancel(ctx)
	d := &descriptor{
		requestID: requestID,
		resolved:  atomic.NewBool(false),
		cancelCtx: cancelCtx,
		canceler:  canceler,
		cb:        cb,
	}

	m.mu.Lock()
	m.pending = d
	m.mu.Unlock()
	m.stats.Counter("submitted").Inc(1)

	go func() {
		body, err := invoke(reqCtx)
		m.settle(d, body, err)
	}()

	return func() {
		m.clear(d)
		d.cancel()
	}
}

// CancelPending cancels the pending request, if any. Used on generation
// teardown.
func (m *Mux) CancelPending() {
	m.mu.Lock()
	old := m.pending
	m.pending = nil
	m.mu.Unlock()
	if old != nil {
		old.cancel()
	}
}

// PendingRequestID returns the id of the pending request, or 0 when the slot
// is empty.
func (m *Mux) PendingRequestID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return 0
	}
	return m.pending.requestID
}

// settle delivers the RPC outcome unless the descriptor was already resolved
// by cancellation, in which case the late response is swallowed.
func (m *Mux) settle(d *descriptor, body []byte, err error) {
	m.clear(d)
	if !d.resolved.CompareAndSwap(false, true) {
		return
	}
	d.cancelCtx()

	switch {
	case err == nil:
		m.stats.Counter("completed").Inc(1)
		d.cb(true, body, nil)
	case benign(err):
		m.stats.Counter("benign_failure").Inc(1)
		d.cb(false, nil, nil)
	default:
		m.stats.Counter("failed").Inc(1)
		d.cb(false, nil, err)
	}
}

func (m *Mux) clear(d *descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == d {
		m.pending = nil
	}
}

// benign reports failures that are expected control outcomes rather than
// user-visible faults.
func benign(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var rpcErr *rpcclient.Error
	return errors.As(err, &rpcErr) && rpcErr.Benign()
}
