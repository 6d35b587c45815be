// Package router classifies inbound packets by their message identifier
// and dispatches them to whichever caller is waiting: a subscribed
// notification callback, or the oldest pending response waiter for that
// identifier. It owns the read half of a connection and runs its dispatch
// loop on a single dedicated goroutine, mirroring the single-reader
// discipline a TCP byte stream requires — concurrent readers would
// otherwise tear frames apart.
package router

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wdbg/conn"
	"wdbg/message"
	"wdbg/packet"
	"wdbg/wdbgerr"
)

// ErrStopped is returned by Stop's join result when the event loop was
// asked to stop and did so cleanly (not because of a connection error).
var ErrStopped = errors.New("router: stopped")

// DefaultPollInterval is how long the event loop sleeps between Peek
// attempts when no packet is ready.
const DefaultPollInterval = 500 * time.Millisecond

// notificationEntry holds the single, replaceable callback subscribed to
// one notification identifier.
type notificationEntry struct {
	mu       sync.Mutex
	callback func(*packet.Packet)
}

// Router owns an identifier registry, the single-flight notification
// subscriber table, and the FIFO response-waiter queues, and drives the
// read half of a connection.
type Router struct {
	registry *message.Registry

	mu           sync.Mutex
	notifHandler map[string]*notificationEntry // keyed by identifier key
	waiters      map[string][]chan *packet.Packet
	identByKey   map[string]message.Identifier

	rawMu  sync.Mutex
	rawCb  func(*packet.Packet)

	logger *zap.SugaredLogger
}

// New returns an empty Router. A nil logger is replaced with a no-op one.
func New(logger *zap.SugaredLogger) *Router {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Router{
		registry:     message.NewRegistry(),
		notifHandler: make(map[string]*notificationEntry),
		waiters:      make(map[string][]chan *packet.Packet),
		identByKey:   make(map[string]message.Identifier),
		logger:       logger,
	}
}

func identKey(id message.Identifier) (string, error) {
	p := packet.New()
	p.Payload = id.Values
	// Identifiers are compared by their encoded bytes, the same basis the
	// registry itself uses for its keys.
	return encodedKey(p)
}

func encodedKey(p *packet.Packet) (string, error) {
	var buf []byte
	w := &sliceWriter{buf: &buf}
	for _, v := range p.Payload {
		if err := v.Encode(w); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// RegisterNotification subscribes callback as the sole handler for
// notifications matching id. Registering again for the same identifier
// replaces the previous callback.
func (r *Router) RegisterNotification(id message.Identifier, callback func(*packet.Packet)) error {
	key, err := identKey(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registry.Register(id); err != nil {
		return err
	}
	r.identByKey[key] = id
	entry, ok := r.notifHandler[key]
	if !ok {
		entry = &notificationEntry{}
		r.notifHandler[key] = entry
	}
	entry.mu.Lock()
	entry.callback = callback
	entry.mu.Unlock()
	return nil
}

// RegisterWaiter registers a one-shot response waiter for id and returns
// the channel it will arrive on. Callers MUST call this before sending the
// corresponding request, not after — otherwise the response could arrive
// and be dropped before anyone is listening for it.
func (r *Router) RegisterWaiter(id message.Identifier) (<-chan *packet.Packet, error) {
	key, err := identKey(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan *packet.Packet, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registry.Register(id); err != nil {
		return nil, err
	}
	r.identByKey[key] = id
	r.waiters[key] = append(r.waiters[key], ch)
	return ch, nil
}

// SetRawObserver installs callback to fire for every inbound packet before
// identifier classification runs, or removes it when callback is nil.
func (r *Router) SetRawObserver(callback func(*packet.Packet)) {
	r.rawMu.Lock()
	defer r.rawMu.Unlock()
	r.rawCb = callback
}

func (r *Router) dispatch(p *packet.Packet) {
	r.rawMu.Lock()
	rawCb := r.rawCb
	r.rawMu.Unlock()
	if rawCb != nil {
		rawCb(p)
	}

	r.mu.Lock()
	id, ok, err := r.registry.Probe(p.Payload)
	if err != nil {
		r.mu.Unlock()
		r.logger.Warnw("router: failed to probe packet identifier", "error", err)
		return
	}
	if !ok {
		r.mu.Unlock()
		r.logger.Debugw("router: no registered identifier matched packet; dropping")
		return
	}
	key, err := identKey(id)
	if err != nil {
		r.mu.Unlock()
		r.logger.Warnw("router: failed to key matched identifier", "error", err)
		return
	}

	if entry, ok := r.notifHandler[key]; ok {
		r.mu.Unlock()
		entry.mu.Lock()
		cb := entry.callback
		entry.mu.Unlock()
		if cb != nil {
			cb(p)
		}
		return
	}

	queue := r.waiters[key]
	if len(queue) == 0 {
		r.mu.Unlock()
		r.logger.Debugw("router: packet matched a registered response identifier with no waiter; dropping")
		return
	}
	ch := queue[0]
	r.waiters[key] = queue[1:]
	r.mu.Unlock()

	ch <- p
}

// EventLoop runs until cancel is set to true (checked at every poll tick)
// or the connection fails. A wdbgerr.KindDecode error (a malformed packet)
// is logged and the packet dropped; the loop keeps running. Any other
// error — a transport failure or bad framing — is treated as fatal: it
// ends the loop and fails every pending waiter. read must be a read-only
// handle distinct from whatever handle the caller keeps for sending,
// since Router exclusively owns it for the duration of this call.
func (r *Router) EventLoop(read *conn.Conn, pollInterval time.Duration, cancel *atomic.Bool) error {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	for {
		if cancel.Load() {
			return ErrStopped
		}

		ready, err := read.Peek()
		if err != nil {
			r.logger.Errorw("router: connection error while polling", "error", err)
			r.failAllWaiters()
			return err
		}
		if !ready {
			time.Sleep(pollInterval)
			continue
		}

		p, err := read.Receive()
		if err != nil {
			if wdbgerr.KindOf(err) == wdbgerr.KindDecode {
				r.logger.Warnw("router: dropping malformed packet", "error", err)
				continue
			}
			r.logger.Errorw("router: connection error while receiving", "error", err)
			r.failAllWaiters()
			return err
		}
		r.dispatch(p)
	}
}

// failAllWaiters closes every pending response channel so that callers
// blocked on a request don't hang forever once the driver loop has died.
// A dead connection must not leave any caller waiting indefinitely.
func (r *Router) failAllWaiters() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, queue := range r.waiters {
		for _, ch := range queue {
			close(ch)
		}
		delete(r.waiters, key)
	}
}
