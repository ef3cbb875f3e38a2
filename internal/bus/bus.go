// Package bus implements correlated request/response and fire-and-forget
// notifications between the host and an untrusted embedded game over any
// transport that can carry opaque frames.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

const DefaultTimeout = 30 * time.Second

var (
	ErrTimeout = errors.New("request timed out")
	ErrClosed  = errors.New("bus closed")
)

// RemoteError is the failure reported by the peer's handler.
type RemoteError struct {
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}

// Transport carries encoded frames to the peer. Delivery is not guaranteed;
// a lost frame surfaces as a request timeout.
type Transport interface {
	Send(ctx context.Context, data []byte) error
}

// HandlerFunc serves one inbound request. The returned value is flattened into
// the resolved message; a returned error (or panic) becomes the failed message.
type HandlerFunc func(ctx context.Context, req Message) (any, error)

type NotifyFunc func(msg Message)

type route struct {
	kind   Kind
	handle HandlerFunc
}

// Call is an outstanding request. It resolves exactly once.
type Call struct {
	ID      string
	Kind    Kind
	Created time.Time

	timer clockwork.Timer
	done  chan struct{}
	msg   Message
	err   error
}

func (c *Call) Done() <-chan struct{} { return c.done }

// Result blocks until the call resolves.
func (c *Call) Result() (Message, error) {
	<-c.done
	return c.msg, c.err
}

func (c *Call) resolve(msg Message, err error) {
	c.msg, c.err = msg, err
	close(c.done)
}

type Bus struct {
	transport Transport
	clock     clockwork.Clock
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	pending   map[string]*Call
	routes    map[string]route
	listeners map[string][]NotifyFunc
	closed    bool
}

type Option func(*Bus)

func WithClock(c clockwork.Clock) Option { return func(b *Bus) { b.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(b *Bus) { b.log = l } }

func New(t Transport, opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		transport: t,
		clock:     clockwork.NewRealClock(),
		log:       zlog.Logger,
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[string]*Call),
		routes:    make(map[string]route),
		listeners: make(map[string][]NotifyFunc),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Go sends a request and returns its pending call. A non-positive timeout
// means DefaultTimeout. Timeouts are terminal; nothing is retried.
func (b *Bus) Go(ctx context.Context, kind Kind, payload any, timeout time.Duration) *Call {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Call{ID: uuid.NewString(), Kind: kind, Created: b.clock.Now(), done: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		c.resolve(Message{}, ErrClosed)
		return c
	}
	b.pending[c.ID] = c
	c.timer = b.clock.AfterFunc(timeout, func() { b.finish(c.ID, Message{}, ErrTimeout) })
	b.mu.Unlock()

	data, err := Encode(kind.Request, c.ID, payload)
	if err != nil {
		b.finish(c.ID, Message{}, err)
		return c
	}
	if err := b.transport.Send(ctx, data); err != nil {
		b.log.Debug().Err(err).Str("type", kind.Request).Str("requestId", c.ID).Msg("bus send failed; waiting for timeout")
	}
	return c
}

// SendRequest sends a request and waits for its response, the timeout, or ctx.
func (b *Bus) SendRequest(ctx context.Context, kind Kind, payload any, timeout time.Duration) (Message, error) {
	c := b.Go(ctx, kind, payload, timeout)
	select {
	case <-c.Done():
	case <-ctx.Done():
		b.finish(c.ID, Message{}, ctx.Err())
	}
	return c.Result()
}

// OnRequest registers the handler for kind.Request and its aliases.
func (b *Bus) OnRequest(kind Kind, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := route{kind: kind, handle: h}
	b.routes[kind.Request] = r
	for _, alias := range kind.Aliases {
		b.routes[alias] = r
	}
}

func (b *Bus) OnNotify(typ string, fn NotifyFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[typ] = append(b.listeners[typ], fn)
}

// Notify sends a fire-and-forget message; no response is expected.
func (b *Bus) Notify(ctx context.Context, typ string, payload any) error {
	if b.isClosed() {
		return ErrClosed
	}
	data, err := Encode(typ, "", payload)
	if err != nil {
		return err
	}
	return b.transport.Send(ctx, data)
}

// Deliver hands an inbound frame to the bus. Malformed frames, unknown types
// and responses without a matching pending request are dropped.
func (b *Bus) Deliver(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		b.log.Debug().Err(err).Msg("dropping inbound frame")
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	r, isRequest := b.routes[msg.Type]
	listeners := append([]NotifyFunc(nil), b.listeners[msg.Type]...)
	b.mu.Unlock()

	switch {
	case isRequest:
		go b.serve(r, msg)
	case msg.RequestID != "" && b.resolve(msg):
	case len(listeners) > 0:
		for _, fn := range listeners {
			b.notifyListener(fn, msg)
		}
	default:
		b.log.Debug().Str("type", msg.Type).Str("requestId", msg.RequestID).Msg("ignoring message")
	}
}

// Pending reports the number of outstanding requests.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close resolves every outstanding request with ErrClosed and stops routing.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	calls := make([]*Call, 0, len(b.pending))
	for id, c := range b.pending {
		calls = append(calls, c)
		delete(b.pending, id)
	}
	b.mu.Unlock()

	b.cancel()
	for _, c := range calls {
		c.timer.Stop()
		c.resolve(Message{}, ErrClosed)
	}
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// take removes a pending call. Removal is the single point that decides who
// resolves it.
func (b *Bus) take(id string) *Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.pending[id]
	if c != nil {
		delete(b.pending, id)
	}
	return c
}

func (b *Bus) finish(id string, msg Message, err error) bool {
	c := b.take(id)
	if c == nil {
		return false
	}
	c.timer.Stop()
	c.resolve(msg, err)
	return true
}

func (b *Bus) resolve(msg Message) bool {
	b.mu.Lock()
	c := b.pending[msg.RequestID]
	if c == nil || !c.Kind.answeredBy(msg.Type) {
		b.mu.Unlock()
		return false
	}
	delete(b.pending, msg.RequestID)
	b.mu.Unlock()

	c.timer.Stop()
	if c.Kind.isFailure(msg) {
		c.resolve(msg, &RemoteError{Type: msg.Type, Message: msg.Error})
	} else {
		c.resolve(msg, nil)
	}
	return true
}

func (b *Bus) serve(r route, req Message) {
	result, err := b.invoke(r.handle, req)
	var data []byte
	if err == nil {
		data, err = Encode(r.kind.Resolved, req.RequestID, result)
	}
	if err != nil {
		b.log.Warn().Err(err).Str("type", req.Type).Str("requestId", req.RequestID).Msg("request handler failed")
		data, err = Encode(r.kind.Failed, req.RequestID, failure{Error: err.Error()})
		if err != nil {
			return
		}
	}
	if err := b.transport.Send(b.ctx, data); err != nil {
		b.log.Debug().Err(err).Str("requestId", req.RequestID).Msg("bus response not sent")
	}
}

func (b *Bus) invoke(h HandlerFunc, req Message) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(b.ctx, req)
}

func (b *Bus) notifyListener(fn NotifyFunc, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error().Interface("panic", rec).Str("type", msg.Type).Msg("notification listener panicked")
		}
	}()
	fn(msg)
}
