package bus

import (
	"context"
	"errors"
	"sync"
)

var ErrUnbound = errors.New("pipe end not bound")

// PipeEnd is one side of an in-memory transport pair. Frames sent on one end
// are delivered synchronously to the bus bound on the other.
type PipeEnd struct {
	mu   sync.Mutex
	peer *PipeEnd
	bus  *Bus
}

// Pipe returns two connected ends. Bind each to its bus before sending.
func Pipe() (*PipeEnd, *PipeEnd) {
	a, b := &PipeEnd{}, &PipeEnd{}
	a.peer, b.peer = b, a
	return a, b
}

// Bind makes b the receiver of frames arriving at this end.
func (p *PipeEnd) Bind(b *Bus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = b
}

func (p *PipeEnd) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.peer.mu.Lock()
	target := p.peer.bus
	p.peer.mu.Unlock()
	if target == nil {
		return ErrUnbound
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	target.Deliver(frame)
	return nil
}

// Connect builds two buses joined by a Pipe.
func Connect(opts ...Option) (host, peer *Bus) {
	a, b := Pipe()
	host = New(a, opts...)
	peer = New(b, opts...)
	a.Bind(host)
	b.Bind(peer)
	return host, peer
}
