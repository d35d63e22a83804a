// Package comit is the RFC003 peer transport: a framed-substream protocol
// over libp2p, a dialer that queues outbound requests while connecting,
// and a one-shot response-channel primitive for the request/response
// exchange.
package comit

import (
	"errors"
	"sync"
)

// ErrConnection is surfaced to a request's caller when the response
// channel is closed without ever receiving a value — the peer-layer
// equivalent of RequestError::Connection.
var ErrConnection = errors.New("comit: response channel closed without a reply")

// ResponseChannel is a dedicated one-shot primitive: exactly one value is
// ever delivered, and closing it without sending is itself a protocol-
// observable event rather than a silent no-op. It deliberately does not
// reuse a plain Go channel type directly so that "closed without a
// reply" can be distinguished from "not yet resolved" by callers that
// only hold the read side.
type ResponseChannel[T any] struct {
	mu     sync.Mutex
	ch     chan result[T]
	closed bool
}

type result[T any] struct {
	value T
	err   error
}

// NewResponseChannel constructs an unresolved channel.
func NewResponseChannel[T any]() *ResponseChannel[T] {
	return &ResponseChannel[T]{ch: make(chan result[T], 1)}
}

// Send resolves the channel with value. Calling Send more than once, or
// after Close, panics: this primitive is one-shot by construction.
func (r *ResponseChannel[T]) Send(value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		panic("comit: Send on a closed ResponseChannel")
	}
	r.closed = true
	r.ch <- result[T]{value: value}
}

// Close resolves the channel with ErrConnection without a value, modelling
// "dropped the sender" from the original one-shot semantics.
func (r *ResponseChannel[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.ch <- result[T]{err: ErrConnection}
}

// Recv blocks until Send or Close resolves the channel.
func (r *ResponseChannel[T]) Recv() (T, error) {
	res := <-r.ch
	return res.value, res.err
}
