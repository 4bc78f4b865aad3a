package transport

import (
	"context"
	"fmt"
	"sync"
)

// FakePair is an in-memory Channel pair used by package tests that need a
// duplex link without a real network. Write on one side delivers to
// ReadMessage on the other.
type FakePair struct {
	a, b *FakeChannel
}

// NewFakePair returns two linked FakeChannel endpoints.
func NewFakePair() (client, server *FakeChannel) {
	p := &FakePair{}
	toA := make(chan []byte, 64)
	toB := make(chan []byte, 64)
	p.a = &FakeChannel{in: toA, out: toB}
	p.b = &FakeChannel{in: toB, out: toA}
	return p.a, p.b
}

// FakeChannel is a Channel backed by Go channels, for tests.
type FakeChannel struct {
	in, out chan []byte

	mu     sync.Mutex
	closed bool
}

func (f *FakeChannel) Open(_ context.Context) error { return nil }

func (f *FakeChannel) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return nil, fmt.Errorf("transport: fake channel closed")
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *FakeChannel) WriteMessage(ctx context.Context, data []byte) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return fmt.Errorf("transport: fake channel closed")
	}
	select {
	case f.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeChannel) Close(_ int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.in)
	return nil
}
