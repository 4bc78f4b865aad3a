package session_test

import (
	"sync"

	"github.com/alexdanilowicz/trigger.dev/transport"
)

// fakeDialer hands out pre-wired channel ends so tests can drive both
// the client and server side of a dial without a real network.
type fakeDialer struct {
	mu    sync.Mutex
	peers []*transport.FakeChannel
}

func (d *fakeDialer) Dial(_ string, _ map[string]string) transport.Channel {
	client, server := transport.NewFakePair()
	d.mu.Lock()
	d.peers = append(d.peers, server)
	d.mu.Unlock()
	return client
}

func (d *fakeDialer) lastServerPeer() *transport.FakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peers[len(d.peers)-1]
}
