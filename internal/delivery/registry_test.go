package delivery

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	received []Message
	failNext bool
}

func (c *fakeConn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		return errors.New("send failed")
	}
	c.received = append(c.received, msg)
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func TestRegistry_RegisterAndCount(t *testing.T) {
	r := newRegistry()
	c1, c2 := &fakeConn{}, &fakeConn{}

	r.register("s1", c1)
	r.register("s1", c2)
	r.register("s2", c1)

	assert.Equal(t, 2, r.count("s1"))
	assert.Equal(t, 1, r.count("s2"))
	assert.Equal(t, 0, r.count("unknown"))
}

func TestRegistry_UnregisterRemovesConnectionAndEmptyGroup(t *testing.T) {
	r := newRegistry()
	c1 := &fakeConn{}

	r.register("s1", c1)
	require.Equal(t, 1, r.count("s1"))

	r.unregister("s1", c1)
	assert.Equal(t, 0, r.count("s1"))

	r.unregister("s1", c1)
}

func TestRegistry_BroadcastDeliversToAllAttachedConnections(t *testing.T) {
	r := newRegistry()
	c1, c2 := &fakeConn{}, &fakeConn{}
	r.register("s1", c1)
	r.register("s1", c2)

	r.broadcast("s1", 1, Message{Type: MessageStateUpdate, SessionID: "s1"})

	assert.Equal(t, 1, c1.count())
	assert.Equal(t, 1, c2.count())
}

func TestRegistry_BroadcastSuppressesStaleVersions(t *testing.T) {
	r := newRegistry()
	c1 := &fakeConn{}
	r.register("s1", c1)

	r.broadcast("s1", 5, Message{Type: MessageStateUpdate, SessionID: "s1"})
	require.Equal(t, 1, c1.count())

	r.broadcast("s1", 5, Message{Type: MessageStateUpdate, SessionID: "s1"})
	r.broadcast("s1", 3, Message{Type: MessageStateUpdate, SessionID: "s1"})
	assert.Equal(t, 1, c1.count(), "versions <= last observed must be suppressed")

	r.broadcast("s1", 6, Message{Type: MessageStateUpdate, SessionID: "s1"})
	assert.Equal(t, 2, c1.count(), "a strictly newer version must be delivered")
}

func TestRegistry_BroadcastZeroVersionAlwaysDelivers(t *testing.T) {
	r := newRegistry()
	c1 := &fakeConn{}
	r.register("s1", c1)

	r.broadcast("s1", 5, Message{Type: MessageStateUpdate, SessionID: "s1"})
	r.broadcast("s1", 0, Message{Type: MessageSessionDeleted, SessionID: "s1"})
	r.broadcast("s1", 0, Message{Type: MessageSessionDeleted, SessionID: "s1"})

	assert.Equal(t, 3, c1.count())
}

func TestRegistry_BroadcastDoesNotAdvanceVersionOnSendFailure(t *testing.T) {
	r := newRegistry()
	c1 := &fakeConn{failNext: true}
	r.register("s1", c1)

	r.broadcast("s1", 5, Message{Type: MessageStateUpdate, SessionID: "s1"})
	assert.Equal(t, 0, c1.count(), "failed send must not be recorded")

	r.broadcast("s1", 5, Message{Type: MessageStateUpdate, SessionID: "s1"})
	assert.Equal(t, 1, c1.count(), "retry at the same version must still be attempted after a failed send")
}
