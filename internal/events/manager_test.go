package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimChannelPrefix(t *testing.T) {
	assert.Equal(t, "abc-123", trimChannelPrefix("execution_abc-123"))
	assert.Equal(t, "not-prefixed", trimChannelPrefix("not-prefixed"))
	assert.Equal(t, "execution_", trimChannelPrefix("execution_"))
}

func newTestConnection(id string) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{id: id, subscriptions: make(map[string]bool), ctx: ctx, cancel: cancel}
}

func TestConnectionManager_SubscribeUnsubscribe_TracksChannelMembership(t *testing.T) {
	m := NewConnectionManager(nil, 0)
	c1 := newTestConnection("c1")
	c2 := newTestConnection("c2")
	m.register(c1)
	m.register(c2)

	m.subscribe(c1, "exec-1")
	m.subscribe(c2, "exec-1")
	require.Len(t, m.channels["exec-1"], 2)

	m.unsubscribe(c1, "exec-1")
	require.Len(t, m.channels["exec-1"], 1)
	_, stillSubscribed := m.channels["exec-1"]["c1"]
	assert.False(t, stillSubscribed)

	m.unsubscribe(c2, "exec-1")
	_, channelStillTracked := m.channels["exec-1"]
	assert.False(t, channelStillTracked, "the channel entry must be pruned once its last subscriber leaves")
}

func TestConnectionManager_Unregister_RemovesConnectionFromEveryChannel(t *testing.T) {
	m := NewConnectionManager(nil, 0)
	c := newTestConnection("c1")
	m.register(c)
	m.subscribe(c, "exec-1")
	m.subscribe(c, "exec-2")
	require.Equal(t, 1, m.ActiveConnections())

	m.unregister(c)

	assert.Equal(t, 0, m.ActiveConnections())
	_, exec1Tracked := m.channels["exec-1"]
	_, exec2Tracked := m.channels["exec-2"]
	assert.False(t, exec1Tracked)
	assert.False(t, exec2Tracked)
}

func TestConnectionManager_Broadcast_NoSubscribersIsANoop(t *testing.T) {
	m := NewConnectionManager(nil, 0)
	// must not panic or block when nobody is subscribed to the channel.
	m.Broadcast("execution_nobody-listening", []byte(`{"hello":"world"}`))
}

func TestNewConnectionManager_DefaultsNonPositiveWriteTimeout(t *testing.T) {
	m := NewConnectionManager(nil, 0)
	assert.Equal(t, 5*time.Second, m.writeTimeout)
}
