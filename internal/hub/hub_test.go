package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastRespectsSubscription(t *testing.T) {
	h := New(nil)
	all := &Client{ID: "all", Send: make(chan []byte, 4)}
	one := &Client{ID: "one", Send: make(chan []byte, 4), Subscription: Subscription{ItemID: "item-1"}}
	h.Register(all)
	h.Register(one)

	h.Broadcast([]byte("a"), Subscription{ItemID: "item-1"})
	h.Broadcast([]byte("b"), Subscription{ItemID: "item-2"})

	require.Len(t, all.Send, 2)
	require.Len(t, one.Send, 1)
	assert.Equal(t, []byte("a"), <-one.Send)
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	h := New(nil)
	slow := &Client{ID: "slow", Send: make(chan []byte, 1)}
	h.Register(slow)

	h.Broadcast([]byte("first"), Subscription{})
	h.Broadcast([]byte("second"), Subscription{})

	require.Len(t, slow.Send, 1)
	assert.Equal(t, []byte("first"), <-slow.Send)
}

func TestUnregisterTwiceIsSafe(t *testing.T) {
	h := New(nil)
	c := &Client{ID: "c", Send: make(chan []byte, 1)}
	h.Register(c)
	h.Unregister(c)
	h.Unregister(c)
	assert.Equal(t, 0, h.Len())
}

func TestParseSubscribe(t *testing.T) {
	msg, ok := ParseSubscribe([]byte(`{"action":"subscribe","item_id":"item-9"}`))
	require.True(t, ok)
	assert.Equal(t, "item-9", msg.ItemID)

	_, ok = ParseSubscribe([]byte(`{"action":"shout"}`))
	assert.False(t, ok)

	_, ok = ParseSubscribe([]byte(`not json`))
	assert.False(t, ok)
}
