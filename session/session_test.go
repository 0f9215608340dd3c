package session_test

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/session"
)

type recordingOutbox struct {
	mu    sync.Mutex
	posts []string
	close []bool
}

func (o *recordingOutbox) Post(_ *session.Connection, data []byte, closeAfter bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.posts = append(o.posts, string(data))
	o.close = append(o.close, closeAfter)
}

type closer struct{ closed int }

func (c *closer) Close() error {
	c.closed++
	return nil
}

type owner string

func (o *owner) Name() string { return string(*o) }

func newConn(t *testing.T, out session.Outbox) *session.Connection {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { b.Close() })
	c := session.NewConnection(a, nil, out)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestResourcesSingleInstancePerType(t *testing.T) {
	r := session.NewResources()
	session.Set(r, 1)
	session.Set(r, 2)
	session.Set(r, "text")

	v, err := session.Get[int](r)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, r.Len())

	s, ok := session.TryGet[string](r)
	assert.True(t, ok)
	assert.Equal(t, "text", s)

	_, err = session.Get[float64](r)
	assert.ErrorIs(t, err, session.ErrResourceNotFound)
}

func TestResourcesRemove(t *testing.T) {
	r := session.NewResources()
	session.Set(r, 3)

	require.NoError(t, session.Remove[int](r))
	assert.ErrorIs(t, session.Remove[int](r), session.ErrResourceNotFound)
	assert.False(t, session.RemoveIfExists[int](r))

	session.Set(r, 4)
	assert.True(t, session.RemoveIfExists[int](r))
	_, ok := session.TryGet[int](r)
	assert.False(t, ok)
}

func TestResourcesPointerAndValueAreDistinct(t *testing.T) {
	type state struct{ n int }
	r := session.NewResources()
	session.Set(r, state{n: 1})
	session.Set(r, &state{n: 2})

	v, _ := session.TryGet[state](r)
	p, _ := session.TryGet[*state](r)
	assert.Equal(t, 1, v.n)
	assert.Equal(t, 2, p.n)
}

func TestConnectionCloseDisposesResources(t *testing.T) {
	c := newConn(t, nil)
	res := &closer{}
	session.Set(c.Resources(), res)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, res.closed)
	assert.True(t, c.ShouldRemove())
	assert.Equal(t, 0, c.Resources().Len())
}

func TestInboundQueueIsFIFO(t *testing.T) {
	c := newConn(t, nil)
	for i := 0; i < 100; i++ {
		c.Enqueue(session.NewMessage([]byte{byte(i)}, time.Time{}))
	}
	assert.Equal(t, 100, c.Pending())
	for i := 0; i < 100; i++ {
		m, ok := c.Dequeue()
		require.True(t, ok)
		assert.Equal(t, byte(i), m.Data[0])
	}
	_, ok := c.Dequeue()
	assert.False(t, ok)
}

func TestEnqueueUpdatesTimestamps(t *testing.T) {
	c := newConn(t, nil)
	at := time.Now().Add(time.Hour)
	c.Enqueue(session.NewMessage([]byte("x"), at))
	assert.Equal(t, at.UnixNano(), c.LastReceived().UnixNano())
	assert.Equal(t, at.UnixNano(), c.LastActivity().UnixNano())
	assert.Equal(t, int64(1), c.Stats()["bytes_received"])
}

func TestAffinity(t *testing.T) {
	c := newConn(t, nil)
	a, b := owner("a"), owner("b")

	_, ok := c.Affinity()
	assert.False(t, ok)

	c.SetAffinity(&a)
	got, ok := c.Affinity()
	require.True(t, ok)
	assert.Equal(t, "a", got.Name())
	assert.True(t, c.HasAffinity(&a))
	assert.False(t, c.HasAffinity(&b))

	c.ClearAffinity()
	assert.False(t, c.HasAffinity(&a))
}

func TestReadGuard(t *testing.T) {
	c := newConn(t, nil)
	require.True(t, c.TryBeginRead())
	assert.False(t, c.TryBeginRead())
	c.EndRead()
	assert.True(t, c.TryBeginRead())
}

func TestReadRequestIsTakenOnce(t *testing.T) {
	c := newConn(t, nil)
	assert.False(t, c.TakeReadRequest())
	c.RequestRead()
	c.RequestRead()
	assert.True(t, c.TakeReadRequest())
	assert.False(t, c.TakeReadRequest())
}

func TestSendPostsToOutbox(t *testing.T) {
	out := &recordingOutbox{}
	c := newConn(t, out)
	require.NoError(t, c.Send([]byte("one")))
	require.NoError(t, c.SendAndClose([]byte("two")))
	assert.Equal(t, []string{"one", "two"}, out.posts)
	assert.Equal(t, []bool{false, true}, out.close)

	orphan := newConn(t, nil)
	assert.True(t, errors.Is(orphan.Send([]byte("x")), session.ErrNoOutbox))
}
