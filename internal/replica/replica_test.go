package replica

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"doodlesync/internal/blobs"
	"doodlesync/internal/kv"
	"doodlesync/internal/transport"
	"doodlesync/internal/transport/memnet"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyStore fails every write while fail is set.
type flakyStore struct {
	*kv.Memory
	fail bool
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

type cluster struct {
	t     *testing.T
	ctx   context.Context
	net   *memnet.Network
	clock *fakeClock
	blobs *blobs.Memory
	names map[string]string
}

func newCluster(t *testing.T) *cluster {
	return &cluster{
		t:     t,
		ctx:   context.Background(),
		net:   memnet.New(),
		clock: &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)},
		blobs: blobs.NewMemory(),
		names: make(map[string]string),
	}
}

func (c *cluster) add(name string) *Replica {
	return c.addWithStore(name, kv.NewMemory())
}

func (c *cluster) addWithStore(name string, store kv.Store) *Replica {
	return c.addWith(name, store, Options{})
}

// addWith fills in the cluster's clock, blob store and a quiet logger
// wherever opts leaves them unset.
func (c *cluster) addWith(name string, store kv.Store, opts Options) *Replica {
	c.t.Helper()
	if opts.Clock == nil {
		opts.Clock = c.clock.Now
	}
	if opts.Blobs == nil {
		opts.Blobs = c.blobs
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}

	id := transport.NewAddress()
	r, err := New(c.ctx, id, store, c.net.Endpoint(id), opts)
	require.NoError(c.t, err)
	c.net.Attach(id, r)
	c.names[id] = name
	return r
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(logger)
}

func (c *cluster) name(r *Replica) string {
	return c.names[r.ID()]
}

// pumpTimeout bounds a pump so a delivery loop fails the test instead of
// hanging it.
const pumpTimeout = 5 * time.Second

func (c *cluster) pump() {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(c.ctx, pumpTimeout)
	defer cancel()
	c.net.Pump(ctx)
	require.NoError(c.t, ctx.Err(), "network never went idle")
	require.Empty(c.t, c.net.Errors(), "delivery errors")
}

// room creates a room hosted by host and joins each guest in turn.
func (c *cluster) room(host *Replica, guests ...*Replica) string {
	c.t.Helper()
	id, err := host.CreateRoom(c.ctx, c.name(host), "", "")
	require.NoError(c.t, err)
	c.pump()
	for _, g := range guests {
		require.NoError(c.t, g.JoinRoom(c.ctx, host.ID(), c.name(g), ""))
		c.pump()
	}
	return id
}

// befriend makes a and b friends.
func (c *cluster) befriend(a, b *Replica) {
	c.t.Helper()
	require.NoError(c.t, a.RequestFriend(c.ctx, b.ID()))
	c.pump()
	require.NoError(c.t, b.AcceptFriend(c.ctx, a.ID()))
	c.pump()
}

func playerIndex(r *Replica, id string) int {
	return r.Room().Players.IndexOf(id)
}

func drawerID(r *Replica) string {
	room := r.Room()
	if d := room.CurrentDrawer(); d != nil {
		return d.ReplicaID
	}
	return ""
}
