package memnet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doodlesync/internal/broadcast"
	"doodlesync/internal/events"
	"doodlesync/internal/messages"
)

type sink struct {
	from    []string
	msgs    []messages.Message
	updates []broadcast.Update
}

func (s *sink) HandleMessage(_ context.Context, from string, m messages.Message) error {
	s.from = append(s.from, from)
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *sink) HandleStreamUpdate(_ context.Context, u broadcast.Update) error {
	s.updates = append(s.updates, u)
	return nil
}

func TestSend_DeliversOnPump(t *testing.T) {
	ctx := context.Background()
	n := New()
	b := &sink{}
	n.Attach("b", b)

	require.NoError(t, n.Endpoint("a").Send(ctx, "b", messages.FriendRequest{}))
	assert.Empty(t, b.msgs, "nothing is delivered before Pump")

	assert.Equal(t, 1, n.Pump(ctx))
	require.Len(t, b.msgs, 1)
	assert.Equal(t, "a", b.from[0])
	assert.Equal(t, messages.FriendRequest{}, b.msgs[0])
}

func TestSend_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	n := New()
	b := &sink{}
	n.Attach("b", b)
	a := n.Endpoint("a")

	a.Send(ctx, "b", messages.FriendRequest{})
	a.Send(ctx, "b", messages.FriendAccepted{})
	a.Send(ctx, "b", messages.RoomInvitationCancelled{})
	n.Pump(ctx)

	require.Len(t, b.msgs, 3)
	assert.Equal(t, messages.KindFriendRequest, b.msgs[0].Kind())
	assert.Equal(t, messages.KindFriendAccepted, b.msgs[1].Kind())
	assert.Equal(t, messages.KindRoomInvitationCancelled, b.msgs[2].Kind())
}

func TestDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	n := New()
	b := &sink{}
	n.Attach("b", b)
	n.SetDuplicate(true)

	n.Endpoint("a").Send(ctx, "b", messages.FriendRequest{})
	n.Pump(ctx)
	assert.Len(t, b.msgs, 2)
}

func TestEmit_FansOutAndReplaysBacklog(t *testing.T) {
	ctx := context.Background()
	n := New()
	early, late := &sink{}, &sink{}
	n.Attach("early", early)
	n.Attach("late", late)
	host := n.Endpoint("host")

	require.NoError(t, n.Endpoint("early").Subscribe(ctx, "host", "s", 0))
	require.NoError(t, host.Emit(ctx, "s", events.Envelope{Origin: "host", Seq: 0, Event: events.MatchEnded{}}))
	require.NoError(t, host.Emit(ctx, "s", events.Envelope{Origin: "host", Seq: 1, Event: events.MatchEnded{}}))
	require.NoError(t, n.Endpoint("late").Subscribe(ctx, "host", "s", 1))
	n.Pump(ctx)

	assert.Len(t, early.updates, 2)
	require.Len(t, late.updates, 1)
	require.Len(t, late.updates[0].Entries, 1)
	assert.Equal(t, uint64(1), late.updates[0].Entries[0].Seq)
}

func TestEmit_DuplicateSeqNotRedelivered(t *testing.T) {
	ctx := context.Background()
	n := New()
	g := &sink{}
	n.Attach("g", g)
	n.Endpoint("g").Subscribe(ctx, "host", "s", 0)

	env := events.Envelope{Origin: "host", Seq: 0, Event: events.MatchEnded{}}
	host := n.Endpoint("host")
	host.Emit(ctx, "s", env)
	host.Emit(ctx, "s", env)
	n.Pump(ctx)

	assert.Len(t, g.updates, 1)
}

func TestPump_DropsDetached(t *testing.T) {
	ctx := context.Background()
	n := New()
	n.Endpoint("a").Send(ctx, "nobody", messages.FriendRequest{})
	assert.Equal(t, 0, n.Pump(ctx))
	assert.Equal(t, 0, n.Pending())
	assert.Len(t, n.Wire(), 1)
}
