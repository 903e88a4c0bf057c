package replica

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doodlesync/internal/kv"
	"doodlesync/internal/matchmaking"
	"doodlesync/internal/messages"
	"doodlesync/internal/rooms"
)

func TestMatchmaking_FullBatchStartsGame(t *testing.T) {
	c := newCluster(t)
	coord := c.add("Coordinator")
	var queued []*Replica
	for i := 0; i < 6; i++ {
		p := c.add(fmt.Sprintf("p%d", i))
		require.NoError(t, p.JoinMatchmaking(c.ctx, coord.ID(), "", c.name(p), ""))
		queued = append(queued, p)
	}
	c.pump()

	host, guests, late := queued[0], queued[1:5], queued[5]

	q := coord.MatchmakingQueue()
	require.Equal(t, 1, q.Len())
	assert.Equal(t, late.ID(), q.Entries[0].ReplicaID)
	size, note := late.MatchmakingStatus()
	assert.Equal(t, uint32(1), size)
	assert.Equal(t, "Searching for match... 1 in queue", note)

	room := host.Room()
	require.NotNil(t, room)
	assert.Len(t, room.Players, matchmaking.DefaultBatchSize)
	assert.Equal(t, uint32(matchmaking.DefaultRounds), room.TotalRounds)
	assert.Equal(t, uint32(matchmaking.DefaultSecondsPerRound), room.SecondsPerRound)
	assert.Equal(t, uint32(1), room.CurrentRound)
	assert.Equal(t, rooms.StateWaitingForWord, room.State)
	assert.Equal(t, host.ID(), drawerID(host))
	_, note = host.MatchmakingStatus()
	assert.Equal(t, "Match started", note)

	for _, g := range guests {
		got := g.Room()
		require.NotNil(t, got, c.name(g))
		assert.Equal(t, room.ID, got.ID)
		assert.Len(t, got.Players, matchmaking.DefaultBatchSize)
		assert.Equal(t, host.ID(), drawerID(g))
		size, note := g.MatchmakingStatus()
		assert.Zero(t, size)
		assert.Equal(t, "Match found! Joining host "+host.ID(), note)
	}
	assert.Nil(t, late.Room())

	// The matched room plays like any other.
	require.NoError(t, host.ChooseWord(c.ctx, "cloud"))
	c.pump()
	require.NoError(t, guests[2].GuessWord(c.ctx, "cloud"))
	c.pump()
	for _, r := range queued[:5] {
		assert.Equal(t, uint32(100), scores(r)["p3"], c.name(r))
	}
}

func TestMatchmaking_CustomBatchSize(t *testing.T) {
	c := newCluster(t)
	coord := c.addWith("Coordinator", kv.NewMemory(), Options{MatchSize: 2, MatchRounds: 1, MatchSecondsPerRound: 30})
	a, b := c.add("Alice"), c.add("Bob")
	require.NoError(t, a.JoinMatchmaking(c.ctx, coord.ID(), "", "Alice", ""))
	require.NoError(t, b.JoinMatchmaking(c.ctx, coord.ID(), "", "Bob", ""))
	c.pump()

	room := a.Room()
	require.NotNil(t, room)
	assert.Equal(t, uint32(1), room.TotalRounds)
	assert.Equal(t, uint32(30), room.SecondsPerRound)
	assert.Equal(t, room.ID, b.Room().ID)
	assert.Zero(t, coord.MatchmakingQueue().Len())
}

func TestMatchmaking_DuplicateEnqueue(t *testing.T) {
	c := newCluster(t)
	c.net.SetDuplicate(true)
	coord, a := c.add("Coordinator"), c.add("Alice")
	require.NoError(t, a.JoinMatchmaking(c.ctx, coord.ID(), "", "Alice", ""))
	require.NoError(t, a.JoinMatchmaking(c.ctx, coord.ID(), "", "Alice", ""))
	c.pump()

	assert.Equal(t, 1, coord.MatchmakingQueue().Len())
	size, _ := a.MatchmakingStatus()
	assert.Equal(t, uint32(1), size)
}

func TestMatchmaking_LeaveUpdatesOthers(t *testing.T) {
	c := newCluster(t)
	coord, a, b := c.add("Coordinator"), c.add("Alice"), c.add("Bob")
	require.NoError(t, a.JoinMatchmaking(c.ctx, coord.ID(), "", "Alice", ""))
	require.NoError(t, b.JoinMatchmaking(c.ctx, coord.ID(), "", "Bob", ""))
	c.pump()
	size, _ := a.MatchmakingStatus()
	require.Equal(t, uint32(2), size)

	require.NoError(t, b.LeaveMatchmaking(c.ctx))
	c.pump()

	assert.False(t, coord.MatchmakingQueue().Contains(b.ID()))
	size, note := a.MatchmakingStatus()
	assert.Equal(t, uint32(1), size)
	assert.Equal(t, "Searching for match... 1 in queue", note)
	_, note = b.MatchmakingStatus()
	assert.Equal(t, "Left matchmaking", note)

	assert.ErrorIs(t, b.LeaveMatchmaking(c.ctx), ErrNotQueued)
}

func TestMatchmaking_Preconditions(t *testing.T) {
	c := newCluster(t)
	coord, other, a, b := c.add("Coordinator"), c.add("Other"), c.add("Alice"), c.add("Bob")

	assert.ErrorIs(t, a.JoinMatchmaking(c.ctx, coord.ID(), "", " ", ""), ErrInvalidArgument)

	require.NoError(t, a.JoinMatchmaking(c.ctx, coord.ID(), "", "Alice", ""))
	assert.ErrorIs(t, a.JoinMatchmaking(c.ctx, other.ID(), "", "Alice", ""), ErrWrongState)

	c.room(b)
	assert.ErrorIs(t, b.JoinMatchmaking(c.ctx, coord.ID(), "", "Bob", ""), ErrAlreadyInRoom)
}

func TestMatchmaking_StartFromStrangerIgnored(t *testing.T) {
	c := newCluster(t)
	a, stranger := c.add("Alice"), c.add("Mallory")

	err := a.HandleMessage(c.ctx, stranger.ID(), messages.MatchmakingStart{HostName: "Alice"})
	require.NoError(t, err)
	assert.Nil(t, a.Room())
}
