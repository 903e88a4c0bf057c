package replica

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doodlesync/internal/messages"
	"doodlesync/internal/players"
	"doodlesync/internal/social"
)

func TestFriends_RequestAndAccept(t *testing.T) {
	c := newCluster(t)
	a, b := c.add("Alice"), c.add("Bob")

	require.NoError(t, a.RequestFriend(c.ctx, b.ID()))
	require.NoError(t, a.RequestFriend(c.ctx, b.ID()))
	assert.Equal(t, 1, c.net.Pending(), "repeat request is not resent")
	c.pump()

	assert.Equal(t, []string{b.ID()}, a.Social().RequestsSent)
	assert.Equal(t, []string{a.ID()}, b.Social().RequestsReceived)

	require.NoError(t, b.AcceptFriend(c.ctx, a.ID()))
	c.pump()

	assert.Equal(t, []string{b.ID()}, a.Social().Friends)
	assert.Equal(t, []string{a.ID()}, b.Social().Friends)
	assert.Empty(t, a.Social().RequestsSent)
	assert.Empty(t, b.Social().RequestsReceived)

	assert.ErrorIs(t, a.RequestFriend(c.ctx, b.ID()), ErrInvalidArgument)
	assert.ErrorIs(t, b.AcceptFriend(c.ctx, a.ID()), ErrNoSuchRequest)
}

func TestFriends_Decline(t *testing.T) {
	c := newCluster(t)
	a, b := c.add("Alice"), c.add("Bob")
	require.NoError(t, a.RequestFriend(c.ctx, b.ID()))
	c.pump()

	require.NoError(t, b.DeclineFriend(c.ctx, a.ID()))
	assert.Empty(t, b.Social().RequestsReceived)
	assert.Empty(t, b.Social().Friends)
	assert.ErrorIs(t, b.DeclineFriend(c.ctx, a.ID()), ErrNoSuchRequest)
}

func TestFriends_SelfAndUnsolicited(t *testing.T) {
	c := newCluster(t)
	a, b := c.add("Alice"), c.add("Bob")

	assert.ErrorIs(t, a.RequestFriend(c.ctx, a.ID()), ErrInvalidArgument)

	require.NoError(t, a.HandleMessage(c.ctx, b.ID(), messages.FriendAccepted{}))
	assert.Empty(t, a.Social().Friends)
}

func TestInvite_AcceptJoinsRoom(t *testing.T) {
	c := newCluster(t)
	a, b := c.add("Alice"), c.add("Bob")
	c.befriend(a, b)
	c.room(a)

	require.NoError(t, a.InviteFriend(c.ctx, b.ID()))
	c.pump()
	book := b.Social()
	inv, ok := book.Invitation(a.ID())
	require.True(t, ok)
	assert.True(t, c.clock.Now().Equal(inv.CreatedAt))
	assert.Equal(t, []string{b.ID()}, a.Social().SentInvitations)

	c.clock.Advance(social.DefaultInvitationTTL)
	require.NoError(t, b.AcceptInvite(c.ctx, a.ID(), "Bob", ""))
	c.pump()

	require.NotNil(t, b.Room())
	assert.Equal(t, players.StatusActive, a.Room().Players.Get(b.ID()).Status)
	assert.Empty(t, b.Social().Invitations)
	assert.Empty(t, a.Social().SentInvitations)
}

func TestInvite_ExpiredIsDiscarded(t *testing.T) {
	c := newCluster(t)
	a, b := c.add("Alice"), c.add("Bob")
	c.befriend(a, b)
	c.room(a)
	require.NoError(t, a.InviteFriend(c.ctx, b.ID()))
	c.pump()

	c.clock.Advance(social.DefaultInvitationTTL + time.Microsecond)
	require.NoError(t, b.AcceptInvite(c.ctx, a.ID(), "Bob", ""))

	assert.Zero(t, c.net.Pending(), "no join request for a stale invitation")
	assert.Nil(t, b.Room())
	assert.Empty(t, b.Social().Invitations)
	assert.ErrorIs(t, b.AcceptInvite(c.ctx, a.ID(), "Bob", ""), ErrNoSuchInvitation)
}

func TestInvite_CancelledWhenGameStarts(t *testing.T) {
	c := newCluster(t)
	a, b, cc := c.add("Alice"), c.add("Bob"), c.add("Cleo")
	c.befriend(a, b)
	c.befriend(a, cc)
	c.room(a)
	require.NoError(t, a.InviteFriend(c.ctx, b.ID()))
	require.NoError(t, a.InviteFriend(c.ctx, cc.ID()))
	c.pump()
	require.Len(t, b.Social().Invitations, 1)

	require.NoError(t, a.StartGame(c.ctx, 1, 30))
	c.pump()

	assert.Empty(t, a.Social().SentInvitations)
	assert.Empty(t, b.Social().Invitations)
	assert.Empty(t, cc.Social().Invitations)
}

func TestInvite_Preconditions(t *testing.T) {
	c := newCluster(t)
	a, b, stranger := c.add("Alice"), c.add("Bob"), c.add("Mallory")
	c.befriend(a, b)

	assert.ErrorIs(t, a.InviteFriend(c.ctx, stranger.ID()), ErrNotFriend)
	assert.ErrorIs(t, a.InviteFriend(c.ctx, b.ID()), ErrNoRoom)

	c.room(b, a)
	assert.ErrorIs(t, a.InviteFriend(c.ctx, b.ID()), ErrNotHost)

	assert.ErrorIs(t, a.DeclineInvite(c.ctx, b.ID()), ErrNoSuchInvitation)
}

func TestInvite_ReceivedFromAnyHost(t *testing.T) {
	c := newCluster(t)
	a, stranger := c.add("Alice"), c.add("Mallory")

	require.NoError(t, a.HandleMessage(c.ctx, stranger.ID(), messages.RoomInvitation{At: c.clock.Now()}))
	require.NoError(t, a.HandleMessage(c.ctx, stranger.ID(), messages.RoomInvitation{At: c.clock.Now()}))
	invs := a.Social().Invitations
	require.Len(t, invs, 1)
	assert.Equal(t, stranger.ID(), invs[0].HostID)
	assert.Empty(t, a.Social().Friends)

	require.NoError(t, a.DeclineInvite(c.ctx, stranger.ID()))
	assert.Empty(t, a.Social().Invitations)
	assert.ErrorIs(t, a.DeclineInvite(c.ctx, stranger.ID()), ErrNoSuchInvitation)
}

func TestInvite_Prune(t *testing.T) {
	c := newCluster(t)
	a, b, cc := c.add("Alice"), c.add("Bob"), c.add("Cleo")
	c.befriend(a, cc)
	c.befriend(b, cc)
	c.room(a)
	c.room(b)

	require.NoError(t, a.InviteFriend(c.ctx, cc.ID()))
	c.pump()
	c.clock.Advance(4 * time.Minute)
	require.NoError(t, b.InviteFriend(c.ctx, cc.ID()))
	c.pump()
	c.clock.Advance(2 * time.Minute)

	removed, err := cc.PruneInvitations(c.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	invs := cc.Social().Invitations
	require.Len(t, invs, 1)
	assert.Equal(t, b.ID(), invs[0].HostID)

	removed, err = cc.PruneInvitations(c.ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestInvite_Decline(t *testing.T) {
	c := newCluster(t)
	a, b := c.add("Alice"), c.add("Bob")
	c.befriend(a, b)
	c.room(a)
	require.NoError(t, a.InviteFriend(c.ctx, b.ID()))
	c.pump()

	require.NoError(t, b.DeclineInvite(c.ctx, a.ID()))
	assert.Empty(t, b.Social().Invitations)
}
