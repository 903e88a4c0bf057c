package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvitation_Expired(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	inv := Invitation{HostID: "h", CreatedAt: created}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"at creation", created, false},
		{"one minute in", created.Add(time.Minute), false},
		{"exactly at ttl", created.Add(DefaultInvitationTTL), false},
		{"one microsecond past ttl", created.Add(DefaultInvitationTTL + time.Microsecond), true},
		{"before creation", created.Add(-time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inv.Expired(tt.at, DefaultInvitationTTL))
		})
	}
}

func TestBook_FriendFlow(t *testing.T) {
	var alice, bob Book

	require.True(t, alice.RecordSent("bob"))
	assert.False(t, alice.RecordSent("bob"), "duplicate sent request")
	require.True(t, bob.RecordReceived("alice"))

	require.True(t, bob.Accept("alice"))
	assert.True(t, bob.IsFriend("alice"))
	assert.Empty(t, bob.RequestsReceived)

	require.True(t, alice.ConfirmSent("bob"))
	assert.True(t, alice.IsFriend("bob"))
	assert.Empty(t, alice.RequestsSent)
}

func TestBook_UnsolicitedConfirmIgnored(t *testing.T) {
	var b Book
	assert.False(t, b.ConfirmSent("mallory"))
	assert.False(t, b.IsFriend("mallory"))
}

func TestBook_AcceptWithoutRequest(t *testing.T) {
	var b Book
	assert.False(t, b.Accept("bob"))
	assert.False(t, b.Decline("bob"))
	assert.Empty(t, b.Friends)
}

func TestBook_ReceiveFromFriendIgnored(t *testing.T) {
	b := Book{Friends: []string{"bob"}}
	assert.False(t, b.RecordReceived("bob"))
	assert.Empty(t, b.RequestsReceived)
}

func TestBook_Invitations(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var b Book

	b.ReceiveInvitation(Invitation{HostID: "h1", CreatedAt: now})
	b.ReceiveInvitation(Invitation{HostID: "h2", CreatedAt: now.Add(-10 * time.Minute)})
	b.ReceiveInvitation(Invitation{HostID: "h1", CreatedAt: now.Add(time.Second)})
	require.Len(t, b.Invitations, 2)

	inv, ok := b.Invitation("h1")
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Second), inv.CreatedAt)

	assert.Equal(t, 1, b.PruneInvitations(now.Add(time.Minute), DefaultInvitationTTL))
	_, ok = b.Invitation("h2")
	assert.False(t, ok)

	assert.True(t, b.RemoveInvitation("h1"))
	assert.False(t, b.RemoveInvitation("h1"))
}

func TestBook_SentInvitations(t *testing.T) {
	var b Book
	b.RecordSentInvitation("g1")
	b.RecordSentInvitation("g2")
	b.RecordSentInvitation("g1")
	assert.True(t, b.ForgetSentInvitation("g2"))

	assert.Equal(t, []string{"g1"}, b.TakeSentInvitations())
	assert.Empty(t, b.SentInvitations)
}
