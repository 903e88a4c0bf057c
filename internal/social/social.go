// Package social holds a replica's friend list, pending friend requests and
// room invitations.
package social

import "time"

// DefaultInvitationTTL is how long a room invitation stays acceptable.
const DefaultInvitationTTL = 5 * time.Minute

type Invitation struct {
	HostID    string    `json:"host_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the invitation can no longer be accepted at now.
// An invitation is valid from its creation instant up to and including
// CreatedAt+ttl.
func (inv Invitation) Expired(now time.Time, ttl time.Duration) bool {
	if now.Before(inv.CreatedAt) {
		return true
	}
	return now.Sub(inv.CreatedAt) > ttl
}

type Book struct {
	Friends          []string     `json:"friends"`
	RequestsReceived []string     `json:"friend_requests_received"`
	RequestsSent     []string     `json:"friend_requests_sent"`
	Invitations      []Invitation `json:"room_invitations"`
	SentInvitations  []string     `json:"sent_invitations"`
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func remove(list []string, id string) ([]string, bool) {
	for i, v := range list {
		if v == id {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}

func addUnique(list []string, id string) ([]string, bool) {
	if contains(list, id) {
		return list, false
	}
	return append(list, id), true
}

func (b *Book) IsFriend(id string) bool {
	return contains(b.Friends, id)
}

func (b *Book) HasSentRequest(id string) bool {
	return contains(b.RequestsSent, id)
}

func (b *Book) HasReceivedRequest(id string) bool {
	return contains(b.RequestsReceived, id)
}

// RecordSent notes an outgoing friend request.
func (b *Book) RecordSent(id string) bool {
	var added bool
	b.RequestsSent, added = addUnique(b.RequestsSent, id)
	return added
}

// RecordReceived notes an incoming friend request. Requests from existing
// friends are ignored.
func (b *Book) RecordReceived(id string) bool {
	if b.IsFriend(id) {
		return false
	}
	var added bool
	b.RequestsReceived, added = addUnique(b.RequestsReceived, id)
	return added
}

// Accept turns a received request into a friendship.
func (b *Book) Accept(id string) bool {
	var ok bool
	b.RequestsReceived, ok = remove(b.RequestsReceived, id)
	if !ok {
		return false
	}
	b.Friends, _ = addUnique(b.Friends, id)
	return true
}

func (b *Book) Decline(id string) bool {
	var ok bool
	b.RequestsReceived, ok = remove(b.RequestsReceived, id)
	return ok
}

// ConfirmSent completes a friendship we asked for. Unsolicited confirmations
// are ignored.
func (b *Book) ConfirmSent(id string) bool {
	var ok bool
	b.RequestsSent, ok = remove(b.RequestsSent, id)
	if !ok {
		return false
	}
	b.Friends, _ = addUnique(b.Friends, id)
	return true
}

func (b *Book) invitationIndex(hostID string) int {
	for i, inv := range b.Invitations {
		if inv.HostID == hostID {
			return i
		}
	}
	return -1
}

// Invitation returns the pending invitation from hostID, if any.
func (b *Book) Invitation(hostID string) (Invitation, bool) {
	i := b.invitationIndex(hostID)
	if i < 0 {
		return Invitation{}, false
	}
	return b.Invitations[i], true
}

// ReceiveInvitation stores an invitation, replacing any earlier one from the
// same host.
func (b *Book) ReceiveInvitation(inv Invitation) {
	if i := b.invitationIndex(inv.HostID); i >= 0 {
		b.Invitations[i] = inv
		return
	}
	b.Invitations = append(b.Invitations, inv)
}

func (b *Book) RemoveInvitation(hostID string) bool {
	i := b.invitationIndex(hostID)
	if i < 0 {
		return false
	}
	b.Invitations = append(b.Invitations[:i:i], b.Invitations[i+1:]...)
	return true
}

// PruneInvitations drops every invitation that has expired at now and
// returns how many were removed.
func (b *Book) PruneInvitations(now time.Time, ttl time.Duration) int {
	kept := b.Invitations[:0:0]
	for _, inv := range b.Invitations {
		if !inv.Expired(now, ttl) {
			kept = append(kept, inv)
		}
	}
	removed := len(b.Invitations) - len(kept)
	b.Invitations = kept
	return removed
}

func (b *Book) RecordSentInvitation(guestID string) bool {
	var added bool
	b.SentInvitations, added = addUnique(b.SentInvitations, guestID)
	return added
}

func (b *Book) ForgetSentInvitation(guestID string) bool {
	var ok bool
	b.SentInvitations, ok = remove(b.SentInvitations, guestID)
	return ok
}

// TakeSentInvitations clears and returns the outstanding invitations this
// replica has sent.
func (b *Book) TakeSentInvitations() []string {
	out := b.SentInvitations
	b.SentInvitations = nil
	return out
}

func (b Book) Clone() Book {
	return Book{
		Friends:          append([]string(nil), b.Friends...),
		RequestsReceived: append([]string(nil), b.RequestsReceived...),
		RequestsSent:     append([]string(nil), b.RequestsSent...),
		Invitations:      append([]Invitation(nil), b.Invitations...),
		SentInvitations:  append([]string(nil), b.SentInvitations...),
	}
}
