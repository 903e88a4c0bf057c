package replica

import (
	"context"
	"fmt"
	"strings"

	"doodlesync/internal/messages"
	"doodlesync/internal/social"
	"doodlesync/internal/transport"
)

func (r *Replica) RequestFriend(ctx context.Context, target string) error {
	return r.operation(ctx, "request_friend", func(tx *txn) error {
		id, err := transport.ParseAddress(target)
		if err != nil {
			return err
		}
		if id == tx.self() {
			return fmt.Errorf("%w: cannot befriend yourself", ErrInvalidArgument)
		}
		book := &tx.st.Social
		if book.IsFriend(id) {
			return fmt.Errorf("%w: already friends with %s", ErrInvalidArgument, id)
		}
		if !book.RecordSent(id) {
			return errIgnored
		}
		return tx.send(id, messages.FriendRequest{})
	})
}

func (r *Replica) AcceptFriend(ctx context.Context, requester string) error {
	return r.operation(ctx, "accept_friend", func(tx *txn) error {
		id, err := transport.ParseAddress(requester)
		if err != nil {
			return err
		}
		if !tx.st.Social.Accept(id) {
			return ErrNoSuchRequest
		}
		return tx.send(id, messages.FriendAccepted{})
	})
}

func (r *Replica) DeclineFriend(ctx context.Context, requester string) error {
	return r.operation(ctx, "decline_friend", func(tx *txn) error {
		id, err := transport.ParseAddress(requester)
		if err != nil {
			return err
		}
		if !tx.st.Social.Decline(id) {
			return ErrNoSuchRequest
		}
		return nil
	})
}

// InviteFriend invites a friend to the room this replica hosts.
func (r *Replica) InviteFriend(ctx context.Context, friend string) error {
	return r.operation(ctx, "invite_friend", func(tx *txn) error {
		id, err := transport.ParseAddress(friend)
		if err != nil {
			return err
		}
		st := tx.st
		if !st.Social.IsFriend(id) {
			return ErrNotFriend
		}
		if st.Room == nil {
			return ErrNoRoom
		}
		if !st.Room.IsHost(tx.self()) {
			return ErrNotHost
		}
		if !st.Social.RecordSentInvitation(id) {
			return errIgnored
		}
		return tx.send(id, messages.RoomInvitation{At: tx.now})
	})
}

// AcceptInvite joins the inviting host's room. An expired invitation is
// dropped without joining.
func (r *Replica) AcceptInvite(ctx context.Context, host, name, avatar string) error {
	return r.operation(ctx, "accept_invite", func(tx *txn) error {
		id, err := transport.ParseAddress(host)
		if err != nil {
			return err
		}
		st := tx.st
		inv, ok := st.Social.Invitation(id)
		if !ok {
			return ErrNoSuchInvitation
		}
		if inv.Expired(tx.now, tx.r.opts.InviteTTL) {
			st.Social.RemoveInvitation(id)
			tx.ignore("invitation from %s expired", id)
			return nil
		}
		if st.Room != nil {
			return ErrAlreadyInRoom
		}
		name := strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%w: empty player name", ErrInvalidArgument)
		}
		st.Social.RemoveInvitation(id)
		return tx.send(id, messages.JoinRequest{PlayerName: name, AvatarRef: avatar})
	})
}

func (r *Replica) DeclineInvite(ctx context.Context, host string) error {
	return r.operation(ctx, "decline_invite", func(tx *txn) error {
		id, err := transport.ParseAddress(host)
		if err != nil {
			return err
		}
		if !tx.st.Social.RemoveInvitation(id) {
			return ErrNoSuchInvitation
		}
		return nil
	})
}

// PruneInvitations drops expired invitations and reports how many went.
func (r *Replica) PruneInvitations(ctx context.Context) (int, error) {
	var removed int
	err := r.operation(ctx, "prune_invitations", func(tx *txn) error {
		removed = tx.st.Social.PruneInvitations(tx.now, tx.r.opts.InviteTTL)
		if removed == 0 {
			return errIgnored
		}
		return nil
	})
	return removed, err
}

func (h *messageHandler) OnFriendRequest(from string, _ messages.FriendRequest) error {
	if !h.tx.st.Social.RecordReceived(from) {
		return errIgnored
	}
	return nil
}

// OnFriendAccepted completes a friendship this replica asked for.
func (h *messageHandler) OnFriendAccepted(from string, _ messages.FriendAccepted) error {
	if !h.tx.st.Social.ConfirmSent(from) {
		h.tx.ignore("unsolicited friend acceptance from %s", from)
		return errIgnored
	}
	return nil
}

// OnRoomInvitation records an invitation from any host. Only the sender
// checks friendship; a repeated invitation refreshes the window.
func (h *messageHandler) OnRoomInvitation(from string, m messages.RoomInvitation) error {
	tx := h.tx
	at := m.At
	if at.IsZero() {
		at = tx.now
	}
	tx.st.Social.ReceiveInvitation(social.Invitation{HostID: from, CreatedAt: at})
	return nil
}

func (h *messageHandler) OnRoomInvitationCancelled(from string, _ messages.RoomInvitationCancelled) error {
	if !h.tx.st.Social.RemoveInvitation(from) {
		return errIgnored
	}
	return nil
}
