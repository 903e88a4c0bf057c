package replica

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"doodlesync/internal/broadcast"
	"doodlesync/internal/events"
	"doodlesync/internal/messages"
	"doodlesync/internal/players"
	"doodlesync/internal/rooms"
)

var _ messages.Handler = (*messageHandler)(nil)

// messageHandler applies direct messages inside one unit of work. Room
// messages are here; matchmaking and social ones live next to their
// operations.
type messageHandler struct {
	tx *txn
}

// OnJoinRequest adds the sender to the hosted room, follows its stream and
// sends it a snapshot. Repeated requests refresh the player and resend the
// snapshot.
func (h *messageHandler) OnJoinRequest(from string, m messages.JoinRequest) error {
	tx := h.tx
	room, err := tx.hostedRoom()
	if err != nil {
		return err
	}
	name := strings.TrimSpace(m.PlayerName)
	if name == "" {
		return fmt.Errorf("%w: empty player name", ErrInvalidArgument)
	}
	if i := room.Players.IndexOfName(name); i >= 0 && room.Players[i].ReplicaID != from {
		return fmt.Errorf("%w: name %q is taken", ErrInvalidArgument, name)
	}

	existing := room.Players.Get(from)
	changed := existing == nil || !existing.Active() ||
		existing.DisplayName != name || existing.AvatarRef != m.AvatarRef
	room.AddPlayer(players.New(from, name, m.AvatarRef))

	if changed {
		tx.emit(room.ID, events.PlayerJoined{Player: *room.Players.Get(from), At: tx.now})
	}
	stream := events.StreamName(room.ID)
	if err := tx.subscribe(from, stream); err != nil {
		return err
	}
	tx.st.Social.ForgetSentInvitation(from)
	tx.r.log.WithFields(logrus.Fields{"room": room.ID, "player": from}).Info("player joined")
	return tx.send(from, messages.InitialStateSync{
		Room:    *room.Clone(),
		NextSeq: tx.st.Published[stream],
	})
}

// OnInitialStateSync installs the host's snapshot and follows the host's
// stream from the point the snapshot was taken.
func (h *messageHandler) OnInitialStateSync(from string, m messages.InitialStateSync) error {
	tx := h.tx
	st := tx.st
	if m.Room.HostID != from {
		tx.ignore("snapshot from %s for a room hosted by %s", from, m.Room.HostID)
		return nil
	}
	if !m.Room.Players.Contains(tx.self()) {
		tx.ignore("snapshot of room %s without this replica", m.Room.ID)
		return nil
	}
	if st.Room != nil && (st.Room.ID != m.Room.ID || st.Room.IsHost(tx.self())) {
		tx.ignore("already in room %s", st.Room.ID)
		return nil
	}

	stream := events.StreamName(m.Room.ID)
	key := broadcast.Key{Publisher: from, Stream: stream}
	if st.Room != nil && st.SubscribedToHost == from && st.Cursors[key.String()] > m.NextSeq {
		tx.ignore("stale snapshot at %d", m.NextSeq)
		return nil
	}

	if old := st.SubscribedToHost; old != "" && old != from && st.Room != nil {
		tx.unsubscribe(old, events.StreamName(st.Room.ID))
	}
	st.Room = m.Room.Clone()
	tx.raiseCursor(key, m.NextSeq)
	if st.SubscribedToHost != from {
		st.SubscribedToHost = from
		if err := tx.subscribe(from, stream); err != nil {
			return err
		}
	}
	tx.dropWordUnlessDrawing()
	st.Social.RemoveInvitation(from)
	tx.r.log.WithField("room", m.Room.ID).Info("joined room")
	return nil
}

// OnGuessSubmission scores a guess. Only the drawer holds the word, so only
// the drawer acts on these.
func (h *messageHandler) OnGuessSubmission(from string, m messages.GuessSubmission) error {
	tx := h.tx
	room := tx.st.Room
	switch {
	case room == nil || !room.IsDrawer(tx.self()):
		tx.ignore("guess while not drawing")
		return nil
	case room.State != rooms.StateDrawing || tx.st.CurrentWord == "":
		tx.ignore("guess before a word was chosen")
		return nil
	case m.Round != room.CurrentRound:
		tx.ignore("guess for round %d during round %d", m.Round, room.CurrentRound)
		return nil
	}

	name := m.PlayerName
	if p := room.Players.Get(from); p != nil {
		name = p.DisplayName
	}
	if i := room.Players.IndexOfName(name); i >= 0 && room.Players[i].HasGuessed {
		tx.ignore("%s already guessed", name)
		return nil
	}

	msg := rooms.ChatMessage{PlayerName: name, Text: m.Text}
	if strings.EqualFold(strings.TrimSpace(m.Text), tx.st.CurrentWord) {
		points := room.PointsForCorrectGuess()
		msg = rooms.ChatMessage{
			PlayerName:     name,
			Text:           fmt.Sprintf("[Correct! +%d points]", points),
			IsCorrectGuess: true,
			PointsAwarded:  points,
		}
	}
	if !tx.applyChat(room, tx.self(), msg) {
		return nil
	}
	tx.emit(room.ID, events.ChatMessage{Message: msg})
	return nil
}

// OnRoomDeleted archives a terminated room and, if it is the room this
// replica is in, leaves it.
func (h *messageHandler) OnRoomDeleted(from string, m messages.RoomDeleted) error {
	tx := h.tx
	st := tx.st
	left := false
	if room := st.Room; room != nil && strings.HasPrefix(m.Archive.ID, room.ID+"#") {
		if room.HostID != from || room.IsHost(tx.self()) {
			tx.ignore("room %s deleted by %s, who is not its host", room.ID, from)
			return nil
		}
		tx.unsubscribe(from, events.StreamName(room.ID))
		tx.closeRoom()
		st.LastNotification = "Room closed by host"
		left = true
	}
	if !st.Archive.Append(m.Archive) && !left {
		return errIgnored
	}
	return nil
}

// OnPlayerLeft marks a departing guest as left in the hosted room.
func (h *messageHandler) OnPlayerLeft(from string, m messages.PlayerLeft) error {
	tx := h.tx
	room, err := tx.hostedRoom()
	if err != nil {
		return err
	}
	p := room.Players.Get(from)
	if p == nil || !p.Active() {
		tx.ignore("player %s is not active", from)
		return nil
	}

	_, wasDrawer := room.PlayerLeft(from)
	tx.unsubscribe(from, events.StreamName(room.ID))
	at := m.At
	if at.IsZero() {
		at = tx.now
	}
	tx.emit(room.ID, events.PlayerLeft{PlayerID: from, At: at})
	tx.r.log.WithFields(logrus.Fields{"room": room.ID, "player": from, "was_drawer": wasDrawer}).Info("player left")
	return nil
}
