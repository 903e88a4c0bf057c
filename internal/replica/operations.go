package replica

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"doodlesync/internal/archive"
	"doodlesync/internal/blobs"
	"doodlesync/internal/events"
	"doodlesync/internal/leaderboard"
	"doodlesync/internal/messages"
	"doodlesync/internal/rooms"
	"doodlesync/internal/transport"
)

func (tx *txn) room() (*rooms.Room, error) {
	if tx.st.Room == nil {
		return nil, ErrNoRoom
	}
	return tx.st.Room, nil
}

func (tx *txn) hostedRoom() (*rooms.Room, error) {
	room, err := tx.room()
	if err != nil {
		return nil, err
	}
	if !room.IsHost(tx.self()) {
		return nil, ErrNotHost
	}
	return room, nil
}

// CreateRoom makes this replica the host of a new room and returns its id.
func (r *Replica) CreateRoom(ctx context.Context, name, avatar, leaderboardTarget string) (string, error) {
	var roomID string
	err := r.operation(ctx, "create_room", func(tx *txn) error {
		name := strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%w: empty host name", ErrInvalidArgument)
		}
		target := leaderboardTarget
		if target != "" {
			var err error
			if target, err = transport.ParseAddress(target); err != nil {
				return err
			}
		}
		if tx.st.Room != nil {
			return ErrAlreadyInRoom
		}

		id, err := rooms.GenerateID(tx.now)
		if err != nil {
			return err
		}
		room := rooms.New(id, tx.self(), name, avatar, target)
		tx.st.Room = room
		tx.st.CurrentWord = ""
		tx.st.SubscribedToHost = ""
		roomID = room.ID
		tx.r.log.WithField("room", room.ID).Info("room created")
		return nil
	})
	if err != nil {
		return "", err
	}
	return roomID, nil
}

// JoinRoom asks host to let this replica in. The room appears locally once
// the host's snapshot arrives.
func (r *Replica) JoinRoom(ctx context.Context, host, name, avatar string) error {
	return r.operation(ctx, "join_room", func(tx *txn) error {
		id, err := transport.ParseAddress(host)
		if err != nil {
			return err
		}
		if id == tx.self() {
			return fmt.Errorf("%w: cannot join your own replica", ErrInvalidArgument)
		}
		name := strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%w: empty player name", ErrInvalidArgument)
		}
		if tx.st.Room != nil {
			return ErrAlreadyInRoom
		}
		return tx.send(id, messages.JoinRequest{PlayerName: name, AvatarRef: avatar})
	})
}

// StartGame withdraws outstanding invitations, starts the game and picks
// the first drawer.
func (r *Replica) StartGame(ctx context.Context, rounds, secondsPerRound uint32) error {
	return r.operation(ctx, "start_game", func(tx *txn) error {
		room, err := tx.hostedRoom()
		if err != nil {
			return err
		}
		if rounds == 0 || secondsPerRound == 0 {
			return fmt.Errorf("%w: rounds and seconds per round must be positive", ErrInvalidArgument)
		}
		if room.InProgress() {
			return fmt.Errorf("%w: game already running", ErrWrongState)
		}

		for _, guest := range tx.st.Social.TakeSentInvitations() {
			if err := tx.send(guest, messages.RoomInvitationCancelled{}); err != nil {
				return err
			}
		}

		room.StartGame(rounds, secondsPerRound)
		idx, ok := room.ChooseDrawer(tx.now)
		if !ok {
			return ErrNoDrawer
		}
		tx.emit(room.ID, events.GameStarted{
			Rounds:          rounds,
			SecondsPerRound: secondsPerRound,
			DrawerIndex:     idx,
			DrawerName:      room.CurrentDrawer().DisplayName,
			At:              tx.now,
		})
		tx.dropWordUnlessDrawing()
		tx.r.log.WithField("room", room.ID).Info("game started")
		return nil
	})
}

// ChooseDrawer moves to the next drawer. When every active player has drawn
// this round it ends the round first, or ends the game after the last one.
func (r *Replica) ChooseDrawer(ctx context.Context) error {
	return r.operation(ctx, "choose_drawer", func(tx *txn) error {
		room, err := tx.hostedRoom()
		if err != nil {
			return err
		}
		if !room.InProgress() {
			return fmt.Errorf("%w: no game running", ErrWrongState)
		}

		if room.HasAllPlayersDrawnInRound() {
			scores := room.Scores()
			lastRound := room.CurrentRound >= room.TotalRounds
			room.AdvanceToNextRound()
			if lastRound {
				tx.emit(room.ID, events.GameEnded{FinalScores: scores, At: tx.now})
				tx.st.CurrentWord = ""
				tx.r.log.WithField("room", room.ID).Info("game ended")
				return nil
			}
			tx.emit(room.ID, events.RoundEnded{Scores: scores, At: tx.now})
		}

		idx, ok := room.ChooseDrawer(tx.now)
		if !ok {
			return ErrNoDrawer
		}
		tx.emit(room.ID, events.DrawerChosen{
			DrawerIndex: idx,
			DrawerName:  room.CurrentDrawer().DisplayName,
			At:          tx.now,
		})
		tx.dropWordUnlessDrawing()
		return nil
	})
}

// ChooseWord keeps word on this replica only; the stream just learns that a
// word was chosen.
func (r *Replica) ChooseWord(ctx context.Context, word string) error {
	return r.operation(ctx, "choose_word", func(tx *txn) error {
		word := strings.TrimSpace(word)
		if word == "" {
			return fmt.Errorf("%w: empty word", ErrInvalidArgument)
		}
		room, err := tx.room()
		if err != nil {
			return err
		}
		if !room.IsDrawer(tx.self()) {
			return ErrNotDrawer
		}
		if room.State != rooms.StateWaitingForWord {
			return fmt.Errorf("%w: word already chosen", ErrWrongState)
		}

		tx.st.CurrentWord = word
		room.ChooseWord(tx.now)
		tx.emit(room.ID, events.WordChosen{At: tx.now})
		return nil
	})
}

// GuessWord sends a guess to the drawer, who scores it.
func (r *Replica) GuessWord(ctx context.Context, text string) error {
	return r.operation(ctx, "guess_word", func(tx *txn) error {
		text := strings.TrimSpace(text)
		if text == "" {
			return fmt.Errorf("%w: empty guess", ErrInvalidArgument)
		}
		room, err := tx.room()
		if err != nil {
			return err
		}
		drawer := room.CurrentDrawer()
		if drawer == nil {
			return ErrNoDrawer
		}
		if drawer.ReplicaID == tx.self() {
			return ErrIsDrawer
		}
		if room.State != rooms.StateDrawing {
			return fmt.Errorf("%w: no word chosen yet", ErrWrongState)
		}
		me := room.Players.Get(tx.self())
		if me == nil {
			return ErrNoRoom
		}
		if me.HasGuessed {
			return errIgnored
		}
		return tx.send(drawer.ReplicaID, messages.GuessSubmission{
			PlayerName: me.DisplayName,
			Text:       text,
			Round:      room.CurrentRound,
		})
	})
}

// EndMatch terminates the hosted room.
func (r *Replica) EndMatch(ctx context.Context) error {
	return r.operation(ctx, "end_match", func(tx *txn) error {
		if _, err := tx.hostedRoom(); err != nil {
			return err
		}
		return tx.terminate(nil)
	})
}

// LeaveRoom terminates the room when called by the host, archiving
// blobRefs (or the room's own refs when none are given). A guest notifies
// the host and drops its copy.
func (r *Replica) LeaveRoom(ctx context.Context, blobRefs []string) error {
	return r.operation(ctx, "leave_room", func(tx *txn) error {
		for _, ref := range blobRefs {
			if err := blobs.ValidateHash(ref); err != nil {
				return err
			}
		}
		room, err := tx.room()
		if err != nil {
			return err
		}
		if room.IsHost(tx.self()) {
			if len(blobRefs) == 0 {
				blobRefs = nil
			}
			return tx.terminate(blobRefs)
		}

		name := ""
		if me := room.Players.Get(tx.self()); me != nil {
			name = me.DisplayName
		}
		if err := tx.send(room.HostID, messages.PlayerLeft{PlayerName: name, At: tx.now}); err != nil {
			return err
		}
		if host := tx.st.SubscribedToHost; host != "" {
			tx.unsubscribe(host, events.StreamName(room.ID))
		}
		tx.st.Room = nil
		tx.st.CurrentWord = ""
		tx.st.SubscribedToHost = ""
		tx.r.log.WithField("room", room.ID).Info("left room")
		return nil
	})
}

// terminate archives the room, tells every player, forwards the scores to
// the leaderboard replica and only then clears the room.
func (tx *txn) terminate(blobRefs []string) error {
	room := tx.st.Room
	if blobRefs == nil {
		blobRefs = room.BlobRefs
	}
	rec := archive.Room{
		ID:        tx.st.Archive.NextID(room.ID),
		BlobRefs:  append([]string{}, blobRefs...),
		Timestamp: tx.now,
	}
	tx.st.Archive.Append(rec)

	for _, p := range room.Players {
		if p.ReplicaID == tx.self() {
			continue
		}
		if err := tx.send(p.ReplicaID, messages.RoomDeleted{Archive: rec, At: tx.now}); err != nil {
			return err
		}
	}
	tx.emit(room.ID, events.MatchEnded{At: tx.now})

	if target := room.LeaderboardTarget; target != "" {
		entries := make([]leaderboard.Entry, 0, len(room.Players))
		for _, p := range room.Players {
			entries = append(entries, leaderboard.Entry{PlayerName: p.DisplayName, ReplicaID: p.ReplicaID, Score: p.Score})
		}
		if target == tx.self() {
			tx.st.Leaderboard.Merge(rec.ID, entries)
		} else if err := tx.send(target, messages.UpdateLeaderboard{MatchID: rec.ID, Entries: entries}); err != nil {
			return err
		}
	}

	stream := events.StreamName(room.ID)
	for _, p := range room.Players {
		if p.ReplicaID != tx.self() {
			tx.unsubscribe(p.ReplicaID, stream)
		}
	}
	tx.closeRoom()
	tx.r.log.WithFields(logrus.Fields{"room": room.ID, "archive": rec.ID}).Info("room terminated")
	return nil
}

// SaveBlob stores a drawing. When this replica hosts a room the blob is
// also recorded against it for archiving.
func (r *Replica) SaveBlob(ctx context.Context, data []byte) (string, error) {
	if r.opts.Blobs == nil {
		return "", fmt.Errorf("%w: no blob store configured", blobs.ErrNotFound)
	}
	hash, err := r.opts.Blobs.Put(ctx, data)
	if err != nil {
		return "", err
	}
	err = r.operation(ctx, "save_blob", func(tx *txn) error {
		room := tx.st.Room
		if room == nil || !room.IsHost(tx.self()) {
			return errIgnored
		}
		for _, ref := range room.BlobRefs {
			if ref == hash {
				return errIgnored
			}
		}
		room.BlobRefs = append(room.BlobRefs, hash)
		return nil
	})
	return hash, err
}

// ReadBlob fetches a stored drawing. It changes no state.
func (r *Replica) ReadBlob(ctx context.Context, hash string) ([]byte, error) {
	if err := blobs.ValidateHash(hash); err != nil {
		return nil, err
	}
	if r.opts.Blobs == nil {
		return nil, fmt.Errorf("%w: no blob store configured", blobs.ErrNotFound)
	}
	return r.opts.Blobs.Get(ctx, hash)
}
