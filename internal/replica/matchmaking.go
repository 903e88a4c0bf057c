package replica

import (
	"context"
	"fmt"
	"strings"

	"doodlesync/internal/events"
	"doodlesync/internal/matchmaking"
	"doodlesync/internal/messages"
	"doodlesync/internal/players"
	"doodlesync/internal/rooms"
	"doodlesync/internal/transport"
)

const notifySearching = "Searching for match..."

// JoinMatchmaking asks coordinator to queue this replica.
func (r *Replica) JoinMatchmaking(ctx context.Context, coordinator, leaderboard, name, avatar string) error {
	return r.operation(ctx, "join_matchmaking", func(tx *txn) error {
		coord, err := transport.ParseAddress(coordinator)
		if err != nil {
			return err
		}
		if leaderboard != "" {
			if leaderboard, err = transport.ParseAddress(leaderboard); err != nil {
				return err
			}
		}
		name := strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%w: empty player name", ErrInvalidArgument)
		}
		st := tx.st
		if st.Room != nil {
			return ErrAlreadyInRoom
		}
		if st.Coordinator != "" && st.Coordinator != coord {
			return fmt.Errorf("%w: already queued with %s", ErrWrongState, st.Coordinator)
		}

		st.Coordinator = coord
		st.QueueSize = 0
		st.LastNotification = notifySearching
		return tx.send(coord, messages.MatchmakingEnqueue{Entry: matchmaking.Entry{
			ReplicaID:         tx.self(),
			DisplayName:       name,
			AvatarRef:         avatar,
			LeaderboardTarget: leaderboard,
		}})
	})
}

func (r *Replica) LeaveMatchmaking(ctx context.Context) error {
	return r.operation(ctx, "leave_matchmaking", func(tx *txn) error {
		st := tx.st
		if st.Coordinator == "" {
			return ErrNotQueued
		}
		coord := st.Coordinator
		st.Coordinator = ""
		st.QueueSize = 0
		st.LastNotification = "Left matchmaking"
		return tx.send(coord, messages.MatchmakingLeave{})
	})
}

// notifyQueue tells every waiting player how long the queue is.
func (tx *txn) notifyQueue() error {
	n := uint32(tx.st.Queue.Len())
	for _, e := range tx.st.Queue.Entries {
		if err := tx.send(e.ReplicaID, messages.MatchmakingStatusUpdate{PlayersInQueue: n}); err != nil {
			return err
		}
	}
	return nil
}

// OnMatchmakingEnqueue runs on the coordinator. A full batch is removed
// from the queue at once: its first entry hosts, the rest are told where
// to go.
func (h *messageHandler) OnMatchmakingEnqueue(from string, m messages.MatchmakingEnqueue) error {
	tx := h.tx
	entry := m.Entry
	entry.ReplicaID = from
	if !tx.st.Queue.Enqueue(entry) {
		tx.ignore("%s is already queued", from)
		return nil
	}

	batch, ok := tx.st.Queue.TakeBatch(tx.r.opts.MatchSize)
	if ok {
		host := batch[0]
		err := tx.send(host.ReplicaID, messages.MatchmakingStart{
			Guests:            append([]matchmaking.Entry(nil), batch[1:]...),
			HostName:          host.DisplayName,
			HostAvatar:        host.AvatarRef,
			LeaderboardTarget: host.LeaderboardTarget,
			Rounds:            tx.r.opts.MatchRounds,
			SecondsPerRound:   tx.r.opts.MatchSecondsPerRound,
		})
		if err != nil {
			return err
		}
		for _, g := range batch[1:] {
			if err := tx.send(g.ReplicaID, messages.MatchmakingFound{HostID: host.ReplicaID}); err != nil {
				return err
			}
		}
		tx.r.log.WithField("host", host.ReplicaID).Info("match formed")
	}
	return tx.notifyQueue()
}

func (h *messageHandler) OnMatchmakingLeave(from string, _ messages.MatchmakingLeave) error {
	tx := h.tx
	if !tx.st.Queue.Remove(from) {
		tx.ignore("%s is not queued", from)
		return nil
	}
	return tx.notifyQueue()
}

// OnMatchmakingStart makes this replica the host of a new room holding the
// whole batch and starts the game straight away. Guests get a snapshot
// instead of going through a join request.
func (h *messageHandler) OnMatchmakingStart(from string, m messages.MatchmakingStart) error {
	tx := h.tx
	st := tx.st
	if from != st.Coordinator {
		tx.ignore("match start from %s, not our coordinator", from)
		return nil
	}
	if st.Room != nil {
		return ErrAlreadyInRoom
	}

	roomID, err := rooms.GenerateID(tx.now)
	if err != nil {
		return err
	}
	room := rooms.New(roomID, tx.self(), m.HostName, m.HostAvatar, m.LeaderboardTarget)
	guests := make([]string, 0, len(m.Guests))
	for _, g := range m.Guests {
		id, err := transport.ParseAddress(g.ReplicaID)
		if err != nil {
			return err
		}
		room.AddPlayer(players.New(id, g.DisplayName, g.AvatarRef))
		guests = append(guests, id)
	}

	rounds, secs := m.Rounds, m.SecondsPerRound
	if rounds == 0 {
		rounds = matchmaking.DefaultRounds
	}
	if secs == 0 {
		secs = matchmaking.DefaultSecondsPerRound
	}
	room.StartGame(rounds, secs)
	idx, _ := room.ChooseDrawer(tx.now)

	st.Room = room
	st.Coordinator = ""
	st.QueueSize = 0
	st.LastNotification = "Match started"

	tx.emit(room.ID, events.GameStarted{
		Rounds:          rounds,
		SecondsPerRound: secs,
		DrawerIndex:     idx,
		DrawerName:      room.CurrentDrawer().DisplayName,
		At:              tx.now,
	})
	stream := events.StreamName(room.ID)
	for _, g := range guests {
		if err := tx.subscribe(g, stream); err != nil {
			return err
		}
		if err := tx.send(g, messages.InitialStateSync{Room: *room.Clone(), NextSeq: st.Published[stream]}); err != nil {
			return err
		}
	}
	tx.r.log.WithField("room", room.ID).Info("hosting matched room")
	return nil
}

func (h *messageHandler) OnMatchmakingFound(from string, m messages.MatchmakingFound) error {
	tx := h.tx
	st := tx.st
	if from != st.Coordinator {
		tx.ignore("match found from %s, not our coordinator", from)
		return nil
	}
	st.Coordinator = ""
	st.QueueSize = 0
	st.LastNotification = "Match found! Joining host " + m.HostID
	return nil
}

func (h *messageHandler) OnMatchmakingStatusUpdate(from string, m messages.MatchmakingStatusUpdate) error {
	tx := h.tx
	st := tx.st
	if from != st.Coordinator {
		tx.ignore("queue status from %s, not our coordinator", from)
		return nil
	}
	st.QueueSize = m.PlayersInQueue
	st.LastNotification = fmt.Sprintf("%s %d in queue", notifySearching, m.PlayersInQueue)
	return nil
}

// OnUpdateLeaderboard merges a finished match into this replica's board.
func (h *messageHandler) OnUpdateLeaderboard(_ string, m messages.UpdateLeaderboard) error {
	if !h.tx.st.Leaderboard.Merge(m.MatchID, m.Entries) {
		return errIgnored
	}
	return nil
}
