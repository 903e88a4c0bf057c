package replica

import (
	"doodlesync/internal/archive"
	"doodlesync/internal/leaderboard"
	"doodlesync/internal/matchmaking"
	"doodlesync/internal/rooms"
	"doodlesync/internal/social"
)

// Snapshot returns a copy of the replica's state with the secret word
// removed.
func (r *Replica) Snapshot() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state.Clone()
	st.CurrentWord = ""
	return st
}

// Room returns a copy of the current room, or nil.
func (r *Replica) Room() *rooms.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Room.Clone()
}

// CurrentWord returns the secret word, but only to the drawer holding it.
func (r *Replica) CurrentWord() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.state.Room
	if room == nil || !room.IsDrawer(r.id) || r.state.CurrentWord == "" {
		return "", false
	}
	return r.state.CurrentWord, true
}

func (r *Replica) ArchivedRooms() archive.List {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Archive.Clone()
}

func (r *Replica) Social() social.Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Social.Clone()
}

func (r *Replica) Leaderboard() leaderboard.Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Leaderboard.Clone()
}

// MatchmakingQueue is the coordinator's view of who is waiting.
func (r *Replica) MatchmakingQueue() matchmaking.Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Queue.Clone()
}

// MatchmakingStatus is this player's view: the last queue size reported by
// its coordinator and the last notification.
func (r *Replica) MatchmakingStatus() (uint32, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.QueueSize, r.state.LastNotification
}
