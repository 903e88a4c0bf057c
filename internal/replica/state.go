package replica

import (
	"doodlesync/internal/archive"
	"doodlesync/internal/leaderboard"
	"doodlesync/internal/matchmaking"
	"doodlesync/internal/rooms"
	"doodlesync/internal/social"
)

// State is everything a replica persists. It is written as one value at the
// end of every unit of work.
type State struct {
	Room             *rooms.Room `json:"room,omitempty"`
	CurrentWord      string      `json:"current_word,omitempty"`
	SubscribedToHost string      `json:"subscribed_to_host,omitempty"`

	Archive     archive.List      `json:"archived_rooms"`
	Social      social.Book       `json:"social"`
	Leaderboard leaderboard.Board `json:"leaderboard"`

	// Queue is only used when this replica coordinates matchmaking.
	Queue matchmaking.Queue `json:"matchmaking_queue"`

	Coordinator      string `json:"matchmaking_coordinator,omitempty"`
	QueueSize        uint32 `json:"matchmaking_queue_size"`
	LastNotification string `json:"last_notification,omitempty"`

	// Published holds the next sequence number per stream this replica
	// publishes. Cursors holds the next expected sequence number per
	// subscribed log, keyed by broadcast.Key.String().
	Published map[string]uint64 `json:"published"`
	Cursors   map[string]uint64 `json:"cursors"`
}

func newState() *State {
	return &State{
		Published: make(map[string]uint64),
		Cursors:   make(map[string]uint64),
	}
}

func (s *State) Clone() *State {
	c := *s
	c.Room = s.Room.Clone()
	c.Archive = s.Archive.Clone()
	c.Social = s.Social.Clone()
	c.Leaderboard = s.Leaderboard.Clone()
	c.Queue = s.Queue.Clone()
	c.Published = make(map[string]uint64, len(s.Published))
	for k, v := range s.Published {
		c.Published[k] = v
	}
	c.Cursors = make(map[string]uint64, len(s.Cursors))
	for k, v := range s.Cursors {
		c.Cursors[k] = v
	}
	return &c
}
