// Package matchmaking implements the coordinator's FIFO queue of waiting
// players and fixed-size batch formation.
package matchmaking

const (
	DefaultBatchSize       = 5
	DefaultRounds          = 3
	DefaultSecondsPerRound = 80
)

type Entry struct {
	ReplicaID         string `json:"replica_id"`
	DisplayName       string `json:"display_name"`
	AvatarRef         string `json:"avatar_ref"`
	LeaderboardTarget string `json:"leaderboard_target,omitempty"`
}

type Queue struct {
	Entries []Entry `json:"entries"`
}

func (q Queue) Len() int {
	return len(q.Entries)
}

func (q Queue) Contains(replicaID string) bool {
	return q.indexOf(replicaID) >= 0
}

func (q Queue) indexOf(replicaID string) int {
	for i, e := range q.Entries {
		if e.ReplicaID == replicaID {
			return i
		}
	}
	return -1
}

// Enqueue appends the entry unless its replica is already waiting.
func (q *Queue) Enqueue(e Entry) bool {
	if q.Contains(e.ReplicaID) {
		return false
	}
	q.Entries = append(q.Entries, e)
	return true
}

func (q *Queue) Remove(replicaID string) bool {
	i := q.indexOf(replicaID)
	if i < 0 {
		return false
	}
	q.Entries = append(q.Entries[:i:i], q.Entries[i+1:]...)
	return true
}

// TakeBatch removes and returns the first size entries once the queue holds
// at least that many.
func (q *Queue) TakeBatch(size int) ([]Entry, bool) {
	if size <= 0 || len(q.Entries) < size {
		return nil, false
	}
	batch := append([]Entry{}, q.Entries[:size]...)
	q.Entries = append([]Entry{}, q.Entries[size:]...)
	return batch, true
}

func (q Queue) Clone() Queue {
	return Queue{Entries: append([]Entry(nil), q.Entries...)}
}
