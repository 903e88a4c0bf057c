// Package leaderboard merges per-match scores into a cumulative board held
// by a designated leaderboard replica.
package leaderboard

import "sort"

const (
	MaxEntries = 50

	// maxAppliedMatches bounds the memory of merged match ids.
	maxAppliedMatches = 1000
)

type Entry struct {
	PlayerName string `json:"player_name"`
	ReplicaID  string `json:"replica_id"`
	Score      uint32 `json:"cumulative_score"`
}

type Board struct {
	Entries        []Entry  `json:"entries"`
	AppliedMatches []string `json:"applied_matches"`
}

func (b *Board) applied(matchID string) bool {
	for _, id := range b.AppliedMatches {
		if id == matchID {
			return true
		}
	}
	return false
}

// Merge adds each incoming score to the player's existing entry (or adds an
// entry), then keeps the board sorted by score, highest first, truncated to
// MaxEntries. A match id that was already merged is ignored; an empty match
// id is always merged.
func (b *Board) Merge(matchID string, incoming []Entry) bool {
	if matchID != "" {
		if b.applied(matchID) {
			return false
		}
		b.AppliedMatches = append(b.AppliedMatches, matchID)
		if over := len(b.AppliedMatches) - maxAppliedMatches; over > 0 {
			b.AppliedMatches = append([]string{}, b.AppliedMatches[over:]...)
		}
	}

	for _, in := range incoming {
		found := false
		for i := range b.Entries {
			if b.Entries[i].ReplicaID == in.ReplicaID {
				b.Entries[i].Score += in.Score
				b.Entries[i].PlayerName = in.PlayerName
				found = true
				break
			}
		}
		if !found {
			b.Entries = append(b.Entries, in)
		}
	}

	sort.SliceStable(b.Entries, func(i, j int) bool {
		return b.Entries[i].Score > b.Entries[j].Score
	})
	if len(b.Entries) > MaxEntries {
		b.Entries = b.Entries[:MaxEntries]
	}
	return true
}

func (b Board) Clone() Board {
	return Board{
		Entries:        append([]Entry(nil), b.Entries...),
		AppliedMatches: append([]string(nil), b.AppliedMatches...),
	}
}
