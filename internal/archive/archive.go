// Package archive keeps the append-only list of terminated rooms a replica
// has taken part in.
package archive

import (
	"fmt"
	"time"
)

// Room is the immutable summary of a terminated room.
type Room struct {
	ID        string    `json:"archive_id"`
	BlobRefs  []string  `json:"blob_refs"`
	Timestamp time.Time `json:"timestamp"`
}

type List []Room

// NextID numbers archives per replica: the room id followed by the 1-based
// position the record will take in this list.
func (l List) NextID(roomID string) string {
	return fmt.Sprintf("%s#%d", roomID, len(l)+1)
}

func (l List) Contains(id string) bool {
	for _, r := range l {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Append adds the record unless one with the same id is already present.
func (l *List) Append(r Room) bool {
	if l.Contains(r.ID) {
		return false
	}
	r.BlobRefs = append([]string{}, r.BlobRefs...)
	*l = append(*l, r)
	return true
}

func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for i, r := range l {
		r.BlobRefs = append([]string{}, r.BlobRefs...)
		out[i] = r
	}
	return out
}
