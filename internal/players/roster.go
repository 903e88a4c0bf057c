package players

// Roster is the ordered player list of a room. Order is join order and is
// the drawer rotation order.
type Roster []Player

func (r Roster) IndexOf(replicaID string) int {
	for i := range r {
		if r[i].ReplicaID == replicaID {
			return i
		}
	}
	return -1
}

func (r Roster) IndexOfName(name string) int {
	for i := range r {
		if r[i].DisplayName == name {
			return i
		}
	}
	return -1
}

func (r Roster) Contains(replicaID string) bool {
	return r.IndexOf(replicaID) >= 0
}

func (r Roster) Get(replicaID string) *Player {
	if i := r.IndexOf(replicaID); i >= 0 {
		return &r[i]
	}
	return nil
}

// Upsert refreshes name, avatar and status of an existing player (reconnect)
// or appends a new one. It returns the index of the player.
func (r *Roster) Upsert(p Player) int {
	if i := r.IndexOf(p.ReplicaID); i >= 0 {
		existing := &(*r)[i]
		existing.DisplayName = p.DisplayName
		existing.AvatarRef = p.AvatarRef
		existing.Status = StatusActive
		return i
	}
	p.Status = StatusActive
	*r = append(*r, p)
	return len(*r) - 1
}

// MarkLeft flips the player to StatusLeft and clears its guess flag. It
// returns the index of the player, or -1 if it is not in the roster.
func (r Roster) MarkLeft(replicaID string) int {
	i := r.IndexOf(replicaID)
	if i < 0 {
		return -1
	}
	r[i].Status = StatusLeft
	r[i].HasGuessed = false
	return i
}

func (r Roster) AnyActive() bool {
	for i := range r {
		if r[i].Active() {
			return true
		}
	}
	return false
}

func (r Roster) FirstActive() int {
	for i := range r {
		if r[i].Active() {
			return i
		}
	}
	return -1
}

// NextActiveAfter walks the roster starting just past current, wrapping,
// and returns the first active index. current itself is considered last.
func (r Roster) NextActiveAfter(current int) int {
	n := len(r)
	if n == 0 {
		return -1
	}
	for offset := 1; offset <= n; offset++ {
		idx := (current + offset) % n
		if r[idx].Active() {
			return idx
		}
	}
	return -1
}

func (r Roster) GuessedCount() int {
	count := 0
	for i := range r {
		if r[i].HasGuessed {
			count++
		}
	}
	return count
}

func (r Roster) ResetGuesses() {
	for i := range r {
		r[i].HasGuessed = false
	}
}

func (r Roster) ResetAll() {
	for i := range r {
		r[i].Score = 0
		r[i].HasGuessed = false
	}
}

func (r Roster) Clone() Roster {
	if r == nil {
		return nil
	}
	out := make(Roster, len(r))
	copy(out, r)
	return out
}
