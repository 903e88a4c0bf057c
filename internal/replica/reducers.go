package replica

import (
	"doodlesync/internal/events"
	"doodlesync/internal/rooms"
)

var (
	_ events.Handler = (*hostReducer)(nil)
	_ events.Handler = (*guestReducer)(nil)
)

// follows reports whether entries on publisher's stream concern the room
// this replica is in: the host follows its players, a guest only its host.
// Nobody consumes its own stream; the host re-publishes drawer events there
// with the drawer as origin, so origin alone cannot catch that echo.
func (tx *txn) follows(publisher, stream string) bool {
	room := tx.st.Room
	switch {
	case publisher == tx.self():
		tx.ignore("entry on own stream %s", stream)
		return false
	case room == nil || events.StreamName(room.ID) != stream:
		tx.ignore("no room for stream %s", stream)
		return false
	case room.IsHost(tx.self()) && !room.Players.Contains(publisher):
		tx.ignore("publisher %s is not in the room", publisher)
		return false
	case !room.IsHost(tx.self()) && publisher != tx.st.SubscribedToHost:
		tx.ignore("publisher %s is not the host", publisher)
		return false
	}
	return true
}

// applyEntry routes a followed entry to the reducer set for this replica's
// role in the room.
func (tx *txn) applyEntry(env events.Envelope) error {
	if env.Origin == tx.self() {
		tx.ignore("self-echo")
		return nil
	}
	room := tx.st.Room
	if room.IsHost(tx.self()) {
		return events.Dispatch(&hostReducer{tx: tx, room: room}, env)
	}
	return events.Dispatch(&guestReducer{tx: tx, room: room}, env)
}

// applyWordChosen is shared by both roles.
func (tx *txn) applyWordChosen(room *rooms.Room, origin string, e events.WordChosen) bool {
	if !room.IsDrawer(origin) {
		tx.ignore("word chosen by %s, who is not drawing", origin)
		return false
	}
	room.ChooseWord(e.At)
	return true
}

// applyChat is shared by both roles and by the drawer when it scores a
// guess.
func (tx *txn) applyChat(room *rooms.Room, origin string, m rooms.ChatMessage) bool {
	if !room.IsDrawer(origin) {
		tx.ignore("chat from %s, who is not drawing", origin)
		return false
	}
	if room.HasChatMessage(m.PlayerName, m.Text) {
		tx.ignore("duplicate chat from %s", m.PlayerName)
		return false
	}
	room.AppendChat(m)
	if m.IsCorrectGuess {
		room.AwardPoints(m.PlayerName, m.PointsAwarded)
	}
	return true
}

func applyScores(room *rooms.Room, scores []rooms.Score) {
	for _, s := range scores {
		if i := room.Players.IndexOfName(s.PlayerName); i >= 0 {
			room.Players[i].Score = s.Score
		}
	}
}

// hostReducer applies events from the players' streams to the canonical
// room. Only the drawer's events are accepted; they are re-published on the
// host's stream with their origin intact.
type hostReducer struct {
	tx   *txn
	room *rooms.Room
}

func (h *hostReducer) notFromPlayers(kind events.Kind, origin string) error {
	h.tx.ignore("%s is host-authored, got it from %s", kind, origin)
	return nil
}

func (h *hostReducer) OnWordChosen(origin string, e events.WordChosen) error {
	if h.tx.applyWordChosen(h.room, origin, e) {
		h.tx.publish(h.room.ID, origin, e)
	}
	return nil
}

func (h *hostReducer) OnChatMessage(origin string, e events.ChatMessage) error {
	if h.tx.applyChat(h.room, origin, e.Message) {
		h.tx.publish(h.room.ID, origin, e)
	}
	return nil
}

func (h *hostReducer) OnPlayerJoined(origin string, e events.PlayerJoined) error {
	return h.notFromPlayers(e.Kind(), origin)
}

func (h *hostReducer) OnPlayerLeft(origin string, e events.PlayerLeft) error {
	return h.notFromPlayers(e.Kind(), origin)
}

func (h *hostReducer) OnGameStarted(origin string, e events.GameStarted) error {
	return h.notFromPlayers(e.Kind(), origin)
}

func (h *hostReducer) OnDrawerChosen(origin string, e events.DrawerChosen) error {
	return h.notFromPlayers(e.Kind(), origin)
}

func (h *hostReducer) OnRoundEnded(origin string, e events.RoundEnded) error {
	return h.notFromPlayers(e.Kind(), origin)
}

func (h *hostReducer) OnGameEnded(origin string, e events.GameEnded) error {
	return h.notFromPlayers(e.Kind(), origin)
}

func (h *hostReducer) OnMatchEnded(origin string, e events.MatchEnded) error {
	return h.notFromPlayers(e.Kind(), origin)
}

// guestReducer reconciles a guest's copy of the room with the host's stream.
type guestReducer struct {
	tx   *txn
	room *rooms.Room
}

func (g *guestReducer) fromHost(kind events.Kind, origin string) bool {
	if origin != g.room.HostID {
		g.tx.ignore("%s from %s, who is not the host", kind, origin)
		return false
	}
	return true
}

func (g *guestReducer) OnPlayerJoined(origin string, e events.PlayerJoined) error {
	if !g.fromHost(e.Kind(), origin) {
		return nil
	}
	g.room.AddPlayer(e.Player)
	return nil
}

func (g *guestReducer) OnPlayerLeft(origin string, e events.PlayerLeft) error {
	if !g.fromHost(e.Kind(), origin) {
		return nil
	}
	if idx, _ := g.room.PlayerLeft(e.PlayerID); idx < 0 {
		g.tx.ignore("unknown player %s left", e.PlayerID)
	}
	return nil
}

func (g *guestReducer) OnGameStarted(origin string, e events.GameStarted) error {
	if !g.fromHost(e.Kind(), origin) {
		return nil
	}
	g.room.StartGame(e.Rounds, e.SecondsPerRound)
	if err := g.room.SetDrawer(e.DrawerIndex, e.At); err != nil {
		g.tx.r.log.WithField("drawer_index", e.DrawerIndex).Warn("game started with a drawer this replica does not know")
	}
	g.tx.dropWordUnlessDrawing()
	return nil
}

func (g *guestReducer) OnDrawerChosen(origin string, e events.DrawerChosen) error {
	if !g.fromHost(e.Kind(), origin) {
		return nil
	}
	if err := g.room.SetDrawer(e.DrawerIndex, e.At); err != nil {
		g.tx.ignore("drawer index %d: %v", e.DrawerIndex, err)
		return nil
	}
	g.tx.dropWordUnlessDrawing()
	return nil
}

func (g *guestReducer) OnWordChosen(origin string, e events.WordChosen) error {
	g.tx.applyWordChosen(g.room, origin, e)
	return nil
}

func (g *guestReducer) OnChatMessage(origin string, e events.ChatMessage) error {
	g.tx.applyChat(g.room, origin, e.Message)
	return nil
}

func (g *guestReducer) OnRoundEnded(origin string, e events.RoundEnded) error {
	if !g.fromHost(e.Kind(), origin) {
		return nil
	}
	applyScores(g.room, e.Scores)
	g.room.AdvanceToNextRound()
	g.tx.dropWordUnlessDrawing()
	return nil
}

func (g *guestReducer) OnGameEnded(origin string, e events.GameEnded) error {
	if !g.fromHost(e.Kind(), origin) {
		return nil
	}
	applyScores(g.room, e.FinalScores)
	g.room.State = rooms.StateGameEnded
	g.tx.st.CurrentWord = ""
	return nil
}

func (g *guestReducer) OnMatchEnded(origin string, e events.MatchEnded) error {
	if !g.fromHost(e.Kind(), origin) {
		return nil
	}
	g.tx.st.LastNotification = "Match ended"
	return nil
}
