package rooms

import (
	"errors"
	"time"

	"doodlesync/internal/players"
)

type GameState string

const (
	StateWaitingForPlayers = GameState("waiting_for_players")
	StateGameStarted       = GameState("game_started")
	StateChoosingDrawer    = GameState("choosing_drawer")
	StateWaitingForWord    = GameState("waiting_for_word")
	StateDrawing           = GameState("drawing")
	StateRoundEnded        = GameState("round_ended")
	StateGameEnded         = GameState("game_ended")
)

// ChatCapacity bounds the chat buffer; the oldest entries are evicted.
const ChatCapacity = 10

var ErrInvalidDrawer = errors.New("drawer index does not point at an active player")

type ChatMessage struct {
	PlayerName     string `json:"player_name"`
	Text           string `json:"text"`
	IsCorrectGuess bool   `json:"is_correct_guess"`
	PointsAwarded  uint32 `json:"points_awarded"`
}

// Score is a (name, score) pair reported at round and game end.
type Score struct {
	PlayerName string `json:"player_name"`
	Score      uint32 `json:"score"`
}

// Room is the canonical game room value. It performs no I/O; every replica
// that holds a copy mutates it through the same methods.
type Room struct {
	ID                 string         `json:"room_id"`
	HostID             string         `json:"host_id"`
	Players            players.Roster `json:"players"`
	State              GameState      `json:"game_state"`
	CurrentRound       uint32         `json:"current_round"`
	TotalRounds        uint32         `json:"total_rounds"`
	SecondsPerRound    uint32         `json:"seconds_per_round"`
	CurrentDrawerIndex *int           `json:"current_drawer_index,omitempty"`
	WordChosenAt       *time.Time     `json:"word_chosen_at,omitempty"`
	DrawerChosenAt     *time.Time     `json:"drawer_chosen_at,omitempty"`
	ChatMessages       []ChatMessage  `json:"chat_messages"`
	TurnChatStart      int            `json:"turn_chat_start"`
	BlobRefs           []string       `json:"blob_refs"`
	LeaderboardTarget  string         `json:"leaderboard_target,omitempty"`
}

func New(id, hostID, hostName, avatar, leaderboardTarget string) *Room {
	return &Room{
		ID:                id,
		HostID:            hostID,
		Players:           players.Roster{players.New(hostID, hostName, avatar)},
		State:             StateWaitingForPlayers,
		ChatMessages:      []ChatMessage{},
		BlobRefs:          []string{},
		LeaderboardTarget: leaderboardTarget,
	}
}

func (r *Room) IsHost(replicaID string) bool {
	return r.HostID == replicaID
}

// AddPlayer upserts by replica id and returns the player's index.
func (r *Room) AddPlayer(p players.Player) int {
	return r.Players.Upsert(p)
}

// InProgress reports whether a game is running (started and not ended).
func (r *Room) InProgress() bool {
	switch r.State {
	case StateGameStarted, StateChoosingDrawer, StateWaitingForWord, StateDrawing, StateRoundEnded:
		return true
	}
	return false
}

func (r *Room) StartGame(rounds, secondsPerRound uint32) {
	r.TotalRounds = rounds
	r.SecondsPerRound = secondsPerRound
	r.CurrentRound = 1
	r.State = StateChoosingDrawer
	r.CurrentDrawerIndex = nil
	r.WordChosenAt = nil
	r.Players.ResetAll()
}

// ChooseDrawer moves the drawer pointer to the next active player strictly
// after the current drawer in roster order, or to the first active player
// when there is no current drawer. It returns false when nobody is active.
func (r *Room) ChooseDrawer(now time.Time) (int, bool) {
	if !r.Players.AnyActive() {
		return 0, false
	}

	next := r.Players.FirstActive()
	if r.CurrentDrawerIndex != nil {
		next = r.Players.NextActiveAfter(*r.CurrentDrawerIndex)
	}
	if next < 0 {
		return 0, false
	}

	r.setDrawer(next, now)
	return next, true
}

// SetDrawer applies a drawer selection made elsewhere (a host event). The
// index must point at an active player.
func (r *Room) SetDrawer(index int, now time.Time) error {
	if index < 0 || index >= len(r.Players) || !r.Players[index].Active() {
		return ErrInvalidDrawer
	}
	r.setDrawer(index, now)
	return nil
}

func (r *Room) setDrawer(index int, now time.Time) {
	at := now
	r.CurrentDrawerIndex = &index
	r.State = StateWaitingForWord
	r.WordChosenAt = nil
	r.DrawerChosenAt = &at
	r.TurnChatStart = len(r.ChatMessages)
	r.Players.ResetGuesses()
}

// HasAllPlayersDrawnInRound is true when the rotation would wrap back to the
// first active player, i.e. every active player has had one turn this round.
func (r *Room) HasAllPlayersDrawnInRound() bool {
	if !r.Players.AnyActive() || r.CurrentDrawerIndex == nil {
		return false
	}
	next := r.Players.NextActiveAfter(*r.CurrentDrawerIndex)
	first := r.Players.FirstActive()
	return next >= 0 && next == first
}

// AdvanceToNextRound starts the next round, or ends the game after the last.
func (r *Room) AdvanceToNextRound() {
	if r.CurrentRound < r.TotalRounds {
		r.CurrentRound++
		r.State = StateChoosingDrawer
		r.CurrentDrawerIndex = nil
		r.WordChosenAt = nil
		r.ChatMessages = []ChatMessage{}
		r.TurnChatStart = 0
		return
	}
	r.State = StateGameEnded
}

// ChooseWord records when the word was chosen. The word itself never lives
// in the Room.
func (r *Room) ChooseWord(now time.Time) {
	at := now
	r.WordChosenAt = &at
	r.State = StateDrawing
}

func (r *Room) CurrentDrawer() *players.Player {
	if r.CurrentDrawerIndex == nil {
		return nil
	}
	i := *r.CurrentDrawerIndex
	if i < 0 || i >= len(r.Players) {
		return nil
	}
	return &r.Players[i]
}

func (r *Room) IsDrawer(replicaID string) bool {
	d := r.CurrentDrawer()
	return d != nil && d.ReplicaID == replicaID
}

// PointsForCorrectGuess is 100 for the first correct guesser of a drawer
// turn, 10 less for each one after, and never below 10.
func (r *Room) PointsForCorrectGuess() uint32 {
	return GuessPoints(r.Players.GuessedCount())
}

func GuessPoints(alreadyGuessed int) uint32 {
	points := 100 - 10*alreadyGuessed
	if points < 10 {
		return 10
	}
	return uint32(points)
}

func (r *Room) AwardPoints(playerName string, points uint32) {
	if i := r.Players.IndexOfName(playerName); i >= 0 {
		r.Players[i].Score += points
		r.Players[i].HasGuessed = true
	}
}

// HasChatMessage looks for an identical line in the current drawer turn.
// Earlier turns of the round stay visible but do not count: the same player
// may legitimately post the same correct-guess line once per turn.
func (r *Room) HasChatMessage(playerName, text string) bool {
	start := min(max(r.TurnChatStart, 0), len(r.ChatMessages))
	for _, m := range r.ChatMessages[start:] {
		if m.PlayerName == playerName && m.Text == text {
			return true
		}
	}
	return false
}

func (r *Room) AppendChat(m ChatMessage) {
	r.ChatMessages = append(r.ChatMessages, m)
	if over := len(r.ChatMessages) - ChatCapacity; over > 0 {
		r.ChatMessages = append([]ChatMessage{}, r.ChatMessages[over:]...)
		r.TurnChatStart = max(r.TurnChatStart-over, 0)
	}
}

// PlayerLeft marks the player as left. If it was the drawer of a running
// game, the drawer pointer is cleared and the room goes back to choosing a
// drawer; an ended game stays ended. It reports the player's index (-1 when
// unknown) and whether a turn was interrupted.
func (r *Room) PlayerLeft(replicaID string) (int, bool) {
	idx := r.Players.MarkLeft(replicaID)
	if idx < 0 {
		return -1, false
	}
	if !r.InProgress() || r.CurrentDrawerIndex == nil || *r.CurrentDrawerIndex != idx {
		return idx, false
	}
	r.CurrentDrawerIndex = nil
	r.State = StateChoosingDrawer
	r.WordChosenAt = nil
	r.DrawerChosenAt = nil
	return idx, true
}

func (r *Room) Scores() []Score {
	scores := make([]Score, 0, len(r.Players))
	for _, p := range r.Players {
		scores = append(scores, Score{PlayerName: p.DisplayName, Score: p.Score})
	}
	return scores
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = r.Players.Clone()
	c.ChatMessages = append([]ChatMessage{}, r.ChatMessages...)
	c.BlobRefs = append([]string{}, r.BlobRefs...)
	if r.CurrentDrawerIndex != nil {
		i := *r.CurrentDrawerIndex
		c.CurrentDrawerIndex = &i
	}
	if r.WordChosenAt != nil {
		t := *r.WordChosenAt
		c.WordChosenAt = &t
	}
	if r.DrawerChosenAt != nil {
		t := *r.DrawerChosenAt
		c.DrawerChosenAt = &t
	}
	return &c
}
