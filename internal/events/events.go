// Package events defines the entries replicas publish on a room's broadcast
// channel. The set is closed: every event implements the unexported dispatch
// method, and Handler has one method per event, so adding an event without
// handling it fails to compile.
package events

import (
	"time"

	"doodlesync/internal/players"
	"doodlesync/internal/rooms"
)

type Kind string

const (
	KindPlayerJoined = Kind("player_joined")
	KindPlayerLeft   = Kind("player_left")
	KindGameStarted  = Kind("game_started")
	KindDrawerChosen = Kind("drawer_chosen")
	KindWordChosen   = Kind("word_chosen")
	KindChatMessage  = Kind("chat_message")
	KindRoundEnded   = Kind("round_ended")
	KindGameEnded    = Kind("game_ended")
	KindMatchEnded   = Kind("match_ended")
)

// Kinds lists every event kind.
var Kinds = []Kind{
	KindPlayerJoined,
	KindPlayerLeft,
	KindGameStarted,
	KindDrawerChosen,
	KindWordChosen,
	KindChatMessage,
	KindRoundEnded,
	KindGameEnded,
	KindMatchEnded,
}

// StreamName is the channel a replica publishes a room's events on. The host
// and the players all use the same name; the publisher tells them apart.
func StreamName(roomID string) string {
	return "game_events_" + roomID
}

type Event interface {
	Kind() Kind
	dispatch(h Handler, origin string) error
}

// Handler receives events by variant. origin is the replica that produced
// the event, which survives host re-emission.
type Handler interface {
	OnPlayerJoined(origin string, e PlayerJoined) error
	OnPlayerLeft(origin string, e PlayerLeft) error
	OnGameStarted(origin string, e GameStarted) error
	OnDrawerChosen(origin string, e DrawerChosen) error
	OnWordChosen(origin string, e WordChosen) error
	OnChatMessage(origin string, e ChatMessage) error
	OnRoundEnded(origin string, e RoundEnded) error
	OnGameEnded(origin string, e GameEnded) error
	OnMatchEnded(origin string, e MatchEnded) error
}

// Envelope is one broadcast-log entry.
type Envelope struct {
	Origin string
	Seq    uint64
	Event  Event
}

func Dispatch(h Handler, env Envelope) error {
	return env.Event.dispatch(h, env.Origin)
}

type PlayerJoined struct {
	Player players.Player `json:"player"`
	At     time.Time      `json:"at"`
}

type PlayerLeft struct {
	PlayerID string    `json:"player_id"`
	At       time.Time `json:"at"`
}

type GameStarted struct {
	Rounds          uint32    `json:"rounds"`
	SecondsPerRound uint32    `json:"seconds_per_round"`
	DrawerIndex     int       `json:"drawer_index"`
	DrawerName      string    `json:"drawer_name"`
	At              time.Time `json:"at"`
}

type DrawerChosen struct {
	DrawerIndex int       `json:"drawer_index"`
	DrawerName  string    `json:"drawer_name"`
	At          time.Time `json:"at"`
}

// WordChosen carries only the time; the word stays on the drawer's replica.
type WordChosen struct {
	At time.Time `json:"at"`
}

type ChatMessage struct {
	Message rooms.ChatMessage `json:"message"`
}

type RoundEnded struct {
	Scores []rooms.Score `json:"scores"`
	At     time.Time     `json:"at"`
}

type GameEnded struct {
	FinalScores []rooms.Score `json:"final_scores"`
	At          time.Time     `json:"at"`
}

type MatchEnded struct {
	At time.Time `json:"at"`
}

func (PlayerJoined) Kind() Kind { return KindPlayerJoined }
func (PlayerLeft) Kind() Kind   { return KindPlayerLeft }
func (GameStarted) Kind() Kind  { return KindGameStarted }
func (DrawerChosen) Kind() Kind { return KindDrawerChosen }
func (WordChosen) Kind() Kind   { return KindWordChosen }
func (ChatMessage) Kind() Kind  { return KindChatMessage }
func (RoundEnded) Kind() Kind   { return KindRoundEnded }
func (GameEnded) Kind() Kind    { return KindGameEnded }
func (MatchEnded) Kind() Kind   { return KindMatchEnded }

func (e PlayerJoined) dispatch(h Handler, origin string) error { return h.OnPlayerJoined(origin, e) }
func (e PlayerLeft) dispatch(h Handler, origin string) error   { return h.OnPlayerLeft(origin, e) }
func (e GameStarted) dispatch(h Handler, origin string) error  { return h.OnGameStarted(origin, e) }
func (e DrawerChosen) dispatch(h Handler, origin string) error { return h.OnDrawerChosen(origin, e) }
func (e WordChosen) dispatch(h Handler, origin string) error   { return h.OnWordChosen(origin, e) }
func (e ChatMessage) dispatch(h Handler, origin string) error  { return h.OnChatMessage(origin, e) }
func (e RoundEnded) dispatch(h Handler, origin string) error   { return h.OnRoundEnded(origin, e) }
func (e GameEnded) dispatch(h Handler, origin string) error    { return h.OnGameEnded(origin, e) }
func (e MatchEnded) dispatch(h Handler, origin string) error   { return h.OnMatchEnded(origin, e) }
