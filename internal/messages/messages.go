// Package messages defines the point-to-point messages replicas send each
// other. As with events, the set is closed behind an exhaustive Handler.
package messages

import (
	"time"

	"doodlesync/internal/archive"
	"doodlesync/internal/leaderboard"
	"doodlesync/internal/matchmaking"
	"doodlesync/internal/rooms"
)

type Kind string

const (
	KindJoinRequest             = Kind("join_request")
	KindInitialStateSync        = Kind("initial_state_sync")
	KindGuessSubmission         = Kind("guess_submission")
	KindRoomDeleted             = Kind("room_deleted")
	KindPlayerLeft              = Kind("player_left")
	KindMatchmakingEnqueue      = Kind("matchmaking_enqueue")
	KindMatchmakingLeave        = Kind("matchmaking_leave")
	KindMatchmakingStart        = Kind("matchmaking_start")
	KindMatchmakingFound        = Kind("matchmaking_found")
	KindMatchmakingStatusUpdate = Kind("matchmaking_status_update")
	KindUpdateLeaderboard       = Kind("update_leaderboard")
	KindFriendRequest           = Kind("friend_request")
	KindFriendAccepted          = Kind("friend_accepted")
	KindRoomInvitation          = Kind("room_invitation")
	KindRoomInvitationCancelled = Kind("room_invitation_cancelled")
)

// Message is a direct message addressed to one replica. The sender is
// supplied by the transport, never by the payload.
type Message interface {
	Kind() Kind
	dispatch(h Handler, from string) error
}

type Handler interface {
	OnJoinRequest(from string, m JoinRequest) error
	OnInitialStateSync(from string, m InitialStateSync) error
	OnGuessSubmission(from string, m GuessSubmission) error
	OnRoomDeleted(from string, m RoomDeleted) error
	OnPlayerLeft(from string, m PlayerLeft) error
	OnMatchmakingEnqueue(from string, m MatchmakingEnqueue) error
	OnMatchmakingLeave(from string, m MatchmakingLeave) error
	OnMatchmakingStart(from string, m MatchmakingStart) error
	OnMatchmakingFound(from string, m MatchmakingFound) error
	OnMatchmakingStatusUpdate(from string, m MatchmakingStatusUpdate) error
	OnUpdateLeaderboard(from string, m UpdateLeaderboard) error
	OnFriendRequest(from string, m FriendRequest) error
	OnFriendAccepted(from string, m FriendAccepted) error
	OnRoomInvitation(from string, m RoomInvitation) error
	OnRoomInvitationCancelled(from string, m RoomInvitationCancelled) error
}

func Dispatch(h Handler, from string, m Message) error {
	return m.dispatch(h, from)
}

// JoinRequest asks a host to add the sender to its room.
type JoinRequest struct {
	PlayerName string `json:"player_name"`
	AvatarRef  string `json:"avatar_ref"`
}

// InitialStateSync is the host's snapshot for a newly joined guest. NextSeq
// is the sequence number of the host's next event, from which the guest
// subscribes.
type InitialStateSync struct {
	Room    rooms.Room `json:"room"`
	NextSeq uint64     `json:"next_seq"`
}

// GuessSubmission carries a guess to the current drawer, the only replica
// holding the secret word.
type GuessSubmission struct {
	PlayerName string `json:"player_name"`
	Text       string `json:"text"`
	Round      uint32 `json:"round"`
}

// RoomDeleted tells a player the host terminated the room.
type RoomDeleted struct {
	Archive archive.Room `json:"archive"`
	At      time.Time    `json:"at"`
}

// PlayerLeft tells the host a guest has left.
type PlayerLeft struct {
	PlayerName string    `json:"player_name"`
	At         time.Time `json:"at"`
}

type MatchmakingEnqueue struct {
	Entry matchmaking.Entry `json:"entry"`
}

type MatchmakingLeave struct{}

// MatchmakingStart instructs the first player of a batch to host a room for
// the rest.
type MatchmakingStart struct {
	Guests            []matchmaking.Entry `json:"guests"`
	HostName          string              `json:"host_name"`
	HostAvatar        string              `json:"host_avatar"`
	LeaderboardTarget string              `json:"leaderboard_target,omitempty"`
	Rounds            uint32              `json:"rounds"`
	SecondsPerRound   uint32              `json:"seconds_per_round"`
}

// MatchmakingFound tells a guest which host to join.
type MatchmakingFound struct {
	HostID string `json:"host_id"`
}

type MatchmakingStatusUpdate struct {
	PlayersInQueue uint32 `json:"players_in_queue"`
}

// UpdateLeaderboard forwards a terminated match's final scores. MatchID is
// the archive id of the match and makes the merge idempotent.
type UpdateLeaderboard struct {
	MatchID string              `json:"match_id"`
	Entries []leaderboard.Entry `json:"entries"`
}

type FriendRequest struct{}

type FriendAccepted struct{}

type RoomInvitation struct {
	At time.Time `json:"at"`
}

type RoomInvitationCancelled struct{}

func (JoinRequest) Kind() Kind             { return KindJoinRequest }
func (InitialStateSync) Kind() Kind        { return KindInitialStateSync }
func (GuessSubmission) Kind() Kind         { return KindGuessSubmission }
func (RoomDeleted) Kind() Kind             { return KindRoomDeleted }
func (PlayerLeft) Kind() Kind              { return KindPlayerLeft }
func (MatchmakingEnqueue) Kind() Kind      { return KindMatchmakingEnqueue }
func (MatchmakingLeave) Kind() Kind        { return KindMatchmakingLeave }
func (MatchmakingStart) Kind() Kind        { return KindMatchmakingStart }
func (MatchmakingFound) Kind() Kind        { return KindMatchmakingFound }
func (MatchmakingStatusUpdate) Kind() Kind { return KindMatchmakingStatusUpdate }
func (UpdateLeaderboard) Kind() Kind       { return KindUpdateLeaderboard }
func (FriendRequest) Kind() Kind           { return KindFriendRequest }
func (FriendAccepted) Kind() Kind          { return KindFriendAccepted }
func (RoomInvitation) Kind() Kind          { return KindRoomInvitation }
func (RoomInvitationCancelled) Kind() Kind { return KindRoomInvitationCancelled }

func (m JoinRequest) dispatch(h Handler, from string) error { return h.OnJoinRequest(from, m) }
func (m InitialStateSync) dispatch(h Handler, from string) error {
	return h.OnInitialStateSync(from, m)
}
func (m GuessSubmission) dispatch(h Handler, from string) error {
	return h.OnGuessSubmission(from, m)
}
func (m RoomDeleted) dispatch(h Handler, from string) error { return h.OnRoomDeleted(from, m) }
func (m PlayerLeft) dispatch(h Handler, from string) error  { return h.OnPlayerLeft(from, m) }
func (m MatchmakingEnqueue) dispatch(h Handler, from string) error {
	return h.OnMatchmakingEnqueue(from, m)
}
func (m MatchmakingLeave) dispatch(h Handler, from string) error {
	return h.OnMatchmakingLeave(from, m)
}
func (m MatchmakingStart) dispatch(h Handler, from string) error {
	return h.OnMatchmakingStart(from, m)
}
func (m MatchmakingFound) dispatch(h Handler, from string) error {
	return h.OnMatchmakingFound(from, m)
}
func (m MatchmakingStatusUpdate) dispatch(h Handler, from string) error {
	return h.OnMatchmakingStatusUpdate(from, m)
}
func (m UpdateLeaderboard) dispatch(h Handler, from string) error {
	return h.OnUpdateLeaderboard(from, m)
}
func (m FriendRequest) dispatch(h Handler, from string) error  { return h.OnFriendRequest(from, m) }
func (m FriendAccepted) dispatch(h Handler, from string) error { return h.OnFriendAccepted(from, m) }
func (m RoomInvitation) dispatch(h Handler, from string) error { return h.OnRoomInvitation(from, m) }
func (m RoomInvitationCancelled) dispatch(h Handler, from string) error {
	return h.OnRoomInvitationCancelled(from, m)
}
