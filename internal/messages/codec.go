package messages

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("unknown message kind")

type wireMessage struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encoding message: nil message")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.Kind(), err)
	}
	return json.Marshal(wireMessage{Kind: m.Kind(), Data: data})
}

func Decode(b []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	switch w.Kind {
	case KindJoinRequest:
		return decodeAs[JoinRequest](w)
	case KindInitialStateSync:
		return decodeAs[InitialStateSync](w)
	case KindGuessSubmission:
		return decodeAs[GuessSubmission](w)
	case KindRoomDeleted:
		return decodeAs[RoomDeleted](w)
	case KindPlayerLeft:
		return decodeAs[PlayerLeft](w)
	case KindMatchmakingEnqueue:
		return decodeAs[MatchmakingEnqueue](w)
	case KindMatchmakingLeave:
		return decodeAs[MatchmakingLeave](w)
	case KindMatchmakingStart:
		return decodeAs[MatchmakingStart](w)
	case KindMatchmakingFound:
		return decodeAs[MatchmakingFound](w)
	case KindMatchmakingStatusUpdate:
		return decodeAs[MatchmakingStatusUpdate](w)
	case KindUpdateLeaderboard:
		return decodeAs[UpdateLeaderboard](w)
	case KindFriendRequest:
		return decodeAs[FriendRequest](w)
	case KindFriendAccepted:
		return decodeAs[FriendAccepted](w)
	case KindRoomInvitation:
		return decodeAs[RoomInvitation](w)
	case KindRoomInvitationCancelled:
		return decodeAs[RoomInvitationCancelled](w)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Kind)
}

func decodeAs[T Message](w wireMessage) (Message, error) {
	var m T
	if len(w.Data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(w.Data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", w.Kind, err)
	}
	return m, nil
}
