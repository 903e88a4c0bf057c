package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("unknown event kind")

type wireEnvelope struct {
	Origin string          `json:"origin"`
	Seq    uint64          `json:"seq"`
	Kind   Kind            `json:"kind"`
	Data   json.RawMessage `json:"data"`
}

func Encode(env Envelope) ([]byte, error) {
	if env.Event == nil {
		return nil, fmt.Errorf("encoding envelope: nil event")
	}
	data, err := json.Marshal(env.Event)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", env.Event.Kind(), err)
	}
	return json.Marshal(wireEnvelope{
		Origin: env.Origin,
		Seq:    env.Seq,
		Kind:   env.Event.Kind(),
		Data:   data,
	})
}

func Decode(b []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	ev, err := decodeEvent(w.Kind, w.Data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Origin: w.Origin, Seq: w.Seq, Event: ev}, nil
}

func decodeEvent(kind Kind, data json.RawMessage) (Event, error) {
	switch kind {
	case KindPlayerJoined:
		return decodeAs[PlayerJoined](kind, data)
	case KindPlayerLeft:
		return decodeAs[PlayerLeft](kind, data)
	case KindGameStarted:
		return decodeAs[GameStarted](kind, data)
	case KindDrawerChosen:
		return decodeAs[DrawerChosen](kind, data)
	case KindWordChosen:
		return decodeAs[WordChosen](kind, data)
	case KindChatMessage:
		return decodeAs[ChatMessage](kind, data)
	case KindRoundEnded:
		return decodeAs[RoundEnded](kind, data)
	case KindGameEnded:
		return decodeAs[GameEnded](kind, data)
	case KindMatchEnded:
		return decodeAs[MatchEnded](kind, data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func decodeAs[T Event](kind Kind, data json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", kind, err)
	}
	return ev, nil
}
