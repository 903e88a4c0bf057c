package players

// Status marks whether a player is still part of the rotation. Players who
// leave are kept in the roster with StatusLeft so drawer indexes and score
// attribution stay valid.
type Status string

const (
	StatusActive = Status("active")
	StatusLeft   = Status("left")
)

type Player struct {
	ReplicaID   string `json:"replica_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref"`
	Score       uint32 `json:"score"`
	HasGuessed  bool   `json:"has_guessed"`
	Status      Status `json:"status"`
}

func New(replicaID, name, avatar string) Player {
	return Player{
		ReplicaID:   replicaID,
		DisplayName: name,
		AvatarRef:   avatar,
		Status:      StatusActive,
	}
}

func (p Player) Active() bool {
	return p.Status == StatusActive
}
