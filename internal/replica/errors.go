package replica

import "errors"

var (
	ErrNoRoom           = errors.New("not in a room")
	ErrAlreadyInRoom    = errors.New("already in a room")
	ErrNotHost          = errors.New("only the host can do that")
	ErrNotDrawer        = errors.New("only the drawer can do that")
	ErrIsDrawer         = errors.New("the drawer cannot guess")
	ErrNoDrawer         = errors.New("no drawer chosen")
	ErrWrongState       = errors.New("not allowed in the current game state")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFriend        = errors.New("not a friend")
	ErrNoSuchRequest    = errors.New("no such friend request")
	ErrNoSuchInvitation = errors.New("no such invitation")
	ErrNotQueued        = errors.New("not in matchmaking")
	ErrStorage          = errors.New("storage failure")
)

// errIgnored ends a unit of work successfully without writing anything.
var errIgnored = errors.New("ignored")
