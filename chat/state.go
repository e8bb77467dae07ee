package chat

// State is the session's position in the menu/room/reconnect lifecycle.
type State int

const (
	StateRoomMenu State = iota
	StateActiveRoom
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRoomMenu:
		return "room-menu"
	case StateActiveRoom:
		return "active-room"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
