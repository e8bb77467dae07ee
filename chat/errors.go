package chat

import "errors"

var (
	// ErrRoomExists is reported by the coordinator when creating a room
	// whose name is already taken.
	ErrRoomExists = errors.New("room already exists")

	// ErrLinkDown marks any failure caused by lost connectivity to the
	// coordinator's host.
	ErrLinkDown = errors.New("link to coordinator is down")

	// ErrNotResolved is returned by a discovery lookup that found no
	// coordinator registered under the requested name.
	ErrNotResolved = errors.New("coordinator not resolved")

	// ErrEvicted marks a coordinator-initiated forced disconnect.
	ErrEvicted = errors.New("evicted by coordinator")

	// ErrReconnectFailed is returned once every reconnection attempt has
	// been exhausted.
	ErrReconnectFailed = errors.New("reconnection attempts exhausted")
)
