package coordinator

import (
	"context"

	"github.com/ponyo877/salachat/chat"
)

// Coordinator is the typed request surface of the remote coordinator.
// Request/response operations block the caller with a bounded timeout;
// SendMessage and Deregister are fire-and-forget and never wait for an
// acknowledgement.
type Coordinator interface {
	ListRooms(ctx context.Context) ([]string, error)
	CreateRoom(ctx context.Context, username, room string) error
	JoinRoom(ctx context.Context, username, room string) error
	History(ctx context.Context, room string) ([]chat.Message, error)
	ListUsers(ctx context.Context) ([]string, error)

	SendMessage(username, room, body string) error
	Deregister(username string) error

	Ping(ctx context.Context) error

	// Events delivers asynchronous coordinator traffic: room messages,
	// system notices, forced disconnects and the synthesized link-down
	// event. The channel is never closed before Close.
	Events() <-chan chat.Event

	Close() error
}

// Resolver looks up the address a coordinator is reachable at by its
// well-known name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// ConnectFunc establishes an authenticated coordinator link. Used by the
// reconnection path so the dial/auth pair can be swapped in tests.
type ConnectFunc func(ctx context.Context, addr, username, credential string) (Coordinator, error)
