package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ponyo877/salachat/chat"
)

// StaticResolver maps well-known coordinator names to addresses. The
// production config registers a single entry; tests register fakes.
type StaticResolver map[string]string

func (r StaticResolver) Resolve(_ context.Context, name string) (string, error) {
	addr, ok := r[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, chat.ErrNotResolved)
	}
	return addr, nil
}

var errPong = errors.New("pong received")

// Probe checks coordinator liveness with a ping/pong round trip on a
// throwaway connection. It returns nil only if the pong arrives before the
// context deadline.
func Probe(ctx context.Context, addr string) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(callTimeout)
	}
	conn.SetPongHandler(func(string) error { return errPong })
	if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	conn.SetReadDeadline(deadline)
	for {
		// NextReader drives control-frame processing; the pong handler
		// surfaces errPong through it.
		if _, _, err := conn.NextReader(); err != nil {
			if errors.Is(err, errPong) {
				return nil
			}
			return fmt.Errorf("probe %s: %w", addr, err)
		}
	}
}
