package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/ponyo877/salachat/chat"
)

const (
	callTimeout    = 5 * time.Second
	historyTimeout = 10 * time.Second
	dialTimeout    = 5 * time.Second
	writeTimeout   = 10 * time.Second
	eventBuffer    = 256
)

// Client talks to the coordinator over a single websocket. One goroutine
// owns the read side and routes replies to waiting callers by correlation
// ID; events go to a buffered channel with non-blocking delivery, so a
// slow or absent consumer drops events instead of stalling the link.
type Client struct {
	conn   *websocket.Conn
	log    *zap.Logger
	events chan chat.Event

	mu      sync.Mutex
	pending map[string]chan ReplyPayload

	writeMu sync.Mutex

	done   chan struct{}
	closed atomic.Bool
}

// Dial opens the websocket link and starts the read loop. The returned
// client is not authenticated yet.
func Dial(ctx context.Context, addr string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial coordinator %s: %w", addr, err)
	}
	c := &Client{
		conn:    conn,
		log:     log,
		events:  make(chan chat.Event, eventBuffer),
		pending: make(map[string]chan ReplyPayload),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Connect dials and authenticates in one bounded step.
func Connect(ctx context.Context, addr, username, credential string, log *zap.Logger) (Coordinator, error) {
	c, err := Dial(ctx, addr, log)
	if err != nil {
		return nil, err
	}
	if err := c.Authenticate(ctx, username, credential); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Authenticate(ctx context.Context, username, credential string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	payload := AuthPayload{
		Name:       username,
		Credential: credential,
		Addr:       c.conn.LocalAddr().String(),
	}
	data, err := c.call(ctx, TypeAuth, payload)
	if err != nil {
		return err
	}
	var auth AuthData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &auth); err != nil {
			return fmt.Errorf("decode auth reply: %w", err)
		}
	}
	c.log.Debug("authenticated", zap.String("name", username), zap.String("session", auth.SessionID))
	return nil
}

func (c *Client) ListRooms(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	data, err := c.call(ctx, TypeListRooms, nil)
	if err != nil {
		return nil, err
	}
	var list RoomListData
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode room list: %w", err)
	}
	return list.Rooms, nil
}

func (c *Client) CreateRoom(ctx context.Context, username, room string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	_, err := c.call(ctx, TypeCreateRoom, RoomPayload{Name: username, Room: room})
	return err
}

func (c *Client) JoinRoom(ctx context.Context, username, room string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	_, err := c.call(ctx, TypeJoinRoom, RoomPayload{Name: username, Room: room})
	return err
}

func (c *Client) History(ctx context.Context, room string) ([]chat.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	data, err := c.call(ctx, TypeHistory, HistoryPayload{Room: room})
	if err != nil {
		return nil, err
	}
	var hist HistoryData
	if err := json.Unmarshal(data, &hist); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return hist.Messages, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	data, err := c.call(ctx, TypeListUsers, nil)
	if err != nil {
		return nil, err
	}
	var list UserListData
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode user list: %w", err)
	}
	return list.Users, nil
}

func (c *Client) SendMessage(username, room, body string) error {
	return c.cast(TypeSendMessage, SendPayload{Name: username, Room: room, Body: body})
}

func (c *Client) Deregister(username string) error {
	return c.cast(TypeDeregister, DeregisterPayload{Name: username})
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	_, err := c.call(ctx, TypePing, nil)
	return err
}

func (c *Client) Events() <-chan chat.Event {
	return c.events
}

func (c *Client) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}

// call sends a correlated request and waits for its reply, the context
// deadline, or loss of the link, whichever comes first.
func (c *Client) call(ctx context.Context, msgType string, payload interface{}) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, chat.ErrLinkDown
	default:
	}

	id := ulid.Make().String()
	replyCh := make(chan ReplyPayload, 1)
	c.mu.Lock()
	c.pending[id] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	env, err := NewEnvelope(id, msgType, payload)
	if err != nil {
		return nil, err
	}
	if err := c.write(env); err != nil {
		return nil, err
	}
	c.log.Debug("call sent", zap.String("type", msgType), zap.String("id", id))

	select {
	case reply := <-replyCh:
		if !reply.OK {
			return nil, replyError(reply)
		}
		return reply.Data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", msgType, ctx.Err())
	case <-c.done:
		return nil, chat.ErrLinkDown
	}
}

// cast sends without a correlation ID and never waits.
func (c *Client) cast(msgType string, payload interface{}) error {
	env, err := NewEnvelope("", msgType, payload)
	if err != nil {
		return err
	}
	if err := c.write(env); err != nil {
		return err
	}
	c.log.Debug("cast sent", zap.String("type", msgType))
	return nil
}

func (c *Client) write(env *Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Type, chat.ErrLinkDown)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if !c.closed.Load() {
				c.log.Debug("link lost", zap.Error(err))
				c.push(chat.NewLinkDownEvent())
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	switch env.Type {
	case TypeReply:
		var reply ReplyPayload
		if err := json.Unmarshal(env.Payload, &reply); err != nil {
			c.log.Warn("bad reply payload", zap.String("id", env.ID), zap.Error(err))
			return
		}
		c.mu.Lock()
		replyCh, ok := c.pending[env.ID]
		c.mu.Unlock()
		if !ok {
			c.log.Debug("reply for unknown call", zap.String("id", env.ID))
			return
		}
		replyCh <- reply
	case TypeEventMessage:
		var msg chat.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			c.log.Warn("bad message event", zap.Error(err))
			return
		}
		c.push(chat.NewMessageEvent(msg))
	case TypeEventNotice:
		var notice NoticePayload
		if err := json.Unmarshal(env.Payload, &notice); err != nil {
			c.log.Warn("bad notice event", zap.Error(err))
			return
		}
		c.push(chat.NewNoticeEvent(notice.Body))
	case TypeEventKick:
		var kick KickPayload
		if err := json.Unmarshal(env.Payload, &kick); err != nil {
			c.log.Warn("bad kick event", zap.Error(err))
			return
		}
		c.push(chat.NewForcedDisconnectEvent(kick.Reason))
	default:
		// Unknown coordinator message types are ignored.
		c.log.Debug("ignoring event", zap.String("type", env.Type))
	}
}

func (c *Client) push(ev chat.Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping", zap.String("type", ev.Type.String()))
	}
}

func replyError(reply ReplyPayload) error {
	switch reply.Code {
	case CodeRoomExists:
		return chat.ErrRoomExists
	}
	if reply.Message != "" {
		return errors.New(reply.Message)
	}
	return fmt.Errorf("coordinator rejected request (%s)", reply.Code)
}
