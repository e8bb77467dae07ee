package coordinator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ponyo877/salachat/chat"
)

// Envelope is the frame for all websocket traffic with the coordinator.
// Request/response operations carry a correlation ID; fire-and-forget
// operations and server-push events leave it empty.
type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

func NewEnvelope(id, msgType string, payload interface{}) (*Envelope, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		data = b
	}
	return &Envelope{
		ID:        id,
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Client → coordinator request types.
const (
	TypeAuth       = "auth.login"
	TypeListRooms  = "room.list"
	TypeCreateRoom = "room.create"
	TypeJoinRoom   = "room.join"
	TypeHistory    = "room.history"
	TypeListUsers  = "user.list"
	TypePing       = "ping"
)

// Client → coordinator fire-and-forget types.
const (
	TypeSendMessage = "message.send"
	TypeDeregister  = "session.deregister"
)

// Coordinator → client types.
const (
	TypeReply        = "reply"
	TypeEventMessage = "event.message"
	TypeEventNotice  = "event.notice"
	TypeEventKick    = "event.kick"
)

// Error codes carried in failed replies.
const (
	CodeRoomExists   = "ROOM_EXISTS"
	CodeRoomNotFound = "ROOM_NOT_FOUND"
	CodeAuthFailed   = "AUTH_FAILED"
	CodeBadRequest   = "BAD_REQUEST"
)

// Client → coordinator payloads.

type AuthPayload struct {
	Name       string `json:"name"`
	Credential string `json:"credential"`
	Addr       string `json:"addr"`
}

type RoomPayload struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

type HistoryPayload struct {
	Room string `json:"room"`
}

type SendPayload struct {
	Name string `json:"name"`
	Room string `json:"room"`
	Body string `json:"body"`
}

type DeregisterPayload struct {
	Name string `json:"name"`
}

// Coordinator → client payloads.

type ReplyPayload struct {
	OK      bool            `json:"ok"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type RoomListData struct {
	Rooms []string `json:"rooms"`
}

type HistoryData struct {
	Messages []chat.Message `json:"messages"`
}

type UserListData struct {
	Users []string `json:"users"`
}

type AuthData struct {
	SessionID string `json:"sessionId"`
}

type NoticePayload struct {
	Body string `json:"body"`
}

type KickPayload struct {
	Reason string `json:"reason"`
}
