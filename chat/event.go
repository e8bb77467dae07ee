package chat

import "time"

type EventType int

const (
	EventMessage EventType = iota
	EventNotice
	EventForcedDisconnect
	EventLinkDown
)

func (t EventType) String() string {
	switch t {
	case EventMessage:
		return "message"
	case EventNotice:
		return "notice"
	case EventForcedDisconnect:
		return "forced-disconnect"
	case EventLinkDown:
		return "link-down"
	default:
		return "unknown"
	}
}

// Event is the tagged variant delivered to a room listener. Exactly one of
// the payload fields is meaningful, selected by Type.
type Event struct {
	Type      EventType
	Message   Message
	Notice    string
	Reason    string
	Timestamp time.Time
}

func NewMessageEvent(msg Message) Event {
	return Event{
		Type:      EventMessage,
		Message:   msg,
		Timestamp: msg.Timestamp,
	}
}

func NewNoticeEvent(body string) Event {
	return Event{
		Type:      EventNotice,
		Notice:    body,
		Timestamp: time.Now(),
	}
}

func NewForcedDisconnectEvent(reason string) Event {
	return Event{
		Type:      EventForcedDisconnect,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

func NewLinkDownEvent() Event {
	return Event{
		Type:      EventLinkDown,
		Timestamp: time.Now(),
	}
}

func (e Event) IsValid() bool {
	switch e.Type {
	case EventMessage:
		return e.Message.IsValid()
	case EventNotice:
		return e.Notice != ""
	case EventForcedDisconnect, EventLinkDown:
		return true
	default:
		return false
	}
}

func (e Event) String() string {
	switch e.Type {
	case EventMessage:
		return e.Type.String() + ": " + e.Message.String()
	case EventNotice:
		return e.Type.String() + ": " + e.Notice
	case EventForcedDisconnect:
		return e.Type.String() + ": " + e.Reason
	default:
		return e.Type.String()
	}
}
