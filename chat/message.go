package chat

import "time"

// Message is one chat line as stored and fanned out by the coordinator.
type Message struct {
	Room      string    `json:"room"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"ts"`
}

func NewMessage(room, author, body string, ts time.Time) Message {
	return Message{
		Room:      room,
		Author:    author,
		Body:      body,
		Timestamp: ts,
	}
}

func (m Message) IsValid() bool {
	return m.Room != "" && m.Author != ""
}

func (m Message) String() string {
	return m.Author + "@" + m.Room + ": " + m.Body
}
