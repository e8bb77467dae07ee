package session

import (
	"go.uber.org/zap"

	"github.com/ponyo877/salachat/chat"
)

// Signal is what a listener reports back to the state machine.
type Signal int

const (
	// SignalReconnect means the coordinator link was lost and the
	// reconnection controller must take over.
	SignalReconnect Signal = iota
)

// listener is the background unit consuming coordinator events for one
// room membership. Exactly one is alive per session; the state machine
// stops it cooperatively before leaving a room or exiting.
type listener struct {
	room      string
	events    <-chan chat.Event
	out       *Writer
	rend      *Renderer
	signals   chan<- Signal
	terminate func(reason string)
	record    func(chat.Message)
	log       *zap.Logger

	stop chan struct{}
	done chan struct{}
}

func (l *listener) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case ev, ok := <-l.events:
			if !ok {
				return
			}
			if !l.handle(ev) {
				return
			}
		}
	}
}

func (l *listener) handle(ev chat.Event) bool {
	switch ev.Type {
	case chat.EventMessage:
		if ev.Message.Room != l.room {
			// Stale or cross-room delivery.
			l.log.Debug("discarding message for other room",
				zap.String("bound", l.room), zap.String("got", ev.Message.Room))
			return true
		}
		l.out.Deliver(l.rend.Message(ev.Message))
		if l.record != nil {
			l.record(ev.Message)
		}
	case chat.EventNotice:
		l.out.Deliver(l.rend.Notice(ev.Notice))
	case chat.EventForcedDisconnect:
		l.out.Deliver(l.rend.Error("desconectado por el coordinador: " + ev.Reason))
		// The reason must reach the terminal before the process dies.
		l.out.Flush()
		l.terminate(ev.Reason)
		return false
	case chat.EventLinkDown:
		select {
		case l.signals <- SignalReconnect:
		default:
		}
		return false
	default:
		// Unknown event types from newer coordinators are ignored.
		l.log.Debug("ignoring event", zap.Stringer("type", ev.Type))
	}
	return true
}

// halt asks the listener to exit its receive loop and waits for it.
func (l *listener) halt() {
	close(l.stop)
	<-l.done
}
