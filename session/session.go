package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"go.uber.org/zap"

	"github.com/ponyo877/salachat/chat"
	"github.com/ponyo877/salachat/coordinator"
)

const (
	menuPrompt       = "❯❯❯ "
	noMessagesNotice = "(no hay mensajes)"
)

// Transcript is the optional local cache of rendered room traffic.
type Transcript interface {
	Append(chat.Message) error
}

// Config wires a Session together.
type Config struct {
	Username    string
	Coordinator coordinator.Coordinator
	Reconnector *Reconnector
	Input       io.Reader
	Output      io.Writer
	Transcript  Transcript
	Logger      *zap.Logger

	// Terminate handles a coordinator eviction. Defaults to exiting the
	// process with a failure status.
	Terminate func(reason string)
}

// Session is the controlling state machine: room menu, active room,
// reconnection hand-off. It owns the single live listener and the
// terminal writer.
type Session struct {
	username  string
	coord     coordinator.Coordinator
	recon     *Reconnector
	term      *LineReader
	out       *Writer
	rend      *Renderer
	store     Transcript
	log       *zap.Logger
	terminate func(reason string)

	currentRoom string
	listener    *listener
	signals     chan Signal
}

func New(cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	terminate := cfg.Terminate
	if terminate == nil {
		terminate = func(string) { os.Exit(1) }
	}
	return &Session{
		username:  cfg.Username,
		coord:     cfg.Coordinator,
		recon:     cfg.Reconnector,
		term:      NewLineReader(cfg.Input),
		out:       NewWriter(cfg.Output),
		rend:      NewRenderer(cfg.Username),
		store:     cfg.Transcript,
		log:       log,
		terminate: terminate,
		signals:   make(chan Signal, 1),
	}
}

// Run drives the session until the user exits or a fatal condition ends
// it. A nil return is a user-initiated exit.
func (s *Session) Run(ctx context.Context) error {
	defer s.out.Close()

	state := chat.StateRoomMenu
	for {
		s.log.Debug("entering state", zap.Stringer("state", state))
		var err error
		switch state {
		case chat.StateRoomMenu:
			state, err = s.roomMenu(ctx)
		case chat.StateActiveRoom:
			state, err = s.activeRoom(ctx)
		case chat.StateReconnecting:
			state, err = s.reconnect(ctx)
		}
		if state == chat.StateTerminated {
			s.log.Debug("session terminated", zap.Error(err))
			return err
		}
	}
}

// roomMenu fetches the room list and dispatches on the selected index.
// The two indices after the rooms are "create" and "exit". Invalid input
// re-displays the menu.
func (s *Session) roomMenu(ctx context.Context) (chat.State, error) {
	for {
		rooms, err := s.coord.ListRooms(ctx)
		if err != nil {
			s.log.Warn("room list failed", zap.Error(err))
			if isLinkError(err) {
				s.out.Println(s.rend.Error("no se pudo obtener la lista de salas"))
				return chat.StateReconnecting, nil
			}
			// A coordinator-side rejection is not a link failure; stay in
			// the menu instead of burning reconnection attempts.
			s.out.Println(s.rend.Error("no se pudo obtener la lista de salas: " + err.Error()))
			s.out.Print("pulsa enter para reintentar: ")
			if line, ok := <-s.term.Lines(); !ok || line.Err != nil {
				return s.quit()
			}
			continue
		}

		var menu strings.Builder
		menu.WriteString("Salas disponibles:\n")
		for i, room := range rooms {
			fmt.Fprintf(&menu, "  %d. %s\n", i+1, room)
		}
		fmt.Fprintf(&menu, "  %d. crear nueva sala\n", len(rooms)+1)
		fmt.Fprintf(&menu, "  %d. salir\n", len(rooms)+2)
		s.out.Print(menu.String())
		s.out.SetPrompt(menuPrompt)

		line, ok := <-s.term.Lines()
		s.out.SetPrompt("")
		if !ok || line.Err != nil {
			return s.quit()
		}
		choice, err := strconv.Atoi(strings.TrimSpace(line.Text))
		if err != nil || choice < 1 || choice > len(rooms)+2 {
			s.out.Println(s.rend.Error("opción inválida"))
			continue
		}
		switch {
		case choice <= len(rooms):
			return s.joinRoom(ctx, rooms[choice-1])
		case choice == len(rooms)+1:
			return s.createRoom(ctx)
		default:
			return s.quit()
		}
	}
}

func (s *Session) createRoom(ctx context.Context) (chat.State, error) {
	s.out.Print("nombre de la nueva sala: ")
	line, ok := <-s.term.Lines()
	if !ok || line.Err != nil {
		return s.quit()
	}
	// Room names are taken exactly as typed.
	name := line.Text
	if name == "" {
		s.out.Println(s.rend.Error("el nombre no puede estar vacío"))
		return chat.StateRoomMenu, nil
	}
	if err := s.coord.CreateRoom(ctx, s.username, name); err != nil {
		if errors.Is(err, chat.ErrRoomExists) {
			s.out.Println(s.rend.Error("la sala ya existe: " + name))
			return chat.StateRoomMenu, nil
		}
		if isLinkError(err) {
			return chat.StateReconnecting, nil
		}
		s.out.Println(s.rend.Error("no se pudo crear la sala: " + err.Error()))
		return chat.StateRoomMenu, nil
	}
	s.currentRoom = name
	return chat.StateActiveRoom, nil
}

func (s *Session) joinRoom(ctx context.Context, room string) (chat.State, error) {
	if err := s.coord.JoinRoom(ctx, s.username, room); err != nil {
		if isLinkError(err) {
			return chat.StateReconnecting, nil
		}
		s.out.Println(s.rend.Error("no se pudo entrar a la sala: " + err.Error()))
		return chat.StateRoomMenu, nil
	}
	s.currentRoom = room
	return chat.StateActiveRoom, nil
}

// activeRoom replays history, starts the room listener and runs the
// interactive read loop until the user leaves, exits, or the link drops.
func (s *Session) activeRoom(ctx context.Context) (chat.State, error) {
	room := s.currentRoom
	s.out.Println(s.rend.Info("— " + room + " —"))
	if err := s.replayHistory(ctx, room, 0); err != nil {
		s.log.Warn("history fetch failed", zap.String("room", room), zap.Error(err))
		s.out.Println(s.rend.Error("no se pudo obtener el historial"))
		if isLinkError(err) {
			return chat.StateReconnecting, nil
		}
		s.currentRoom = ""
		return chat.StateRoomMenu, nil
	}

	s.startListener(room)
	prompt := s.rend.Prompt(room)
	s.out.SetPrompt(prompt)

	for {
		select {
		case <-s.signals:
			s.stopListener()
			s.out.SetPrompt("")
			return chat.StateReconnecting, nil
		case line, ok := <-s.term.Lines():
			if !ok || line.Err != nil {
				// End of input behaves like /salir.
				s.stopListener()
				s.out.SetPrompt("")
				return s.quit()
			}
			next, done := s.dispatch(ctx, room, line.Text)
			if done {
				return next, nil
			}
			s.out.SetPrompt(prompt)
		}
	}
}

// dispatch handles one read-loop line. done reports a state transition;
// otherwise the loop reprints the prompt and keeps reading.
func (s *Session) dispatch(ctx context.Context, room, line string) (chat.State, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return 0, false
	}
	if !strings.HasPrefix(trimmed, "/") {
		if err := s.coord.SendMessage(s.username, room, line); err != nil {
			s.log.Warn("send failed", zap.Error(err))
			if isLinkError(err) {
				s.stopListener()
				s.out.SetPrompt("")
				return chat.StateReconnecting, true
			}
			s.out.Println(s.rend.Error("no se pudo enviar el mensaje"))
		}
		return 0, false
	}

	fields, err := shellwords.Parse(trimmed)
	if err != nil || len(fields) == 0 {
		s.out.Println(s.rend.Error("comando inválido"))
		return 0, false
	}
	switch fields[0] {
	case "/usuarios":
		users, err := s.coord.ListUsers(ctx)
		if err != nil {
			if isLinkError(err) {
				s.stopListener()
				s.out.SetPrompt("")
				return chat.StateReconnecting, true
			}
			s.out.Println(s.rend.Error("no se pudo obtener la lista de usuarios"))
			return 0, false
		}
		s.out.Println(s.rend.Notice("usuarios conectados: " + strings.Join(users, ", ")))
	case "/historial":
		limit := 0
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				limit = n
			}
		}
		if err := s.replayHistory(ctx, room, limit); err != nil {
			if isLinkError(err) {
				s.stopListener()
				s.out.SetPrompt("")
				return chat.StateReconnecting, true
			}
			s.out.Println(s.rend.Error("no se pudo obtener el historial"))
		}
	case "/ayuda":
		s.out.Println(s.rend.Help())
	case "/volver":
		s.stopListener()
		s.out.SetPrompt("")
		s.currentRoom = ""
		return chat.StateRoomMenu, true
	case "/salir":
		s.stopListener()
		s.out.SetPrompt("")
		next, _ := s.quit()
		return next, true
	default:
		s.out.Println(s.rend.Error("comando desconocido, usa /ayuda"))
	}
	return 0, false
}

func (s *Session) replayHistory(ctx context.Context, room string, limit int) error {
	msgs, err := s.coord.History(ctx, room)
	if err != nil {
		return err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if len(msgs) == 0 {
		s.out.Println(s.rend.Notice(noMessagesNotice))
		return nil
	}
	for _, m := range msgs {
		s.out.Println(s.rend.Message(m))
	}
	return nil
}

// reconnect hands control to the reconnection controller and, on success,
// rejoins the room that was active before the disruption.
func (s *Session) reconnect(ctx context.Context) (chat.State, error) {
	s.stopListener()
	s.out.Println(s.rend.Error("se perdió la conexión con el coordinador"))
	if s.recon == nil {
		return chat.StateTerminated, chat.ErrLinkDown
	}

	coord, err := s.recon.Run(ctx, s.username, func(msg string) {
		s.out.Println(s.rend.Info(msg))
	})
	if err != nil {
		s.out.Println(s.rend.Error("no se pudo restablecer la conexión, cerrando"))
		return chat.StateTerminated, err
	}

	old := s.coord
	s.coord = coord
	old.Close()
	s.out.Println(s.rend.Info("conexión restablecida"))

	if s.currentRoom != "" {
		if err := s.coord.JoinRoom(ctx, s.username, s.currentRoom); err != nil {
			s.out.Println(s.rend.Error("no se pudo volver a la sala " + s.currentRoom))
			s.currentRoom = ""
			return chat.StateRoomMenu, nil
		}
		return chat.StateActiveRoom, nil
	}
	return chat.StateRoomMenu, nil
}

func (s *Session) quit() (chat.State, error) {
	if err := s.coord.Deregister(s.username); err != nil {
		s.log.Warn("deregister failed", zap.Error(err))
	}
	s.out.Println(s.rend.Info("¡hasta pronto!"))
	return chat.StateTerminated, nil
}

func (s *Session) startListener(room string) {
	// Drop any signal left over from a previous membership.
	select {
	case <-s.signals:
	default:
	}
	var record func(chat.Message)
	if s.store != nil {
		record = func(m chat.Message) {
			if err := s.store.Append(m); err != nil {
				s.log.Warn("transcript append failed", zap.Error(err))
			}
		}
	}
	l := &listener{
		room:      room,
		events:    s.coord.Events(),
		out:       s.out,
		rend:      s.rend,
		signals:   s.signals,
		terminate: s.terminate,
		record:    record,
		log:       s.log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go l.run()
	s.listener = l
}

func (s *Session) stopListener() {
	if s.listener == nil {
		return
	}
	s.listener.halt()
	s.listener = nil
}

func isLinkError(err error) bool {
	return errors.Is(err, chat.ErrLinkDown) || errors.Is(err, context.DeadlineExceeded)
}
