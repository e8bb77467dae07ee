package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ponyo877/salachat/chat"
)

// syncBuffer lets the writer goroutine and the test share output safely.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeCoordinator struct {
	mu           sync.Mutex
	rooms        []string
	history      map[string][]chat.Message
	users        []string
	events       chan chat.Event
	creates      []string
	joins        []string
	sent         []chat.Message
	deregistered []string
	createErr    error
	joinErr      error
	listErr      error
	usersErr     error
	closed       bool
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		history: make(map[string][]chat.Message),
		events:  make(chan chat.Event, 16),
	}
}

func (f *fakeCoordinator) ListRooms(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		err := f.listErr
		f.listErr = nil
		return nil, err
	}
	return append([]string(nil), f.rooms...), nil
}

func (f *fakeCoordinator) CreateRoom(_ context.Context, username, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.creates = append(f.creates, username+":"+room)
	f.rooms = append(f.rooms, room)
	return nil
}

func (f *fakeCoordinator) JoinRoom(_ context.Context, username, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joins = append(f.joins, room)
	return nil
}

func (f *fakeCoordinator) History(_ context.Context, room string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.history[room]...), nil
}

func (f *fakeCoordinator) ListUsers(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return append([]string(nil), f.users...), nil
}

func (f *fakeCoordinator) SendMessage(username, room, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chat.NewMessage(room, username, body, time.Now()))
	return nil
}

func (f *fakeCoordinator) Deregister(username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, username)
	return nil
}

func (f *fakeCoordinator) Ping(context.Context) error { return nil }

func (f *fakeCoordinator) Events() <-chan chat.Event { return f.events }

func (f *fakeCoordinator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCoordinator) joined() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joins...)
}

func (f *fakeCoordinator) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	bodies := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		bodies = append(bodies, m.Body)
	}
	return bodies
}

// runSession runs a session to completion over the given input and drains
// the line reader so its pump goroutine finishes.
func runSession(t *testing.T, cfg Config) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	cfg.Output = out
	if cfg.Terminate == nil {
		cfg.Terminate = func(string) {}
	}
	sess := New(cfg)
	err := sess.Run(context.Background())
	for range sess.term.Lines() {
	}
	return out.String(), err
}

func TestMenuListsRoomsWithCreateAndExitSlots(t *testing.T) {
	f := newFakeCoordinator()
	f.rooms = []string{"general", "random"}

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Input:       strings.NewReader("4\n"),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "1. general")
	assert.Contains(t, out, "2. random")
	assert.Contains(t, out, "3. crear nueva sala")
	assert.Contains(t, out, "4. salir")
	assert.Equal(t, []string{"ana"}, f.deregistered)
}

func TestMenuCreateRoomFlow(t *testing.T) {
	f := newFakeCoordinator()
	f.rooms = []string{"general", "random"}

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Input:       strings.NewReader("3\ndev\n/salir\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ana:dev"}, f.creates)
	// A freshly created room has no history.
	assert.Contains(t, out, noMessagesNotice)
	assert.Equal(t, []string{"ana"}, f.deregistered)
}

func TestMenuInvalidInputReprompts(t *testing.T) {
	f := newFakeCoordinator()
	f.rooms = []string{"general"}

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Input:       strings.NewReader("9\nabc\n3\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "opción inválida"))
	assert.Empty(t, f.joined())
}

func TestMenuCoordinatorRejectionStaysInMenu(t *testing.T) {
	f := newFakeCoordinator()
	f.rooms = []string{"general"}
	f.listErr = errors.New("permiso denegado")

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Input:       strings.NewReader("\n3\n"),
	})
	// With no Reconnector configured, a reconnect transition would have
	// ended the session with ErrLinkDown instead of a clean exit.
	require.NoError(t, err)
	assert.Contains(t, out, "permiso denegado")
	assert.Contains(t, out, "1. general")
	assert.Equal(t, []string{"ana"}, f.deregistered)
}

func TestCreateExistingRoomReturnsToMenu(t *testing.T) {
	f := newFakeCoordinator()
	f.rooms = []string{"general"}
	f.createErr = chat.ErrRoomExists

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Input:       strings.NewReader("2\ngeneral\n3\n"),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "la sala ya existe")
	assert.Empty(t, f.joined())
}

func TestHistoryReplayKeepsOrderAndMarksSelf(t *testing.T) {
	f := newFakeCoordinator()
	f.rooms = []string{"general"}
	ts := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	f.history["general"] = []chat.Message{
		chat.NewMessage("general", "luis", "primero", ts),
		chat.NewMessage("general", "ana", "segundo", ts.Add(time.Minute)),
	}

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Input:       strings.NewReader("1\n/salir\n"),
	})
	require.NoError(t, err)
	first := strings.Index(out, "primero")
	second := strings.Index(out, "segundo")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
	selfLine := out[strings.Index(out, "ana"):]
	assert.Contains(t, selfLine, selfMarker)
}

func TestUnknownSlashCommandIsNeverSent(t *testing.T) {
	f := newFakeCoordinator()
	f.rooms = []string{"general"}

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Input:       strings.NewReader("1\n/fuera\nhola a todos\n/salir\n"),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "comando desconocido")
	assert.Equal(t, []string{"hola a todos"}, f.sentBodies())
}

func TestUsuariosCommandRendersUserList(t *testing.T) {
	f := newFakeCoordinator()
	f.rooms = []string{"general"}
	f.users = []string{"ana", "luis"}

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Input:       strings.NewReader("1\n/usuarios\n/salir\n"),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "usuarios conectados: ana, luis")
}

func TestRoomSwitchLeavesNoListenerBehind(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFakeCoordinator()
	f.rooms = []string{"general", "random"}

	_, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Input:       strings.NewReader("1\n/volver\n2\n/salir\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"general", "random"}, f.joined())
}

func TestLinkDownReconnectsAndRejoinsRoom(t *testing.T) {
	f1 := newFakeCoordinator()
	f1.rooms = []string{"general"}
	f2 := newFakeCoordinator()
	f2.rooms = []string{"general"}

	recon := &Reconnector{
		CoordinatorName: "coordinator",
		Resolver:        stubResolver("ws://coordinator"),
		Probe:           func(context.Context, string) error { return nil },
		Sleep:           func(time.Duration) {},
		Connect:         connectTo(f2),
	}

	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("1\n"))
		// Let the session join, then sever the link.
		waitFor(func() bool { return len(f1.joined()) == 1 })
		f1.events <- chat.NewLinkDownEvent()
		// Wait for the rejoin on the fresh link before exiting.
		waitFor(func() bool { return len(f2.joined()) == 1 })
		pw.Write([]byte("/salir\n"))
		pw.Close()
	}()

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f1,
		Reconnector: recon,
		Input:       pr,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"general"}, f1.joined())
	assert.Equal(t, []string{"general"}, f2.joined())
	assert.Contains(t, out, "conexión restablecida")
	assert.True(t, f1.closed)
	assert.Equal(t, []string{"ana"}, f2.deregistered)
}

func TestCallTimeoutTriggersReconnect(t *testing.T) {
	f1 := newFakeCoordinator()
	f1.rooms = []string{"general"}
	f1.usersErr = context.DeadlineExceeded
	f2 := newFakeCoordinator()
	f2.rooms = []string{"general"}

	recon := &Reconnector{
		CoordinatorName: "coordinator",
		Resolver:        stubResolver("ws://coordinator"),
		Probe:           func(context.Context, string) error { return nil },
		Sleep:           func(time.Duration) {},
		Connect:         connectTo(f2),
	}

	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("1\n"))
		waitFor(func() bool { return len(f1.joined()) == 1 })
		// The call deadline expiring is a link-health verdict, same as
		// an explicit link-down event.
		pw.Write([]byte("/usuarios\n"))
		waitFor(func() bool { return len(f2.joined()) == 1 })
		pw.Write([]byte("/salir\n"))
		pw.Close()
	}()

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f1,
		Reconnector: recon,
		Input:       pr,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"general"}, f2.joined())
	assert.Contains(t, out, "conexión restablecida")
	assert.True(t, f1.closed)
}

func TestReconnectExhaustionIsFatal(t *testing.T) {
	f := newFakeCoordinator()
	f.rooms = []string{"general"}

	var probes atomic.Int32
	recon := &Reconnector{
		CoordinatorName: "coordinator",
		Resolver:        stubResolver("ws://coordinator"),
		Probe: func(context.Context, string) error {
			probes.Add(1)
			return context.DeadlineExceeded
		},
		Sleep:   func(time.Duration) {},
		Connect: connectTo(nil),
	}

	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("1\n"))
		waitFor(func() bool { return len(f.joined()) == 1 })
		f.events <- chat.NewLinkDownEvent()
		// Close input only once reconnection is underway, so end of
		// input cannot race the link-down hand-off.
		waitFor(func() bool { return probes.Load() > 0 })
		pw.Close()
	}()

	out, err := runSession(t, Config{
		Username:    "ana",
		Coordinator: f,
		Reconnector: recon,
		Input:       pr,
	})
	require.ErrorIs(t, err, chat.ErrReconnectFailed)
	assert.Contains(t, out, "no se pudo restablecer la conexión")
}

func waitFor(cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
