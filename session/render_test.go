package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ponyo877/salachat/chat"
)

func TestRendererMarksSelfExactlyOnce(t *testing.T) {
	r := NewRenderer("ana")
	ts := time.Date(2025, 6, 1, 10, 30, 5, 0, time.UTC)

	self := r.Message(chat.NewMessage("general", "ana", "hola", ts))
	assert.Contains(t, self, "[10:30:05]")
	assert.Equal(t, 1, strings.Count(self, selfMarker))

	peer := r.Message(chat.NewMessage("general", "luis", "buenas", ts))
	assert.Contains(t, peer, "luis")
	assert.NotContains(t, peer, selfMarker)
}

func TestRendererNoticeCarriesSystemTag(t *testing.T) {
	r := NewRenderer("ana")
	out := r.Notice("luis se unió")
	assert.Contains(t, out, "[sistema]")
	assert.Contains(t, out, "luis se unió")
}

func TestRendererHelpListsEveryCommand(t *testing.T) {
	r := NewRenderer("ana")
	help := r.Help()
	for _, cmd := range []string{"/usuarios", "/historial", "/ayuda", "/volver", "/salir"} {
		assert.Contains(t, help, cmd)
	}
}

func TestRendererPromptNamesRoom(t *testing.T) {
	r := NewRenderer("ana")
	assert.Equal(t, "#general ❯❯ ", r.Prompt("general"))
}
