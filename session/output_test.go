package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterDeliverRepaintsPrompt(t *testing.T) {
	buf := &syncBuffer{}
	w := NewWriter(buf)
	w.SetPrompt("#general ❯❯ ")
	w.Deliver("hola")
	w.Close()

	out := buf.String()
	assert.Contains(t, out, ansiSaveCursor)
	assert.Contains(t, out, ansiEraseLine)
	assert.Contains(t, out, "hola\n")
	// The prompt is reprinted after the delivery, not only before it.
	last := strings.LastIndex(out, "#general ❯❯ ")
	assert.Greater(t, last, strings.Index(out, "hola"))
}

func TestWriterDeliverWithoutPromptIsPlain(t *testing.T) {
	buf := &syncBuffer{}
	w := NewWriter(buf)
	w.Deliver("hola")
	w.Close()

	out := buf.String()
	assert.Equal(t, "hola\n", out)
}

func TestWriterPreservesSubmissionOrder(t *testing.T) {
	buf := &syncBuffer{}
	w := NewWriter(buf)
	w.Println("historia 1")
	w.Println("historia 2")
	w.Deliver("vivo 1")
	w.Deliver("vivo 2")
	w.Close()

	out := buf.String()
	order := []string{"historia 1", "historia 2", "vivo 1", "vivo 2"}
	prev := -1
	for _, s := range order {
		idx := strings.Index(out, s)
		require.Greater(t, idx, prev, "out of order: %s", s)
		prev = idx
	}
}

func TestWriterClearedPromptDisablesRepaint(t *testing.T) {
	buf := &syncBuffer{}
	w := NewWriter(buf)
	w.SetPrompt("❯❯❯ ")
	w.SetPrompt("")
	w.Deliver("hola")
	w.Close()

	out := buf.String()
	assert.NotContains(t, out, ansiSaveCursor+ansiEraseLine+"hola")
	assert.True(t, strings.HasSuffix(out, "hola\n"))
}
