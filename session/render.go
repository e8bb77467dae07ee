package session

import (
	"fmt"

	"github.com/ponyo877/salachat/chat"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorCyan   = "\x1b[36m"
)

const selfMarker = " (tú)"

// Renderer formats chat traffic for the terminal. History replay and live
// delivery both go through it, so replayed and live lines look the same.
type Renderer struct {
	username string
}

func NewRenderer(username string) *Renderer {
	return &Renderer{username: username}
}

func (r *Renderer) Message(m chat.Message) string {
	ts := m.Timestamp.Format("15:04:05")
	if m.Author == r.username {
		return fmt.Sprintf("[%s] %s%s%s%s: %s", ts, colorGreen, m.Author, selfMarker, colorReset, m.Body)
	}
	return fmt.Sprintf("[%s] %s%s%s: %s", ts, colorCyan, m.Author, colorReset, m.Body)
}

func (r *Renderer) Notice(body string) string {
	return colorYellow + "[sistema]" + colorReset + " " + body
}

func (r *Renderer) Error(text string) string {
	return colorRed + text + colorReset
}

func (r *Renderer) Info(text string) string {
	return colorGreen + text + colorReset
}

func (r *Renderer) Prompt(room string) string {
	return "#" + room + " ❯❯ "
}

func (r *Renderer) Help() string {
	return `Comandos disponibles:
  /usuarios       lista los usuarios conectados
  /historial [n]  vuelve a mostrar el historial de la sala
  /ayuda          muestra esta ayuda
  /volver         vuelve al menú de salas
  /salir          cierra la sesión
Cualquier otra línea se envía como mensaje a la sala.
Las líneas que comienzan con "/" están reservadas para comandos y no se envían.`
}
