package session

import (
	"fmt"
	"io"
)

const (
	ansiSaveCursor    = "\x1b[s"
	ansiRestoreCursor = "\x1b[u"
	ansiEraseLine     = "\r\x1b[2K"
)

type opKind int

const (
	opPrint opKind = iota
	opDeliver
	opPrompt
	opFlush
)

type writeOp struct {
	kind opKind
	text string
	ack  chan struct{}
}

// Writer serializes all terminal output through a single goroutine. The
// read loop and the room listener both produce output; funneling every
// write through one drain removes the possibility of two concurrent
// writers fighting over the cursor.
type Writer struct {
	ops  chan writeOp
	done chan struct{}
	out  io.Writer
}

func NewWriter(out io.Writer) *Writer {
	w := &Writer{
		ops:  make(chan writeOp, 64),
		done: make(chan struct{}),
		out:  out,
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	prompt := ""
	for op := range w.ops {
		switch op.kind {
		case opPrint:
			fmt.Fprint(w.out, op.text)
		case opDeliver:
			if prompt == "" {
				fmt.Fprint(w.out, op.text+"\n")
				continue
			}
			// Save the in-progress input position, replace the input
			// line with the delivery, then bring the prompt back.
			fmt.Fprint(w.out, ansiSaveCursor+ansiEraseLine+op.text+"\n"+ansiRestoreCursor+ansiEraseLine+prompt)
		case opPrompt:
			prompt = op.text
			if prompt != "" {
				fmt.Fprint(w.out, prompt)
			}
		case opFlush:
			close(op.ack)
		}
	}
}

// Print writes text as-is.
func (w *Writer) Print(text string) {
	w.ops <- writeOp{kind: opPrint, text: text}
}

// Println writes one full line.
func (w *Writer) Println(text string) {
	w.ops <- writeOp{kind: opPrint, text: text + "\n"}
}

// Deliver interleaves an asynchronous line over the prompt without
// destroying the input the user is in the middle of typing.
func (w *Writer) Deliver(line string) {
	w.ops <- writeOp{kind: opDeliver, text: line}
}

// SetPrompt records the active prompt and prints it. An empty prompt
// disables delivery interleaving.
func (w *Writer) SetPrompt(prompt string) {
	w.ops <- writeOp{kind: opPrompt, text: prompt}
}

// Flush blocks until everything queued before the call has been written.
func (w *Writer) Flush() {
	ack := make(chan struct{})
	w.ops <- writeOp{kind: opFlush, ack: ack}
	<-ack
}

// Close drains queued output and stops the drain goroutine.
func (w *Writer) Close() {
	close(w.ops)
	<-w.done
}
