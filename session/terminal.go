package session

import (
	"bufio"
	"io"
)

// Line is one terminal input line, or the read failure that ended input.
type Line struct {
	Text string
	Err  error
}

// LineReader pumps terminal input into a channel so the state machine can
// wait for input and listener signals at the same time. Reading blocks
// only the pump goroutine, never event delivery.
type LineReader struct {
	lines chan Line
}

func NewLineReader(r io.Reader) *LineReader {
	lr := &LineReader{lines: make(chan Line)}
	go lr.run(r)
	return lr
}

func (lr *LineReader) run(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lr.lines <- Line{Text: scanner.Text()}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	lr.lines <- Line{Err: err}
	close(lr.lines)
}

func (lr *LineReader) Lines() <-chan Line {
	return lr.lines
}
