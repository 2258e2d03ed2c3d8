// Package history records the command text sent to the engine, one
// statement per line, so a session can be replayed from the file.
package history

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Log appends commands to a writer. A nil *Log discards everything.
type Log struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	prefix string
}

// New returns a log writing to w. Every line is preceded by prefix.
func New(w io.Writer, prefix string) *Log {
	l := &Log{w: bufio.NewWriter(w), prefix: prefix}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// Open creates or truncates the file at path and logs into it.
func Open(path string) (*Log, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open command log: %w", err)
	}
	return New(f, ""), nil
}

// Record writes text and flushes. Text that does not already end in a
// statement terminator gets one.
func (l *Log) Record(text string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	text = strings.TrimRight(text, " \t\r\n")
	if text == "" {
		return nil
	}
	if !strings.HasSuffix(text, ";") {
		text += ";"
	}
	if _, err := l.w.WriteString(l.prefix + text + "\n"); err != nil {
		return err
	}
	return l.w.Flush()
}

// Close flushes and closes the underlying writer if it is closable.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Flush(); err != nil {
		return err
	}
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
