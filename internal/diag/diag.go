package diag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/capsule/internal/tree"
)

// Level orders diagnostics by severity.
type Level int

const (
	LevelLog Level = iota
	LevelLint
	LevelWarning
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelLog:
		return "LOG"
	case LevelLint:
		return "LINT"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel accepts the lower- or upper-case level names.
func ParseLevel(s string) (Level, error) {
	for l := LevelLog; l <= LevelFatal; l++ {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown diagnostic level %q", s)
}

// slogLevel maps a diagnostic level onto the closest slog level.
func (l Level) slogLevel() slog.Level {
	switch {
	case l >= LevelError:
		return slog.LevelError
	case l == LevelWarning:
		return slog.LevelWarn
	case l == LevelLint:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// MessageType is one catalogued diagnostic condition.
// Format is a fmt format string applied to Message.Args.
type MessageType struct {
	Code   string
	Level  Level
	Format string
}

// Message is one entry in the diagnostics log.
type Message struct {
	Type  *MessageType
	Level Level
	Span  tree.Span
	Args  []any
}

// New builds a message at the type's default level.
func New(mt *MessageType, span tree.Span, args ...any) Message {
	return Message{Type: mt, Level: mt.Level, Span: span, Args: args}
}

// Text renders the message body without position or level.
func (m Message) Text() string {
	if len(m.Args) == 0 {
		return m.Type.Format
	}
	return fmt.Sprintf(m.Type.Format, m.Args...)
}

// Error renders the full diagnostic line, e.g.
// "a.css:3: ERROR CSS_UNSAFE_PROPERTY: property content is not allowed".
func (m Message) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", m.Span, m.Level, m.Type.Code, m.Text())
}

// Queue is an append-only, ordered diagnostics log. It is safe for
// concurrent use, though a pipeline run only appends from one goroutine.
type Queue struct {
	mu     sync.Mutex
	msgs   []Message
	logger *slog.Logger
}

// NewQueue creates a queue that mirrors every message to logger.
// A nil logger disables mirroring.
func NewQueue(logger *slog.Logger) *Queue {
	return &Queue{logger: logger}
}

// Add appends a message.
func (q *Queue) Add(m Message) {
	q.mu.Lock()
	q.msgs = append(q.msgs, m)
	q.mu.Unlock()

	if q.logger != nil {
		q.logger.Log(context.Background(), m.Level.slogLevel(), m.Text(),
			"code", m.Type.Code,
			"severity", m.Level.String(),
			"span", m.Span.String(),
		)
	}
}

// Report is shorthand for Add(New(mt, span, args...)).
func (q *Queue) Report(mt *MessageType, span tree.Span, args ...any) {
	q.Add(New(mt, span, args...))
}

// Messages returns a snapshot of the log in insertion order.
func (q *Queue) Messages() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.msgs))
	copy(out, q.msgs)
	return out
}

// Len returns the number of recorded messages. Use it as a mark for Since.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Since returns the messages added after mark.
func (q *Queue) Since(mark int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if mark < 0 {
		mark = 0
	}
	if mark >= len(q.msgs) {
		return nil
	}
	out := make([]Message, len(q.msgs)-mark)
	copy(out, q.msgs[mark:])
	return out
}

// MaxLevel returns the highest recorded level, or LevelLog when empty.
func (q *Queue) MaxLevel() Level {
	q.mu.Lock()
	defer q.mu.Unlock()
	top := LevelLog
	for _, m := range q.msgs {
		if m.Level > top {
			top = m.Level
		}
	}
	return top
}

// HasErrors reports whether any message is at or above LevelError.
func (q *Queue) HasErrors() bool {
	return q.MaxLevel() >= LevelError
}

// Count returns the number of messages at exactly level.
func (q *Queue) Count(level Level) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.msgs {
		if m.Level == level {
			n++
		}
	}
	return n
}

// CountCode returns the number of messages with the given type code.
func (q *Queue) CountCode(code string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.msgs {
		if m.Type.Code == code {
			n++
		}
	}
	return n
}
