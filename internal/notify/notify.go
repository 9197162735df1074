// Package notify carries transient user-visible messages from the core to
// whatever front end is displaying them.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Level classifies a notice.
type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notice is a single message shown to the user.
type Notice struct {
	Level   Level
	Message string
	Time    time.Time
}

// Notifier receives notices.
type Notifier interface {
	Notify(level Level, message string)
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(Level, string) {}

// Log keeps the most recent notices in memory and mirrors them to a logger.
type Log struct {
	mu      sync.Mutex
	notices []Notice
	limit   int
	logger  *slog.Logger
	now     func() time.Time
}

// NewLog returns a Log retaining at most limit notices. A nil logger
// disables mirroring.
func NewLog(limit int, logger *slog.Logger) *Log {
	if limit <= 0 {
		limit = 1
	}
	return &Log{limit: limit, logger: logger, now: time.Now}
}

// Notify records a notice.
func (l *Log) Notify(level Level, message string) {
	l.mu.Lock()
	l.notices = append(l.notices, Notice{Level: level, Message: message, Time: l.now()})
	if over := len(l.notices) - l.limit; over > 0 {
		l.notices = append(l.notices[:0], l.notices[over:]...)
	}
	l.mu.Unlock()

	if l.logger == nil {
		return
	}
	switch level {
	case Error:
		l.logger.Error(message)
	case Warning:
		l.logger.Warn(message)
	default:
		l.logger.Info(message)
	}
}

// Latest returns the newest notice, if any.
func (l *Log) Latest() (Notice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.notices) == 0 {
		return Notice{}, false
	}
	return l.notices[len(l.notices)-1], true
}

// Drain returns all retained notices oldest first and clears the log.
func (l *Log) Drain() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.notices
	l.notices = nil
	return out
}

// Count returns the number of retained notices at the given level.
func (l *Log) Count(level Level) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, no := range l.notices {
		if no.Level == level {
			n++
		}
	}
	return n
}
