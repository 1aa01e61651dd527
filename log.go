package n2nmaid

import (
	"fmt"
	"time"
)

// Level tags a log record by origin or embedded severity.
type Level uint8

const (
	LevelOut Level = iota + 1
	LevelErr
	LevelWarn
	LevelInfo
)

func (l Level) String() string {
	switch l {
	case LevelOut:
		return "OUT"
	case LevelErr:
		return "ERR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	for c := LevelOut; c <= LevelInfo; c++ {
		if c.String() == string(b) {
			*l = c
			return nil
		}
	}
	return fmt.Errorf("unknown log level %q", b)
}

// LogRecord is one classified line of edge output or a supervisor notice.
// Records are immutable once appended.
type LogRecord struct {
	Time    time.Time `json:"timestamp"`
	Level   Level     `json:"level"`
	Text    string    `json:"text"`
	Session uint64    `json:"session"`
}
