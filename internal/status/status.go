// Package status carries the user-facing findings of configure and execute:
// informational notes, warnings and errors, each pointing at a config path.
package status

import (
	"fmt"

	"github.com/apex/log"

	"tableread/internal/errs"
)

// Severity ranks a Message.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Message is a single finding. Path is a dotted path into the node
// configuration, e.g. "locations[1].path" or "read.limit".
type Message struct {
	Severity Severity `json:"severity"`
	Path     string   `json:"path"`
	Text     string   `json:"text"`
}

func (m Message) Error() string {
	return fmt.Sprintf("%s at %s: %s", m.Severity, m.Path, m.Text)
}

// Infof returns an Info message.
func Infof(path, format string, args ...any) Message {
	return Message{Severity: Info, Path: path, Text: fmt.Sprintf(format, args...)}
}

// Warningf returns a Warning message.
func Warningf(path, format string, args ...any) Message {
	return Message{Severity: Warning, Path: path, Text: fmt.Sprintf(format, args...)}
}

// Errorf returns an Error message.
func Errorf(path, format string, args ...any) Message {
	return Message{Severity: Error, Path: path, Text: fmt.Sprintf(format, args...)}
}

// Messages is an ordered list of findings.
type Messages []Message

// HasError reports whether any message is an Error.
func (ms Messages) HasError() bool {
	for _, m := range ms {
		if m.Severity == Error {
			return true
		}
	}
	return false
}

// Filter returns the messages of severity sev.
func (ms Messages) Filter(sev Severity) Messages {
	var out Messages
	for _, m := range ms {
		if m.Severity == sev {
			out = append(out, m)
		}
	}
	return out
}

// Err returns the first Error as a configuration error, or nil.
func (ms Messages) Err() error {
	for _, m := range ms {
		if m.Severity == Error {
			return errs.Configurationf("%s: %s", m.Path, m.Text)
		}
	}
	return nil
}

// Log writes every message to l at the matching level.
func (ms Messages) Log(l log.Interface) {
	for _, m := range ms {
		e := l.WithField("path", m.Path)
		switch m.Severity {
		case Error:
			e.Error(m.Text)
		case Warning:
			e.Warn(m.Text)
		default:
			e.Info(m.Text)
		}
	}
}
