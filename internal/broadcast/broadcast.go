// Package broadcast is the event-emission capability injected into engines
// and monitors. Engines never know or care whether anything is listening.
package broadcast

import "github.com/sirupsen/logrus"

// Broadcaster emits a named domain event with an arbitrary JSON-able
// payload. Implementations must not block the caller for long — engines
// call Emit synchronously after a state mutation.
type Broadcaster interface {
	Emit(event string, payload map[string]interface{})
}

// NoOp discards every event. Used by tests and any composition that hasn't
// wired a real sink.
type NoOp struct{}

func (NoOp) Emit(string, map[string]interface{}) {}

// Logger emits every event as a structured logrus entry. This is the
// default production broadcaster: the gateway/UI that would normally
// subscribe to these events is out of scope for this module (spec §1), so
// logging is the only observable sink the core ships with.
type Logger struct {
	log *logrus.Logger
}

// NewLogger wraps a logrus.Logger. A nil logger falls back to
// logrus.StandardLogger().
func NewLogger(log *logrus.Logger) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{log: log}
}

// Emit logs the event at info level with the payload flattened into fields.
func (l *Logger) Emit(event string, payload map[string]interface{}) {
	fields := logrus.Fields{"event": event}
	for k, v := range payload {
		fields[k] = v
	}
	l.log.WithFields(fields).Info("domain event")
}
