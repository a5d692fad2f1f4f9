package notify

import (
	"github.com/sirupsen/logrus"
)

// Log writes notifications to logrus
type Log struct {
	entry *logrus.Entry
}

// NewLog creates a new logrus-backed sink
func NewLog() *Log {
	return &Log{entry: logrus.WithField("component", "notify")}
}

func (l *Log) Notify(ev Event) {
	entry := l.entry.WithFields(logrus.Fields{
		"kind":      string(ev.Kind),
		"direction": string(ev.Direction),
		"asset":     ev.Asset,
		"final":     ev.Kind.Terminal(),
	})
	if ev.SessionID != 0 {
		entry = entry.WithField("session", ev.SessionID)
	}
	if ev.TxID != "" {
		entry = entry.WithField("txid", ev.TxID)
	}
	if ev.Attempt > 0 {
		entry = entry.WithField("attempt", ev.Attempt)
	}
	if ev.Reason != "" {
		entry = entry.WithField("reason", ev.Reason)
	}

	if ev.Kind.Failure() {
		entry.Warn("trade failed")
		return
	}
	entry.Info("trade " + string(ev.Kind))
}
