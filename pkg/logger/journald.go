package logger

import (
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
)

// journalHook forwards entries to the systemd journal so the web UI's
// "journalctl -t kvm-update" view sees the same lines as the log file.
type journalHook struct {
	identifier string
}

var journaldAvailable = journal.Enabled

func newJournalHook() *journalHook {
	return &journalHook{identifier: "kvm-update"}
}

func (h *journalHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *journalHook) Fire(entry *logrus.Entry) error {
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": h.identifier,
	}
	for k, v := range entry.Data {
		vars[journalKey(k)] = stringify(v)
	}
	return journal.Send(entry.Message, journalPriority(entry.Level), vars)
}

func journalPriority(level logrus.Level) journal.Priority {
	switch level {
	case logrus.PanicLevel:
		return journal.PriEmerg
	case logrus.FatalLevel:
		return journal.PriCrit
	case logrus.ErrorLevel:
		return journal.PriErr
	case logrus.WarnLevel:
		return journal.PriWarning
	case logrus.InfoLevel:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalKey converts a logrus field name into a valid journal field name:
// uppercase letters, digits and underscores, not starting with an underscore.
func journalKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(k) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	key := strings.TrimLeft(b.String(), "_")
	if key == "" {
		return "FIELD"
	}
	return key
}

func stringify(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
