package updatelog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Entry is one line of the JSON formatted updater log.
type Entry struct {
	Timestamp string
	Level     string
	Module    string
	Caller    string
	Message   string
	Fields    map[string]string
}

// reserved keys written by the logger itself
var reserved = map[string]bool{
	"timestamp": true,
	"level":     true,
	"message":   true,
	"module":    true,
	"file":      true,
	"func":      true,
}

// ParseEntry decodes a JSON log line. ok is false for text-format lines and
// lines missing level, message or timestamp.
func ParseEntry(line string) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}

	e := Entry{Fields: make(map[string]string)}
	e.Level, _ = raw["level"].(string)
	e.Message, _ = raw["message"].(string)
	e.Timestamp, _ = raw["timestamp"].(string)
	e.Module, _ = raw["module"].(string)
	e.Caller, _ = raw["file"].(string)
	if e.Level == "" || e.Message == "" || e.Timestamp == "" {
		return Entry{}, false
	}

	for k, v := range raw {
		if reserved[k] {
			continue
		}
		if s, ok := v.(string); ok {
			e.Fields[k] = s
		} else {
			e.Fields[k] = fmt.Sprintf("%v", v)
		}
	}
	return e, true
}

// String renders the entry on a single line with fields sorted by key.
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-7s", e.Timestamp, strings.ToUpper(e.Level))
	if e.Module != "" {
		fmt.Fprintf(&b, " [%s]", e.Module)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Fields[k])
	}
	return b.String()
}

// Format renders raw log lines for display. JSON lines are pretty printed,
// anything else is passed through. A non-empty runID keeps only lines of
// that update run.
func Format(lines []string, runID string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if runID != "" && !strings.Contains(line, runID) {
			continue
		}
		if e, ok := ParseEntry(line); ok {
			out = append(out, e.String())
			continue
		}
		out = append(out, line)
	}
	return out
}
