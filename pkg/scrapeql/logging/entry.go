package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Entry represents a single log entry
type Entry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Fields    map[string]any
}

// newEntry pairs up key/value arguments. A trailing key without a value is
// logged with the value "(missing)".
func newEntry(now time.Time, level Level, msg string, kv []any) Entry {
	e := Entry{Timestamp: now, Level: level, Message: msg}
	if len(kv) == 0 {
		return e
	}
	e.Fields = make(map[string]any, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 < len(kv) {
			e.Fields[key] = kv[i+1]
		} else {
			e.Fields[key] = "(missing)"
		}
	}
	return e
}

// keys returns field names in sorted order
func (e Entry) keys() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Line renders the entry without a timestamp: "INFO message key=value".
func (e Entry) Line() string {
	var sb strings.Builder
	sb.WriteString(e.Level.String())
	sb.WriteString(" ")
	sb.WriteString(e.Message)
	for _, k := range e.keys() {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(formatValue(e.Fields[k]))
	}
	return sb.String()
}

func writeJSON(w io.Writer, e Entry) {
	record := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		record[k] = v
	}
	record["timestamp"] = e.Timestamp.Format(time.RFC3339)
	record["level"] = strings.ToLower(e.Level.String())
	record["message"] = e.Message

	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s\n", data)
}

func writeText(w io.Writer, e Entry) {
	fmt.Fprintf(w, "%s %s\n", e.Timestamp.Format(time.RFC3339), e.Line())
}

// formatValue quotes values that would otherwise be ambiguous in text logs.
func formatValue(v any) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
