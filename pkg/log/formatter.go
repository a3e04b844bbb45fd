package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// TextFormatter renders entries as human-readable single lines:
//
//	2006-01-02T15:04:05.000Z INFO  server started component=http port=8080
//
// Fields are appended key=value, sorted for stable output. Values containing
// spaces are quoted.
type TextFormatter struct {
	// DisableTimestamp omits the leading timestamp.
	DisableTimestamp bool
	// TimestampFormat overrides the default RFC3339-millisecond format.
	TimestampFormat string
}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.DisableTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = "2006-01-02T15:04:05.000Z07:00"
		}
		buf.WriteString(entry.Timestamp.Format(layout))
		buf.WriteByte(' ')
	}

	fmt.Fprintf(&buf, "%-5s %s", entry.Level.String(), entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteByte(' ')
			buf.WriteString(k)
			buf.WriteByte('=')
			writeTextValue(&buf, entry.Fields[k])
		}
	}

	if entry.Error != nil {
		buf.WriteString(" error=")
		writeTextValue(&buf, entry.Error.Error())
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeTextValue(buf *bytes.Buffer, v interface{}) {
	s := fmt.Sprintf("%v", v)
	if bytes.ContainsAny([]byte(s), " \t\"") {
		fmt.Fprintf(buf, "%q", s)
		return
	}
	buf.WriteString(s)
}

// JSONFormatter renders entries as single-line JSON objects with ts, level,
// msg, and any structured fields at the top level.
type JSONFormatter struct {
	// TimestampFormat overrides the default RFC3339Nano format.
	TimestampFormat string
}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = time.RFC3339Nano
	}

	obj := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		obj[k] = v
	}
	obj["ts"] = entry.Timestamp.Format(layout)
	obj["level"] = entry.Level.String()
	obj["msg"] = entry.Message
	if entry.Error != nil {
		obj["error"] = entry.Error.Error()
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
