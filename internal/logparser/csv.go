// internal/logparser/csv.go
package logparser

import (
	"fmt"
	"strings"

	"github.com/signalnine/logsentry/internal/protocol"
)

const (
	fieldSeparator = ","

	fieldPath = "path"
	fieldBody = "body"
)

// RequiredFields are the header columns every upload must carry
var RequiredFields = []string{fieldPath, fieldBody}

// FormatError reports an upload that cannot be turned into log entries
type FormatError struct {
	Msg     string
	Missing []string
}

func (e *FormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s", e.Msg, strings.Join(e.Missing, ", "))
	}
	return e.Msg
}

// Parse turns comma-separated text into log entries.
// The first non-blank line is the header; field names are case-insensitive.
// Short rows are padded with empty values.
func Parse(text string) ([]protocol.LogEntry, error) {
	lines := nonBlankLines(text)
	if len(lines) < 2 {
		return nil, &FormatError{Msg: "missing header or data"}
	}

	header := splitFields(lines[0])
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	index := make(map[string]int, len(RequiredFields))
	var missing []string
	for _, name := range RequiredFields {
		pos := indexOf(header, name)
		if pos < 0 {
			missing = append(missing, name)
			continue
		}
		index[name] = pos
	}
	if len(missing) > 0 {
		return nil, &FormatError{Msg: "missing required fields", Missing: missing}
	}

	entries := make([]protocol.LogEntry, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := splitFields(line)
		entries = append(entries, protocol.LogEntry{
			Path: valueAt(values, index[fieldPath]),
			Body: valueAt(values, index[fieldBody]),
		})
	}

	if len(entries) == 0 {
		return nil, &FormatError{Msg: "no entries"}
	}
	return entries, nil
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func splitFields(line string) []string {
	return strings.Split(line, fieldSeparator)
}

func indexOf(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}

func valueAt(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}
