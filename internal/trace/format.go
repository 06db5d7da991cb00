package trace

import (
	"encoding/json"
	"fmt"
)

// Format represents the output format for trace events.
type Format uint8

const (
	FormatText   Format = iota // human-readable text
	FormatNDJSON               // newline-delimited JSON
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid trace format: %q (expected: text|ndjson)", s)
	}
}

// FormatEvent formats an event according to the specified format.
func FormatEvent(ev Event, format Format) []byte {
	switch format {
	case FormatNDJSON:
		return formatNDJSON(ev)
	default:
		return formatText(ev)
	}
}

// formatNDJSON formats an event as newline-delimited JSON.
func formatNDJSON(ev Event) []byte {
	type jsonEvent struct {
		Time   string `json:"time"`
		Seq    uint64 `json:"seq"`
		Kind   string `json:"kind"`
		Scope  string `json:"scope"`
		Worker int    `json:"worker"`
		Name   string `json:"name"`
		Detail string `json:"detail,omitempty"`
	}

	j := jsonEvent{
		Time:   ev.Time.Format("2006-01-02T15:04:05.000000Z07:00"),
		Seq:    ev.Seq,
		Kind:   ev.Kind.String(),
		Scope:  ev.Scope.String(),
		Worker: ev.Worker,
		Name:   ev.Name,
		Detail: ev.Detail,
	}

	data, err := json.Marshal(j)
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":%q}`+"\n", err.Error()))
	}
	return append(data, '\n')
}

// formatText formats an event as a human-readable line.
func formatText(ev Event) []byte {
	line := fmt.Sprintf("%s #%d [%s/%s] w%d %s",
		ev.Time.Format("15:04:05.000000"),
		ev.Seq,
		ev.Scope, ev.Kind,
		ev.Worker,
		ev.Name)
	if ev.Detail != "" {
		line += " " + ev.Detail
	}
	return []byte(line + "\n")
}
