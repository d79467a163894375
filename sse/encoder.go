package sse

import (
	"fmt"
	"io"
)

//WriteEvent writes one SSE frame to w: `event: message\n` (always), an
//optional `id: <token>\n` line when eventID is non-empty, `data: <json>\n`,
//then the blank-line terminator (spec.md section 6 "SSE event format").
func WriteEvent(w io.Writer, data []byte, eventID string) error {
	if _, err := io.WriteString(w, "event: message\n"); err != nil {
		return fmt.Errorf("sse: write event field: %w", err)
	}
	if eventID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", eventID); err != nil {
			return fmt.Errorf("sse: write id field: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: write data field: %w", err)
	}
	return nil
}
