// Package sse implements the Server-Sent-Events framing used by the
// streamed-turn endpoint (spec.md C6): one JSON object per event from the
// closed {status, reasoning, tool_call, message, done, error} vocabulary,
// plus keepalive comment lines.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Event is one frame written to the client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"-"`
}

// MarshalJSON flattens Data's fields alongside "type" into one JSON object,
// matching spec §6's "data is a single JSON object with a type field".
func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]any{"type": e.Type}
	if e.Data != nil {
		encoded, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		var asMap map[string]any
		if err := json.Unmarshal(encoded, &asMap); err != nil {
			return nil, err
		}
		for k, v := range asMap {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

// Writer frames events onto an http.ResponseWriter, flushing after every
// write so the client sees each event as soon as it's produced.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE response headers and returns a Writer. Returns an
// error if the underlying ResponseWriter doesn't support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one event frame.
func (sw *Writer) Send(event Event) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode sse event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", encoded); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Keepalive writes a comment-only ping line.
func (sw *Writer) Keepalive() error {
	if _, err := fmt.Fprint(sw.w, ": keepalive\n\n"); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
