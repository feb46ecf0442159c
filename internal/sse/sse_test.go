package sse

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvent_MarshalJSON_FlattensDataAlongsideType(t *testing.T) {
	event := Event{Type: "message", Data: map[string]any{"content": "hi"}}
	encoded, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, "message", decoded["type"])
	require.Equal(t, "hi", decoded["content"])
}

func TestEvent_MarshalJSON_EmptyDataOmitsExtraFields(t *testing.T) {
	event := Event{Type: "done"}
	encoded, err := json.Marshal(event)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"done"}`, string(encoded))
}

func TestWriter_SendFramesAsDataLine(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Send(Event{Type: "message", Data: map[string]any{"content": "hi"}}))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "))
	require.True(t, strings.HasSuffix(body, "\n\n"))
	require.Contains(t, body, `"type":"message"`)
}

func TestWriter_KeepaliveWritesCommentLine(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Keepalive())
	require.Contains(t, rec.Body.String(), ": keepalive\n\n")
}

func TestWriter_SetsEventStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := NewWriter(rec)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}
