package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

type fakeCommandSource struct {
	cmd *models.Command
	err error
}

func (f *fakeCommandSource) Get(context.Context, string) (*models.Command, error) {
	return f.cmd, f.err
}

type fakeResponseSource struct {
	rows []models.Response
	byID map[string]*models.Response
}

func (f *fakeResponseSource) List(context.Context, string) ([]models.Response, error) {
	return f.rows, nil
}

func (f *fakeResponseSource) Get(_ context.Context, responseID string) (*models.Response, error) {
	return f.byID[responseID], nil
}

// streamFixture serves one gateway over httptest and returns a connected
// client socket.
func streamFixture(t *testing.T, hub *Hub, commands CommandSource, responses ResponseSource) *websocket.Conn {
	t.Helper()
	gw := NewStreamGateway(hub, commands, responses, time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		gw.Serve(r.Context(), conn, "cmd-1")
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func readClose(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	return websocket.CloseStatus(err)
}

func TestStreamTerminalCommandReplaysAndCloses(t *testing.T) {
	done := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	commands := &fakeCommandSource{cmd: &models.Command{
		CommandID:   "cmd-1",
		Status:      models.StatusCompleted,
		CompletedAt: &done,
	}}
	responses := &fakeResponseSource{rows: []models.Response{
		{ResponseID: "r1", CommandID: "cmd-1", SequenceNumber: 1, ResponsePayload: models.JSONMap{"status": "in_progress"}},
		{ResponseID: "r2", CommandID: "cmd-1", SequenceNumber: 2, IsFinal: true, ResponsePayload: models.JSONMap{"status": "complete"}},
	}}

	conn := streamFixture(t, NewHub(&fakeBroker{}), commands, responses)

	first := readEvent(t, conn)
	assert.Equal(t, "response", first["event"])
	assert.Equal(t, float64(1), first["sequence_number"])

	second := readEvent(t, conn)
	assert.Equal(t, float64(2), second["sequence_number"])
	assert.Equal(t, true, second["is_final"])

	status := readEvent(t, conn)
	assert.Equal(t, "status", status["event"])
	assert.Equal(t, "completed", status["status"])
	assert.NotEmpty(t, status["completed_at"])

	assert.Equal(t, websocket.StatusNormalClosure, readClose(t, conn))
}

func TestStreamFailedCommandEmitsErrorEvent(t *testing.T) {
	msg := "vehicle connection lost"
	commands := &fakeCommandSource{cmd: &models.Command{
		CommandID:    "cmd-1",
		Status:       models.StatusFailed,
		ErrorMessage: &msg,
	}}
	conn := streamFixture(t, NewHub(&fakeBroker{}), commands, &fakeResponseSource{})

	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev["event"])
	assert.Equal(t, msg, ev["error_message"])
	assert.Equal(t, websocket.StatusNormalClosure, readClose(t, conn))
}

func TestStreamLiveDeliveryWithDedupe(t *testing.T) {
	hub := NewHub(&fakeBroker{})
	commands := &fakeCommandSource{cmd: &models.Command{CommandID: "cmd-1", Status: models.StatusInProgress}}
	responses := &fakeResponseSource{rows: []models.Response{
		{ResponseID: "r1", CommandID: "cmd-1", SequenceNumber: 1, ResponsePayload: models.JSONMap{"n": float64(1)}},
	}}

	conn := streamFixture(t, hub, commands, responses)

	catchup := readEvent(t, conn)
	assert.Equal(t, float64(1), catchup["sequence_number"])

	// Wait for the live loop to subscribe before broadcasting.
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(Channel("cmd-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	// Duplicate of the catch-up row: must be suppressed.
	dup, _ := json.Marshal(ResponseEvent{Event: EventResponse, ResponseID: "r1", SequenceNumber: 1})
	hub.Broadcast(ctx, Channel("cmd-1"), dup)

	fresh, _ := json.Marshal(ResponseEvent{Event: EventResponse, ResponseID: "r2", SequenceNumber: 2, IsFinal: true})
	hub.Broadcast(ctx, Channel("cmd-1"), fresh)

	ev := readEvent(t, conn)
	assert.Equal(t, float64(2), ev["sequence_number"], "duplicate sequence must have been skipped")

	status, _ := json.Marshal(NewStatusEvent(models.StatusCompleted, nil))
	hub.Broadcast(ctx, Channel("cmd-1"), status)

	terminal := readEvent(t, conn)
	assert.Equal(t, "completed", terminal["status"])
	assert.Equal(t, websocket.StatusNormalClosure, readClose(t, conn))
}

func TestStreamRehydratesTruncatedEvents(t *testing.T) {
	hub := NewHub(&fakeBroker{})
	commands := &fakeCommandSource{cmd: &models.Command{CommandID: "cmd-1", Status: models.StatusInProgress}}
	big := &models.Response{
		ResponseID:      "r1",
		CommandID:       "cmd-1",
		SequenceNumber:  1,
		ResponsePayload: models.JSONMap{"blob": strings.Repeat("x", 9000)},
		ReceivedAt:      time.Now().UTC(),
	}
	responses := &fakeResponseSource{byID: map[string]*models.Response{"r1": big}}

	conn := streamFixture(t, hub, commands, responses)
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(Channel("cmd-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	trunc, _ := json.Marshal(truncateResponseEvent(NewResponseEvent(big)))
	hub.Broadcast(context.Background(), Channel("cmd-1"), trunc)

	ev := readEvent(t, conn)
	payload, ok := ev["response_payload"].(map[string]any)
	require.True(t, ok, "truncated event must be re-read from storage before forwarding")
	assert.Len(t, payload["blob"], 9000)
}
