package events_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/events"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
	"github.com/aman-2709/vehicle-sovd-sub001/test/util"
)

func TestNotifyRoundTrip(t *testing.T) {
	client := util.NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var hub *events.Hub
	listener := events.NewListener(client.DSN(), func(channel string, payload []byte) {
		hub.Broadcast(ctx, channel, payload)
	})
	hub = events.NewHub(listener)
	require.NoError(t, listener.Start(ctx))
	defer listener.Stop(context.Background())

	channel := events.Channel("cmd-roundtrip")
	sub, err := hub.Subscribe(ctx, channel)
	require.NoError(t, err)
	defer hub.Unsubscribe(ctx, sub)

	publisher := events.NewPublisher(client.SQL)
	require.NoError(t, publisher.PublishStatus(ctx, "cmd-roundtrip",
		events.NewStatusEvent(models.StatusInProgress, nil)))

	select {
	case payload := <-sub.Events():
		var ev map[string]any
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, "status", ev["event"])
		assert.Equal(t, "in_progress", ev["status"])
	case <-ctx.Done():
		t.Fatal("notification never arrived")
	}
}

func TestNotifyOversizePayloadIsTruncated(t *testing.T) {
	client := util.NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var hub *events.Hub
	listener := events.NewListener(client.DSN(), func(channel string, payload []byte) {
		hub.Broadcast(ctx, channel, payload)
	})
	hub = events.NewHub(listener)
	require.NoError(t, listener.Start(ctx))
	defer listener.Stop(context.Background())

	sub, err := hub.Subscribe(ctx, events.Channel("cmd-big"))
	require.NoError(t, err)
	defer hub.Unsubscribe(ctx, sub)

	publisher := events.NewPublisher(client.SQL)
	big := events.ResponseEvent{
		Event:           "response",
		ResponseID:      "resp-big",
		ResponsePayload: models.JSONMap{"blob": strings.Repeat("x", 20000)},
		SequenceNumber:  1,
		ReceivedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	require.NoError(t, publisher.PublishResponse(ctx, "cmd-big", big))

	select {
	case payload := <-sub.Events():
		var ev events.ResponseEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.True(t, ev.Truncated, "oversize payload must arrive as a truncation envelope")
		assert.Nil(t, ev.ResponsePayload)
		assert.Equal(t, "resp-big", ev.ResponseID)
	case <-ctx.Done():
		t.Fatal("notification never arrived")
	}
}
