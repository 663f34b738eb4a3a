package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/connector"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/sovd"
)

func TestPoolDrainsQueueAfterWake(t *testing.T) {
	rec := &recorder{}
	commands := newFakeCommandStore(rec,
		testCommand("cmd-1", sovd.CommandReadDTC),
		testCommand("cmd-2", sovd.CommandClearDTC),
		testCommand("cmd-3", sovd.CommandReadDataByID),
	)
	responses := &fakeResponseStore{rec: rec}
	sink := &fakeEventSink{rec: rec}

	pool := NewPool(Config{Workers: 2, PollInterval: time.Hour},
		commands, responses, &fakeVehicleStore{}, sink, &fakeAuditor{}, &connector.Mock{ChunkDelay: -1})
	pool.Start(context.Background())
	defer pool.Stop()

	pool.Wake()

	require.Eventually(t, func() bool {
		_, ok1 := commands.result("cmd-1")
		_, ok2 := commands.result("cmd-2")
		_, ok3 := commands.result("cmd-3")
		return ok1 && ok2 && ok3
	}, 5*time.Second, 10*time.Millisecond, "all queued commands should reach a terminal state")

	for _, id := range []string{"cmd-1", "cmd-2", "cmd-3"} {
		result, _ := commands.result(id)
		assert.Equal(t, models.StatusCompleted, result.Status, id)
	}
	assert.True(t, pool.Healthy())
}

func TestPoolStopIsIdempotent(t *testing.T) {
	rec := &recorder{}
	pool := NewPool(Config{Workers: 1, PollInterval: time.Hour},
		newFakeCommandStore(rec), &fakeResponseStore{rec: rec}, &fakeVehicleStore{},
		&fakeEventSink{rec: rec}, &fakeAuditor{}, &connector.Mock{ChunkDelay: -1})

	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()
	assert.False(t, pool.Healthy())
	assert.Equal(t, 0, pool.Active())
}

func TestPoolConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout)
	assert.Greater(t, cfg.OrphanAge, cfg.CommandTimeout)
}
