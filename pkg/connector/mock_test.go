package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/sovd"
)

type recordedChunk struct {
	payload models.JSONMap
	seq     int
	final   bool
}

func collect(t *testing.T, m *Mock, job Job) ([]recordedChunk, Result) {
	t.Helper()
	var chunks []recordedChunk
	res := m.Execute(context.Background(), job, func(payload models.JSONMap, seq int, final bool) error {
		chunks = append(chunks, recordedChunk{payload, seq, final})
		return nil
	})
	return chunks, res
}

func TestMock_SequenceAndFinalFlag(t *testing.T) {
	m := &Mock{ChunkDelay: -1}

	for _, name := range []string{sovd.CommandReadDTC, sovd.CommandClearDTC, sovd.CommandReadDataByID} {
		t.Run(name, func(t *testing.T) {
			chunks, res := collect(t, m, Job{
				CommandID:   "cmd-1",
				CommandName: name,
				Params:      models.JSONMap{"ecuAddress": "0x10", "dataId": "0xF190"},
			})

			require.Equal(t, models.StatusCompleted, res.Status)
			require.NotEmpty(t, chunks)
			for i, c := range chunks {
				assert.Equal(t, i+1, c.seq, "sequence numbers start at 1 and increase by 1")
				assert.Equal(t, i == len(chunks)-1, c.final, "only the last chunk is final")
			}
		})
	}
}

func TestMock_ReadDTCPayloads(t *testing.T) {
	m := &Mock{ChunkDelay: -1}
	chunks, res := collect(t, m, Job{
		CommandName: sovd.CommandReadDTC,
		Params:      models.JSONMap{"ecuAddress": "0x10"},
	})

	require.Equal(t, models.StatusCompleted, res.Status)
	require.Len(t, chunks, 3)
	assert.Equal(t, "P0420", chunks[0].payload["dtcCode"])
	assert.Equal(t, "P0171", chunks[1].payload["dtcCode"])
	assert.Equal(t, "complete", chunks[2].payload["status"])
}

func TestMock_SinkErrorAbortsExecution(t *testing.T) {
	m := &Mock{ChunkDelay: -1}
	calls := 0
	res := m.Execute(context.Background(), Job{CommandName: sovd.CommandReadDTC, Params: models.JSONMap{"ecuAddress": "0x10"}},
		func(models.JSONMap, int, bool) error {
			calls++
			return errors.New("sink unavailable")
		})

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, "sink unavailable")
	assert.Equal(t, 1, calls, "no emission after a sink failure")
}

func TestMock_ContextDeadlineStopsEmission(t *testing.T) {
	m := &Mock{ChunkDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	var delivered int
	res := m.Execute(ctx, Job{CommandName: sovd.CommandReadDTC, Params: models.JSONMap{"ecuAddress": "0x10"}},
		func(models.JSONMap, int, bool) error {
			delivered++
			return nil
		})

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, "timeout")
	assert.Less(t, delivered, 3, "emission stops at the deadline")
}
