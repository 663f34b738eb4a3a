package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/connector"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/events"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/services"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/sovd"
)

// recorder captures the cross-store call order so tests can assert that
// rows are persisted before their events are published.
type recorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *recorder) add(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

type fakeCommandStore struct {
	rec      *recorder
	mu       sync.Mutex
	pending  []*models.Command
	terminal map[string]connector.Result
	stamps   map[string]time.Time
}

func newFakeCommandStore(rec *recorder, pending ...*models.Command) *fakeCommandStore {
	return &fakeCommandStore{
		rec:      rec,
		pending:  pending,
		terminal: make(map[string]connector.Result),
		stamps:   make(map[string]time.Time),
	}
}

func (f *fakeCommandStore) ClaimNext(_ context.Context, _ string) (*models.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, services.ErrNoPendingCommands
	}
	cmd := f.pending[0]
	f.pending = f.pending[1:]
	cmd.Status = models.StatusInProgress
	return cmd, nil
}

func (f *fakeCommandStore) SetTerminal(_ context.Context, commandID string, status models.CommandStatus, errorMessage string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.add("terminal:" + commandID)
	f.terminal[commandID] = connector.Result{Status: status, ErrorMessage: errorMessage}
	at := time.Now().UTC()
	f.stamps[commandID] = at
	return at, nil
}

func (f *fakeCommandStore) Get(_ context.Context, commandID string) (*models.Command, error) {
	return nil, services.ErrNotFound
}

func (f *fakeCommandStore) FailOrphans(context.Context, time.Time) ([]string, error) {
	return nil, nil
}

func (f *fakeCommandStore) result(commandID string) (connector.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.terminal[commandID]
	return r, ok
}

func (f *fakeCommandStore) stamp(commandID string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stamps[commandID]
}

type fakeVehicleStore struct {
	mu      sync.Mutex
	touched []string
}

func (f *fakeVehicleStore) TouchLastSeen(_ context.Context, vehicleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, vehicleID)
	return nil
}

func (f *fakeVehicleStore) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.touched...)
}

type fakeResponseStore struct {
	rec       *recorder
	mu        sync.Mutex
	rows      []models.Response
	insertErr error
}

func (f *fakeResponseStore) Insert(_ context.Context, commandID string, payload models.JSONMap, sequenceNumber int, isFinal bool) (*models.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.rec.add(fmt.Sprintf("insert:%d", sequenceNumber))
	row := models.Response{
		ResponseID:      fmt.Sprintf("resp-%d", sequenceNumber),
		CommandID:       commandID,
		ResponsePayload: payload,
		SequenceNumber:  sequenceNumber,
		IsFinal:         isFinal,
		ReceivedAt:      time.Now().UTC(),
	}
	f.rows = append(f.rows, row)
	return &row, nil
}

func (f *fakeResponseStore) all() []models.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Response(nil), f.rows...)
}

type fakeEventSink struct {
	rec      *recorder
	mu       sync.Mutex
	statuses []events.StatusEvent
	errs     []events.ErrorEvent
}

func (f *fakeEventSink) PublishResponse(_ context.Context, _ string, ev events.ResponseEvent) error {
	f.rec.add(fmt.Sprintf("publish:%d", ev.SequenceNumber))
	return nil
}

func (f *fakeEventSink) PublishStatus(_ context.Context, _ string, ev events.StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, ev)
	return nil
}

func (f *fakeEventSink) PublishError(_ context.Context, _ string, ev events.ErrorEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, ev)
	return nil
}

func (f *fakeEventSink) errors() []events.ErrorEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.ErrorEvent(nil), f.errs...)
}

func (f *fakeEventSink) statusEvents() []events.StatusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.StatusEvent(nil), f.statuses...)
}

type fakeAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAuditor) Log(_ context.Context, _ *string, action, _, _ string, _ models.JSONMap) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

func (f *fakeAuditor) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func testCommand(id, name string) *models.Command {
	return &models.Command{
		CommandID:     id,
		VehicleID:     "veh-1",
		UserID:        "user-1",
		CommandName:   name,
		CommandParams: models.JSONMap{"ecuAddress": "0x10"},
		Status:        models.StatusPending,
		SubmittedAt:   time.Now().UTC(),
	}
}

func newTestWorker(commands CommandStore, responses ResponseStore, vehicles VehicleStore, sink EventSink, audit Auditor, timeout time.Duration) *worker {
	return &worker{
		id:        0,
		commands:  commands,
		responses: responses,
		vehicles:  vehicles,
		sink:      sink,
		audit:     audit,
		conn:      &connector.Mock{ChunkDelay: -1},
		timeout:   timeout,
	}
}

func TestWorkerExecutesReadDTCToCompletion(t *testing.T) {
	rec := &recorder{}
	commands := newFakeCommandStore(rec)
	responses := &fakeResponseStore{rec: rec}
	sink := &fakeEventSink{rec: rec}
	audit := &fakeAuditor{}
	vehicles := &fakeVehicleStore{}
	w := newTestWorker(commands, responses, vehicles, sink, audit, 30*time.Second)

	cmd := testCommand("cmd-1", sovd.CommandReadDTC)
	w.execute(context.Background(), cmd)

	rows := responses.all()
	require.Len(t, rows, 3)
	assert.True(t, rows[2].IsFinal)
	for i, row := range rows {
		assert.Equal(t, i+1, row.SequenceNumber)
	}

	result, ok := commands.result("cmd-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, []string{models.AuditCommandCompleted}, audit.all())
	assert.Equal(t, []string{"veh-1"}, vehicles.all(), "completion marks the vehicle as seen")
}

// The terminal status event must carry the completed_at the store persisted,
// not a fresh clock reading taken after the update.
func TestWorkerTerminalEventMatchesStoredTimestamp(t *testing.T) {
	rec := &recorder{}
	commands := newFakeCommandStore(rec)
	sink := &fakeEventSink{rec: rec}
	w := newTestWorker(commands, &fakeResponseStore{rec: rec}, &fakeVehicleStore{}, sink, &fakeAuditor{}, 30*time.Second)

	w.execute(context.Background(), testCommand("cmd-1", sovd.CommandReadDTC))

	stamped := commands.stamp("cmd-1")
	require.False(t, stamped.IsZero())

	var terminal *events.StatusEvent
	for _, ev := range sink.statusEvents() {
		if ev.Status == string(models.StatusCompleted) {
			ev := ev
			terminal = &ev
		}
	}
	require.NotNil(t, terminal, "completed status event should be published")
	require.NotNil(t, terminal.CompletedAt)
	assert.Equal(t, stamped.Format(time.RFC3339Nano), *terminal.CompletedAt)
}

func TestWorkerPersistsBeforePublishing(t *testing.T) {
	rec := &recorder{}
	commands := newFakeCommandStore(rec)
	responses := &fakeResponseStore{rec: rec}
	sink := &fakeEventSink{rec: rec}
	w := newTestWorker(commands, responses, &fakeVehicleStore{}, sink, &fakeAuditor{}, 30*time.Second)

	w.execute(context.Background(), testCommand("cmd-1", sovd.CommandClearDTC))

	ops := rec.all()
	for i, op := range ops {
		if op == "publish:1" {
			require.Contains(t, ops[:i], "insert:1", "publish must follow the insert of the same chunk")
		}
		if op == "publish:2" {
			require.Contains(t, ops[:i], "insert:2")
		}
	}
	assert.Equal(t, "terminal:cmd-1", ops[len(ops)-1])
}

func TestWorkerTimeoutFailsCommand(t *testing.T) {
	rec := &recorder{}
	commands := newFakeCommandStore(rec)
	sink := &fakeEventSink{rec: rec}
	audit := &fakeAuditor{}
	vehicles := &fakeVehicleStore{}
	w := &worker{
		commands:  commands,
		responses: &fakeResponseStore{rec: rec},
		vehicles:  vehicles,
		sink:      sink,
		audit:     audit,
		conn:      &connector.Mock{ChunkDelay: 200 * time.Millisecond},
		timeout:   50 * time.Millisecond,
	}

	w.execute(context.Background(), testCommand("cmd-1", sovd.CommandReadDTC))

	result, ok := commands.result("cmd-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "timeout")

	errs := sink.errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].ErrorMessage, "timeout")
	assert.Equal(t, []string{models.AuditCommandFailed}, audit.all())
	assert.Empty(t, vehicles.all(), "a failed round trip is no proof of reachability")
}

func TestWorkerInsertFailureFailsCommand(t *testing.T) {
	rec := &recorder{}
	commands := newFakeCommandStore(rec)
	responses := &fakeResponseStore{rec: rec, insertErr: fmt.Errorf("disk full")}
	sink := &fakeEventSink{rec: rec}
	w := newTestWorker(commands, responses, &fakeVehicleStore{}, sink, &fakeAuditor{}, 30*time.Second)

	w.execute(context.Background(), testCommand("cmd-1", sovd.CommandReadDataByID))

	result, ok := commands.result("cmd-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, result.Status)
	require.Len(t, sink.errors(), 1)
}
