package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/connector"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/events"
	"github.com/aman-2709/vehicle-sovd-sub001/pkg/services"
)

// Pool runs a fixed set of workers claiming pending commands. Claims go
// through SELECT ... FOR UPDATE SKIP LOCKED in the store, so multiple
// instances can share one queue without double execution.
type Pool struct {
	cfg        Config
	instanceID string

	commands  CommandStore
	responses ResponseStore
	vehicles  VehicleStore
	sink      EventSink
	audit     Auditor
	conn      connector.Connector

	wake    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	active  atomic.Int64
}

func NewPool(cfg Config, commands CommandStore, responses ResponseStore, vehicles VehicleStore, sink EventSink, audit Auditor, conn connector.Connector) *Pool {
	host, _ := os.Hostname()
	return &Pool{
		cfg:        cfg.withDefaults(),
		instanceID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		commands:   commands,
		responses:  responses,
		vehicles:   vehicles,
		sink:       sink,
		audit:      audit,
		conn:       conn,
		wake:       make(chan struct{}, 1),
	}
}

// Start launches the workers and the orphan sweep. Runs until Stop.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.running.Store(true)

	for i := 0; i < p.cfg.Workers; i++ {
		w := &worker{
			id:        i,
			commands:  p.commands,
			responses: p.responses,
			vehicles:  p.vehicles,
			sink:      p.sink,
			audit:     p.audit,
			conn:      p.conn,
			timeout:   p.cfg.CommandTimeout,
		}
		p.wg.Add(1)
		go p.runWorker(ctx, w)
	}

	p.wg.Add(1)
	go p.runOrphanSweep(ctx)

	slog.Info("Worker pool started",
		"instance", p.instanceID,
		"workers", p.cfg.Workers,
		"command_timeout", p.cfg.CommandTimeout)
}

// Wake nudges the pool after a submission so a worker claims it without
// waiting for the next poll tick.
func (p *Pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop cancels the workers and waits for in-flight executions to finish
// their bookkeeping.
func (p *Pool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.cancel()
	p.wg.Wait()
	slog.Info("Worker pool stopped", "instance", p.instanceID)
}

// Healthy reports whether the pool is accepting work.
func (p *Pool) Healthy() bool {
	return p.running.Load()
}

// Active reports the number of commands currently executing.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

func (p *Pool) runWorker(ctx context.Context, w *worker) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx, w)

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-ticker.C:
		}
	}
}

// drain claims and executes commands until the queue is empty.
func (p *Pool) drain(ctx context.Context, w *worker) {
	for ctx.Err() == nil {
		cmd, err := p.commands.ClaimNext(ctx, p.instanceID)
		if err != nil {
			if !errors.Is(err, services.ErrNoPendingCommands) && ctx.Err() == nil {
				slog.Error("Claim failed", "worker", w.id, "error", err)
			}
			return
		}

		// Other idle workers may find more queued work.
		p.Wake()

		p.active.Add(1)
		w.execute(ctx, cmd)
		p.active.Add(-1)
	}
}

// runOrphanSweep fails in-progress commands whose claim outlived OrphanAge,
// covering instances that died mid-execution.
func (p *Pool) runOrphanSweep(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.OrphanScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().Add(-p.cfg.OrphanAge)
		failed, err := p.commands.FailOrphans(ctx, cutoff)
		if err != nil {
			slog.Error("Orphan sweep failed", "error", err)
			continue
		}
		for _, id := range failed {
			slog.Warn("Orphaned command failed", "command_id", id)
			ev := events.ErrorEvent{ErrorMessage: services.OrphanErrorMessage}
			if err := p.sink.PublishError(ctx, id, ev); err != nil {
				slog.Warn("Orphan error publish failed", "command_id", id, "error", err)
			}
		}
	}
}
