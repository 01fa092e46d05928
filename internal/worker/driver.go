// Package worker implements the per-client Worker Driver state
// machine: Idle, Driving, Running, AtBarrier, Terminal. It is a real
// actor over the internal/transport messaging substrate: Run blocks
// reading a transport.Mailbox for StartLoadGenerator/Drive/
// CompleteCurrentTask/ExitRequest and reports JoinPointReached/
// UpdateSamples/BenchmarkFailure/BenchmarkCancelled back to its
// Master's transport.ActorRef, the same send-a-typed-message,
// receive-in-a-loop shape internal/coordinator uses for its own self
// actor.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.lepak.sg/loadbench/internal/executor"
	"go.lepak.sg/loadbench/internal/model"
	"go.lepak.sg/loadbench/internal/sampler"
	"go.lepak.sg/loadbench/internal/schedule"
	"go.lepak.sg/loadbench/internal/transport"
)

type state uint64

const (
	stateIdle state = iota
	stateDriving
	stateRunning
	stateAtBarrier
	stateTerminal
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDriving:
		return "driving"
	case stateRunning:
		return "running"
	case stateAtBarrier:
		return "at_barrier"
	case stateTerminal:
		return "terminal"
	default:
		return "<unknown>"
	}
}

// RunnerFor resolves the external Runner implementation for an
// operation type; ParamsFor resolves its parameter source. Both are
// external collaborators supplied by whatever wires up a concrete
// benchmark.
type RunnerFor func(opType string) executor.Runner
type ParamsFor func(op model.Operation) model.ParamSource

// DefaultWakeupInterval is how often a running task's samples are
// drained and shipped to the coordinator mid-task, matching the
// spec's 5s normal-mode wakeup interval.
const DefaultWakeupInterval = 5 * time.Second

// Driver runs one client's column of the allocation matrix.
type Driver struct {
	ClientID int
	Column   []model.Cell
	Client   any

	RunnerFor RunnerFor
	ParamsFor ParamsFor
	Master    transport.ActorRef // where JoinPointReached/UpdateSamples/BenchmarkFailure/BenchmarkCancelled are sent
	Log       *logrus.Entry

	// WakeupInterval governs how often a running task's sampler is
	// drained and shipped while the task is still executing (as
	// opposed to only at its closing barrier). Zero uses
	// DefaultWakeupInterval.
	WakeupInterval time.Duration

	idx   int
	epoch time.Time

	state    atomic.Uint64
	cancel   atomic.Bool
	complete atomic.Bool

	sampler *sampler.Sampler
	msgs    chan any
}

// New constructs a Driver ready to Run. Column is populated from the
// StartLoadGenerator message Run receives, not at construction time,
// since the column is wire data per spec §6 rather than a local value.
func New(clientID int, client any, runnerFor RunnerFor, paramsFor ParamsFor, master transport.ActorRef, log *logrus.Entry) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Driver{
		ClientID:  clientID,
		Client:    client,
		RunnerFor: runnerFor,
		ParamsFor: paramsFor,
		Master:    master,
		Log:       log,
		sampler:   sampler.New(log.WithField("client_id", clientID)),
	}
}

// State reports the driver's current state, for diagnostics.
func (d *Driver) State() string {
	return state(d.state.Load()).String()
}

// Run is the worker actor's receive loop: it waits for
// StartLoadGenerator on mailbox, drives the column it carries, and
// from then on services Drive/CompleteCurrentTask/ExitRequest off the
// same mailbox until the column runs out or ctx is canceled. A
// background goroutine forwards mailbox.Receive() onto a channel this
// loop (and runTask, while a task is executing) can select on
// alongside ctx.Done() and the sampler wakeup ticker.
func (d *Driver) Run(ctx context.Context, mailbox transport.Mailbox) error {
	d.epoch = time.Now()
	d.state.Store(uint64(stateIdle))
	d.msgs = d.startReceiver(ctx, mailbox)

	if err := d.awaitStart(ctx); err != nil {
		return err
	}

	d.state.Store(uint64(stateDriving))
	if err := d.drive(ctx); err != nil {
		return err
	}

	for d.state.Load() != uint64(stateTerminal) {
		if err := d.awaitControl(ctx); err != nil {
			return err
		}
	}
	return nil
}

// startReceiver forwards mailbox.Receive() onto a channel this actor
// can select on. It does not stop when ctx is done (the underlying
// Mailbox.Receive has no ctx-aware cancellation of its own), the same
// gap internal/coordinator's own mailbox-forwarding goroutine has.
func (d *Driver) startReceiver(ctx context.Context, mailbox transport.Mailbox) chan any {
	msgs := make(chan any)
	go func() {
		for {
			msg, ok := mailbox.Receive()
			if !ok {
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return msgs
}

// awaitStart blocks until StartLoadGenerator arrives, populating
// Column from it; any other message received before start is ignored.
func (d *Driver) awaitStart(ctx context.Context) error {
	for {
		select {
		case msg := <-d.msgs:
			if start, ok := msg.(transport.StartLoadGenerator); ok {
				d.Column = start.Tasks
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// awaitControl services exactly one control message while the driver
// is AtBarrier (or, for ExitRequest, in any other state that happens
// to reach here): Drive resumes driving past the barrier once its
// skew-compensated instant arrives; CompleteCurrentTask and
// ExitRequest just set their flag, except ExitRequest also terminates
// immediately since there is no pending task to let finish first.
func (d *Driver) awaitControl(ctx context.Context) error {
	select {
	case msg := <-d.msgs:
		switch m := msg.(type) {
		case transport.Drive:
			return d.resume(ctx, m.ClientStartMonotonic)
		case transport.CompleteCurrentTask:
			d.complete.Store(true)
			return nil
		case transport.ExitRequest:
			d.cancel.Store(true)
			d.state.Store(uint64(stateTerminal))
			d.Master.Send(transport.BenchmarkCancelled{ClientID: d.ClientID})
			return nil
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resume waits until resumeLocal (already skew-compensated by the
// coordinator) then continues driving past the barrier.
func (d *Driver) resume(ctx context.Context, resumeLocal time.Duration) error {
	target := d.epoch.Add(resumeLocal)
	if wait := time.Until(target); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.state.Store(uint64(stateDriving))
	return d.drive(ctx)
}

// drive advances idx through the column, running tasks and skipping
// Idle cells, until it hits a Barrier (reports and returns) or runs
// off the end of the column (the driver's work is done).
func (d *Driver) drive(ctx context.Context) error {
	for d.idx < len(d.Column) {
		if d.cancel.Load() {
			d.state.Store(uint64(stateTerminal))
			d.Master.Send(transport.BenchmarkCancelled{ClientID: d.ClientID})
			return nil
		}

		cell := d.Column[d.idx]
		switch cell.Kind {
		case model.CellIdle:
			d.idx++

		case model.CellTask:
			if d.complete.Load() {
				d.idx++
				continue
			}
			d.state.Store(uint64(stateRunning))
			if err := d.runTask(ctx, cell.Task); err != nil {
				d.state.Store(uint64(stateTerminal))
				d.Master.Send(transport.BenchmarkFailure{ClientID: d.ClientID, Message: err.Error(), Cause: err})
				return err
			}
			d.idx++

		case model.CellBarrier:
			d.state.Store(uint64(stateAtBarrier))
			samples := d.sampler.Drain()
			if len(samples) > 0 {
				d.Master.Send(transport.UpdateSamples{ClientID: d.ClientID, Samples: samples})
			}
			d.cancel.Store(false)
			d.complete.Store(false)
			d.idx++
			d.Master.Send(transport.JoinPointReached{ClientID: d.ClientID, ClientLocalMonotonic: time.Since(d.epoch), Barrier: cell.Barrier})
			return nil

		default:
			err := fmt.Errorf("worker: unknown cell kind %v at column index %d", cell.Kind, d.idx)
			d.state.Store(uint64(stateTerminal))
			d.Master.Send(transport.BenchmarkFailure{ClientID: d.ClientID, Message: err.Error(), Cause: err})
			return err
		}
	}

	d.state.Store(uint64(stateTerminal))
	return nil
}

// runTask builds the schedule generator and executor for task and
// drives it to completion on a dedicated goroutine, so this select
// loop stays responsive to CompleteCurrentTask/ExitRequest arriving
// mid-task and to the periodic sampler-drain wakeup, without waiting
// for the executor itself.
func (d *Driver) runTask(ctx context.Context, task model.Task) error {
	runner := d.RunnerFor(task.Operation.Type)
	params := d.ParamsFor(task.Operation).Partition(d.ClientID, task.Clients)
	gen := schedule.For(task, params, task.Clients)

	ex := executor.NewExecutor(d.ClientID, task, runner, d.Client, d.sampler, &d.cancel, &d.complete)

	done := make(chan error, 1)
	go func() {
		done <- ex.Run(ctx, gen)
	}()

	interval := d.WakeupInterval
	if interval <= 0 {
		interval = DefaultWakeupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	drainAndShip := func() {
		if samples := d.sampler.Drain(); len(samples) > 0 {
			d.Master.Send(transport.UpdateSamples{ClientID: d.ClientID, Samples: samples})
		}
	}

	for {
		select {
		case err := <-done:
			drainAndShip()
			return err
		case <-ticker.C:
			drainAndShip()
		case msg := <-d.msgs:
			switch msg.(type) {
			case transport.CompleteCurrentTask:
				d.complete.Store(true)
			case transport.ExitRequest:
				d.cancel.Store(true)
			}
		case <-ctx.Done():
			d.cancel.Store(true)
			<-done
			drainAndShip()
			return ctx.Err()
		}
	}
}
