package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lepak.sg/loadbench/internal/executor"
	"go.lepak.sg/loadbench/internal/model"
	"go.lepak.sg/loadbench/internal/transport"
	"go.lepak.sg/loadbench/internal/worker"
)

type fakeParamSource struct{}

func (fakeParamSource) Partition(clientIndex, numClients int) model.ParamIterator {
	return fakeParamIterator{}
}

type fakeParamIterator struct{}

func (fakeParamIterator) Params() map[string]any { return map[string]any{} }
func (fakeParamIterator) Size() (int, bool)      { return 1, true }

func okRunner(opType string) executor.Runner {
	return func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
		return executor.RunnerResult{OpsCount: 1, OpsUnit: "ops"}, nil
	}
}

func paramsFor(op model.Operation) model.ParamSource {
	return fakeParamSource{}
}

// newDriverHarness wires a Driver to its own actor mailbox and a
// master mailbox the test reads replies off of, mirroring how
// internal/coordinator itself talks to a worker: everything goes
// through transport.ActorRef.Send rather than a direct method call.
func newDriverHarness(t *testing.T, runnerFor worker.RunnerFor) (workerRef transport.ActorRef, masterMailbox transport.Mailbox, d *worker.Driver) {
	t.Helper()
	sys := transport.NewLocal()

	masterRef, masterBox, err := sys.CreateActor(transport.ActorWorker, transport.HostCapability{}, "master")
	require.NoError(t, err)

	wRef, wBox, err := sys.CreateActor(transport.ActorWorker, transport.HostCapability{}, "worker-0")
	require.NoError(t, err)

	d = worker.New(0, nil, runnerFor, paramsFor, masterRef, nil)

	go func() { _ = d.Run(context.Background(), wBox) }()

	return wRef, masterBox, d
}

func recvJoinPoint(t *testing.T, mailbox transport.Mailbox) transport.JoinPointReached {
	t.Helper()
	msg, ok := mailbox.Receive()
	require.True(t, ok)
	jp, ok := msg.(transport.JoinPointReached)
	require.Truef(t, ok, "expected JoinPointReached, got %T", msg)
	return jp
}

func TestDriver_RunsTaskAndReportsBarrier(t *testing.T) {
	task := model.Task{Operation: model.Operation{Name: "t1", Type: "noop"}, Clients: 1, Iterations: 3}
	column := []model.Cell{
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 0}},
		{Kind: model.CellTask, Task: task},
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 1}},
	}

	workerRef, masterBox, d := newDriverHarness(t, okRunner)
	workerRef.Send(transport.StartLoadGenerator{ClientID: 0, Tasks: column})

	jp := recvJoinPoint(t, masterBox)
	assert.Equal(t, 0, jp.Barrier.ID)
	assert.Equal(t, "at_barrier", d.State())
}

func TestDriver_ResumeContinuesPastBarrier(t *testing.T) {
	task := model.Task{Operation: model.Operation{Name: "t1", Type: "noop"}, Clients: 1, Iterations: 2}
	column := []model.Cell{
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 0}},
		{Kind: model.CellTask, Task: task},
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 1}},
	}

	workerRef, masterBox, d := newDriverHarness(t, okRunner)
	workerRef.Send(transport.StartLoadGenerator{ClientID: 0, Tasks: column})
	recvJoinPoint(t, masterBox)

	workerRef.Send(transport.Drive{ClientStartMonotonic: 0})
	jp := recvJoinPoint(t, masterBox)
	assert.Equal(t, 1, jp.Barrier.ID)

	assert.Eventually(t, func() bool { return d.State() == "terminal" }, time.Second, time.Millisecond)
}

func TestDriver_IdleCellsAreSkipped(t *testing.T) {
	column := []model.Cell{
		{Kind: model.CellIdle},
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 0}},
	}

	workerRef, masterBox, _ := newDriverHarness(t, okRunner)
	workerRef.Send(transport.StartLoadGenerator{ClientID: 0, Tasks: column})

	jp := recvJoinPoint(t, masterBox)
	assert.Equal(t, 0, jp.Barrier.ID)
}

func TestDriver_RunnerErrorReportsBenchmarkFailure(t *testing.T) {
	task := model.Task{Operation: model.Operation{Name: "t1", Type: "broken"}, Clients: 1, Iterations: 1}
	column := []model.Cell{
		{Kind: model.CellTask, Task: task},
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 0}},
	}
	missingRunner := func(opType string) executor.Runner {
		return func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			return executor.RunnerResult{}, &executor.MissingParameterError{Operation: "t1", Param: "index"}
		}
	}

	workerRef, masterBox, d := newDriverHarness(t, missingRunner)
	workerRef.Send(transport.StartLoadGenerator{ClientID: 0, Tasks: column})

	msg, ok := masterBox.Receive()
	require.True(t, ok)
	fail, ok := msg.(transport.BenchmarkFailure)
	require.Truef(t, ok, "expected BenchmarkFailure, got %T", msg)
	assert.Error(t, fail.Cause)

	assert.Eventually(t, func() bool { return d.State() == "terminal" }, time.Second, time.Millisecond)
}

func TestDriver_CompleteCurrentTaskSkipsSiblingTasks(t *testing.T) {
	longTask := model.Task{Operation: model.Operation{Name: "long", Type: "noop"}, Clients: 1, Iterations: 1}
	column := []model.Cell{
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 0}},
		{Kind: model.CellTask, Task: longTask},
		{Kind: model.CellTask, Task: longTask},
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 1}},
	}
	calls := 0
	countingRunner := func(opType string) executor.Runner {
		return func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			calls++
			return executor.RunnerResult{OpsCount: 1, OpsUnit: "ops"}, nil
		}
	}

	workerRef, masterBox, _ := newDriverHarness(t, countingRunner)
	workerRef.Send(transport.StartLoadGenerator{ClientID: 0, Tasks: column})
	recvJoinPoint(t, masterBox)

	// Stop both sibling tasks before releasing the worker past the
	// barrier, the same as a coordinator broadcasting
	// CompleteCurrentTask once every completing client has reported.
	workerRef.Send(transport.CompleteCurrentTask{})
	workerRef.Send(transport.Drive{ClientStartMonotonic: 0})

	jp := recvJoinPoint(t, masterBox)
	assert.Equal(t, 1, jp.Barrier.ID)
	assert.Equal(t, 0, calls)
}

func TestDriver_ExitRequestAtBarrierReportsBenchmarkCancelled(t *testing.T) {
	column := []model.Cell{
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 0}},
		{Kind: model.CellTask, Task: model.Task{Operation: model.Operation{Name: "t", Type: "noop"}, Clients: 1, Iterations: 1}},
		{Kind: model.CellBarrier, Barrier: model.Barrier{ID: 1}},
	}

	workerRef, masterBox, d := newDriverHarness(t, okRunner)
	workerRef.Send(transport.StartLoadGenerator{ClientID: 0, Tasks: column})
	recvJoinPoint(t, masterBox)

	workerRef.Send(transport.ExitRequest{})

	msg, ok := masterBox.Receive()
	require.True(t, ok)
	cancelled, ok := msg.(transport.BenchmarkCancelled)
	require.Truef(t, ok, "expected BenchmarkCancelled, got %T", msg)
	assert.Equal(t, 0, cancelled.ClientID)
	assert.Equal(t, "terminal", d.State())
}

func TestDriver_RejectsUnknownCellKind(t *testing.T) {
	column := []model.Cell{{Kind: model.CellKind(99)}}

	workerRef, masterBox, _ := newDriverHarness(t, okRunner)
	workerRef.Send(transport.StartLoadGenerator{ClientID: 0, Tasks: column})

	msg, ok := masterBox.Receive()
	require.True(t, ok)
	fail, ok := msg.(transport.BenchmarkFailure)
	require.Truef(t, ok, "expected BenchmarkFailure, got %T", msg)
	assert.Contains(t, fail.Message, "unknown cell kind")
}
