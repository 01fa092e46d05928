// Package laminar runs a set of goroutines that depend on each other,
// respecting declared dependencies and context cancellation. It
// combines an errgroup.Group with a DAG and executes tasks in
// topological order.
//
// The coordinator uses a Group at startup to fan a PrepareTrack call
// out to every load-generator host and join on every reply before
// opening the metrics store: one Task per host, with no dependencies
// between them, so a single slow or failing host never blocks the
// others from reporting back.
package laminar

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.lepak.sg/loadbench/internal/chops"
	"go.lepak.sg/loadbench/internal/graph"
	"golang.org/x/sync/errgroup"
)

// NoLimit indicates that the Group can run any number of goroutines at once.
const NoLimit int = -1

const (
	taskCreated uint64 = iota
	taskDequeued
	taskWaitingForErrgroup
	taskWaitingForDependents
	taskRunning
	taskFinished
)

// Task is a unit of work added to a Group with Group.NewTask.
type Task struct {
	g       *Group
	name    string
	f       func(context.Context) error
	wg      sync.WaitGroup
	wgChan  <-chan struct{}
	waitFor []<-chan struct{}

	state uint64
}

// Group manages a set of Tasks and their dependency graph.
type Group struct {
	eg        *errgroup.Group
	egCtx     context.Context
	starterWg sync.WaitGroup

	savedCtxErr error

	lock    sync.Mutex
	graph   *graph.AdjacencyListDigraph[*Task]
	started bool
}

// NewGroup creates a new Group. limit bounds the number of goroutines
// that can run simultaneously; pass NoLimit to disable the bound.
func NewGroup(ctx context.Context, limit int) *Group {
	eg, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}

	return &Group{
		eg:    eg,
		egCtx: ctx,
		graph: graph.NewAdjacencyListDigraph[*Task](),
	}
}

// NewTask adds a Task to the Group. f receives a context canceled
// after any other task in the Group returns an error. NewTask must
// not be called after Start.
func (g *Group) NewTask(name string, f func(context.Context) error) *Task {
	t := &Task{
		g:    g,
		name: name,
		f:    f,
	}

	g.lock.Lock()
	if g.started {
		g.lock.Unlock()
		panic("laminar: Group already started")
	}
	g.graph.AddNode(t)
	g.lock.Unlock()

	return t
}

// After declares that every task in befores must complete before t
// starts. After must not be called once the Group has started.
func (t *Task) After(befores ...*Task) *Task {
	for _, before := range befores {
		if t == before {
			panic("laminar: Task cannot depend on itself")
		}
		if t.g != before.g {
			panic("laminar: Tasks not created from the same Group")
		}
	}

	t.g.lock.Lock()
	if t.g.started {
		t.g.lock.Unlock()
		panic("laminar: Group already started")
	}
	for _, before := range befores {
		t.g.graph.AddEdge(before, t)
	}
	t.g.lock.Unlock()

	return t
}

// String returns the task's name and current state.
func (t *Task) String() string {
	var stateString string
	switch atomic.LoadUint64(&t.state) {
	case taskCreated:
		stateString = "created"
	case taskDequeued:
		stateString = "dequeued"
	case taskWaitingForErrgroup:
		stateString = "waiting for errgroup"
	case taskWaitingForDependents:
		stateString = "waiting for dependents"
	case taskRunning:
		stateString = "running"
	case taskFinished:
		stateString = "finished"
	default:
		stateString = "<unknown>"
	}
	return fmt.Sprintf("%s [%s]", t.name, stateString)
}

// Start launches every Task in the Group in dependency order. It
// returns an error if the dependency graph is cyclic. Start must not
// be called twice.
func (g *Group) Start() error {
	g.lock.Lock()
	if g.started {
		g.lock.Unlock()
		panic("laminar: Group already started")
	}
	g.started = true
	g.lock.Unlock()

	order, err := g.graph.TopologicalOrder()
	if err != nil {
		return err
	}

	g.starterWg.Add(1)
	go g.starter(order)

	return nil
}

func (g *Group) starter(order []*Task) {
	defer g.starterWg.Done()
	for _, task := range order {
		atomic.StoreUint64(&task.state, taskDequeued)

		select {
		case <-g.egCtx.Done():
			g.savedCtxErr = g.egCtx.Err()
			return
		default:
		}

		task := task

		dependents, ok := g.graph.Neighbours(task)
		if !ok {
			panic("laminar: order and neighbours inconsistent")
		}

		task.wg.Add(1)

		for _, dependent := range dependents {
			if task.wgChan == nil {
				task.wgChan = chops.Wait(&task.wg)
			}
			dependent.waitFor = append(dependent.waitFor, task.wgChan)
		}

		atomic.StoreUint64(&task.state, taskWaitingForErrgroup)
		g.eg.Go(func() error {
			defer task.wg.Done()

			atomic.StoreUint64(&task.state, taskWaitingForDependents)
			for _, doneCh := range task.waitFor {
				select {
				case <-g.egCtx.Done():
					return g.egCtx.Err()
				case <-doneCh:
				}
			}

			atomic.StoreUint64(&task.state, taskRunning)
			defer atomic.StoreUint64(&task.state, taskFinished)
			err := task.f(g.egCtx)
			if err != nil {
				err = fmt.Errorf("%s: %w", task.name, err)
			}
			return err
		})
	}
}

// Wait waits for every Task to exit, returning the first error from
// any task or else any context error that prevented tasks from
// starting. A nil return means every task completed successfully.
func (g *Group) Wait() error {
	g.starterWg.Wait()
	err := g.eg.Wait()
	if err == nil {
		err = g.savedCtxErr
	}
	return err
}

// String returns a human-readable summary of the Group's dependency
// graph and whether it has started.
func (g *Group) String() string {
	g.lock.Lock()
	started := g.started
	graphStr := g.graph.String()
	g.lock.Unlock()

	return fmt.Sprintf("Group: started=%t\n%s", started, graphStr)
}
