// Package coordinator runs a distributed benchmark from the
// coordinator side: startup (track preparation fan-out, metrics store,
// allocation), the barrier arrival handler with skew-compensated
// resume and complete-current-task broadcast, the sample handler,
// periodic progress reporting, and per-step post-processing via
// internal/aggregator. Every piece of mutable state is confined to a
// single goroutine draining a buffered events channel rather than
// guarded by a mutex (c.f. internal/laminar.Group confining task-graph
// state behind g.lock, but here even that lock is replaced by
// single-goroutine ownership since every mutation already funnels
// through one channel).
package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.lepak.sg/loadbench/internal/batcher"
	"go.lepak.sg/loadbench/internal/dispatcher"
	"go.lepak.sg/loadbench/internal/laminar"
	"go.lepak.sg/loadbench/internal/metricsstore"
	"go.lepak.sg/loadbench/internal/model"
	"go.lepak.sg/loadbench/internal/parallel"
	"go.lepak.sg/loadbench/internal/transport"
	"go.lepak.sg/loadbench/internal/worker"
)

// TrackPreparator loads a track onto one load-generator host. Track
// and challenge parsing are an external concern this package does not
// own; this is the collaborator that does it.
type TrackPreparator interface {
	PrepareTrack(ctx context.Context, host int, config map[string]any, track string) error
}

// Config holds the knobs a StartBenchmark invocation needs beyond the
// schedule itself.
type Config struct {
	Hosts         []int // host indices workers are placed on round-robin (worker i goes to Hosts[i%len(Hosts)]); empty places every worker on host 0
	Quiet         bool
	WaitingPeriod  time.Duration // fixed grace period added to every resume instant, covering clock skew the coordinator cannot measure directly and so bounds instead of probing for live
	ProgressEvery  time.Duration
	WakeupInterval time.Duration // how often a running task's worker drains and ships samples mid-task; 0 uses worker.DefaultWakeupInterval
	TrackMeta     map[string]any
	ChallengeMeta map[string]any
}

// Result is what Run returns once the benchmark ends, one way or another.
type Result struct {
	Cancelled    bool
	Err          error
	FinalMetrics []model.Sample
}

type clientEndTime struct {
	local      time.Duration
	masterRecv time.Duration
}

type barrierArrival struct {
	clientID       int
	localMonotonic time.Duration
	barrierID      int
}

type sampleBatch struct {
	clientID int
	samples  []model.Sample
}

func (b sampleBatch) Key() string { return strconv.Itoa(b.clientID) }

type failureEvent struct {
	clientID int
	err      error
}

type cancelEvent struct {
	clientID int
}

// Coordinator runs one benchmark from StartBenchmark to
// BenchmarkComplete/BenchmarkFailure/BenchmarkCancelled.
type Coordinator struct {
	cfg   Config
	sys   transport.System
	store metricsstore.Store
	prep  TrackPreparator
	log   *logrus.Entry

	runnerFor worker.RunnerFor
	paramsFor worker.ParamsFor
	newClient func(host int) any

	matrix   model.Matrix
	barriers []model.Barrier

	mailbox transport.Mailbox
	self    transport.ActorRef

	events   chan any
	dispatch *dispatcher.Lazy

	workerActors []transport.ActorRef

	epoch time.Time

	ctx context.Context

	currentStep             int
	completedThisStep        int
	completeCurrentTaskSent  bool
	reportedThisStep         map[int]bool
	clientEndTimes           map[int]clientEndTime
	rawSamples               []model.Sample
	allSamples               []model.Sample
	mostRecentSamplePerClient map[int]model.Sample
	finished                 map[int]bool
	finishedFlag             bool

	done chan Result
}

// New constructs a Coordinator. runnerFor/paramsFor/newClient and prep
// are the benchmark's external collaborators.
func New(cfg Config, sys transport.System, store metricsstore.Store, prep TrackPreparator, runnerFor worker.RunnerFor, paramsFor worker.ParamsFor, newClient func(host int) any, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	self, mailbox, err := sys.CreateActor(transport.ActorWorker, transport.HostCapability{Coordinator: true}, "coordinator")
	if err != nil {
		panic(fmt.Sprintf("coordinator: creating self actor: %v", err))
	}

	return &Coordinator{
		cfg:                       cfg,
		sys:                       sys,
		store:                     store,
		prep:                      prep,
		log:                       log,
		runnerFor:                 runnerFor,
		paramsFor:                 paramsFor,
		newClient:                 newClient,
		mailbox:                   mailbox,
		self:                      self,
		events:                    make(chan any, 256),
		reportedThisStep:          make(map[int]bool),
		clientEndTimes:            make(map[int]clientEndTime),
		mostRecentSamplePerClient: make(map[int]model.Sample),
		finished:                  make(map[int]bool),
		done:                      make(chan Result, 1),
	}
}

// Run drives a full benchmark to completion: it prepares the track on
// every host, opens the metrics store, starts one worker per row of
// matrix, and blocks until the run completes, fails, or ctx is
// canceled. Run does not allocate: the caller passes in a matrix it
// has already built (see allocator.Allocate).
func (c *Coordinator) Run(ctx context.Context, lap int, trackConfig map[string]any, track string, matrix model.Matrix) Result {
	c.ctx = ctx
	c.matrix = matrix
	c.barriers = matrix.Barriers()

	c.dispatch = dispatcher.NewLazy(c.newSampleAcceptor, 0, 0)
	defer c.dispatch.Close()

	go c.pump()

	if err := c.prepareTracks(ctx, trackConfig, track); err != nil {
		return Result{Err: fmt.Errorf("coordinator: preparing tracks: %w", err)}
	}

	if _, err := c.store.Open(lap, c.cfg.TrackMeta); err != nil {
		return Result{Err: fmt.Errorf("coordinator: opening metrics store: %w", err)}
	}

	if err := c.startWorkers(ctx, trackConfig, track); err != nil {
		return Result{Err: fmt.Errorf("coordinator: %w", err)}
	}
	c.armProgressTick()

	select {
	case res := <-c.done:
		return res
	case <-ctx.Done():
		c.cancelAll()
		return Result{Cancelled: true, Err: ctx.Err()}
	}
}

// prepareTracks fans PrepareTrack out to every host named in
// cfg.Hosts via laminar, so one slow or failing host never blocks the
// others from reporting back.
func (c *Coordinator) prepareTracks(ctx context.Context, trackConfig map[string]any, track string) error {
	if c.prep == nil {
		return nil
	}

	hosts := c.cfg.Hosts
	if len(hosts) == 0 {
		hosts = []int{0}
	}

	group := laminar.NewGroup(ctx, laminar.NoLimit)
	for _, host := range hosts {
		host := host
		group.NewTask(fmt.Sprintf("prepare-track-host-%d", host), func(ctx context.Context) error {
			return c.prep.PrepareTrack(ctx, host, trackConfig, track)
		})
	}

	if err := group.Start(); err != nil {
		return err
	}
	return group.Wait()
}

type workerPlacement struct {
	index int
	host  int
}

// workerActor bundles the ActorRef/Mailbox pair CreateActor returns:
// the coordinator keeps the ref (to Send StartLoadGenerator/Drive/
// CompleteCurrentTask/ExitRequest) and hands the mailbox to the
// Driver's own actor loop.
type workerActor struct {
	ref     transport.ActorRef
	mailbox transport.Mailbox
}

// startWorkers places one actor per matrix row across the configured
// hosts, creates its Driver, and starts its Run loop in its own
// goroutine reading off that actor's mailbox, then sends each driver
// its StartLoadGenerator. Actor placement is fanned out with a bounded
// semaphore rather than one goroutine per worker outright, since a
// real System.CreateActor dials out to a remote host and a benchmark
// with hundreds of clients shouldn't open hundreds of connections at
// once.
func (c *Coordinator) startWorkers(ctx context.Context, trackConfig map[string]any, track string) error {
	n := c.matrix.Clients()
	c.workerActors = make([]transport.ActorRef, n)
	c.epoch = time.Now()

	placements := make([]workerPlacement, n)
	for i := 0; i < n; i++ {
		host := 0
		if len(c.cfg.Hosts) > 0 {
			host = c.cfg.Hosts[i%len(c.cfg.Hosts)]
		}
		placements[i] = workerPlacement{index: i, host: host}
	}

	actors, err := parallel.MapBoundedSema(ctx, placements, func(_ int, p workerPlacement) workerActor {
		ref, mailbox, err := c.sys.CreateActor(transport.ActorWorker, transport.HostCapability{IP: fmt.Sprintf("host-%d", p.host)}, fmt.Sprintf("worker-%d", p.index))
		if err != nil {
			c.log.WithError(err).WithField("client_id", p.index).Error("coordinator: creating worker actor")
		}
		return workerActor{ref: ref, mailbox: mailbox}
	}, actorCreationConcurrency)
	if err != nil {
		return fmt.Errorf("creating worker actors: %w", err)
	}

	for i := 0; i < n; i++ {
		host := placements[i].host
		var client any
		if c.newClient != nil {
			client = c.newClient(host)
		}

		d := worker.New(i, client, c.runnerFor, c.paramsFor, c.self, c.log.WithField("client_id", i))
		d.WakeupInterval = c.cfg.WakeupInterval
		c.workerActors[i] = actors[i].ref

		go func(d *worker.Driver, mailbox transport.Mailbox) {
			if err := d.Run(ctx, mailbox); err != nil {
				c.log.WithError(err).WithField("client_id", d.ClientID).Debug("coordinator: worker actor exited")
			}
		}(d, actors[i].mailbox)

		actors[i].ref.Send(transport.StartLoadGenerator{
			ClientID: i,
			Config:   trackConfig,
			Track:    track,
			Tasks:    c.matrix.Rows[i],
		})
	}
	return nil
}

// actorCreationConcurrency bounds how many worker actors are placed at
// once during startup.
const actorCreationConcurrency = 8

// pump forwards the coordinator's transport mailbox (worker messages
// and self-scheduled Ticks) into the same serialized events channel
// the per-client sample batchers flush into, then runs the
// single-goroutine event loop.
func (c *Coordinator) pump() {
	go func() {
		for {
			msg, ok := c.mailbox.Receive()
			if !ok {
				return
			}
			c.events <- msg
		}
	}()

	for ev := range c.events {
		c.handle(ev)
	}
}

func (c *Coordinator) handle(ev any) {
	switch e := ev.(type) {
	case barrierArrival:
		c.onBarrierReached(e)
	case sampleBatchFlush:
		c.rawSamples = append(c.rawSamples, e.samples...)
		if len(e.samples) > 0 {
			c.mostRecentSamplePerClient[e.clientID] = e.samples[len(e.samples)-1]
		}
	case failureEvent:
		c.onFailure(e)
	case cancelEvent:
		c.onCancel(e)
	case transport.Tick:
		c.onTick(e)
	case transport.JoinPointReached:
		c.onBarrierReached(barrierArrival{clientID: e.ClientID, localMonotonic: e.ClientLocalMonotonic, barrierID: e.Barrier.ID})
	case transport.UpdateSamples:
		if err := c.dispatch.Accept(sampleBatch{clientID: e.ClientID, samples: e.Samples}); err != nil {
			c.log.WithError(err).WithField("client_id", e.ClientID).Error("coordinator: dispatching sample batch")
		}
	case transport.BenchmarkFailure:
		c.onFailure(failureEvent{clientID: e.ClientID, err: e.Cause})
	case transport.BenchmarkCancelled:
		c.onCancel(cancelEvent{clientID: e.ClientID})
	default:
		c.log.WithField("event", fmt.Sprintf("%T", ev)).Warn("coordinator: unrecognized event")
	}
}

// newSampleAcceptor builds the per-client ingestion pipeline: a plain
// threshold/interval batcher whose flushed batches are folded into the
// step's raw sample buffer by the event loop. internal/dispatcher creates one of
// these lazily per client key and evicts it after the client has gone
// quiet for a while.
func (c *Coordinator) newSampleAcceptor(key string) (dispatcher.Acceptor, error) {
	clientID, err := strconv.Atoi(key)
	if err != nil {
		return nil, fmt.Errorf("coordinator: client key %q: %w", key, err)
	}

	in := make(chan model.Sample, 256)
	out := make(chan []model.Sample, 4)
	var wg sync.WaitGroup
	batcher.Start(in, out, &wg, batcher.Params{Threshold: 200, Interval: 250 * time.Millisecond})

	go func() {
		for batch := range out {
			c.events <- sampleBatchFlush{clientID: clientID, samples: batch}
		}
	}()

	return &sampleAcceptor{in: in, wg: &wg}, nil
}

type sampleBatchFlush struct {
	clientID int
	samples  []model.Sample
}

type sampleAcceptor struct {
	in chan model.Sample
	wg *sync.WaitGroup
}

func (a *sampleAcceptor) Accept(item dispatcher.Keyer) error {
	batch, ok := item.(sampleBatch)
	if !ok {
		return fmt.Errorf("coordinator: unexpected dispatcher item %T", item)
	}
	for _, s := range batch.samples {
		a.in <- s
	}
	return nil
}

func (a *sampleAcceptor) Close() {
	close(a.in)
	a.wg.Wait()
}
