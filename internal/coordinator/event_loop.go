package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.lepak.sg/loadbench/internal/aggregator"
	"go.lepak.sg/loadbench/internal/transport"
)

// onBarrierReached is the barrier arrival handler: it records
// the worker's (local, master-received) end time, checks whether this
// arrival triggers a complete-current-task broadcast, and advances the
// step once every worker has reported.
func (c *Coordinator) onBarrierReached(e barrierArrival) {
	if c.reportedThisStep[e.clientID] {
		panic(fmt.Sprintf("coordinator: worker %d reported barrier %d twice before the step closed", e.clientID, e.barrierID))
	}
	c.reportedThisStep[e.clientID] = true
	c.clientEndTimes[e.clientID] = clientEndTime{local: e.localMonotonic, masterRecv: time.Since(c.epoch)}
	c.completedThisStep++

	barrier := c.barriers[c.currentStep]
	if barrier.PrecedingTaskCompletesParent() && !c.completeCurrentTaskSent && c.allCompletingClientsReported(barrier.CompletingClients) {
		for _, ref := range c.workerActors {
			ref.Send(transport.CompleteCurrentTask{})
		}
		c.completeCurrentTaskSent = true
	}

	if c.completedThisStep == c.matrix.Clients() {
		c.advanceStep(c.ctx)
	}
}

// advanceStep closes out the just-finished step: post-process its raw
// samples, then either finish the run (this was the final barrier) or
// compute every worker's skew-compensated resume instant and release
// them past the barrier using the skew-compensated resume formula.
func (c *Coordinator) advanceStep(ctx context.Context) {
	samples := c.rawSamples
	c.rawSamples = nil

	if err := aggregator.PostProcessStep(ctx, samples, c.cfg.TrackMeta, c.cfg.ChallengeMeta, c.store); err != nil {
		c.onFailure(failureEvent{clientID: -1, err: fmt.Errorf("post-processing step %d: %w", c.currentStep, err)})
		return
	}
	c.allSamples = append(c.allSamples, samples...)

	c.log.WithFields(logrus.Fields{"step": c.currentStep, "samples": len(samples)}).Info("coordinator: task finished")

	c.completedThisStep = 0
	c.completeCurrentTaskSent = false
	c.reportedThisStep = make(map[int]bool)

	final := c.currentStep == len(c.barriers)-1

	// Every worker still needs one more Resume call even past the
	// final barrier: the driver only discovers its column has run out
	// (and transitions itself to Terminal) on the Resume call after
	// the one that reported that barrier, since drive() returns
	// immediately after reporting rather than re-checking its bounds.
	var startNext time.Duration
	if !final {
		for _, e := range c.clientEndTimes {
			if cand := e.masterRecv + c.cfg.WaitingPeriod; cand > startNext {
				startNext = cand
			}
		}
	}

	for i, ref := range c.workerActors {
		e, ok := c.clientEndTimes[i]
		if !ok {
			continue
		}
		resumeLocal := e.local
		if !final {
			resumeLocal = e.local + (startNext - e.masterRecv)
		}
		ref.Send(transport.Drive{ClientStartMonotonic: resumeLocal})
	}

	c.clientEndTimes = make(map[int]clientEndTime)

	if final {
		if _, err := c.store.Close(); err != nil {
			c.onFailure(failureEvent{clientID: -1, err: fmt.Errorf("closing metrics store: %w", err)})
			return
		}
		c.finish(Result{FinalMetrics: c.allSamples})
		return
	}
	c.currentStep++
}

// onFailure handles a worker's fatal error: every worker is told to
// cancel, and the run ends with that error. clientID -1 marks a
// coordinator-internal failure (e.g. post-processing) rather than one
// reported by a specific worker.
func (c *Coordinator) onFailure(e failureEvent) {
	if c.finishedFlag {
		return
	}
	c.finishedFlag = true

	log := c.log.WithError(e.err)
	if e.clientID >= 0 {
		log = log.WithField("client_id", e.clientID)
	}
	log.Error("coordinator: benchmark failure")

	c.cancelAll()

	var err error
	if e.clientID >= 0 {
		err = fmt.Errorf("client %d: %w", e.clientID, e.err)
	} else {
		err = e.err
	}
	c.send(Result{Err: err})
}

// onCancel records that a worker honored a Cancel request. The run's
// own Result is already decided by whoever called cancelAll (either
// ctx cancellation in Run, or a prior onFailure); this just tracks
// that the worker has stopped.
func (c *Coordinator) onCancel(e cancelEvent) {
	c.log.WithField("client_id", e.clientID).Info("coordinator: worker cancelled")
	c.finished[e.clientID] = true
}

// onTick handles the coordinator's self-scheduled wakeups: periodic
// progress logging (re-arming itself unless the run has ended) and
// relative-time-origin resets.
func (c *Coordinator) onTick(t transport.Tick) {
	switch t.Kind {
	case transport.TickProgress:
		if !c.cfg.Quiet {
			fields := logrus.Fields{
				"step":      c.currentStep,
				"completed": c.completedThisStep,
				"clients":   c.matrix.Clients(),
			}
			if pct, ok := c.totalProgress(); ok {
				fields["progress_pct"] = pct
			}
			c.log.WithFields(fields).Info("coordinator: progress")
		}
		if !c.finishedFlag {
			c.sys.ScheduleTick(c.mailbox, c.cfg.ProgressEvery, transport.Tick{Kind: transport.TickProgress})
		}
	case transport.TickRelativeReset:
		c.store.RelativeReset(time.Now())
	}
}

// totalProgress averages Progress across every worker whose most
// recent sample has ProgressDefined set, rounded to a whole percent.
// Eternal tasks (undefined progress) are excluded from the average
// rather than pulling it toward zero.
func (c *Coordinator) totalProgress() (int, bool) {
	var sum float64
	var n int
	for _, s := range c.mostRecentSamplePerClient {
		if s.ProgressDefined {
			sum += s.Progress
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return int(sum/float64(n)*100 + 0.5), true
}

func (c *Coordinator) armProgressTick() {
	if c.cfg.Quiet || c.cfg.ProgressEvery <= 0 {
		return
	}
	c.sys.ScheduleTick(c.mailbox, c.cfg.ProgressEvery, transport.Tick{Kind: transport.TickProgress})
}

// finish marks the run complete with res, unless it already ended.
func (c *Coordinator) finish(res Result) {
	if c.finishedFlag {
		return
	}
	c.finishedFlag = true
	c.send(res)
}

// send delivers res to Run's waiter without blocking if nobody is
// listening anymore (e.g. Run already returned via ctx.Done).
func (c *Coordinator) send(res Result) {
	select {
	case c.done <- res:
	default:
	}
}

func (c *Coordinator) cancelAll() {
	for _, ref := range c.workerActors {
		ref.Send(transport.ExitRequest{})
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// allCompletingClientsReported reports whether every client id in
// completing has reported this step, per barrier.CompletingClients's
// "all clients in that set have reported" precondition: a single
// member reporting must not be enough to end the task early for its
// siblings, matching all_clients_finished's full-set loop rather than
// a first-reporter check.
func (c *Coordinator) allCompletingClientsReported(completing []int) bool {
	for _, id := range completing {
		if !c.reportedThisStep[id] {
			return false
		}
	}
	return true
}
