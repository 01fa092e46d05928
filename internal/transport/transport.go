// Package transport is the messaging substrate contract:
// typed message passing between the coordinator and worker/track-
// preparator actors, actor creation on a host, and self-scheduled
// delayed messages ("ticks"). It is deliberately narrow — an actor
// system, not a network library — since the concrete transport
// (in-process goroutines, or a real cluster of processes) is an
// external collaborator.
package transport

import "time"

// HostCapability selects where an actor may be placed: either on the
// coordinator's own host, or on a specific remote IP. Round-robin
// placement across the configured host list is the caller's job, not
// this package's.
type HostCapability struct {
	Coordinator bool
	IP          string
}

// ActorKind tags what kind of actor was created, so the coordinator
// can tell a benign track-preparator exit from a fatal worker exit
// without an index lookup race.
type ActorKind int

const (
	ActorWorker ActorKind = iota
	ActorTrackPreparator
)

func (k ActorKind) String() string {
	if k == ActorTrackPreparator {
		return "track_preparator"
	}
	return "worker"
}

// Mailbox receives messages in FIFO order per sender. Actor receipt is
// single-threaded: a System implementation must never call Receive's
// caller concurrently with itself.
type Mailbox interface {
	// Receive blocks until a message arrives; ok is false once the
	// mailbox has been closed.
	Receive() (msg any, ok bool)
}

// ActorRef addresses a created actor; Send enqueues a message on its
// mailbox. Send must never block the sender on the receiver's
// processing.
type ActorRef interface {
	Send(msg any)
	Kind() ActorKind
}

// TickCancel stops a previously scheduled self-message if it has not
// fired yet.
type TickCancel func()

// System creates actors and schedules self-delivered ticks. The
// coordinator and worker/track-preparator actors are built against
// this interface so a real multi-host implementation is a drop-in
// replacement for tests' in-process one (internal/transport/local.go).
type System interface {
	// CreateActor creates a named actor of the given kind on a host
	// satisfying cap, and returns a reference plus its Mailbox.
	CreateActor(kind ActorKind, cap HostCapability, name string) (ActorRef, Mailbox, error)

	// ScheduleTick arranges for msg to be delivered to self's mailbox
	// after d elapses. The returned TickCancel stops delivery if
	// called before it fires.
	ScheduleTick(self Mailbox, after time.Duration, msg any) TickCancel
}
