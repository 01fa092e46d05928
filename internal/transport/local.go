package transport

import (
	"sync"
	"time"
)

// Local is an in-process System: every actor is a buffered Go channel
// in the same process. It is the reference implementation used by
// this module's tests and by cmd/loadbenchctl's single-host mode; a
// real multi-host deployment would replace it with one that dials out
// to remote load-generator hosts, without changing any caller code.
type Local struct {
	mu      sync.Mutex
	mailbox int
}

// NewLocal creates an empty Local system.
func NewLocal() *Local {
	return &Local{}
}

type localMailbox struct {
	ch chan any
}

func (m *localMailbox) Receive() (any, bool) {
	msg, ok := <-m.ch
	return msg, ok
}

type localActorRef struct {
	kind ActorKind
	ch   chan any
}

func (r *localActorRef) Send(msg any) {
	r.ch <- msg
}

func (r *localActorRef) Kind() ActorKind {
	return r.kind
}

// CreateActor creates an in-process mailbox of capacity 64, ignoring
// host placement (every Local actor lives in this process). Send on
// the returned ref blocks while 64 messages are queued and unread.
func (l *Local) CreateActor(kind ActorKind, _ HostCapability, _ string) (ActorRef, Mailbox, error) {
	ch := make(chan any, 64)
	return &localActorRef{kind: kind, ch: ch}, &localMailbox{ch: ch}, nil
}

// ScheduleTick delivers msg to self after d using a time.Timer; the
// returned TickCancel stops the timer if it hasn't fired.
func (l *Local) ScheduleTick(self Mailbox, after time.Duration, msg any) TickCancel {
	mb, ok := self.(*localMailbox)
	if !ok {
		panic("transport: Local.ScheduleTick requires a *localMailbox")
	}

	t := time.AfterFunc(after, func() {
		select {
		case mb.ch <- msg:
		default:
		}
	})

	return func() {
		t.Stop()
	}
}
