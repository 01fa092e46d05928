package model

import "fmt"

// Barrier is a JoinPoint: every worker must arrive before any may
// proceed. ID is monotonically increasing from 0 (the initial
// barrier every worker's column starts with). CompletingClients holds
// the worker indices whose preceding task in the group had
// CompletesParent set; it is empty when no task in the group completes.
type Barrier struct {
	ID                int
	CompletingClients []int
}

func (b Barrier) String() string {
	return fmt.Sprintf("Barrier(%d)", b.ID)
}

// PrecedingTaskCompletesParent reports whether at least one task
// preceding this barrier can force early completion of its siblings.
func (b Barrier) PrecedingTaskCompletesParent() bool {
	return len(b.CompletingClients) > 0
}

// CellKind discriminates the three possible contents of a matrix cell.
type CellKind int

const (
	CellTask CellKind = iota
	CellBarrier
	CellIdle
)

// Cell is one entry of the allocation matrix: either a Task, a
// Barrier, or Idle (a filler the worker must skip over transparently).
type Cell struct {
	Kind    CellKind
	Task    Task
	Barrier Barrier
}

// Matrix is the allocation produced by the allocator: Rows[client] is
// that worker's column of cells, read left to right. It is clients x
// (2*G+1) when no group needs more than one task slot per worker; a
// group whose tasks need more slots than there are clients adds
// columns. The matrix is rectangular: every row has the same length.
type Matrix struct {
	Rows [][]Cell
}

// Clients returns the number of worker rows, i.e. max(task.Clients)
// across every group in the schedule that produced this matrix.
func (m Matrix) Clients() int {
	return len(m.Rows)
}

// Steps returns the number of barriers after the initial one, i.e.
// the number of ParallelGroups in the originating schedule.
func (m Matrix) Steps() int {
	if len(m.Rows) == 0 {
		return 0
	}
	n := 0
	for _, cell := range m.Rows[0] {
		if cell.Kind == CellBarrier {
			n++
		}
	}
	return n - 1
}

// Barriers returns the ordered list of barriers every row shares, read
// from worker 0's row (every row carries the same barrier instances at
// the same column indices, by construction).
func (m Matrix) Barriers() []Barrier {
	if len(m.Rows) == 0 {
		return nil
	}
	var out []Barrier
	for _, cell := range m.Rows[0] {
		if cell.Kind == CellBarrier {
			out = append(out, cell.Barrier)
		}
	}
	return out
}
