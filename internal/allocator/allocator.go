// Package allocator expands a declarative model.Schedule into a
// rectangular per-worker allocation matrix with synchronization
// barriers, in the style of small, single-purpose, well-commented
// exported functions (c.f. internal/graph).
package allocator

import "go.lepak.sg/loadbench/internal/model"

// Allocate computes the allocation matrix and barrier list for a
// schedule. N, the number of worker rows, is max(task.Clients) across
// every task in every group. Sub-tasks of a group are assigned
// task.Clients consecutive worker indices starting at a cursor that
// carries over (modulo N) between sub-tasks within the same group, and
// resets to 0 at the start of each group. If completing sub-tasks are
// present, their assigned indices are recorded on the barrier that
// follows the group. Short groups are padded with Idle cells so every
// row stays the same length.
func Allocate(schedule model.Schedule) model.Matrix {
	n := clients(schedule)

	rows := make([][]model.Cell, n)
	for i := range rows {
		rows[i] = make([]model.Cell, 0, 2*len(schedule)+1)
	}

	barrierID := 0
	initial := model.Barrier{ID: barrierID}
	barrierID++
	for i := range rows {
		rows[i] = append(rows[i], model.Cell{Kind: model.CellBarrier, Barrier: initial})
	}

	for _, group := range schedule {
		cursor := 0
		var completing []int

		for _, task := range group.Tasks {
			for j := 0; j < task.Clients; j++ {
				idx := (cursor + j) % n
				if task.CompletesParent {
					completing = append(completing, idx)
				}
				rows[idx] = append(rows[idx], model.Cell{Kind: model.CellTask, Task: task})
			}
			cursor += task.Clients
		}

		if rem := cursor % n; rem > 0 {
			for idx := rem; idx < n; idx++ {
				rows[idx] = append(rows[idx], model.Cell{Kind: model.CellIdle})
			}
		}

		b := model.Barrier{ID: barrierID, CompletingClients: completing}
		barrierID++
		for i := range rows {
			rows[i] = append(rows[i], model.Cell{Kind: model.CellBarrier, Barrier: b})
		}
	}

	return model.Matrix{Rows: rows}
}

// clients returns the maximum client count across every task in every
// group of the schedule, with a floor of 1 so an empty schedule still
// yields a well-formed single-row matrix.
func clients(schedule model.Schedule) int {
	max := 1
	for _, group := range schedule {
		for _, task := range group.Tasks {
			if task.Clients > max {
				max = task.Clients
			}
		}
	}
	return max
}

// OperationsPerStep returns, for each step (the span between two
// consecutive barriers), the set of distinct operation names run by
// any worker during that step. A step in which no worker runs a task
// gets no entry.
func OperationsPerStep(m model.Matrix) []map[string]struct{} {
	var steps []map[string]struct{}
	current := map[string]struct{}{}

	if len(m.Rows) == 0 {
		return steps
	}

	width := len(m.Rows[0])
	for col := 0; col < width; col++ {
		for _, row := range m.Rows {
			cell := row[col]
			switch cell.Kind {
			case model.CellTask:
				current[cell.Task.Operation.Name] = struct{}{}
			case model.CellBarrier:
				if len(current) > 0 {
					steps = append(steps, current)
					current = map[string]struct{}{}
				}
			}
		}
	}
	return steps
}
