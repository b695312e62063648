package domain

// nextPosition returns the append position: one past the current maximum, or
// zero for an empty project.
func nextPosition(tasks []Task) int {
	max := -1
	for _, t := range tasks {
		if t.Position > max {
			max = t.Position
		}
	}
	return max + 1
}

// clampPosition bounds p to [0, n-1]. n must be positive.
func clampPosition(p, n int) int {
	if p < 0 {
		return 0
	}
	if p > n-1 {
		return n - 1
	}
	return p
}

// renumber returns the updates that make the positions of ordered equal to
// their index. Tasks already in place are skipped.
func renumber(ordered []Task) []PositionUpdate {
	var updates []PositionUpdate
	for i, t := range ordered {
		if t.Position != i {
			updates = append(updates, PositionUpdate{TaskID: t.ID, Position: i})
		}
	}
	return updates
}

// moveTask returns a copy of ordered with the task taskID moved to index
// target, clamped to the valid range. ok is false when taskID is absent.
func moveTask(ordered []Task, taskID string, target int) (moved []Task, ok bool) {
	from := -1
	for i, t := range ordered {
		if t.ID == taskID {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, false
	}
	target = clampPosition(target, len(ordered))

	moved = make([]Task, 0, len(ordered))
	moved = append(moved, ordered[:from]...)
	moved = append(moved, ordered[from+1:]...)
	task := ordered[from]
	moved = append(moved, Task{})
	copy(moved[target+1:], moved[target:])
	moved[target] = task
	return moved, true
}

// contiguous reports whether positions of tasks are exactly {0..n-1}.
func contiguous(tasks []Task) bool {
	seen := make([]bool, len(tasks))
	for _, t := range tasks {
		if t.Position < 0 || t.Position >= len(tasks) || seen[t.Position] {
			return false
		}
		seen[t.Position] = true
	}
	return true
}
