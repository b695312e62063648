package domain

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
)

func assertContiguous(t *testing.T, st *fakeStore, projectID string) {
	t.Helper()
	tasks := st.snapshot(projectID)
	if !contiguous(tasks) {
		got := make([]int, len(tasks))
		for i, task := range tasks {
			got[i] = task.Position
		}
		t.Fatalf("positions not contiguous: %v", got)
	}
}

func assertOrder(t *testing.T, st *fakeStore, projectID string, want ...string) {
	t.Helper()
	tasks := st.snapshot(projectID)
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i, task := range tasks {
		if task.ID != want[i] || task.Position != i {
			t.Fatalf("position %d: expected %s, got %s at %d", i, want[i], task.ID, task.Position)
		}
	}
}

func TestAppendAssignsSequentialPositions(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	pm := NewPositionManager(st)
	ctx := context.Background()

	first, err := pm.Append(ctx, p.ID, TaskDraft{Title: "first"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.Position != 0 {
		t.Fatalf("expected first task at 0, got %d", first.Position)
	}
	if first.Status != StatusTodo {
		t.Fatalf("expected default status todo, got %q", first.Status)
	}
	second, err := pm.Append(ctx, p.ID, TaskDraft{Title: "second"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.Position != 1 {
		t.Fatalf("expected second task at 1, got %d", second.Position)
	}
}

func TestAppendUsesMaxPlusOne(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	st.seed(p.ID, []string{"a", "b"}, []int{0, 4})
	pm := NewPositionManager(st)

	task, err := pm.Append(context.Background(), p.ID, TaskDraft{Title: "c"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if task.Position != 5 {
		t.Fatalf("expected position 5, got %d", task.Position)
	}
}

func TestAppendRejectsEmptyTitle(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	pm := NewPositionManager(st)

	_, err := pm.Append(context.Background(), p.ID, TaskDraft{Title: "   "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if st.commits != 0 {
		t.Fatalf("expected no commit, got %d", st.commits)
	}
}

func TestAppendUnknownProject(t *testing.T) {
	pm := NewPositionManager(newFakeStore())
	_, err := pm.Append(context.Background(), "missing", TaskDraft{Title: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentAppendsStayContiguous(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	pm := NewPositionManager(st)

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pm.Append(context.Background(), p.ID, TaskDraft{Title: "t"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append: %v", err)
	}

	tasks := st.snapshot(p.ID)
	if len(tasks) != workers {
		t.Fatalf("expected %d tasks, got %d", workers, len(tasks))
	}
	assertContiguous(t, st, p.ID)
	if n := pm.locks.Len(); n != 0 {
		t.Fatalf("expected project locks to be released, %d held", n)
	}
}

func TestRemoveLastOfThree(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	tasks := st.seed(p.ID, []string{"a", "b", "c"}, []int{0, 1, 2})
	pm := NewPositionManager(st)

	if err := pm.Remove(context.Background(), p.ID, tasks[2].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertOrder(t, st, p.ID, tasks[0].ID, tasks[1].ID)
	if len(st.applied) != 0 {
		t.Fatalf("expected no position writes when survivors are in place, got %v", st.applied)
	}
}

func TestRemoveFirstShiftsSurvivors(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	tasks := st.seed(p.ID, []string{"A", "B"}, []int{0, 1})
	pm := NewPositionManager(st)

	if err := pm.Remove(context.Background(), p.ID, tasks[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	assertOrder(t, st, p.ID, tasks[1].ID)
}

func TestRemoveMissingTask(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	pm := NewPositionManager(st)

	err := pm.Remove(context.Background(), p.ID, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveFailedRenumberLeavesStateUntouched(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	tasks := st.seed(p.ID, []string{"a", "b", "c"}, []int{0, 1, 2})
	pm := NewPositionManager(st)
	boom := errors.New("connection reset")
	st.applyErr = boom

	err := pm.Remove(context.Background(), p.ID, tasks[0].ID)
	if !errors.Is(err, boom) {
		t.Fatalf("expected apply error, got %v", err)
	}
	assertOrder(t, st, p.ID, tasks[0].ID, tasks[1].ID, tasks[2].ID)
}

func TestReorderLastToFront(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	tasks := st.seed(p.ID, []string{"a", "b", "c", "d"}, []int{0, 1, 2, 3})
	pm := NewPositionManager(st)

	moved, err := pm.Reorder(context.Background(), p.ID, tasks[3].ID, 0)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if moved.ID != tasks[3].ID || moved.Position != 0 {
		t.Fatalf("unexpected moved task: %+v", moved)
	}
	assertOrder(t, st, p.ID, tasks[3].ID, tasks[0].ID, tasks[1].ID, tasks[2].ID)
}

func TestReorderReturnsStoredTask(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	tasks := st.seed(p.ID, []string{"a", "b", "c"}, []int{0, 1, 2})
	pm := NewPositionManager(st)

	moved, err := pm.Reorder(context.Background(), p.ID, tasks[2].ID, 0)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	stored := st.snapshot(p.ID)[0]
	if stored.ID != moved.ID {
		t.Fatalf("expected %s first, got %s", moved.ID, stored.ID)
	}
	if moved.UpdatedAt.IsZero() || !moved.UpdatedAt.Equal(stored.UpdatedAt) {
		t.Fatalf("expected returned UpdatedAt %v to match stored %v", moved.UpdatedAt, stored.UpdatedAt)
	}
}

func TestReorderScenarioMoveBToFront(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	tasks := st.seed(p.ID, []string{"A", "B", "C"}, []int{0, 1, 2})
	pm := NewPositionManager(st)

	if _, err := pm.Reorder(context.Background(), p.ID, tasks[1].ID, 0); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	pos := st.positions(p.ID)
	if pos[tasks[1].ID] != 0 || pos[tasks[0].ID] != 1 || pos[tasks[2].ID] != 2 {
		t.Fatalf("unexpected positions: %v", pos)
	}
}

func TestReorderSameIndexIsNoop(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	tasks := st.seed(p.ID, []string{"a", "b", "c"}, []int{0, 1, 2})
	pm := NewPositionManager(st)

	moved, err := pm.Reorder(context.Background(), p.ID, tasks[1].ID, 1)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if moved.Position != 1 {
		t.Fatalf("expected position 1, got %d", moved.Position)
	}
	if len(st.applied) != 0 {
		t.Fatalf("expected no position writes, got %v", st.applied)
	}
	assertOrder(t, st, p.ID, tasks[0].ID, tasks[1].ID, tasks[2].ID)
}

func TestReorderClampsOutOfRange(t *testing.T) {
	cases := map[string]struct {
		target int
		want   []int
	}{
		"negative": {target: -3, want: []int{1, 0, 2}},
		"overflow": {target: 99, want: []int{0, 2, 1}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			st := newFakeStore()
			p := st.addProject("owner")
			tasks := st.seed(p.ID, []string{"a", "b", "c"}, []int{0, 1, 2})
			pm := NewPositionManager(st)

			if _, err := pm.Reorder(context.Background(), p.ID, tasks[1].ID, tc.target); err != nil {
				t.Fatalf("reorder: %v", err)
			}
			want := make([]string, len(tc.want))
			for i, idx := range tc.want {
				want[i] = tasks[idx].ID
			}
			assertOrder(t, st, p.ID, want...)
		})
	}
}

func TestReorderUnknownTask(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	st.seed(p.ID, []string{"a"}, []int{0})
	pm := NewPositionManager(st)

	_, err := pm.Reorder(context.Background(), p.ID, "ghost", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReorderFailedApplyIsAtomic(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	tasks := st.seed(p.ID, []string{"a", "b", "c"}, []int{0, 1, 2})
	pm := NewPositionManager(st)
	st.applyErr = ErrStoreUnavailable

	_, err := pm.Reorder(context.Background(), p.ID, tasks[2].ID, 0)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	assertOrder(t, st, p.ID, tasks[0].ID, tasks[1].ID, tasks[2].ID)
}

func TestNormalizeRepairsDuplicatePositions(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	tasks := st.seed(p.ID, []string{"A", "B", "C"}, []int{0, 0, 0})
	pm := NewPositionManager(st)

	changed, err := pm.Normalize(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if changed != 2 {
		t.Fatalf("expected 2 tasks moved, got %d", changed)
	}
	assertOrder(t, st, p.ID, tasks[0].ID, tasks[1].ID, tasks[2].ID)

	changed, err = pm.Normalize(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("second normalize: %v", err)
	}
	if changed != 0 {
		t.Fatalf("expected second normalize to be a no-op, got %d", changed)
	}
}

func TestCancelledContextDoesNotTouchStore(t *testing.T) {
	st := newFakeStore()
	p := st.addProject("owner")
	pm := NewPositionManager(st)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pm.Append(ctx, p.ID, TaskDraft{Title: "x"})
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected store unavailable wrapping cancellation, got %v", err)
	}
	if st.commits != 0 {
		t.Fatalf("expected no commits, got %d", st.commits)
	}
}

func TestRandomOperationSequencesKeepInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	st := newFakeStore()
	p := st.addProject("owner")
	pm := NewPositionManager(st)
	ctx := context.Background()

	for step := 0; step < 500; step++ {
		tasks := st.snapshot(p.ID)
		switch op := rng.Intn(3); {
		case op == 0 || len(tasks) == 0:
			if _, err := pm.Append(ctx, p.ID, TaskDraft{Title: "t"}); err != nil {
				t.Fatalf("step %d append: %v", step, err)
			}
		case op == 1:
			victim := tasks[rng.Intn(len(tasks))]
			if err := pm.Remove(ctx, p.ID, victim.ID); err != nil {
				t.Fatalf("step %d remove: %v", step, err)
			}
		default:
			target := tasks[rng.Intn(len(tasks))]
			newPos := rng.Intn(len(tasks)+4) - 2
			if _, err := pm.Reorder(ctx, p.ID, target.ID, newPos); err != nil {
				t.Fatalf("step %d reorder: %v", step, err)
			}
			after := st.snapshot(p.ID)
			if got := indexOf(after, target.ID); got != clampPosition(newPos, len(tasks)) {
				t.Fatalf("step %d: expected %s at %d, got %d", step, target.ID, clampPosition(newPos, len(tasks)), got)
			}
			if !sameRelativeOrder(tasks, after, target.ID) {
				t.Fatalf("step %d: siblings changed relative order", step)
			}
		}
		assertContiguous(t, st, p.ID)
	}
}

func indexOf(tasks []Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func sameRelativeOrder(before, after []Task, skip string) bool {
	var a, b []string
	for _, t := range before {
		if t.ID != skip {
			a = append(a, t.ID)
		}
	}
	for _, t := range after {
		if t.ID != skip {
			b = append(b, t.ID)
		}
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
