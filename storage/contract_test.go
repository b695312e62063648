package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"taskboard-api/domain"
)

// runStoreContract exercises behaviour every domain.Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) domain.Store) {
	t.Run("append remove reorder", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		pm := domain.NewPositionManager(st)
		p := mustProject(t, st, "owner-1")

		var created []domain.Task
		for _, title := range []string{"a", "b", "c", "d"} {
			task, err := pm.Append(ctx, p.ID, domain.TaskDraft{Title: title, Status: domain.StatusTodo})
			if err != nil {
				t.Fatalf("append %s: %v", title, err)
			}
			created = append(created, task)
		}
		expectTitles(t, st, p.ID, "a", "b", "c", "d")

		if err := pm.Remove(ctx, p.ID, created[1].ID); err != nil {
			t.Fatalf("remove: %v", err)
		}
		expectTitles(t, st, p.ID, "a", "c", "d")

		moved, err := pm.Reorder(ctx, p.ID, created[3].ID, 0)
		if err != nil {
			t.Fatalf("reorder: %v", err)
		}
		if moved.Position != 0 {
			t.Fatalf("expected moved task at 0, got %d", moved.Position)
		}
		stored, err := st.GetTask(ctx, moved.ID)
		if err != nil {
			t.Fatalf("get moved task: %v", err)
		}
		if !moved.UpdatedAt.Equal(stored.UpdatedAt) || moved.UpdatedAt.Before(created[3].UpdatedAt) {
			t.Fatalf("expected returned UpdatedAt %v to match stored %v", moved.UpdatedAt, stored.UpdatedAt)
		}
		expectTitles(t, st, p.ID, "d", "a", "c")

		if _, err := pm.Reorder(ctx, p.ID, created[0].ID, 99); err != nil {
			t.Fatalf("reorder out of range: %v", err)
		}
		expectTitles(t, st, p.ID, "d", "c", "a")

		if err := pm.Remove(ctx, p.ID, created[1].ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected removing a deleted task to be not found, got %v", err)
		}
		if _, err := pm.Append(ctx, "missing-project", domain.TaskDraft{Title: "x"}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected missing project, got %v", err)
		}
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		p := mustProject(t, st, "owner-1")
		pm := domain.NewPositionManager(st)
		a, _ := pm.Append(ctx, p.ID, domain.TaskDraft{Title: "a"})
		_, _ = pm.Append(ctx, p.ID, domain.TaskDraft{Title: "b"})

		boom := errors.New("boom")
		err := st.WithinProject(ctx, p.ID, func(ctx context.Context, tx domain.PositionTx) error {
			if err := tx.DeleteByID(ctx, a.ID); err != nil {
				return err
			}
			if _, err := tx.Create(ctx, domain.TaskDraft{Title: "ghost", Status: domain.StatusTodo}, 5); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		expectTitles(t, st, p.ID, "a", "b")
	})

	t.Run("duplicate positions are rejected", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		p := mustProject(t, st, "owner-1")
		err := st.WithinProject(ctx, p.ID, func(ctx context.Context, tx domain.PositionTx) error {
			if _, err := tx.Create(ctx, domain.TaskDraft{Title: "a", Status: domain.StatusTodo}, 0); err != nil {
				return err
			}
			_, err := tx.Create(ctx, domain.TaskDraft{Title: "b", Status: domain.StatusTodo}, 0)
			return err
		})
		if !errors.Is(err, domain.ErrConstraintViolation) {
			t.Fatalf("expected constraint violation, got %v", err)
		}
		if tasks, _ := st.ListTasks(ctx, p.ID); len(tasks) != 0 {
			t.Fatalf("expected rollback, found %d tasks", len(tasks))
		}
	})

	t.Run("concurrent appends stay contiguous", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		p := mustProject(t, st, "owner-1")
		pm := domain.NewPositionManager(st)

		const n = 16
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := pm.Append(ctx, p.ID, domain.TaskDraft{Title: "t"}); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("append: %v", err)
		}
		tasks, err := st.ListTasks(ctx, p.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(tasks) != n {
			t.Fatalf("expected %d tasks, got %d", n, len(tasks))
		}
		for i, task := range tasks {
			if task.Position != i {
				t.Fatalf("expected position %d, got %d", i, task.Position)
			}
		}
	})

	t.Run("update task leaves position alone", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		p := mustProject(t, st, "owner-1")
		pm := domain.NewPositionManager(st)
		_, _ = pm.Append(ctx, p.ID, domain.TaskDraft{Title: "a"})
		b, _ := pm.Append(ctx, p.ID, domain.TaskDraft{Title: "b"})

		title, status := "b2", domain.StatusInProgress
		got, err := st.UpdateTask(ctx, b.ID, domain.TaskUpdate{Title: &title, Status: &status})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Title != "b2" || got.Status != domain.StatusInProgress || got.Position != 1 {
			t.Fatalf("unexpected task: %+v", got)
		}
		if _, err := st.UpdateTask(ctx, "missing", domain.TaskUpdate{Title: &title}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("projects and users", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		p := mustProject(t, st, "owner-1")
		_ = mustProject(t, st, "owner-2")

		list, err := st.ListProjects(ctx, "owner-1")
		if err != nil || len(list) != 1 || list[0].ID != p.ID {
			t.Fatalf("unexpected projects %+v, %v", list, err)
		}
		name := "renamed"
		upd, err := st.UpdateProject(ctx, p.ID, domain.ProjectUpdate{Name: &name})
		if err != nil || upd.Name != "renamed" {
			t.Fatalf("update project: %+v, %v", upd, err)
		}

		pm := domain.NewPositionManager(st)
		task, _ := pm.Append(ctx, p.ID, domain.TaskDraft{Title: "a"})
		if err := st.DeleteProject(ctx, p.ID); err != nil {
			t.Fatalf("delete project: %v", err)
		}
		if _, err := st.GetTask(ctx, task.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected cascaded task delete, got %v", err)
		}
		if err := st.DeleteProject(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected second delete to be not found, got %v", err)
		}

		u, err := st.CreateUser(ctx, domain.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "hash"})
		if err != nil || u.ID == "" {
			t.Fatalf("create user: %+v, %v", u, err)
		}
		if _, err := st.CreateUser(ctx, domain.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "x"}); !errors.Is(err, domain.ErrConstraintViolation) {
			t.Fatalf("expected duplicate email violation, got %v", err)
		}
		got, err := st.GetUserByEmail(ctx, "ada@example.com")
		if err != nil || got.ID != u.ID || got.PasswordHash != "hash" {
			t.Fatalf("get user: %+v, %v", got, err)
		}
		if _, err := st.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if err := st.Ping(ctx); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})
}

func mustProject(t *testing.T, st domain.Store, owner string) domain.Project {
	t.Helper()
	p, err := st.CreateProject(context.Background(), domain.Project{OwnerID: owner, Name: "project"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func expectTitles(t *testing.T, st domain.Store, projectID string, want ...string) {
	t.Helper()
	tasks, err := st.ListTasks(context.Background(), projectID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i, task := range tasks {
		if task.Title != want[i] || task.Position != i {
			t.Fatalf("slot %d: got %q at %d, want %q at %d", i, task.Title, task.Position, want[i], i)
		}
	}
}
