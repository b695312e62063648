package domain

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// PositionManager keeps the positions of every project's tasks a dense
// zero-based sequence. Each operation reads and rewrites positions inside one
// store transaction, and operations on the same project are serialised in
// process so two appends cannot both observe the same maximum.
type PositionManager struct {
	st    TaskStorage
	locks *KeyedMutex
}

// NewPositionManager creates a manager over the given storage.
func NewPositionManager(st TaskStorage) *PositionManager {
	if st == nil {
		panic("domain.NewPositionManager: storage is nil")
	}
	return &PositionManager{st: st, locks: NewKeyedMutex()}
}

func (m *PositionManager) inProject(ctx context.Context, projectID string, fn func(ctx context.Context, tx PositionTx) error) error {
	unlock := m.locks.Lock(projectID)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return m.st.WithinProject(ctx, projectID, fn)
}

// Append creates a task at the end of the project's ordering.
func (m *PositionManager) Append(ctx context.Context, projectID string, draft TaskDraft) (Task, error) {
	if err := draft.Validate(); err != nil {
		return Task{}, err
	}
	var created Task
	err := m.inProject(ctx, projectID, func(ctx context.Context, tx PositionTx) error {
		tasks, err := tx.ListByProject(ctx)
		if err != nil {
			return err
		}
		created, err = tx.Create(ctx, draft, nextPosition(tasks))
		return err
	})
	if err != nil {
		return Task{}, err
	}
	log.WithFields(log.Fields{"project": projectID, "task": created.ID, "position": created.Position}).Debug("task appended")
	return created, nil
}

// Remove deletes a task and closes the gap it leaves behind. Survivors keep
// their relative order.
func (m *PositionManager) Remove(ctx context.Context, projectID, taskID string) error {
	var changed int
	err := m.inProject(ctx, projectID, func(ctx context.Context, tx PositionTx) error {
		if err := tx.DeleteByID(ctx, taskID); err != nil {
			return err
		}
		tasks, err := tx.ListByProject(ctx)
		if err != nil {
			return err
		}
		updates := renumber(tasks)
		changed = len(updates)
		if changed == 0 {
			return nil
		}
		return tx.ApplyPositions(ctx, updates)
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"project": projectID, "task": taskID, "renumbered": changed}).Debug("task removed")
	return nil
}

// Reorder moves a task to newPosition among its siblings. Out of range values
// are clamped to [0, n-1]. The moved task is returned with its final position.
func (m *PositionManager) Reorder(ctx context.Context, projectID, taskID string, newPosition int) (Task, error) {
	var moved Task
	err := m.inProject(ctx, projectID, func(ctx context.Context, tx PositionTx) error {
		tasks, err := tx.ListByProject(ctx)
		if err != nil {
			return err
		}
		ordered, ok := moveTask(tasks, taskID, newPosition)
		if !ok {
			return fmt.Errorf("%w: task %s in project %s", ErrNotFound, taskID, projectID)
		}
		for i := range ordered {
			if ordered[i].ID == taskID {
				moved = ordered[i]
				moved.Position = i
				break
			}
		}
		updates := renumber(ordered)
		if len(updates) == 0 {
			return nil
		}
		if err := tx.ApplyPositions(ctx, updates); err != nil {
			return err
		}
		// Re-read so the returned task carries the store's timestamps.
		stored, err := tx.ListByProject(ctx)
		if err != nil {
			return err
		}
		for _, t := range stored {
			if t.ID == taskID {
				moved = t
				return nil
			}
		}
		return fmt.Errorf("%w: task %s in project %s", ErrNotFound, taskID, projectID)
	})
	if err != nil {
		return Task{}, err
	}
	log.WithFields(log.Fields{"project": projectID, "task": taskID, "position": moved.Position}).Debug("task reordered")
	return moved, nil
}

// Normalize rewrites the project's positions to 0..n-1 in their current
// order. It repairs rows written before positions were managed, such as
// several tasks sharing position 0. It returns the number of tasks moved.
func (m *PositionManager) Normalize(ctx context.Context, projectID string) (int, error) {
	var changed int
	err := m.inProject(ctx, projectID, func(ctx context.Context, tx PositionTx) error {
		tasks, err := tx.ListByProject(ctx)
		if err != nil {
			return err
		}
		if contiguous(tasks) {
			return nil
		}
		updates := renumber(tasks)
		changed = len(updates)
		return tx.ApplyPositions(ctx, updates)
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		log.WithFields(log.Fields{"project": projectID, "renumbered": changed}).Info("project positions normalized")
	}
	return changed, nil
}
