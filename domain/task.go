package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// ParseStatus normalises user supplied status values. An empty value maps to todo.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "todo":
		return StatusTodo, nil
	case "in-progress", "inprogress", "in_progress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
}

// boardRank orders status buckets for the board view.
func (s Status) boardRank() int {
	switch s {
	case StatusInProgress:
		return 0
	case StatusTodo:
		return 1
	case StatusDone:
		return 2
	}
	return 3
}

// Task represents a single board item of a project.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskDraft carries the caller controlled fields of a new task. Position is
// deliberately absent: it is assigned on append.
type TaskDraft struct {
	Title       string
	Description string
	Status      Status
}

// Validate trims the draft and checks required fields.
func (d *TaskDraft) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if d.Status == "" {
		d.Status = StatusTodo
	}
	if d.Status.boardRank() > 2 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, d.Status)
	}
	return nil
}

// TaskUpdate carries partial field updates. It has no position field.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *Status
}

// Empty reports whether the update changes nothing.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil
}

// Validate normalises the update in place.
func (u *TaskUpdate) Validate() error {
	if u.Title != nil {
		t := strings.TrimSpace(*u.Title)
		if t == "" {
			return fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
		}
		u.Title = &t
	}
	if u.Status != nil && u.Status.boardRank() > 2 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *u.Status)
	}
	return nil
}

// SortForBoard returns a copy of tasks ordered for display: in-progress first,
// then todo, then done, each bucket by position.
func SortForBoard(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Status.boardRank(), out[j].Status.boardRank()
		if ri != rj {
			return ri < rj
		}
		return out[i].Position < out[j].Position
	})
	return out
}
