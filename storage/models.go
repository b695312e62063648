package storage

import (
	"time"

	"taskboard-api/domain"
)

type userModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string
	Email        string `gorm:"size:320;not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

type projectModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	OwnerID     string `gorm:"size:128;not null;index"`
	Name        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Tasks       []taskModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (projectModel) TableName() string { return "projects" }

// taskModel carries a unique (project_id, position) index so that two writers
// can never both commit the same slot.
type taskModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	ProjectID   string `gorm:"size:36;not null;uniqueIndex:idx_tasks_project_position,priority:1"`
	Title       string `gorm:"not null"`
	Description string
	Status      string `gorm:"size:16;not null;default:todo"`
	Position    int    `gorm:"not null;uniqueIndex:idx_tasks_project_position,priority:2"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (taskModel) TableName() string { return "tasks" }

func (m taskModel) toDomain() domain.Task {
	return domain.Task{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Title:       m.Title,
		Description: m.Description,
		Status:      domain.Status(m.Status),
		Position:    m.Position,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func (m projectModel) toDomain() domain.Project {
	return domain.Project{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func (m userModel) toDomain() domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

func tasksToDomain(models []taskModel) []domain.Task {
	out := make([]domain.Task, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out
}
