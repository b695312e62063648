package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"taskboard-api/domain"
)

// Options selects and tunes the relational backend.
type Options struct {
	Driver      string // "postgres" or "sqlite"
	DSN         string
	MaxConns    int
	AutoMigrate bool
}

// Storage persists users, projects and tasks in a relational database.
type Storage struct {
	db *gorm.DB
}

// Open connects to the configured database and optionally migrates the schema.
func Open(ctx context.Context, opts Options) (*Storage, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(opts.Driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(opts.DSN)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(sqliteDSN(opts.DSN))
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, classify(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if db.Dialector.Name() == "sqlite" {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else if opts.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxConns)
		sqlDB.SetMaxIdleConns(opts.MaxConns)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	s := &Storage{db: db}
	if opts.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "taskboard.db"
	}
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Migrate creates or updates the schema, including the unique task position index.
func (s *Storage) Migrate(ctx context.Context) error {
	return classify(s.db.WithContext(ctx).AutoMigrate(&userModel{}, &projectModel{}, &taskModel{}))
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// WithinProject locks the project row and runs fn inside one transaction.
func (s *Storage) WithinProject(ctx context.Context, projectID string, fn func(ctx context.Context, tx domain.PositionTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var p projectModel
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", projectID).
			Take(&p).Error
		if err != nil {
			return classify(err)
		}
		return fn(ctx, &projectTx{db: db, projectID: projectID})
	})
	return classify(err)
}

func (s *Storage) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	var m taskModel
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).Take(&m).Error; err != nil {
		return domain.Task{}, classify(err)
	}
	return m.toDomain(), nil
}

func (s *Storage) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	return listTasks(s.db.WithContext(ctx), projectID)
}

// UpdateTask changes title, description and status. Position is never written here.
func (s *Storage) UpdateTask(ctx context.Context, taskID string, upd domain.TaskUpdate) (domain.Task, error) {
	fields := map[string]any{}
	if upd.Title != nil {
		fields["title"] = *upd.Title
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	if upd.Status != nil {
		fields["status"] = string(*upd.Status)
	}

	var out domain.Task
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if len(fields) > 0 {
			res := db.Model(&taskModel{}).Where("id = ?", taskID).Updates(fields)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
			}
		}
		var m taskModel
		if err := db.Where("id = ?", taskID).Take(&m).Error; err != nil {
			return err
		}
		out = m.toDomain()
		return nil
	})
	if err != nil {
		return domain.Task{}, classify(err)
	}
	return out, nil
}

func (s *Storage) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	m := projectModel{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Name:        p.Name,
		Description: p.Description,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&m).Error; err != nil {
		return domain.Project{}, classify(err)
	}
	return m.toDomain(), nil
}

func (s *Storage) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	var m projectModel
	if err := s.db.WithContext(ctx).Where("id = ?", projectID).Take(&m).Error; err != nil {
		return domain.Project{}, classify(err)
	}
	return m.toDomain(), nil
}

func (s *Storage) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	var models []projectModel
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, classify(err)
	}
	out := make([]domain.Project, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (s *Storage) UpdateProject(ctx context.Context, projectID string, upd domain.ProjectUpdate) (domain.Project, error) {
	fields := map[string]any{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}

	var out domain.Project
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if len(fields) > 0 {
			res := db.Model(&projectModel{}).Where("id = ?", projectID).Updates(fields)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: project %s", domain.ErrNotFound, projectID)
			}
		}
		var m projectModel
		if err := db.Where("id = ?", projectID).Take(&m).Error; err != nil {
			return err
		}
		out = m.toDomain()
		return nil
	})
	if err != nil {
		return domain.Project{}, classify(err)
	}
	return out, nil
}

// DeleteProject removes the project and its tasks in one transaction. Tasks are
// deleted explicitly so the result does not depend on FK enforcement.
func (s *Storage) DeleteProject(ctx context.Context, projectID string) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Where("project_id = ?", projectID).Delete(&taskModel{}).Error; err != nil {
			return err
		}
		res := db.Where("id = ?", projectID).Delete(&projectModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: project %s", domain.ErrNotFound, projectID)
		}
		return nil
	})
	return classify(err)
}

func (s *Storage) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	m := userModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.User{}, classify(err)
	}
	return m.toDomain(), nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).Take(&m).Error; err != nil {
		return domain.User{}, classify(err)
	}
	return m.toDomain(), nil
}

func listTasks(db *gorm.DB, projectID string) ([]domain.Task, error) {
	var models []taskModel
	err := db.Where("project_id = ?", projectID).
		Order("position ASC").Order("created_at ASC").Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, classify(err)
	}
	return tasksToDomain(models), nil
}

// projectTx implements domain.PositionTx on top of an open gorm transaction.
type projectTx struct {
	db        *gorm.DB
	projectID string
}

func (t *projectTx) ListByProject(ctx context.Context) ([]domain.Task, error) {
	return listTasks(t.db.WithContext(ctx), t.projectID)
}

func (t *projectTx) Create(ctx context.Context, draft domain.TaskDraft, position int) (domain.Task, error) {
	m := taskModel{
		ID:          uuid.NewString(),
		ProjectID:   t.projectID,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      string(draft.Status),
		Position:    position,
	}
	if m.Status == "" {
		m.Status = string(domain.StatusTodo)
	}
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Task{}, classify(err)
	}
	return m.toDomain(), nil
}

func (t *projectTx) DeleteByID(ctx context.Context, taskID string) error {
	res := t.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", taskID, t.projectID).
		Delete(&taskModel{})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	return nil
}

// ApplyPositions moves every touched row to a unique negative slot first and
// then to its final value, so the unique index never sees a transient clash.
func (t *projectTx) ApplyPositions(ctx context.Context, updates []domain.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	db := t.db.WithContext(ctx)
	for i, u := range updates {
		if err := t.setPosition(db, u.TaskID, -(i + 1)); err != nil {
			return err
		}
	}
	for _, u := range updates {
		if u.Position < 0 {
			return fmt.Errorf("%w: negative position %d", domain.ErrInvalidInput, u.Position)
		}
		if err := t.setPosition(db, u.TaskID, u.Position); err != nil {
			return err
		}
	}
	return nil
}

func (t *projectTx) setPosition(db *gorm.DB, taskID string, position int) error {
	res := db.Model(&taskModel{}).
		Where("id = ? AND project_id = ?", taskID, t.projectID).
		Update("position", position)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	return nil
}
