package db

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
)

const selectColumns = `SELECT id, schema_version, created_at, updated_at, doc FROM projects`

// CreateParams holds the caller-supplied fields of a new project.
type CreateParams struct {
	Title       string
	Script      string
	ChatHistory project.History
}

// UpdateFields lists the fields to replace. nil means "leave unchanged".
// ChatHistory replaces the whole list; callers pass the complete result.
type UpdateFields struct {
	Title       *string
	Script      *string
	ChatHistory *project.History

	// EditScript derives the new script from the stored one inside the
	// update transaction. It runs after Script is applied. An error aborts
	// the update and is returned unchanged.
	EditScript func(current string) (string, error)
}

// Empty reports whether no field is set.
func (f UpdateFields) Empty() bool {
	return f.Title == nil && f.Script == nil && f.ChatHistory == nil && f.EditScript == nil
}

// ListResult is every readable project plus the number of stored records
// that could not be read.
type ListResult struct {
	Projects []*project.Project
	Skipped  int
}

// Create stores a new project and returns its id.
// createdAt and updatedAt are both set to now.
func (s *Store) Create(ctx context.Context, params CreateParams) (int64, error) {
	db, err := s.writeHandle(ctx)
	if err != nil {
		return 0, err
	}

	now := s.nowMillis()
	p := &project.Project{
		Title:       params.Title,
		Script:      params.Script,
		CreatedAt:   now,
		UpdatedAt:   now,
		ChatHistory: params.ChatHistory,
	}

	rec, err := recordForVersion(p, s.version)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	doc, err := encodeRecord(rec)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO projects (schema_version, created_at, updated_at, doc)
		VALUES (?, ?, ?, ?)
	`, rec.SchemaVersion(), p.CreatedAt, p.UpdatedAt, doc)
	if err != nil {
		s.logger.Warn("create rejected", "error", err)
		return 0, errors.NewWriteFailed(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewWriteFailed(err)
	}
	s.logger.Debug("project created", "project_id", id)
	return id, nil
}

// GetByID returns the project with the given id in the current schema shape.
func (s *Store) GetByID(ctx context.Context, id int64) (*project.Project, error) {
	db, err := s.readHandle(ctx)
	if err != nil {
		return nil, err
	}
	return getByID(ctx, db, id)
}

// GetAll returns every readable project, most recently updated first.
// Projects that cannot be upgraded are skipped and logged.
func (s *Store) GetAll(ctx context.Context) ([]*project.Project, error) {
	res, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return res.Projects, nil
}

// List is GetAll that also counts the skipped records. The count is taken
// from the rows themselves, so it holds on every open, not only the one
// that ran the migration.
func (s *Store) List(ctx context.Context) (*ListResult, error) {
	db, err := s.readHandle(ctx)
	if err != nil {
		return nil, err
	}

	var rows []projectRow
	if err := sqlscan.Select(ctx, db, &rows, selectColumns+` ORDER BY updated_at DESC, id DESC`); err != nil {
		return nil, errors.NewInternal(err)
	}

	res := &ListResult{Projects: make([]*project.Project, 0, len(rows))}
	for _, row := range rows {
		p, err := rowToProject(row)
		if err != nil {
			s.logger.Warn("skipping unreadable project", "project_id", row.ID, "error", err)
			res.Skipped++
			continue
		}
		res.Projects = append(res.Projects, p)
	}
	return res, nil
}

// Update applies fields to the stored project and bumps updatedAt.
// The read-modify-write runs in one transaction, and writes through this
// Store are serialized, so a failed write leaves the record as it was.
func (s *Store) Update(ctx context.Context, id int64, fields UpdateFields) (*project.Project, error) {
	db, err := s.writeHandle(ctx)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewWriteFailed(err)
	}
	defer tx.Rollback()

	p, err := getByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if fields.Title != nil {
		p.Title = *fields.Title
	}
	if fields.Script != nil {
		p.Script = *fields.Script
	}
	if fields.EditScript != nil {
		script, err := fields.EditScript(p.Script)
		if err != nil {
			return nil, err
		}
		p.Script = script
	}
	if fields.ChatHistory != nil {
		p.ChatHistory = fields.ChatHistory.Clone()
		if p.ChatHistory == nil {
			p.ChatHistory = project.History{}
		}
	}

	// updatedAt never moves backwards, even if the clock does
	if now := s.nowMillis(); now > p.UpdatedAt {
		p.UpdatedAt = now
	}

	rec, err := recordForVersion(p, s.version)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	doc, err := encodeRecord(rec)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE projects
		SET schema_version = ?, updated_at = ?, doc = ?
		WHERE id = ?
	`, rec.SchemaVersion(), p.UpdatedAt, doc, id)
	if err != nil {
		s.logger.Warn("update rejected", "project_id", id, "error", err)
		return nil, errors.NewWriteFailed(err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, errors.NewWriteFailed(err)
	} else if n == 0 {
		return nil, errors.NewNotFound(id)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Warn("update commit failed", "project_id", id, "error", err)
		return nil, errors.NewWriteFailed(err)
	}
	return p, nil
}

// UpdateChatHistory replaces only the chat history of a project.
func (s *Store) UpdateChatHistory(ctx context.Context, id int64, history project.History) (*project.Project, error) {
	return s.Update(ctx, id, UpdateFields{ChatHistory: &history})
}

// getByID reads and upgrades one project using q (a *sql.DB or *sql.Tx).
func getByID(ctx context.Context, q sqlscan.Querier, id int64) (*project.Project, error) {
	var row projectRow
	err := sqlscan.Get(ctx, q, &row, selectColumns+` WHERE id = ?`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	p, err := rowToProject(row)
	if err != nil {
		return nil, errors.NewRecordUnreadable(id, err)
	}
	return p, nil
}

// rowToProject decodes a row and upgrades it to the current shape in memory.
func rowToProject(row projectRow) (*project.Project, error) {
	rec, err := decodeRecord(row)
	if err != nil {
		return nil, err
	}
	upgraded, err := Upgrade(rec, CurrentSchemaVersion)
	if err != nil {
		return nil, err
	}
	current, ok := upgraded.(V3Record)
	if !ok {
		return nil, stderrors.New("record did not reach the current schema")
	}
	return current.Project(), nil
}

// readHandle opens the store for a read; a closed store is unavailable.
func (s *Store) readHandle(ctx context.Context) (*sql.DB, error) {
	db, err := s.handle(ctx)
	if stderrors.Is(err, ErrClosed) {
		return nil, errors.NewStoreUnavailable(err)
	}
	return db, err
}

// writeHandle opens the store for a write; a closed store rejects the write.
func (s *Store) writeHandle(ctx context.Context) (*sql.DB, error) {
	db, err := s.handle(ctx)
	if stderrors.Is(err, ErrClosed) {
		return nil, errors.NewWriteFailed(err)
	}
	return db, err
}

func (s *Store) nowMillis() int64 {
	return project.Millis(s.now())
}
