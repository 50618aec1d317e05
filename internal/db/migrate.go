package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/hpungsan/scriptflow/internal/project"
)

// SyntheticTimestampStep spaces the timestamps invented for v2 messages.
// The resulting order is a best-effort reconstruction: brainstorm turns are
// placed before assistant turns because their real interleaving is unknown.
const SyntheticTimestampStep = 1000

// layoutSchema creates the projects table. Record shapes evolve inside the
// doc column; the table itself has not changed since v1.
const layoutSchema = `
CREATE TABLE IF NOT EXISTS projects (
  id             INTEGER PRIMARY KEY AUTOINCREMENT,
  schema_version INTEGER NOT NULL,
  created_at     INTEGER NOT NULL,
  updated_at     INTEGER NOT NULL,
  doc            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_updated
ON projects(updated_at DESC);

CREATE INDEX IF NOT EXISTS idx_projects_schema_version
ON projects(schema_version);
`

// MigrationWarning records a project that could not be upgraded.
// The project keeps its old shape; other projects are unaffected.
type MigrationWarning struct {
	ProjectID int64  `json:"project_id"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	Reason    string `json:"reason"`
}

func (w MigrationWarning) String() string {
	return fmt.Sprintf("project %d: v%d -> v%d: %s", w.ProjectID, w.From, w.To, w.Reason)
}

type stepKey struct {
	From, To int
}

// migrationStep is a pure transform from one record shape to the next.
type migrationStep func(Record) (Record, error)

// migrationSteps holds every supported single-version upgrade.
var migrationSteps = map[stepKey]migrationStep{
	{From: 1, To: 2}: upgradeV1ToV2,
	{From: 2, To: 3}: upgradeV2ToV3,
}

// upgradeV1ToV2 gives a script-only project empty chat buckets.
func upgradeV1ToV2(rec Record) (Record, error) {
	r, ok := rec.(V1Record)
	if !ok {
		return nil, fmt.Errorf("v1->v2: unexpected record %T", rec)
	}
	return V2Record{RecordBase: r.RecordBase}, nil
}

// upgradeV2ToV3 merges the two buckets into one log: brainstorm entries first,
// then assistant entries, each keeping its bucket order. Timestamps are
// synthesized from createdAt in SyntheticTimestampStep increments.
func upgradeV2ToV3(rec Record) (Record, error) {
	r, ok := rec.(V2Record)
	if !ok {
		return nil, fmt.Errorf("v2->v3: unexpected record %T", rec)
	}

	buckets := []struct {
		ctx      project.Context
		messages []LegacyMessage
	}{
		{project.ContextBrainstorm, r.ChatHistories.Brainstorm},
		{project.ContextAssistant, r.ChatHistories.Assistant},
	}

	history := make(project.History, 0, len(r.ChatHistories.Brainstorm)+len(r.ChatHistories.Assistant))
	ts := r.CreatedAt
	for _, bucket := range buckets {
		for i, m := range bucket.messages {
			if !m.Role.Valid() {
				return nil, fmt.Errorf("v2->v3: %s message %d has unknown role %q", bucket.ctx, i, m.Role)
			}
			history = append(history, project.ChatMessage{
				Role:      m.Role,
				Parts:     append([]project.Part(nil), m.Parts...),
				Timestamp: ts,
				Context:   bucket.ctx,
			})
			ts += SyntheticTimestampStep
		}
	}

	return V3Record{RecordBase: r.RecordBase, ChatHistory: history}, nil
}

// Upgrade applies migration steps in sequence until rec reaches target.
// A record already at or past target is returned unchanged.
func Upgrade(rec Record, target int) (Record, error) {
	for rec.SchemaVersion() < target {
		from := rec.SchemaVersion()
		step, ok := migrationSteps[stepKey{From: from, To: from + 1}]
		if !ok {
			return nil, fmt.Errorf("no migration from v%d to v%d", from, from+1)
		}
		next, err := step(rec)
		if err != nil {
			return nil, err
		}
		rec = next
	}
	return rec, nil
}

// migrate brings the store to target: a fresh store gets the table layout,
// an older store has its records rewritten.
func migrate(ctx context.Context, db *sql.DB, target int, logger *slog.Logger) ([]MigrationWarning, error) {
	version, err := GetUserVersion(ctx, db)
	if err != nil {
		return nil, err
	}

	if version > target {
		return nil, fmt.Errorf("store schema version %d is newer than supported version %d", version, target)
	}

	if _, err := db.ExecContext(ctx, layoutSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if version == target {
		return nil, nil
	}

	var warnings []MigrationWarning
	if version > 0 {
		logger.Info("migrating store", "from", version, "to", target)
		warnings, err = MigrateRecords(ctx, db, target, logger)
		if err != nil {
			return nil, err
		}
	}

	if err := SetUserVersion(ctx, db, target); err != nil {
		return nil, err
	}
	return warnings, nil
}

// MigrateRecords rewrites every record older than target. Each record is
// handled on its own: a failure becomes a MigrationWarning and the record is
// left as it was. Records already at target are not touched, so running this
// again is a no-op.
func MigrateRecords(ctx context.Context, db *sql.DB, target int, logger *slog.Logger) ([]MigrationWarning, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var rows []projectRow
	err := sqlscan.Select(ctx, db, &rows, `
		SELECT id, schema_version, created_at, updated_at, doc
		FROM projects
		WHERE schema_version < ?
		ORDER BY id
	`, target)
	if err != nil {
		return nil, fmt.Errorf("failed to read records for migration: %w", err)
	}

	var warnings []MigrationWarning
	for _, row := range rows {
		if err := migrateRow(ctx, db, row, target); err != nil {
			w := MigrationWarning{ProjectID: row.ID, From: row.SchemaVersion, To: target, Reason: err.Error()}
			logger.Warn("skipping project during migration", "project_id", w.ProjectID, "from", w.From, "to", w.To, "reason", w.Reason)
			warnings = append(warnings, w)
		}
	}
	return warnings, nil
}

// migrateRow upgrades and rewrites one record. updated_at is left alone:
// a schema upgrade is not a user edit.
func migrateRow(ctx context.Context, db *sql.DB, row projectRow, target int) error {
	rec, err := decodeRecord(row)
	if err != nil {
		return err
	}
	upgraded, err := Upgrade(rec, target)
	if err != nil {
		return err
	}
	doc, err := encodeRecord(upgraded)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		UPDATE projects
		SET schema_version = ?, doc = ?
		WHERE id = ? AND schema_version = ?
	`, upgraded.SchemaVersion(), doc, row.ID, row.SchemaVersion)
	return err
}
