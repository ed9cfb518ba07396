package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Meant for local
// single-user setups; the review workflow and commit transaction behave
// the same as on postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS subjects (
	person_id   INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	birth_year  INTEGER,
	death_year  INTEGER,
	death_info  TEXT,
	enriched_at DATETIME,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_subjects_enriched_at ON subjects(enriched_at);
CREATE INDEX IF NOT EXISTS idx_subjects_death_year ON subjects(death_year);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	config        TEXT NOT NULL,
	stats         TEXT,
	exit_reason   TEXT,
	review_status TEXT NOT NULL DEFAULT 'pending',
	started_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_review_status ON runs(review_status);

CREATE TABLE IF NOT EXISTS run_subject_attempts (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL REFERENCES runs(id),
	person_id       INTEGER NOT NULL,
	enriched        INTEGER NOT NULL DEFAULT 0,
	created_staging INTEGER NOT NULL DEFAULT 0,
	confidence      REAL,
	sources         TEXT,
	winning_source  TEXT,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	cost_usd        REAL NOT NULL DEFAULT 0,
	pages_fetched   INTEGER NOT NULL DEFAULT 0,
	error           TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON run_subject_attempts(run_id);

CREATE TABLE IF NOT EXISTS staging_records (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	attempt_id   TEXT,
	person_id    INTEGER NOT NULL,
	subject_name TEXT,
	fields       TEXT NOT NULL,
	raw_sources  TEXT,
	sources_used TEXT,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_staging_run_id ON staging_records(run_id);
CREATE INDEX IF NOT EXISTS idx_staging_status ON staging_records(status);

CREATE TABLE IF NOT EXISTS review_decisions (
	id               TEXT PRIMARY KEY,
	staging_id       TEXT NOT NULL REFERENCES staging_records(id),
	decision         TEXT NOT NULL,
	reviewer         TEXT NOT NULL,
	notes            TEXT,
	rejection_reason TEXT,
	original         TEXT,
	edited           TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	committed_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_decisions_staging_id ON review_decisions(staging_id);

CREATE TABLE IF NOT EXISTS subject_cache (
	person_id INTEGER NOT NULL,
	cache_key TEXT NOT NULL,
	payload   TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (person_id, cache_key)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Subjects

func (s *SQLiteStore) ListSubjects(ctx context.Context, f SubjectFilter) ([]model.Subject, error) {
	query := `SELECT person_id, name, birth_year, death_year, death_info, enriched_at FROM subjects WHERE death_year IS NOT NULL`
	var args []any

	if len(f.PersonIDs) > 0 {
		query += ` AND person_id IN (` + placeholders(len(f.PersonIDs)) + `)`
		for _, id := range f.PersonIDs {
			args = append(args, id)
		}
	}
	if f.MissingOnly {
		query += ` AND enriched_at IS NULL`
	}
	query += ` ORDER BY person_id`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list subjects")
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		subj, err := sqliteScanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, *subj)
	}
	return subjects, eris.Wrap(rows.Err(), "sqlite: list subjects iterate")
}

func (s *SQLiteStore) GetSubject(ctx context.Context, personID int) (*model.Subject, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT person_id, name, birth_year, death_year, death_info, enriched_at FROM subjects WHERE person_id = ?`,
		personID,
	)
	subj, err := sqliteScanSubject(row)
	if err != nil {
		if errors.Is(eris.Cause(err), sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return subj, nil
}

func sqliteScanSubject(row scannable) (*model.Subject, error) {
	var subj model.Subject
	var birthYear, deathYear sql.NullInt64
	var deathInfo sql.NullString
	var enrichedAt sql.NullTime

	if err := row.Scan(&subj.PersonID, &subj.Name, &birthYear, &deathYear, &deathInfo, &enrichedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan subject")
	}
	if birthYear.Valid {
		subj.BirthYear = int(birthYear.Int64)
	}
	if deathYear.Valid {
		subj.DeathYear = int(deathYear.Int64)
	}
	if deathInfo.Valid && deathInfo.String != "" {
		if err := json.Unmarshal([]byte(deathInfo.String), &subj.Death); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal death info")
		}
	}
	if enrichedAt.Valid {
		t := enrichedAt.Time
		subj.EnrichedAt = &t
	}
	return &subj, nil
}

func (s *SQLiteStore) UpsertSubjects(ctx context.Context, subjects []model.Subject) (int, error) {
	if len(subjects) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert subjects: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO subjects (person_id, name, birth_year, death_year, updated_at)
		 VALUES (?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (person_id) DO UPDATE SET name = excluded.name, birth_year = excluded.birth_year, death_year = excluded.death_year, updated_at = datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert subjects: prepare")
	}
	defer stmt.Close()

	for _, subj := range subjects {
		if _, err := stmt.ExecContext(ctx, subj.PersonID, subj.Name, nullYear(subj.BirthYear), nullYear(subj.DeathYear)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert subject %d", subj.PersonID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert subjects: commit tx")
	}
	return len(subjects), nil
}

// Runs

func (s *SQLiteStore) CreateRun(ctx context.Context, cfg model.RunConfig, subjectsQueried int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run config")
	}
	stats := model.RunStats{SubjectsQueried: subjectsQueried}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run stats")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, config, stats, review_status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(cfgJSON), string(statsJSON), string(model.ReviewPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:           id,
		Config:       cfg,
		Stats:        stats,
		ReviewStatus: model.ReviewPending,
		StartedAt:    now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStats(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stats = ? WHERE id = ?`,
		string(statsJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run stats %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, stats model.RunStats, reason model.ExitReason) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stats = ?, exit_reason = ?, completed_at = ? WHERE id = ?`,
		string(statsJSON), string(reason), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, config, stats, exit_reason, review_status, started_at, completed_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := sqliteScanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, config, stats, exit_reason, review_status, started_at, completed_at FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := sqliteScanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func sqliteScanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var cfgJSON string
	var statsJSON, exitReason sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(&r.ID, &cfgJSON, &statsJSON, &exitReason, &r.ReviewStatus, &r.StartedAt, &completedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run config")
	}
	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run stats")
		}
	}
	if exitReason.Valid {
		r.ExitReason = model.ExitReason(exitReason.String)
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

// Attempts

func (s *SQLiteStore) CreateAttempt(ctx context.Context, att *model.SubjectAttempt) error {
	sourcesJSON, err := json.Marshal(att.SourcesAttempted)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal attempt sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_subject_attempts (id, run_id, person_id, enriched, created_staging, confidence, sources, winning_source, duration_ms, cost_usd, pages_fetched, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		att.ID, att.RunID, att.PersonID, att.Enriched, att.CreatedStaging,
		att.Confidence, string(sourcesJSON), att.WinningSource, att.DurationMS,
		att.CostUSD, att.PagesFetched, att.Error, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert attempt for run %s", att.RunID)
}

// Staging and review

func (s *SQLiteStore) CreateStagingRecord(ctx context.Context, rec *model.StagingRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = model.StagingPending
	}

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal staging fields")
	}
	sourcesJSON, err := json.Marshal(rec.SourcesUsed)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources used")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO staging_records (id, run_id, attempt_id, person_id, subject_name, fields, raw_sources, sources_used, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.AttemptID, rec.PersonID, rec.SubjectName,
		string(fieldsJSON), string(rec.RawSources), string(sourcesJSON), string(rec.Status), now, now,
	)
	return eris.Wrapf(err, "sqlite: insert staging record for person %d", rec.PersonID)
}

func (s *SQLiteStore) GetStagingRecord(ctx context.Context, id string) (*model.StagingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, attempt_id, person_id, subject_name, fields, raw_sources, sources_used, status, created_at, updated_at
		 FROM staging_records WHERE id = ?`,
		id,
	)
	rec, err := sqliteScanStaging(row)
	if err != nil {
		if errors.Is(eris.Cause(err), sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get staging record %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListStaging(ctx context.Context, f StagingFilter) ([]model.StagingRecord, error) {
	query := `SELECT id, run_id, attempt_id, person_id, subject_name, fields, raw_sources, sources_used, status, created_at, updated_at FROM staging_records WHERE 1=1`
	var args []any

	if f.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, f.RunID)
	}
	if len(f.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list staging records")
	}
	defer rows.Close()

	var recs []model.StagingRecord
	for rows.Next() {
		rec, err := sqliteScanStaging(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list staging iterate")
}

func sqliteScanStaging(row scannable) (*model.StagingRecord, error) {
	var rec model.StagingRecord
	var fieldsJSON string
	var attemptID, subjectName, rawSources, sourcesJSON sql.NullString

	if err := row.Scan(&rec.ID, &rec.RunID, &attemptID, &rec.PersonID, &subjectName,
		&fieldsJSON, &rawSources, &sourcesJSON, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan staging record")
	}
	rec.AttemptID = attemptID.String
	rec.SubjectName = subjectName.String
	if rawSources.Valid {
		rec.RawSources = []byte(rawSources.String)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal staging fields")
	}
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		if err := json.Unmarshal([]byte(sourcesJSON.String), &rec.SourcesUsed); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal sources used")
		}
	}
	return &rec, nil
}

func (s *SQLiteStore) UpdateStagingStatus(ctx context.Context, id string, status model.StagingStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE staging_records SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update staging status %s", id)
	}
	return checkRowsAffected(res, "staging record", id)
}

func (s *SQLiteStore) UpdateStagingFields(ctx context.Context, id string, fields model.DeathFields) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal staging fields")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE staging_records SET fields = ?, updated_at = ? WHERE id = ?`,
		string(fieldsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update staging fields %s", id)
	}
	return checkRowsAffected(res, "staging record", id)
}

func (s *SQLiteStore) CreateReviewDecision(ctx context.Context, d *model.ReviewDecision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	var originalJSON, editedJSON any
	if d.Original != nil {
		b, err := json.Marshal(d.Original)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal original fields")
		}
		originalJSON = string(b)
	}
	if d.Edited != nil {
		b, err := json.Marshal(d.Edited)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal edited fields")
		}
		editedJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review_decisions (id, staging_id, decision, reviewer, notes, rejection_reason, original, edited, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.StagingID, string(d.Decision), d.Reviewer, d.Notes,
		d.RejectionReason, originalJSON, editedJSON, d.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert review decision for staging %s", d.StagingID)
}

func (s *SQLiteStore) CommitRun(ctx context.Context, runID, reviewer string) (*CommitResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: commit run: begin tx")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, person_id, subject_name, fields FROM staging_records
		 WHERE run_id = ? AND status IN (?, ?)
		 ORDER BY person_id`,
		runID, string(model.StagingApproved), string(model.StagingEdited),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: commit run: select eligible")
	}

	type eligible struct {
		stagingID   string
		personID    int
		subjectName string
		fields      model.DeathFields
	}
	var pending []eligible
	for rows.Next() {
		var e eligible
		var name sql.NullString
		var fieldsJSON string
		if err := rows.Scan(&e.stagingID, &e.personID, &name, &fieldsJSON); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: commit run: scan eligible")
		}
		e.subjectName = name.String
		if err := json.Unmarshal([]byte(fieldsJSON), &e.fields); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: commit run: unmarshal fields")
		}
		pending = append(pending, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit run: iterate eligible")
	}

	if len(pending) == 0 {
		return &CommitResult{}, nil
	}

	now := time.Now().UTC()
	result := &CommitResult{}
	for _, e := range pending {
		var existingJSON sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT death_info FROM subjects WHERE person_id = ?`,
			e.personID,
		).Scan(&existingJSON)
		if err != nil && err != sql.ErrNoRows {
			return nil, eris.Wrapf(err, "sqlite: commit run: read subject %d", e.personID)
		}

		merged := e.fields
		if existingJSON.Valid && existingJSON.String != "" {
			var existing model.DeathFields
			if err := json.Unmarshal([]byte(existingJSON.String), &existing); err != nil {
				return nil, eris.Wrapf(err, "sqlite: commit run: unmarshal subject %d", e.personID)
			}
			merged = e.fields.Coalesce(existing)
		}
		mergedJSON, err := json.Marshal(merged)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: commit run: marshal merged fields")
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO subjects (person_id, name, death_info, enriched_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (person_id) DO UPDATE SET death_info = excluded.death_info, enriched_at = excluded.enriched_at, updated_at = excluded.updated_at`,
			e.personID, e.subjectName, string(mergedJSON), now, now,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: commit run: update subject %d", e.personID)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE staging_records SET status = ?, updated_at = ? WHERE id = ?`,
			string(model.StagingCommitted), now, e.stagingID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: commit run: mark staging %s", e.stagingID)
		}

		stamp, err := tx.ExecContext(ctx,
			`UPDATE review_decisions SET committed_at = ?
			 WHERE id = (SELECT id FROM review_decisions WHERE staging_id = ? ORDER BY created_at DESC LIMIT 1)`,
			now, e.stagingID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: commit run: stamp decision for %s", e.stagingID)
		}
		// A commit-eligible record with no decision row means the audit
		// trail is broken; roll the whole commit back.
		if n, err := stamp.RowsAffected(); err != nil {
			return nil, eris.Wrapf(err, "sqlite: commit run: stamp decision for %s", e.stagingID)
		} else if n == 0 {
			return nil, eris.Errorf("sqlite: commit run: no review decision to stamp for staging %s", e.stagingID)
		}

		result.Committed++
		result.PersonIDs = append(result.PersonIDs, e.personID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET review_status = ? WHERE id = ?`,
		string(model.ReviewCommitted), runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit run: mark run %s", runID)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit run: commit tx")
	}
	return result, nil
}

func (s *SQLiteStore) InvalidateSubjectCache(ctx context.Context, personIDs []int) (int, error) {
	if len(personIDs) == 0 {
		return 0, nil
	}
	args := make([]any, len(personIDs))
	for i, id := range personIDs {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subject_cache WHERE person_id IN (`+placeholders(len(personIDs))+`)`,
		args...,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: invalidate subject cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}
