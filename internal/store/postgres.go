package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/deadonfilm/deadonfilm/internal/db"
	"github.com/deadonfilm/deadonfilm/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_subject":           `SELECT person_id, name, birth_year, death_year, death_info, enriched_at FROM subjects WHERE person_id = $1`,
	"insert_attempt":        `INSERT INTO run_subject_attempts (id, run_id, person_id, enriched, created_staging, confidence, sources, winning_source, duration_ms, cost_usd, pages_fetched, error, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
	"insert_staging":        `INSERT INTO staging_records (id, run_id, attempt_id, person_id, subject_name, fields, raw_sources, sources_used, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"get_staging":           `SELECT id, run_id, attempt_id, person_id, subject_name, fields, raw_sources, sources_used, status, created_at, updated_at FROM staging_records WHERE id = $1`,
	"update_staging_status": `UPDATE staging_records SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_run_stats":      `UPDATE runs SET stats = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock
// and by the sync command, which shares its pool with the bulk loader.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., the IMDb bulk loader).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS subjects (
	person_id   INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	birth_year  INTEGER,
	death_year  INTEGER,
	death_info  JSONB,
	enriched_at TIMESTAMPTZ,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_subjects_enriched_at ON subjects(enriched_at);
CREATE INDEX IF NOT EXISTS idx_subjects_death_year ON subjects(death_year);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	config        JSONB NOT NULL,
	stats         JSONB,
	exit_reason   TEXT,
	review_status TEXT NOT NULL DEFAULT 'pending',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_review_status ON runs(review_status);

CREATE TABLE IF NOT EXISTS run_subject_attempts (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id          TEXT NOT NULL REFERENCES runs(id),
	person_id       INTEGER NOT NULL,
	enriched        BOOLEAN NOT NULL DEFAULT false,
	created_staging BOOLEAN NOT NULL DEFAULT false,
	confidence      DOUBLE PRECISION,
	sources         JSONB,
	winning_source  TEXT,
	duration_ms     BIGINT NOT NULL DEFAULT 0,
	cost_usd        DOUBLE PRECISION NOT NULL DEFAULT 0,
	pages_fetched   INTEGER NOT NULL DEFAULT 0,
	error           TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON run_subject_attempts(run_id);
CREATE INDEX IF NOT EXISTS idx_attempts_person_id ON run_subject_attempts(person_id);

CREATE TABLE IF NOT EXISTS staging_records (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	attempt_id   TEXT,
	person_id    INTEGER NOT NULL,
	subject_name TEXT,
	fields       JSONB NOT NULL,
	raw_sources  JSONB,
	sources_used JSONB,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_staging_run_id ON staging_records(run_id);
CREATE INDEX IF NOT EXISTS idx_staging_status ON staging_records(status);
CREATE INDEX IF NOT EXISTS idx_staging_person_id ON staging_records(person_id);

CREATE TABLE IF NOT EXISTS review_decisions (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	staging_id       TEXT NOT NULL REFERENCES staging_records(id),
	decision         TEXT NOT NULL,
	reviewer         TEXT NOT NULL,
	notes            TEXT,
	rejection_reason TEXT,
	original         JSONB,
	edited           JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	committed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_decisions_staging_id ON review_decisions(staging_id);

CREATE TABLE IF NOT EXISTS subject_cache (
	person_id INTEGER NOT NULL,
	cache_key TEXT NOT NULL,
	payload   JSONB NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (person_id, cache_key)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Subjects

func (s *PostgresStore) ListSubjects(ctx context.Context, f SubjectFilter) ([]model.Subject, error) {
	query := `SELECT person_id, name, birth_year, death_year, death_info, enriched_at FROM subjects WHERE death_year IS NOT NULL`
	args := []any{}
	argIdx := 1

	if len(f.PersonIDs) > 0 {
		query += fmt.Sprintf(` AND person_id = ANY($%d)`, argIdx)
		args = append(args, f.PersonIDs)
		argIdx++
	}
	if f.MissingOnly {
		query += ` AND enriched_at IS NULL`
	}
	query += ` ORDER BY person_id`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list subjects")
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		subj, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, *subj)
	}
	return subjects, eris.Wrap(rows.Err(), "postgres: list subjects iterate")
}

func (s *PostgresStore) GetSubject(ctx context.Context, personID int) (*model.Subject, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT person_id, name, birth_year, death_year, death_info, enriched_at FROM subjects WHERE person_id = $1`,
		personID,
	)
	subj, err := scanSubject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return subj, nil
}

func scanSubject(row pgx.Row) (*model.Subject, error) {
	var subj model.Subject
	var birthYear, deathYear *int
	var deathInfo []byte

	if err := row.Scan(&subj.PersonID, &subj.Name, &birthYear, &deathYear, &deathInfo, &subj.EnrichedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan subject")
	}
	if birthYear != nil {
		subj.BirthYear = *birthYear
	}
	if deathYear != nil {
		subj.DeathYear = *deathYear
	}
	if len(deathInfo) > 0 {
		if err := json.Unmarshal(deathInfo, &subj.Death); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal death info")
		}
	}
	return &subj, nil
}

// UpsertSubjects bulk-loads subjects, updating identity columns on conflict
// but never touching death_info or enriched_at. The IMDb sync calls this
// on every refresh; committed enrichments must survive it.
func (s *PostgresStore) UpsertSubjects(ctx context.Context, subjects []model.Subject) (int, error) {
	rows := make([][]any, 0, len(subjects))
	for _, subj := range subjects {
		rows = append(rows, []any{subj.PersonID, subj.Name, nullYear(subj.BirthYear), nullYear(subj.DeathYear)})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "subjects",
		Columns:      []string{"person_id", "name", "birth_year", "death_year"},
		ConflictKeys: []string{"person_id"},
		UpdateCols:   []string{"name", "birth_year", "death_year"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert subjects")
	}
	return int(n), nil
}

func nullYear(y int) any {
	if y == 0 {
		return nil
	}
	return y
}

// Runs

func (s *PostgresStore) CreateRun(ctx context.Context, cfg model.RunConfig, subjectsQueried int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run config")
	}
	stats := model.RunStats{SubjectsQueried: subjectsQueried}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run stats")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, config, stats, review_status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, cfgJSON, statsJSON, string(model.ReviewPending), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:           id,
		Config:       cfg,
		Stats:        stats,
		ReviewStatus: model.ReviewPending,
		StartedAt:    now,
	}, nil
}

func (s *PostgresStore) UpdateRunStats(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET stats = $1 WHERE id = $2`,
		statsJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run stats %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, stats model.RunStats, reason model.ExitReason) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET stats = $1, exit_reason = $2, completed_at = $3 WHERE id = $4`,
		statsJSON, string(reason), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, config, stats, exit_reason, review_status, started_at, completed_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, config, stats, exit_reason, review_status, started_at, completed_at FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var cfgJSON, statsJSON []byte
	var exitReason *string

	if err := row.Scan(&r.ID, &cfgJSON, &statsJSON, &exitReason, &r.ReviewStatus, &r.StartedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfgJSON, &r.Config); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run config")
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run stats")
		}
	}
	if exitReason != nil {
		r.ExitReason = model.ExitReason(*exitReason)
	}
	return &r, nil
}

// Attempts

func (s *PostgresStore) CreateAttempt(ctx context.Context, att *model.SubjectAttempt) error {
	sourcesJSON, err := json.Marshal(att.SourcesAttempted)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal attempt sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_subject_attempts (id, run_id, person_id, enriched, created_staging, confidence, sources, winning_source, duration_ms, cost_usd, pages_fetched, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		att.ID, att.RunID, att.PersonID, att.Enriched, att.CreatedStaging,
		att.Confidence, sourcesJSON, att.WinningSource, att.DurationMS,
		att.CostUSD, att.PagesFetched, att.Error, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert attempt for run %s", att.RunID)
}

// Staging and review

func (s *PostgresStore) CreateStagingRecord(ctx context.Context, rec *model.StagingRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = model.StagingPending
	}

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal staging fields")
	}
	sourcesJSON, err := json.Marshal(rec.SourcesUsed)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources used")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO staging_records (id, run_id, attempt_id, person_id, subject_name, fields, raw_sources, sources_used, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.RunID, rec.AttemptID, rec.PersonID, rec.SubjectName,
		fieldsJSON, rec.RawSources, sourcesJSON, string(rec.Status), now, now,
	)
	return eris.Wrapf(err, "postgres: insert staging record for person %d", rec.PersonID)
}

func (s *PostgresStore) GetStagingRecord(ctx context.Context, id string) (*model.StagingRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, run_id, attempt_id, person_id, subject_name, fields, raw_sources, sources_used, status, created_at, updated_at
		 FROM staging_records WHERE id = $1`,
		id,
	)
	rec, err := scanStaging(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get staging record %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListStaging(ctx context.Context, f StagingFilter) ([]model.StagingRecord, error) {
	query := `SELECT id, run_id, attempt_id, person_id, subject_name, fields, raw_sources, sources_used, status, created_at, updated_at FROM staging_records WHERE true`
	args := []any{}
	argIdx := 1

	if f.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, f.RunID)
		argIdx++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		query += fmt.Sprintf(` AND status = ANY($%d)`, argIdx)
		args = append(args, statuses)
		argIdx++
	}
	query += ` ORDER BY created_at ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list staging records")
	}
	defer rows.Close()

	var recs []model.StagingRecord
	for rows.Next() {
		rec, err := scanStaging(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan staging record")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list staging iterate")
}

func scanStaging(row pgx.Row) (*model.StagingRecord, error) {
	var rec model.StagingRecord
	var fieldsJSON, sourcesJSON []byte
	var attemptID, subjectName *string

	if err := row.Scan(&rec.ID, &rec.RunID, &attemptID, &rec.PersonID, &subjectName,
		&fieldsJSON, &rec.RawSources, &sourcesJSON, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if attemptID != nil {
		rec.AttemptID = *attemptID
	}
	if subjectName != nil {
		rec.SubjectName = *subjectName
	}
	if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal staging fields")
	}
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &rec.SourcesUsed); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal sources used")
		}
	}
	return &rec, nil
}

func (s *PostgresStore) UpdateStagingStatus(ctx context.Context, id string, status model.StagingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE staging_records SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update staging status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("staging record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateStagingFields(ctx context.Context, id string, fields model.DeathFields) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal staging fields")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE staging_records SET fields = $1, updated_at = $2 WHERE id = $3`,
		fieldsJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update staging fields %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("staging record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateReviewDecision(ctx context.Context, d *model.ReviewDecision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	var originalJSON, editedJSON []byte
	var err error
	if d.Original != nil {
		if originalJSON, err = json.Marshal(d.Original); err != nil {
			return eris.Wrap(err, "postgres: marshal original fields")
		}
	}
	if d.Edited != nil {
		if editedJSON, err = json.Marshal(d.Edited); err != nil {
			return eris.Wrap(err, "postgres: marshal edited fields")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_decisions (id, staging_id, decision, reviewer, notes, rejection_reason, original, edited, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.StagingID, string(d.Decision), d.Reviewer, d.Notes,
		d.RejectionReason, originalJSON, editedJSON, d.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert review decision for staging %s", d.StagingID)
}

// CommitRun promotes a run's approved and edited staging records into the
// subjects table. Everything happens in one transaction: either every
// eligible record lands or none do. Staged fields are merged over the
// subject's existing death info field by field, so a commit never blanks
// a value a previous run filled in.
func (s *PostgresStore) CommitRun(ctx context.Context, runID, reviewer string) (*CommitResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: commit run: begin tx")
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT id, person_id, subject_name, fields FROM staging_records
		 WHERE run_id = $1 AND status = ANY($2)
		 ORDER BY person_id FOR UPDATE`,
		runID, []string{string(model.StagingApproved), string(model.StagingEdited)},
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: commit run: select eligible")
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
		var name *string
		var fieldsJSON []byte
		if err := rows.Scan(&e.stagingID, &e.personID, &name, &fieldsJSON); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: commit run: scan eligible")
		}
		if name != nil {
			e.subjectName = *name
		}
		if err := json.Unmarshal(fieldsJSON, &e.fields); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: commit run: unmarshal fields")
		}
		pending = append(pending, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: commit run: iterate eligible")
	}

	// Nothing to do: committing an already-committed run is a no-op.
	if len(pending) == 0 {
		return &CommitResult{}, nil
	}

	now := time.Now().UTC()
	result := &CommitResult{}
	for _, e := range pending {
		var existingJSON []byte
		err := tx.QueryRow(ctx,
			`SELECT death_info FROM subjects WHERE person_id = $1`,
			e.personID,
		).Scan(&existingJSON)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(err, "postgres: commit run: read subject %d", e.personID)
		}

		merged := e.fields
		if len(existingJSON) > 0 {
			var existing model.DeathFields
			if err := json.Unmarshal(existingJSON, &existing); err != nil {
				return nil, eris.Wrapf(err, "postgres: commit run: unmarshal subject %d", e.personID)
			}
			merged = e.fields.Coalesce(existing)
		}
		mergedJSON, err := json.Marshal(merged)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: commit run: marshal merged fields")
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO subjects (person_id, name, death_info, enriched_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4)
			 ON CONFLICT (person_id) DO UPDATE SET death_info = $3, enriched_at = $4, updated_at = $4`,
			e.personID, e.subjectName, mergedJSON, now,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: commit run: update subject %d", e.personID)
		}

		_, err = tx.Exec(ctx,
			`UPDATE staging_records SET status = $1, updated_at = $2 WHERE id = $3`,
			string(model.StagingCommitted), now, e.stagingID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: commit run: mark staging %s", e.stagingID)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE review_decisions SET committed_at = $1
			 WHERE id = (SELECT id FROM review_decisions WHERE staging_id = $2 ORDER BY created_at DESC LIMIT 1)`,
			now, e.stagingID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: commit run: stamp decision for %s", e.stagingID)
		}
		// A commit-eligible record with no decision row means the audit
		// trail is broken; roll the whole commit back.
		if tag.RowsAffected() == 0 {
			return nil, eris.Errorf("postgres: commit run: no review decision to stamp for staging %s", e.stagingID)
		}

		result.Committed++
		result.PersonIDs = append(result.PersonIDs, e.personID)
	}

	_, err = tx.Exec(ctx,
		`UPDATE runs SET review_status = $1 WHERE id = $2`,
		string(model.ReviewCommitted), runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: commit run: mark run %s", runID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit run: commit tx")
	}
	return result, nil
}

// InvalidateSubjectCache drops cached API payloads for the given subjects.
// Runs outside the commit transaction; a failure here leaves stale cache
// entries, not inconsistent data.
func (s *PostgresStore) InvalidateSubjectCache(ctx context.Context, personIDs []int) (int, error) {
	if len(personIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM subject_cache WHERE person_id = ANY($1)`,
		personIDs,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: invalidate subject cache")
	}
	return int(tag.RowsAffected()), nil
}
