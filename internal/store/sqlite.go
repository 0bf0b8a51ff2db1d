package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/truthlens/provider-directory/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for
// single-node deployments and local development.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS providers (
	id               TEXT PRIMARY KEY,
	full_name        TEXT NOT NULL,
	normalized_name  TEXT NOT NULL,
	speciality       TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	address          TEXT NOT NULL DEFAULT '',
	license_id       TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'active',
	confidence_score REAL NOT NULL DEFAULT 0.5,
	risk_score       REAL NOT NULL DEFAULT 0.5,
	risk_level       TEXT NOT NULL DEFAULT 'medium',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_providers_normalized_name ON providers(normalized_name);
CREATE INDEX IF NOT EXISTS idx_providers_license_id ON providers(license_id);
CREATE INDEX IF NOT EXISTS idx_providers_risk_level ON providers(risk_level);

CREATE TABLE IF NOT EXISTS provider_sources (
	id                TEXT PRIMARY KEY,
	provider_id       TEXT NOT NULL REFERENCES providers(id),
	field             TEXT NOT NULL,
	value             TEXT NOT NULL,
	source_type       TEXT NOT NULL,
	source_detail     TEXT NOT NULL DEFAULT '',
	reliability_score REAL NOT NULL DEFAULT 0.5,
	seen_at           DATETIME NOT NULL,
	UNIQUE (provider_id, field, value, source_type, source_detail)
);

CREATE INDEX IF NOT EXISTS idx_provider_sources_provider_field ON provider_sources(provider_id, field);

CREATE TABLE IF NOT EXISTS change_logs (
	id          TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL REFERENCES providers(id),
	field       TEXT NOT NULL,
	old_value   TEXT NOT NULL DEFAULT '',
	new_value   TEXT NOT NULL DEFAULT '',
	change_type TEXT NOT NULL DEFAULT 'auto',
	reason      TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_change_logs_provider_id ON change_logs(provider_id, created_at DESC);

CREATE TABLE IF NOT EXISTS validation_runs (
	id                    TEXT PRIMARY KEY,
	started_at            DATETIME NOT NULL,
	finished_at           DATETIME,
	num_providers_checked INTEGER NOT NULL DEFAULT 0,
	num_updates_applied   INTEGER NOT NULL DEFAULT 0,
	accuracy_before       REAL NOT NULL DEFAULT 0,
	accuracy_after        REAL NOT NULL DEFAULT 0,
	notes                 TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_validation_runs_started_at ON validation_runs(started_at DESC);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertFromExtraction(ctx context.Context, ex model.ExtractedProvider) (*model.Provider, bool, error) {
	if ex.FullName == "" {
		return nil, false, eris.New("sqlite: extracted provider has no name")
	}
	norm := model.NormalizeName(ex.FullName)

	// Same identity rule as the Postgres store: exact name plus license
	// when one is present, with a contradicting license forcing a new row.
	var p *model.Provider
	var err error
	if ex.LicenseID != "" {
		p, err = s.queryProvider(ctx,
			`SELECT `+providerColumns+` FROM providers WHERE normalized_name = ? AND license_id = ? LIMIT 1`,
			norm, ex.LicenseID,
		)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		if p == nil {
			p, err = s.queryProvider(ctx,
				`SELECT `+providerColumns+` FROM providers WHERE normalized_name = ? AND license_id = '' ORDER BY created_at ASC LIMIT 1`,
				norm,
			)
		}
	} else {
		p, err = s.queryProvider(ctx,
			`SELECT `+providerColumns+` FROM providers WHERE normalized_name = ? ORDER BY created_at ASC LIMIT 1`,
			norm,
		)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if p != nil {
		return p, false, nil
	}

	now := time.Now().UTC()
	created := model.Provider{
		ID:              uuid.New().String(),
		FullName:        ex.FullName,
		Speciality:      ex.Speciality,
		Phone:           ex.Phone,
		Address:         ex.Address,
		LicenseID:       ex.LicenseID,
		Status:          model.StatusActive,
		ConfidenceScore: ex.ExtractionConfidence,
		RiskScore:       0.5,
		RiskLevel:       model.RiskMedium,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO providers (id, full_name, normalized_name, speciality, phone, address, license_id, status, confidence_score, risk_score, risk_level, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.FullName, norm, created.Speciality, created.Phone, created.Address,
		created.LicenseID, string(created.Status), created.ConfidenceScore, created.RiskScore,
		string(created.RiskLevel), created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: insert provider %s", created.FullName)
	}
	return &created, true, nil
}

func (s *SQLiteStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE 1=1`
	var args []any

	if filter.Search != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		query += ` AND full_name LIKE ?`
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Speciality != "" {
		query += ` AND speciality = ?`
		args = append(args, filter.Speciality)
	}
	if filter.RiskLevel != "" {
		query += ` AND risk_level = ?`
		args = append(args, string(filter.RiskLevel))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list providers")
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := scanProviderSQL(rows, &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider")
		}
		providers = append(providers, p)
	}
	return providers, eris.Wrap(rows.Err(), "sqlite: list providers iterate")
}

func (s *SQLiteStore) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	return s.queryProvider(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = ?`,
		id,
	)
}

func (s *SQLiteStore) GetProviderDetail(ctx context.Context, id string) (*model.ProviderDetail, error) {
	p, err := s.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := model.ProviderDetail{Provider: *p}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, field, value, source_type, source_detail, reliability_score, seen_at
		 FROM provider_sources WHERE provider_id = ? ORDER BY seen_at DESC`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get sources for %s", id)
	}
	defer rows.Close()
	for rows.Next() {
		var src model.ProviderSource
		if err := rows.Scan(&src.ID, &src.ProviderID, &src.Field, &src.Value, &src.SourceType,
			&src.SourceDetail, &src.ReliabilityScore, &src.SeenAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		detail.Sources = append(detail.Sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: sources iterate")
	}

	chRows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, field, old_value, new_value, change_type, reason, created_at
		 FROM change_logs WHERE provider_id = ? ORDER BY created_at DESC`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get changes for %s", id)
	}
	defer chRows.Close()
	for chRows.Next() {
		var ch model.ChangeLogEntry
		if err := chRows.Scan(&ch.ID, &ch.ProviderID, &ch.Field, &ch.OldValue, &ch.NewValue,
			&ch.ChangeType, &ch.Reason, &ch.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change")
		}
		detail.Changes = append(detail.Changes, ch)
	}
	return &detail, eris.Wrap(chRows.Err(), "sqlite: changes iterate")
}

func (s *SQLiteStore) AddSources(ctx context.Context, sources []model.ProviderSource) (int64, error) {
	if len(sources) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin add sources")
	}
	defer tx.Rollback() //nolint:errcheck

	var inserted int64
	for _, src := range sources {
		id := src.ID
		if id == "" {
			id = uuid.New().String()
		}
		seenAt := src.SeenAt
		if seenAt.IsZero() {
			seenAt = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO provider_sources (id, provider_id, field, value, source_type, source_detail, reliability_score, seen_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, src.ProviderID, src.Field, src.Value, string(src.SourceType), src.SourceDetail, src.ReliabilityScore, seenAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert source for %s", src.ProviderID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit add sources")
	}
	return inserted, nil
}

func (s *SQLiteStore) GetFieldSources(ctx context.Context, providerID, field string) ([]model.ProviderSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, field, value, source_type, source_detail, reliability_score, seen_at
		 FROM provider_sources WHERE provider_id = ? AND field = ? ORDER BY seen_at DESC`,
		providerID, field,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s sources for %s", field, providerID)
	}
	defer rows.Close()

	var sources []model.ProviderSource
	for rows.Next() {
		var src model.ProviderSource
		if err := rows.Scan(&src.ID, &src.ProviderID, &src.Field, &src.Value, &src.SourceType,
			&src.SourceDetail, &src.ReliabilityScore, &src.SeenAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: field sources iterate")
}

func (s *SQLiteStore) ApplyFieldChange(ctx context.Context, providerID string, change FieldChange) (bool, error) {
	col, ok := fieldColumns[change.Field]
	if !ok {
		return false, eris.Errorf("sqlite: field %q is not writable", change.Field)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin field change")
	}
	defer tx.Rollback() //nolint:errcheck

	var old string
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM providers WHERE id = ?`, col),
		providerID,
	).Scan(&old)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, eris.Wrapf(ErrNotFound, "provider %s", providerID)
		}
		return false, eris.Wrapf(err, "sqlite: read %s for %s", col, providerID)
	}

	if old == change.NewValue {
		return false, nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE providers SET %s = ?, confidence_score = ?, updated_at = ? WHERE id = ?`, col),
		change.NewValue, change.Confidence, now, providerID,
	); err != nil {
		return false, eris.Wrapf(err, "sqlite: update %s for %s", col, providerID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO change_logs (id, provider_id, field, old_value, new_value, change_type, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), providerID, change.Field, old, change.NewValue,
		string(change.ChangeType), change.Reason, now,
	); err != nil {
		return false, eris.Wrapf(err, "sqlite: log change for %s", providerID)
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit field change")
	}
	return true, nil
}

func (s *SQLiteStore) UpdateProviderRisk(ctx context.Context, providerID string, level model.RiskLevel, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE providers SET risk_level = ?, risk_score = ?, updated_at = ? WHERE id = ?`,
		string(level), score, time.Now().UTC(), providerID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update risk for %s", providerID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "provider %s", providerID)
	}
	return nil
}

func (s *SQLiteStore) GetChangeStats(ctx context.Context, providerID string) (*ChangeStats, error) {
	var stats ChangeStats
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(created_at) FROM change_logs WHERE provider_id = ?`,
		providerID,
	).Scan(&stats.Count, &last)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: change stats for %s", providerID)
	}
	if last.Valid {
		t := last.Time
		stats.LastChangeAt = &t
	}
	return &stats, nil
}

func (s *SQLiteStore) CreateValidationRun(ctx context.Context, run *model.ValidationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_runs (id, started_at, finished_at, num_providers_checked, num_updates_applied, accuracy_before, accuracy_after, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.FinishedAt, run.NumProvidersChecked, run.NumUpdatesApplied,
		run.AccuracyBefore, run.AccuracyAfter, run.Notes,
	)
	return eris.Wrap(err, "sqlite: insert validation run")
}

func (s *SQLiteStore) DashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error) {
	var m model.DashboardMetrics

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN risk_level = 'high' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence_score < 0.7 THEN 1 ELSE 0 END), 0)
		 FROM providers`,
	).Scan(&m.TotalProviders, &m.NumHighRisk, &m.NumLowConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: provider counts")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, num_providers_checked, num_updates_applied, accuracy_before, accuracy_after, notes
		 FROM validation_runs ORDER BY started_at DESC LIMIT 5`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent validation runs")
	}
	defer rows.Close()
	for rows.Next() {
		var run model.ValidationRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.StartedAt, &finished, &run.NumProvidersChecked,
			&run.NumUpdatesApplied, &run.AccuracyBefore, &run.AccuracyAfter, &run.Notes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation run")
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		m.RecentValidationRuns = append(m.RecentValidationRuns, run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: validation runs iterate")
	}

	// Mean accuracy covers the same recent window shown on the
	// dashboard, not the full history. Zero runs report 0.
	if n := len(m.RecentValidationRuns); n > 0 {
		var sum float64
		for _, run := range m.RecentValidationRuns {
			sum += run.AccuracyAfter
		}
		m.AvgAccuracy = sum / float64(n)
	}

	return &m, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) queryProvider(ctx context.Context, query string, args ...any) (*model.Provider, error) {
	var p model.Provider
	err := scanProviderSQL(s.db.QueryRowContext(ctx, query, args...), &p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, "provider")
		}
		return nil, eris.Wrap(err, "sqlite: get provider")
	}
	return &p, nil
}

func scanProviderSQL(row scannable, p *model.Provider) error {
	return row.Scan(&p.ID, &p.FullName, &p.Speciality, &p.Phone, &p.Address, &p.LicenseID,
		&p.Status, &p.ConfidenceScore, &p.RiskScore, &p.RiskLevel, &p.CreatedAt, &p.UpdatedAt)
}
