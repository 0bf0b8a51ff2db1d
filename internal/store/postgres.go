package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/truthlens/provider-directory/internal/db"
	"github.com/truthlens/provider-directory/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS providers (
	id               TEXT PRIMARY KEY,
	full_name        TEXT NOT NULL,
	normalized_name  TEXT NOT NULL,
	speciality       TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	address          TEXT NOT NULL DEFAULT '',
	license_id       TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'active',
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	risk_score       DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	risk_level       TEXT NOT NULL DEFAULT 'medium',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_providers_normalized_name ON providers(normalized_name);
CREATE INDEX IF NOT EXISTS idx_providers_license_id ON providers(license_id);
CREATE INDEX IF NOT EXISTS idx_providers_risk_level ON providers(risk_level);
CREATE INDEX IF NOT EXISTS idx_providers_speciality ON providers(speciality);

CREATE TABLE IF NOT EXISTS provider_sources (
	id                TEXT PRIMARY KEY,
	provider_id       TEXT NOT NULL REFERENCES providers(id),
	field             TEXT NOT NULL,
	value             TEXT NOT NULL,
	source_type       TEXT NOT NULL,
	source_detail     TEXT NOT NULL DEFAULT '',
	reliability_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	seen_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_change_logs_provider_id ON change_logs(provider_id, created_at DESC);

CREATE TABLE IF NOT EXISTS validation_runs (
	id                    TEXT PRIMARY KEY,
	started_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at           TIMESTAMPTZ,
	num_providers_checked INTEGER NOT NULL DEFAULT 0,
	num_updates_applied   INTEGER NOT NULL DEFAULT 0,
	accuracy_before       DOUBLE PRECISION NOT NULL DEFAULT 0,
	accuracy_after        DOUBLE PRECISION NOT NULL DEFAULT 0,
	notes                 TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_validation_runs_started_at ON validation_runs(started_at DESC);
`

// fieldColumns whitelists the provider columns conflict resolution may
// write. Anything else is rejected before SQL is built.
var fieldColumns = map[string]string{
	model.FieldPhone:      "phone",
	model.FieldAddress:    "address",
	model.FieldSpeciality: "speciality",
	model.FieldLicenseID:  "license_id",
}

const providerColumns = `id, full_name, speciality, phone, address, license_id, status, confidence_score, risk_score, risk_level, created_at, updated_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertFromExtraction matches an extracted record against existing
// providers by exact (normalized name, license) identity and inserts a
// new provider when no match exists. A record carrying a license only
// matches rows with the same license or no recorded license; rows whose
// license contradicts it stay separate providers. Existing providers
// are never overwritten here: extracted values land in provider_sources
// and only conflict resolution writes them back.
func (s *PostgresStore) UpsertFromExtraction(ctx context.Context, ex model.ExtractedProvider) (*model.Provider, bool, error) {
	if ex.FullName == "" {
		return nil, false, eris.New("postgres: extracted provider has no name")
	}
	norm := model.NormalizeName(ex.FullName)

	var p *model.Provider
	var err error
	if ex.LicenseID != "" {
		p, err = s.queryProvider(ctx,
			`SELECT `+providerColumns+` FROM providers WHERE normalized_name = $1 AND license_id = $2 LIMIT 1`,
			norm, ex.LicenseID,
		)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		if p == nil {
			p, err = s.queryProvider(ctx,
				`SELECT `+providerColumns+` FROM providers WHERE normalized_name = $1 AND license_id = '' ORDER BY created_at ASC LIMIT 1`,
				norm,
			)
		}
	} else {
		p, err = s.queryProvider(ctx,
			`SELECT `+providerColumns+` FROM providers WHERE normalized_name = $1 ORDER BY created_at ASC LIMIT 1`,
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO providers (id, full_name, normalized_name, speciality, phone, address, license_id, status, confidence_score, risk_score, risk_level, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		created.ID, created.FullName, norm, created.Speciality, created.Phone, created.Address,
		created.LicenseID, string(created.Status), created.ConfidenceScore, created.RiskScore,
		string(created.RiskLevel), created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: insert provider %s", created.FullName)
	}
	return &created, true, nil
}

func (s *PostgresStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Search != "" {
		query += fmt.Sprintf(` AND full_name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}
	if filter.Speciality != "" {
		query += fmt.Sprintf(` AND speciality = $%d`, argIdx)
		args = append(args, filter.Speciality)
		argIdx++
	}
	if filter.RiskLevel != "" {
		query += fmt.Sprintf(` AND risk_level = $%d`, argIdx)
		args = append(args, string(filter.RiskLevel))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list providers")
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := scanProvider(rows, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider")
		}
		providers = append(providers, p)
	}
	return providers, eris.Wrap(rows.Err(), "postgres: list providers iterate")
}

func (s *PostgresStore) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	return s.queryProvider(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = $1`,
		id,
	)
}

func (s *PostgresStore) GetProviderDetail(ctx context.Context, id string) (*model.ProviderDetail, error) {
	p, err := s.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := model.ProviderDetail{Provider: *p}

	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, field, value, source_type, source_detail, reliability_score, seen_at
		 FROM provider_sources WHERE provider_id = $1 ORDER BY seen_at DESC`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sources for %s", id)
	}
	defer rows.Close()
	for rows.Next() {
		var src model.ProviderSource
		if err := rows.Scan(&src.ID, &src.ProviderID, &src.Field, &src.Value, &src.SourceType,
			&src.SourceDetail, &src.ReliabilityScore, &src.SeenAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		detail.Sources = append(detail.Sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: sources iterate")
	}

	chRows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, field, old_value, new_value, change_type, reason, created_at
		 FROM change_logs WHERE provider_id = $1 ORDER BY created_at DESC`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get changes for %s", id)
	}
	defer chRows.Close()
	for chRows.Next() {
		var ch model.ChangeLogEntry
		if err := chRows.Scan(&ch.ID, &ch.ProviderID, &ch.Field, &ch.OldValue, &ch.NewValue,
			&ch.ChangeType, &ch.Reason, &ch.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		detail.Changes = append(detail.Changes, ch)
	}
	return &detail, eris.Wrap(chRows.Err(), "postgres: changes iterate")
}

// AddSources bulk-inserts source observations. Rows that collide on
// (provider_id, field, value, source_type, source_detail) are dropped,
// so re-ingesting the same document is idempotent. Returns the number
// of rows actually inserted.
func (s *PostgresStore) AddSources(ctx context.Context, sources []model.ProviderSource) (int64, error) {
	if len(sources) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(sources))
	for i, src := range sources {
		id := src.ID
		if id == "" {
			id = uuid.New().String()
		}
		seenAt := src.SeenAt
		if seenAt.IsZero() {
			seenAt = time.Now().UTC()
		}
		rows[i] = []any{id, src.ProviderID, src.Field, src.Value, string(src.SourceType), src.SourceDetail, src.ReliabilityScore, seenAt}
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "provider_sources",
		Columns:      []string{"id", "provider_id", "field", "value", "source_type", "source_detail", "reliability_score", "seen_at"},
		ConflictKeys: []string{"provider_id", "field", "value", "source_type", "source_detail"},
		OnConflict:   db.ConflictIgnore,
	}, rows)
	return n, eris.Wrap(err, "postgres: add sources")
}

func (s *PostgresStore) GetFieldSources(ctx context.Context, providerID, field string) ([]model.ProviderSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, field, value, source_type, source_detail, reliability_score, seen_at
		 FROM provider_sources WHERE provider_id = $1 AND field = $2 ORDER BY seen_at DESC`,
		providerID, field,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s sources for %s", field, providerID)
	}
	defer rows.Close()

	var sources []model.ProviderSource
	for rows.Next() {
		var src model.ProviderSource
		if err := rows.Scan(&src.ID, &src.ProviderID, &src.Field, &src.Value, &src.SourceType,
			&src.SourceDetail, &src.ReliabilityScore, &src.SeenAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: field sources iterate")
}

// ApplyFieldChange writes a resolved value and its audit entry in one
// transaction. Returns false without writing when the stored value
// already equals the new one.
func (s *PostgresStore) ApplyFieldChange(ctx context.Context, providerID string, change FieldChange) (bool, error) {
	col, ok := fieldColumns[change.Field]
	if !ok {
		return false, eris.Errorf("postgres: field %q is not writable", change.Field)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin field change")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var old string
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM providers WHERE id = $1 FOR UPDATE`, col),
		providerID,
	).Scan(&old)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, eris.Wrapf(ErrNotFound, "provider %s", providerID)
		}
		return false, eris.Wrapf(err, "postgres: read %s for %s", col, providerID)
	}

	if old == change.NewValue {
		return false, nil
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		fmt.Sprintf(`UPDATE providers SET %s = $1, confidence_score = $2, updated_at = $3 WHERE id = $4`, col),
		change.NewValue, change.Confidence, now, providerID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update %s for %s", col, providerID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO change_logs (id, provider_id, field, old_value, new_value, change_type, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), providerID, change.Field, old, change.NewValue,
		string(change.ChangeType), change.Reason, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: log change for %s", providerID)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit field change")
	}
	return true, nil
}

func (s *PostgresStore) UpdateProviderRisk(ctx context.Context, providerID string, level model.RiskLevel, score float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE providers SET risk_level = $1, risk_score = $2, updated_at = $3 WHERE id = $4`,
		string(level), score, time.Now().UTC(), providerID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update risk for %s", providerID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "provider %s", providerID)
	}
	return nil
}

func (s *PostgresStore) GetChangeStats(ctx context.Context, providerID string) (*ChangeStats, error) {
	var stats ChangeStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(created_at) FROM change_logs WHERE provider_id = $1`,
		providerID,
	).Scan(&stats.Count, &stats.LastChangeAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: change stats for %s", providerID)
	}
	return &stats, nil
}

func (s *PostgresStore) CreateValidationRun(ctx context.Context, run *model.ValidationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO validation_runs (id, started_at, finished_at, num_providers_checked, num_updates_applied, accuracy_before, accuracy_after, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.StartedAt, run.FinishedAt, run.NumProvidersChecked, run.NumUpdatesApplied,
		run.AccuracyBefore, run.AccuracyAfter, run.Notes,
	)
	return eris.Wrap(err, "postgres: insert validation run")
}

func (s *PostgresStore) DashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error) {
	var m model.DashboardMetrics

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE risk_level = 'high'),
		        COUNT(*) FILTER (WHERE confidence_score < 0.7)
		 FROM providers`,
	).Scan(&m.TotalProviders, &m.NumHighRisk, &m.NumLowConfidence)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: provider counts")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, started_at, finished_at, num_providers_checked, num_updates_applied, accuracy_before, accuracy_after, notes
		 FROM validation_runs ORDER BY started_at DESC LIMIT 5`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent validation runs")
	}
	defer rows.Close()
	for rows.Next() {
		var run model.ValidationRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.NumProvidersChecked,
			&run.NumUpdatesApplied, &run.AccuracyBefore, &run.AccuracyAfter, &run.Notes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation run")
		}
		m.RecentValidationRuns = append(m.RecentValidationRuns, run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: validation runs iterate")
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

func (s *PostgresStore) queryProvider(ctx context.Context, query string, args ...any) (*model.Provider, error) {
	var p model.Provider
	err := scanProvider(s.pool.QueryRow(ctx, query, args...), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, "provider")
		}
		return nil, eris.Wrap(err, "postgres: get provider")
	}
	return &p, nil
}

func scanProvider(row pgx.Row, p *model.Provider) error {
	return row.Scan(&p.ID, &p.FullName, &p.Speciality, &p.Phone, &p.Address, &p.LicenseID,
		&p.Status, &p.ConfidenceScore, &p.RiskScore, &p.RiskLevel, &p.CreatedAt, &p.UpdatedAt)
}
