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
	"github.com/shopspring/decimal"

	"github.com/sells-group/watch-research/internal/db"
	"github.com/sells-group/watch-research/internal/model"
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
	minConns := int32(1)
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

// NewPostgresFromPool wraps an existing pool. Close is a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS watches (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL DEFAULT '',
	brand                TEXT NOT NULL DEFAULT '',
	model                TEXT NOT NULL DEFAULT '',
	reference_number     TEXT NOT NULL,
	condition            TEXT NOT NULL DEFAULT 'worn',
	specs                JSONB NOT NULL DEFAULT '{}'::jsonb,
	ai_fetched_data      JSONB,
	spec_sources         JSONB NOT NULL DEFAULT '[]'::jsonb,
	current_market_value NUMERIC(14,2),
	last_valuation_at    TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS valuations (
	id                  TEXT PRIMARY KEY,
	watch_id            TEXT NOT NULL REFERENCES watches(id) ON DELETE CASCADE,
	source              TEXT NOT NULL,
	estimated_value     NUMERIC(14,2) NOT NULL,
	median              NUMERIC(14,2),
	average             NUMERIC(14,2),
	price_min           NUMERIC(14,2),
	price_max           NUMERIC(14,2),
	comparable_listings INTEGER NOT NULL DEFAULT 0,
	notes               JSONB,
	valuated_at         TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS watch_images (
	id         TEXT PRIMARY KEY,
	watch_id   TEXT NOT NULL REFERENCES watches(id) ON DELETE CASCADE,
	filename   TEXT NOT NULL,
	path       TEXT NOT NULL,
	file_size  BIGINT NOT NULL DEFAULT 0,
	mime_type  TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS market_research_logs (
	id                     TEXT PRIMARY KEY,
	watch_id               TEXT NOT NULL REFERENCES watches(id) ON DELETE CASCADE,
	source                 TEXT NOT NULL,
	request_payload        JSONB,
	response_payload       JSONB,
	processed_result       JSONB,
	success                BOOLEAN NOT NULL DEFAULT false,
	error_message          TEXT NOT NULL DEFAULT '',
	execution_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	processed_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS user_api_settings (
	user_id                 TEXT PRIMARY KEY,
	perplexity_key          TEXT NOT NULL DEFAULT '',
	openai_key              TEXT NOT NULL DEFAULT '',
	anthropic_key           TEXT NOT NULL DEFAULT '',
	gemini_key              TEXT NOT NULL DEFAULT '',
	google_search_key       TEXT NOT NULL DEFAULT '',
	google_search_engine_id TEXT NOT NULL DEFAULT '',
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS page_cache (
	url_hash   TEXT PRIMARY KEY,
	content    BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_watches_user ON watches(user_id);
CREATE INDEX IF NOT EXISTS idx_valuations_watch ON valuations(watch_id, created_at);
CREATE INDEX IF NOT EXISTS idx_watch_images_watch ON watch_images(watch_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_watch_images_primary ON watch_images(watch_id) WHERE is_primary;
CREATE INDEX IF NOT EXISTS idx_research_logs_watch ON market_research_logs(watch_id, processed_at DESC);
CREATE INDEX IF NOT EXISTS idx_page_cache_expires_at ON page_cache(expires_at);
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
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Watches ---

const pgWatchColumns = `id, user_id, brand, model, reference_number, condition, specs, ai_fetched_data,
	spec_sources, current_market_value, last_valuation_at, created_at, updated_at`

func (s *PostgresStore) CreateWatch(ctx context.Context, w *model.Watch) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	specs, err := marshalSpecs(w.Specs)
	if err != nil {
		return eris.Wrap(err, "postgres: create watch")
	}
	sources, err := marshalStrings(w.SpecSources)
	if err != nil {
		return eris.Wrap(err, "postgres: create watch")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO watches (`+pgWatchColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID, w.UserID, w.Brand, w.Model, w.ReferenceNumber, string(w.Condition), specs,
		rawOrNil(w.AIFetchedData), sources, w.CurrentMarketValue, w.LastValuationAt, now, now,
	)
	return eris.Wrap(err, "postgres: insert watch")
}

func (s *PostgresStore) GetWatch(ctx context.Context, id string) (*model.Watch, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgWatchColumns+` FROM watches WHERE id = $1`, id)
	w, err := scanPgWatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "watch %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get watch %s", id)
	}
	return w, nil
}

func (s *PostgresStore) ListWatches(ctx context.Context, filter WatchFilter) ([]model.Watch, error) {
	query := `SELECT ` + pgWatchColumns + ` FROM watches WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Brand != "" {
		query += fmt.Sprintf(` AND lower(brand) = lower($%d)`, argIdx)
		args = append(args, filter.Brand)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list watches")
	}
	defer rows.Close()

	var out []model.Watch
	for rows.Next() {
		w, err := scanPgWatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan watch")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list watches iterate")
}

func (s *PostgresStore) MergeWatchSpecs(ctx context.Context, watchID string, m SpecMerge) error {
	patch, err := marshalSpecs(m.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: merge specs")
	}
	sources, err := marshalStrings(m.Sources)
	if err != nil {
		return eris.Wrap(err, "postgres: merge specs")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE watches
		 SET specs = specs || $1::jsonb, ai_fetched_data = $2, spec_sources = $3, updated_at = $4
		 WHERE id = $5`,
		patch, rawOrNil(m.Raw), sources, time.Now().UTC(), watchID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: merge specs %s", watchID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "watch %s", watchID)
	}
	return nil
}

func (s *PostgresStore) UpdateMarketValue(ctx context.Context, watchID string, value decimal.Decimal, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE watches SET current_market_value = $1, last_valuation_at = $2, updated_at = $3 WHERE id = $4`,
		value, at.UTC(), time.Now().UTC(), watchID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update market value %s", watchID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "watch %s", watchID)
	}
	return nil
}

// --- Valuations ---

func (s *PostgresStore) AppendValuation(ctx context.Context, v *model.Valuation) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now().UTC()
	if v.ValuatedAt.IsZero() {
		v.ValuatedAt = v.CreatedAt
	}

	var pmin, pmax *decimal.Decimal
	if v.PriceRange != nil {
		pmin, pmax = &v.PriceRange.Min, &v.PriceRange.Max
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO valuations (id, watch_id, source, estimated_value, median, average, price_min, price_max,
		 comparable_listings, notes, valuated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.ID, v.WatchID, string(v.Source), v.EstimatedValue, v.Median, v.Average, pmin, pmax,
		v.ComparableListings, rawOrNil(v.Notes), v.ValuatedAt.UTC(), v.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert valuation for %s", v.WatchID)
}

func (s *PostgresStore) ListValuations(ctx context.Context, watchID string) ([]model.Valuation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, watch_id, source, estimated_value, median, average, price_min, price_max,
		 comparable_listings, notes, valuated_at, created_at
		 FROM valuations WHERE watch_id = $1 ORDER BY created_at ASC, id ASC`,
		watchID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list valuations %s", watchID)
	}
	defer rows.Close()

	var out []model.Valuation
	for rows.Next() {
		var v model.Valuation
		var source string
		var median, average, pmin, pmax decimal.NullDecimal
		var notes []byte
		if err := rows.Scan(&v.ID, &v.WatchID, &source, &v.EstimatedValue, &median, &average, &pmin, &pmax,
			&v.ComparableListings, &notes, &v.ValuatedAt, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan valuation")
		}
		v.Source = model.ValuationSource(source)
		v.Median = nullDecimalPtr(median)
		v.Average = nullDecimalPtr(average)
		if pmin.Valid && pmax.Valid {
			v.PriceRange = &model.PriceRange{Min: pmin.Decimal, Max: pmax.Decimal}
		}
		if len(notes) > 0 {
			v.Notes = json.RawMessage(notes)
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list valuations iterate")
}

// --- Images ---

// AppendWatchImage inserts an image record. The watch row is locked for the
// duration so that a concurrent writer cannot add a second primary image;
// if one already exists the new record is demoted.
func (s *PostgresStore) AppendWatchImage(ctx context.Context, img *model.WatchImage) error {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	img.CreatedAt = time.Now().UTC()

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM watches WHERE id = $1 FOR UPDATE`, img.WatchID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return eris.Wrapf(ErrNotFound, "watch %s", img.WatchID)
			}
			return eris.Wrap(err, "lock watch")
		}

		if img.IsPrimary {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM watch_images WHERE watch_id = $1 AND is_primary)`, img.WatchID,
			).Scan(&exists); err != nil {
				return eris.Wrap(err, "check primary")
			}
			if exists {
				img.IsPrimary = false
			}
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO watch_images (id, watch_id, filename, path, file_size, mime_type, source, is_primary, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			img.ID, img.WatchID, img.Filename, img.Path, img.FileSize, img.MimeType, string(img.Source),
			img.IsPrimary, img.CreatedAt,
		)
		return eris.Wrap(err, "insert image")
	})
	return eris.Wrapf(err, "postgres: append image for %s", img.WatchID)
}

func (s *PostgresStore) ListWatchImages(ctx context.Context, watchID string) ([]model.WatchImage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, watch_id, filename, path, file_size, mime_type, source, is_primary, created_at
		 FROM watch_images WHERE watch_id = $1 ORDER BY created_at ASC, id ASC`,
		watchID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list images %s", watchID)
	}
	defer rows.Close()

	var out []model.WatchImage
	for rows.Next() {
		var img model.WatchImage
		var source string
		if err := rows.Scan(&img.ID, &img.WatchID, &img.Filename, &img.Path, &img.FileSize, &img.MimeType,
			&source, &img.IsPrimary, &img.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan image")
		}
		img.Source = model.ImageSource(source)
		out = append(out, img)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list images iterate")
}

func (s *PostgresStore) HasPrimaryImage(ctx context.Context, watchID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM watch_images WHERE watch_id = $1 AND is_primary)`, watchID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has primary image %s", watchID)
	}
	return exists, nil
}

// --- Research log ---

func (s *PostgresStore) AppendResearchLog(ctx context.Context, e *model.ResearchLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_research_logs (id, watch_id, source, request_payload, response_payload,
		 processed_result, success, error_message, execution_time_seconds, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.WatchID, string(e.Source), rawOrNil(e.RequestPayload), rawOrNil(e.ResponsePayload),
		rawOrNil(e.ProcessedResult), e.Success, e.ErrorMessage, e.ExecutionTimeSeconds, e.ProcessedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert research log for %s", e.WatchID)
}

func (s *PostgresStore) ListResearchLogs(ctx context.Context, watchID string, limit int) ([]model.ResearchLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, watch_id, source, request_payload, response_payload, processed_result, success,
		 error_message, execution_time_seconds, processed_at
		 FROM market_research_logs WHERE watch_id = $1 ORDER BY processed_at DESC LIMIT $2`,
		watchID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list research logs %s", watchID)
	}
	defer rows.Close()

	var out []model.ResearchLogEntry
	for rows.Next() {
		var e model.ResearchLogEntry
		var source string
		var req, resp, processed []byte
		if err := rows.Scan(&e.ID, &e.WatchID, &source, &req, &resp, &processed, &e.Success,
			&e.ErrorMessage, &e.ExecutionTimeSeconds, &e.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan research log")
		}
		e.Source = model.LogSource(source)
		e.RequestPayload = bytesRaw(req)
		e.ResponsePayload = bytesRaw(resp)
		e.ProcessedResult = bytesRaw(processed)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list research logs iterate")
}

// --- API settings ---

func (s *PostgresStore) GetUserAPISettings(ctx context.Context, userID string) (*model.UserAPISettings, error) {
	var st model.UserAPISettings
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, perplexity_key, openai_key, anthropic_key, gemini_key, google_search_key,
		 google_search_engine_id, updated_at FROM user_api_settings WHERE user_id = $1`,
		userID,
	).Scan(&st.UserID, &st.PerplexityKey, &st.OpenAIKey, &st.AnthropicKey, &st.GeminiKey,
		&st.GoogleSearchKey, &st.GoogleSearchEngineID, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get api settings %s", userID)
	}
	return &st, nil
}

func (s *PostgresStore) SaveUserAPISettings(ctx context.Context, st *model.UserAPISettings) error {
	st.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_api_settings (user_id, perplexity_key, openai_key, anthropic_key, gemini_key,
		 google_search_key, google_search_engine_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE SET
		 perplexity_key = EXCLUDED.perplexity_key,
		 openai_key = EXCLUDED.openai_key,
		 anthropic_key = EXCLUDED.anthropic_key,
		 gemini_key = EXCLUDED.gemini_key,
		 google_search_key = EXCLUDED.google_search_key,
		 google_search_engine_id = EXCLUDED.google_search_engine_id,
		 updated_at = EXCLUDED.updated_at`,
		st.UserID, st.PerplexityKey, st.OpenAIKey, st.AnthropicKey, st.GeminiKey,
		st.GoogleSearchKey, st.GoogleSearchEngineID, st.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save api settings %s", st.UserID)
}

// --- Page cache ---

func (s *PostgresStore) GetCachedPage(ctx context.Context, urlHash string) ([]byte, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM page_cache WHERE url_hash = $1 AND expires_at > now()`,
		urlHash,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached page")
	}
	return content, nil
}

func (s *PostgresStore) SetCachedPage(ctx context.Context, urlHash string, content []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO page_cache (url_hash, content, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (url_hash) DO UPDATE SET content = EXCLUDED.content,
		 cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		urlHash, content, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached page")
}

func scanPgWatch(row pgx.Row) (*model.Watch, error) {
	var w model.Watch
	var cond string
	var specs, aiData, sources []byte
	var value decimal.NullDecimal
	var lastVal *time.Time

	if err := row.Scan(&w.ID, &w.UserID, &w.Brand, &w.Model, &w.ReferenceNumber, &cond, &specs, &aiData,
		&sources, &value, &lastVal, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}

	w.Condition = model.Condition(cond)
	var err error
	if w.Specs, err = unmarshalSpecs(specs); err != nil {
		return nil, err
	}
	if w.SpecSources, err = unmarshalStrings(sources); err != nil {
		return nil, err
	}
	w.AIFetchedData = bytesRaw(aiData)
	w.CurrentMarketValue = nullDecimalPtr(value)
	w.LastValuationAt = lastVal
	return &w, nil
}

func bytesRaw(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
