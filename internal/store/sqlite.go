package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/watch-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS watches (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL DEFAULT '',
	brand                TEXT NOT NULL DEFAULT '',
	model                TEXT NOT NULL DEFAULT '',
	reference_number     TEXT NOT NULL,
	condition            TEXT NOT NULL DEFAULT 'worn',
	specs                TEXT NOT NULL DEFAULT '{}',
	ai_fetched_data      TEXT,
	spec_sources         TEXT NOT NULL DEFAULT '[]',
	current_market_value TEXT,
	last_valuation_at    DATETIME,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS valuations (
	id                  TEXT PRIMARY KEY,
	watch_id            TEXT NOT NULL REFERENCES watches(id) ON DELETE CASCADE,
	source              TEXT NOT NULL,
	estimated_value     TEXT NOT NULL,
	median              TEXT,
	average             TEXT,
	price_min           TEXT,
	price_max           TEXT,
	comparable_listings INTEGER NOT NULL DEFAULT 0,
	notes               TEXT,
	valuated_at         DATETIME NOT NULL,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS watch_images (
	id         TEXT PRIMARY KEY,
	watch_id   TEXT NOT NULL REFERENCES watches(id) ON DELETE CASCADE,
	filename   TEXT NOT NULL,
	path       TEXT NOT NULL,
	file_size  INTEGER NOT NULL DEFAULT 0,
	mime_type  TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS market_research_logs (
	id                     TEXT PRIMARY KEY,
	watch_id               TEXT NOT NULL REFERENCES watches(id) ON DELETE CASCADE,
	source                 TEXT NOT NULL,
	request_payload        TEXT,
	response_payload       TEXT,
	processed_result       TEXT,
	success                INTEGER NOT NULL DEFAULT 0,
	error_message          TEXT NOT NULL DEFAULT '',
	execution_time_seconds REAL NOT NULL DEFAULT 0,
	processed_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS user_api_settings (
	user_id                 TEXT PRIMARY KEY,
	perplexity_key          TEXT NOT NULL DEFAULT '',
	openai_key              TEXT NOT NULL DEFAULT '',
	anthropic_key           TEXT NOT NULL DEFAULT '',
	gemini_key              TEXT NOT NULL DEFAULT '',
	google_search_key       TEXT NOT NULL DEFAULT '',
	google_search_engine_id TEXT NOT NULL DEFAULT '',
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS page_cache (
	url_hash   TEXT PRIMARY KEY,
	content    BLOB NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_watches_user ON watches(user_id);
CREATE INDEX IF NOT EXISTS idx_valuations_watch ON valuations(watch_id, created_at);
CREATE INDEX IF NOT EXISTS idx_watch_images_watch ON watch_images(watch_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_watch_images_primary ON watch_images(watch_id) WHERE is_primary = 1;
CREATE INDEX IF NOT EXISTS idx_research_logs_watch ON market_research_logs(watch_id, processed_at);
CREATE INDEX IF NOT EXISTS idx_page_cache_expires_at ON page_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Watches ---

const sqliteWatchColumns = `id, user_id, brand, model, reference_number, condition, specs, ai_fetched_data,
	spec_sources, current_market_value, last_valuation_at, created_at, updated_at`

func (s *SQLiteStore) CreateWatch(ctx context.Context, w *model.Watch) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	specs, err := marshalSpecs(w.Specs)
	if err != nil {
		return eris.Wrap(err, "sqlite: create watch")
	}
	sources, err := marshalStrings(w.SpecSources)
	if err != nil {
		return eris.Wrap(err, "sqlite: create watch")
	}

	var value any
	if w.CurrentMarketValue != nil {
		value = w.CurrentMarketValue.String()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO watches (`+sqliteWatchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.Brand, w.Model, w.ReferenceNumber, string(w.Condition), string(specs),
		rawOrNil(w.AIFetchedData), string(sources), value, timeOrNil(w.LastValuationAt), now, now,
	)
	return eris.Wrap(err, "sqlite: insert watch")
}

func (s *SQLiteStore) GetWatch(ctx context.Context, id string) (*model.Watch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteWatchColumns+` FROM watches WHERE id = ?`, id)
	w, err := scanSQLiteWatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "watch %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get watch %s", id)
	}
	return w, nil
}

func (s *SQLiteStore) ListWatches(ctx context.Context, filter WatchFilter) ([]model.Watch, error) {
	query := `SELECT ` + sqliteWatchColumns + ` FROM watches WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Brand != "" {
		query += ` AND brand = ? COLLATE NOCASE`
		args = append(args, filter.Brand)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list watches")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Watch
	for rows.Next() {
		w, err := scanSQLiteWatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan watch")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list watches iterate")
}

// MergeWatchSpecs overlays m.Fields onto the stored specs with json_patch,
// so keys absent from the update keep their previous value.
func (s *SQLiteStore) MergeWatchSpecs(ctx context.Context, watchID string, m SpecMerge) error {
	patch, err := marshalSpecs(m.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: merge specs")
	}
	sources, err := marshalStrings(m.Sources)
	if err != nil {
		return eris.Wrap(err, "sqlite: merge specs")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE watches
		 SET specs = json_patch(specs, ?), ai_fetched_data = ?, spec_sources = ?, updated_at = ?
		 WHERE id = ?`,
		string(patch), rawOrNil(m.Raw), string(sources), time.Now().UTC(), watchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: merge specs %s", watchID)
	}
	return checkRowsAffected(res, "watch", watchID)
}

func (s *SQLiteStore) UpdateMarketValue(ctx context.Context, watchID string, value decimal.Decimal, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE watches SET current_market_value = ?, last_valuation_at = ?, updated_at = ? WHERE id = ?`,
		value.String(), at.UTC(), time.Now().UTC(), watchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update market value %s", watchID)
	}
	return checkRowsAffected(res, "watch", watchID)
}

// --- Valuations ---

func (s *SQLiteStore) AppendValuation(ctx context.Context, v *model.Valuation) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now().UTC()
	if v.ValuatedAt.IsZero() {
		v.ValuatedAt = v.CreatedAt
	}

	var pmin, pmax any
	if v.PriceRange != nil {
		pmin, pmax = v.PriceRange.Min.String(), v.PriceRange.Max.String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO valuations (id, watch_id, source, estimated_value, median, average, price_min, price_max,
		 comparable_listings, notes, valuated_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.WatchID, string(v.Source), v.EstimatedValue.String(), decimalOrNil(v.Median), decimalOrNil(v.Average),
		pmin, pmax, v.ComparableListings, rawOrNil(v.Notes), v.ValuatedAt.UTC(), v.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert valuation for %s", v.WatchID)
}

func (s *SQLiteStore) ListValuations(ctx context.Context, watchID string) ([]model.Valuation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, watch_id, source, estimated_value, median, average, price_min, price_max,
		 comparable_listings, notes, valuated_at, created_at
		 FROM valuations WHERE watch_id = ? ORDER BY created_at ASC, rowid ASC`,
		watchID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list valuations %s", watchID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Valuation
	for rows.Next() {
		var v model.Valuation
		var source string
		var median, average, pmin, pmax decimal.NullDecimal
		var notes sql.NullString
		if err := rows.Scan(&v.ID, &v.WatchID, &source, &v.EstimatedValue, &median, &average, &pmin, &pmax,
			&v.ComparableListings, &notes, &v.ValuatedAt, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan valuation")
		}
		v.Source = model.ValuationSource(source)
		v.Median = nullDecimalPtr(median)
		v.Average = nullDecimalPtr(average)
		if pmin.Valid && pmax.Valid {
			v.PriceRange = &model.PriceRange{Min: pmin.Decimal, Max: pmax.Decimal}
		}
		if notes.Valid {
			v.Notes = json.RawMessage(notes.String)
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list valuations iterate")
}

// --- Images ---

// AppendWatchImage inserts an image record, demoting it when the watch
// already has a primary image.
func (s *SQLiteStore) AppendWatchImage(ctx context.Context, img *model.WatchImage) error {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	img.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if img.IsPrimary {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM watch_images WHERE watch_id = ? AND is_primary = 1`, img.WatchID,
		).Scan(&n); err != nil {
			return eris.Wrapf(err, "sqlite: check primary %s", img.WatchID)
		}
		if n > 0 {
			img.IsPrimary = false
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO watch_images (id, watch_id, filename, path, file_size, mime_type, source, is_primary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.WatchID, img.Filename, img.Path, img.FileSize, img.MimeType, string(img.Source),
		img.IsPrimary, img.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert image for %s", img.WatchID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit image")
}

func (s *SQLiteStore) ListWatchImages(ctx context.Context, watchID string) ([]model.WatchImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, watch_id, filename, path, file_size, mime_type, source, is_primary, created_at
		 FROM watch_images WHERE watch_id = ? ORDER BY created_at ASC, rowid ASC`,
		watchID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list images %s", watchID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.WatchImage
	for rows.Next() {
		var img model.WatchImage
		var source string
		if err := rows.Scan(&img.ID, &img.WatchID, &img.Filename, &img.Path, &img.FileSize, &img.MimeType,
			&source, &img.IsPrimary, &img.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan image")
		}
		img.Source = model.ImageSource(source)
		out = append(out, img)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list images iterate")
}

func (s *SQLiteStore) HasPrimaryImage(ctx context.Context, watchID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM watch_images WHERE watch_id = ? AND is_primary = 1`, watchID,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has primary image %s", watchID)
	}
	return n > 0, nil
}

// --- Research log ---

func (s *SQLiteStore) AppendResearchLog(ctx context.Context, e *model.ResearchLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO market_research_logs (id, watch_id, source, request_payload, response_payload,
		 processed_result, success, error_message, execution_time_seconds, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WatchID, string(e.Source), rawOrNil(e.RequestPayload), rawOrNil(e.ResponsePayload),
		rawOrNil(e.ProcessedResult), e.Success, e.ErrorMessage, e.ExecutionTimeSeconds, e.ProcessedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert research log for %s", e.WatchID)
}

func (s *SQLiteStore) ListResearchLogs(ctx context.Context, watchID string, limit int) ([]model.ResearchLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, watch_id, source, request_payload, response_payload, processed_result, success,
		 error_message, execution_time_seconds, processed_at
		 FROM market_research_logs WHERE watch_id = ? ORDER BY processed_at DESC, rowid DESC LIMIT ?`,
		watchID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list research logs %s", watchID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ResearchLogEntry
	for rows.Next() {
		var e model.ResearchLogEntry
		var source string
		var req, resp, processed sql.NullString
		if err := rows.Scan(&e.ID, &e.WatchID, &source, &req, &resp, &processed, &e.Success,
			&e.ErrorMessage, &e.ExecutionTimeSeconds, &e.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan research log")
		}
		e.Source = model.LogSource(source)
		e.RequestPayload = nullRaw(req)
		e.ResponsePayload = nullRaw(resp)
		e.ProcessedResult = nullRaw(processed)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list research logs iterate")
}

// --- API settings ---

func (s *SQLiteStore) GetUserAPISettings(ctx context.Context, userID string) (*model.UserAPISettings, error) {
	var st model.UserAPISettings
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, perplexity_key, openai_key, anthropic_key, gemini_key, google_search_key,
		 google_search_engine_id, updated_at FROM user_api_settings WHERE user_id = ?`,
		userID,
	).Scan(&st.UserID, &st.PerplexityKey, &st.OpenAIKey, &st.AnthropicKey, &st.GeminiKey,
		&st.GoogleSearchKey, &st.GoogleSearchEngineID, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get api settings %s", userID)
	}
	return &st, nil
}

func (s *SQLiteStore) SaveUserAPISettings(ctx context.Context, st *model.UserAPISettings) error {
	st.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_api_settings (user_id, perplexity_key, openai_key, anthropic_key, gemini_key,
		 google_search_key, google_search_engine_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		 perplexity_key = excluded.perplexity_key,
		 openai_key = excluded.openai_key,
		 anthropic_key = excluded.anthropic_key,
		 gemini_key = excluded.gemini_key,
		 google_search_key = excluded.google_search_key,
		 google_search_engine_id = excluded.google_search_engine_id,
		 updated_at = excluded.updated_at`,
		st.UserID, st.PerplexityKey, st.OpenAIKey, st.AnthropicKey, st.GeminiKey,
		st.GoogleSearchKey, st.GoogleSearchEngineID, st.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save api settings %s", st.UserID)
}

// --- Page cache ---

func (s *SQLiteStore) GetCachedPage(ctx context.Context, urlHash string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM page_cache WHERE url_hash = ? AND expires_at > ?`,
		urlHash, time.Now().UTC(),
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached page")
	}
	return content, nil
}

func (s *SQLiteStore) SetCachedPage(ctx context.Context, urlHash string, content []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_cache (url_hash, content, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (url_hash) DO UPDATE SET content = excluded.content,
		 cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		urlHash, content, now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached page")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteWatch(row scannable) (*model.Watch, error) {
	var w model.Watch
	var cond, specs, sources string
	var aiData sql.NullString
	var value decimal.NullDecimal
	var lastVal sql.NullTime

	if err := row.Scan(&w.ID, &w.UserID, &w.Brand, &w.Model, &w.ReferenceNumber, &cond, &specs, &aiData,
		&sources, &value, &lastVal, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}

	w.Condition = model.Condition(cond)
	var err error
	if w.Specs, err = unmarshalSpecs([]byte(specs)); err != nil {
		return nil, err
	}
	if w.SpecSources, err = unmarshalStrings([]byte(sources)); err != nil {
		return nil, err
	}
	w.AIFetchedData = nullRaw(aiData)
	w.CurrentMarketValue = nullDecimalPtr(value)
	if lastVal.Valid {
		t := lastVal.Time
		w.LastValuationAt = &t
	}
	return &w, nil
}

func nullRaw(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

func nullDecimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func decimalOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
