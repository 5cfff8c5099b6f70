package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"signal_bot/internal/model"
	"signal_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

var _ Storage = (*SQLite)(nil)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSignal inserts a new signal and populates its ID and CreatedAt.
func (s *SQLite) CreateSignal(ctx context.Context, sig *model.Signal) error {
	keywords, err := json.Marshal(sig.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	if sig.Status == "" {
		sig.Status = model.SignalActive
	}
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (user_id, name, topic, keywords, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sig.UserID, sig.Name, sig.Topic, string(keywords), string(sig.Status), now,
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sig.ID = id
	sig.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSignal returns a single signal by its ID.
func (s *SQLite) GetSignal(ctx context.Context, id int64) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, topic, keywords, status, created_at FROM signals WHERE id = ?`, id,
	)
	var sig model.Signal
	var keywords, status, created string
	err := row.Scan(&sig.ID, &sig.UserID, &sig.Name, &sig.Topic, &keywords, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan signal: %w", err)
	}
	sig.Keywords = decodeKeywords(keywords)
	sig.Status = model.SignalStatus(status)
	sig.CreatedAt, _ = time.Parse(timeLayout, created)
	return &sig, nil
}

// CreateSchedule inserts a schedule for a signal and populates its ID.
// A zero NextRun defaults to StartTime.
func (s *SQLite) CreateSchedule(ctx context.Context, sch *model.ScheduledSignal) error {
	if sch.NextRun.IsZero() {
		sch.NextRun = sch.StartTime
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_signals (signal_id, start_time, frequency_hours, is_active, last_run, next_run)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sch.SignalID, formatTime(sch.StartTime), sch.FrequencyHours, boolToInt(sch.IsActive),
		formatTimePtr(sch.LastRun), formatTime(sch.NextRun),
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sch.ID = id
	return nil
}

const scheduleColumns = `ss.id, ss.signal_id, ss.start_time, ss.frequency_hours, ss.is_active, ss.last_run,
	ss.next_run, ss.consecutive_failures,
	s.id, s.user_id, s.name, s.topic, s.keywords, s.status, s.created_at`

// GetSchedule returns a schedule joined with its signal.
func (s *SQLite) GetSchedule(ctx context.Context, id int64) (*model.ScheduledSignal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM scheduled_signals ss JOIN signals s ON s.id = ss.signal_id
		 WHERE ss.id = ?`, id,
	)
	sch, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sch, err
}

// ListDueSchedules returns active schedules of active signals whose next run has elapsed,
// oldest first.
func (s *SQLite) ListDueSchedules(ctx context.Context, now time.Time) ([]model.ScheduledSignal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM scheduled_signals ss JOIN signals s ON s.id = ss.signal_id
		 WHERE ss.is_active = 1
		   AND s.status = ?
		   AND ss.next_run <= ?
		 ORDER BY ss.next_run, ss.id`,
		string(model.SignalActive), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ScheduledSignal
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sch)
	}
	return out, rows.Err()
}

// RescheduleSignal records a run and sets the next one.
func (s *SQLite) RescheduleSignal(ctx context.Context, id int64, lastRun, nextRun time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_signals SET last_run = ?, next_run = ? WHERE id = ?`,
		formatTime(lastRun), formatTime(nextRun), id,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return requireRow(res)
}

// RecordScheduleFailure increments the failure counter and deactivates the schedule
// once it reaches maxFailures. maxFailures <= 0 never deactivates.
func (s *SQLite) RecordScheduleFailure(ctx context.Context, id int64, maxFailures int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var failures int
	err = tx.QueryRowContext(ctx,
		`UPDATE scheduled_signals SET consecutive_failures = consecutive_failures + 1
		 WHERE id = ? RETURNING consecutive_failures`, id,
	).Scan(&failures)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("increment failures: %w", err)
	}

	deactivated := maxFailures > 0 && failures >= maxFailures
	if deactivated {
		if _, err := tx.ExecContext(ctx, `UPDATE scheduled_signals SET is_active = 0 WHERE id = ?`, id); err != nil {
			return false, fmt.Errorf("deactivate schedule: %w", err)
		}
	}
	return deactivated, tx.Commit()
}

// ResetScheduleFailures clears the failure counter.
func (s *SQLite) ResetScheduleFailures(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_signals SET consecutive_failures = 0 WHERE id = ? AND consecutive_failures <> 0`, id,
	)
	if err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return nil
}

// ListSchedules returns every schedule with its signal, ordered by id.
func (s *SQLite) ListSchedules(ctx context.Context) ([]model.ScheduledSignal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM scheduled_signals ss JOIN signals s ON s.id = ss.signal_id
		 ORDER BY ss.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ScheduledSignal
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sch)
	}
	return out, rows.Err()
}

// SetScheduleActive pauses or resumes a schedule. Resuming clears the failure counter.
func (s *SQLite) SetScheduleActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE scheduled_signals SET is_active = 0 WHERE id = ?`
	if active {
		query = `UPDATE scheduled_signals SET is_active = 1, consecutive_failures = 0 WHERE id = ?`
	}
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return requireRow(res)
}

// SetScheduleFrequency changes how often a schedule runs. The next run is left as is.
func (s *SQLite) SetScheduleFrequency(ctx context.Context, id int64, hours float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_signals SET frequency_hours = ? WHERE id = ?`, hours, id,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return requireRow(res)
}

// ContentItemExists checks whether any signal already holds an item with the external id.
func (s *SQLite) ContentItemExists(ctx context.Context, externalID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_items WHERE external_id = ?`, externalID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check content item: %w", err)
	}
	return count > 0, nil
}

// InsertContentItem stores item unless its external id is already stored.
// On insert the item's ID and FetchedAt are populated.
func (s *SQLite) InsertContentItem(ctx context.Context, item *model.ContentItem) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO content_items (signal_id, external_id, title, body, author, topic, url, score, created_at, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO NOTHING`,
		item.SignalID, item.ExternalID, item.Title, item.Body, item.Author, item.Topic, item.URL, item.Score,
		formatTime(item.CreatedAt), formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("insert content item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	item.ID = id
	item.FetchedAt = now.Truncate(time.Second)
	return true, nil
}

// ListContentItems returns the items stored for a signal in insertion order.
func (s *SQLite) ListContentItems(ctx context.Context, signalID int64) ([]model.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, signal_id, external_id, title, body, author, topic, url, score, created_at, fetched_at
		 FROM content_items WHERE signal_id = ? ORDER BY id`, signalID,
	)
	if err != nil {
		return nil, fmt.Errorf("query content items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ContentItem
	for rows.Next() {
		var it model.ContentItem
		var created, fetched string
		if err := rows.Scan(&it.ID, &it.SignalID, &it.ExternalID, &it.Title, &it.Body, &it.Author,
			&it.Topic, &it.URL, &it.Score, &created, &fetched); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		it.CreatedAt, _ = time.Parse(timeLayout, created)
		it.FetchedAt, _ = time.Parse(timeLayout, fetched)
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpsertArtifact stores the artifact for its content item, overwriting the text of an
// existing row. The published flag is never touched here.
func (s *SQLite) UpsertArtifact(ctx context.Context, a *model.GeneratedArtifact) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO generated_artifacts (content_item_id, user_id, text, tone, target_words)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (content_item_id) DO UPDATE SET
			user_id = excluded.user_id,
			text = excluded.text,
			tone = excluded.tone,
			target_words = excluded.target_words
		 RETURNING id, is_published`,
		a.ContentItemID, a.UserID, a.Text, a.Tone, a.TargetWords,
	).Scan(&a.ID, &a.IsPublished)
	if err != nil {
		return fmt.Errorf("upsert artifact: %w", err)
	}
	return nil
}

// GetArtifact returns the artifact generated for a content item.
func (s *SQLite) GetArtifact(ctx context.Context, contentItemID int64) (*model.GeneratedArtifact, error) {
	var a model.GeneratedArtifact
	var isPublished int
	var publishedAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content_item_id, user_id, text, tone, target_words, is_published, published_at
		 FROM generated_artifacts WHERE content_item_id = ?`, contentItemID,
	).Scan(&a.ID, &a.ContentItemID, &a.UserID, &a.Text, &a.Tone, &a.TargetWords, &isPublished, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	a.IsPublished = isPublished == 1
	a.PublishedAt = parseTimePtr(publishedAt)
	return &a, nil
}

// MarkArtifactPublished flips the published flag once. Marking an already published
// artifact is a no-op that keeps the original timestamp.
func (s *SQLite) MarkArtifactPublished(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generated_artifacts SET is_published = 1, published_at = ? WHERE id = ? AND is_published = 0`,
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generated_artifacts WHERE id = ?`, id).Scan(&count); err != nil {
		return fmt.Errorf("check artifact: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// SavePromptConfig inserts or replaces the prompt settings for a (user, signal) pair.
func (s *SQLite) SavePromptConfig(ctx context.Context, p *model.PromptConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_configs (user_id, signal_id, prompt, min_words, max_words, min_delay_seconds, max_delay_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, signal_id) DO UPDATE SET
			prompt = excluded.prompt,
			min_words = excluded.min_words,
			max_words = excluded.max_words,
			min_delay_seconds = excluded.min_delay_seconds,
			max_delay_seconds = excluded.max_delay_seconds`,
		p.UserID, p.SignalID, p.Prompt, p.MinWords, p.MaxWords, p.MinDelaySeconds, p.MaxDelaySeconds,
	)
	if err != nil {
		return fmt.Errorf("save prompt config: %w", err)
	}
	return nil
}

// GetPromptConfig returns the prompt settings for a (user, signal) pair.
func (s *SQLite) GetPromptConfig(ctx context.Context, userID string, signalID int64) (*model.PromptConfig, error) {
	var p model.PromptConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, signal_id, prompt, min_words, max_words, min_delay_seconds, max_delay_seconds
		 FROM prompt_configs WHERE user_id = ? AND signal_id = ?`, userID, signalID,
	).Scan(&p.UserID, &p.SignalID, &p.Prompt, &p.MinWords, &p.MaxWords, &p.MinDelaySeconds, &p.MaxDelaySeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prompt config: %w", err)
	}
	return &p, nil
}

// CreateContext inserts a context and populates its ID. A zero CreatedAt defaults to now.
func (s *SQLite) CreateContext(ctx context.Context, c *model.Context) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contexts (user_id, name, text, created_at) VALUES (?, ?, ?, ?)`,
		c.UserID, c.Name, c.Text, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert context: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// LatestContext returns the most recently created context of a user.
func (s *SQLite) LatestContext(ctx context.Context, userID string) (*model.Context, error) {
	var c model.Context
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, text, created_at FROM contexts
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Text, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan context: %w", err)
	}
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	return &c, nil
}

// SaveTone adds or relabels a tone option of a user.
func (s *SQLite) SaveTone(ctx context.Context, userID string, t model.Tone) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tones (user_id, value, label) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, value) DO UPDATE SET label = excluded.label`,
		userID, t.Value, t.Label,
	)
	if err != nil {
		return fmt.Errorf("save tone: %w", err)
	}
	return nil
}

// ListTones returns the tone options of a user ordered by value.
func (s *SQLite) ListTones(ctx context.Context, userID string) ([]model.Tone, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT value, label FROM tones WHERE user_id = ? ORDER BY value`, userID)
	if err != nil {
		return nil, fmt.Errorf("query tones: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tones []model.Tone
	for rows.Next() {
		var t model.Tone
		if err := rows.Scan(&t.Value, &t.Label); err != nil {
			return nil, fmt.Errorf("scan tone: %w", err)
		}
		tones = append(tones, t)
	}
	return tones, rows.Err()
}

// SaveCredential inserts or replaces a user's platform credential.
func (s *SQLite) SaveCredential(ctx context.Context, c *model.ExternalCredential) error {
	c.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, username, access_token, refresh_token, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		c.UserID, c.Username, c.AccessToken, c.RefreshToken, formatTimePtr(c.ExpiresAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// GetCredential returns a user's platform credential.
func (s *SQLite) GetCredential(ctx context.Context, userID string) (*model.ExternalCredential, error) {
	var c model.ExternalCredential
	var expires sql.NullString
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, access_token, refresh_token, expires_at, updated_at
		 FROM credentials WHERE user_id = ?`, userID,
	).Scan(&c.UserID, &c.Username, &c.AccessToken, &c.RefreshToken, &expires, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	c.ExpiresAt = parseTimePtr(expires)
	c.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &c, nil
}

// UpdateAccessToken replaces the access token and expiry after a refresh.
func (s *SQLite) UpdateAccessToken(ctx context.Context, userID, token string, expiresAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET access_token = ?, expires_at = ?, updated_at = ? WHERE user_id = ?`,
		token, formatTimePtr(expiresAt), formatTime(time.Now()), userID,
	)
	if err != nil {
		return fmt.Errorf("update access token: %w", err)
	}
	return requireRow(res)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func decodeKeywords(raw string) []string {
	if raw == "" {
		return nil
	}
	var kw []string
	if err := json.Unmarshal([]byte(raw), &kw); err != nil {
		return nil
	}
	return kw
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSchedule(row scannable) (*model.ScheduledSignal, error) {
	var sch model.ScheduledSignal
	var isActive int
	var start, next, keywords, status, created string
	var lastRun sql.NullString
	err := row.Scan(&sch.ID, &sch.SignalID, &start, &sch.FrequencyHours, &isActive, &lastRun, &next,
		&sch.ConsecutiveFailures,
		&sch.Signal.ID, &sch.Signal.UserID, &sch.Signal.Name, &sch.Signal.Topic, &keywords, &status, &created)
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	sch.IsActive = isActive == 1
	sch.StartTime, _ = time.Parse(timeLayout, start)
	sch.NextRun, _ = time.Parse(timeLayout, next)
	sch.LastRun = parseTimePtr(lastRun)
	sch.Signal.Keywords = decodeKeywords(keywords)
	sch.Signal.Status = model.SignalStatus(status)
	sch.Signal.CreatedAt, _ = time.Parse(timeLayout, created)
	return &sch, nil
}
