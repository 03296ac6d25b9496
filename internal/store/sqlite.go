package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// sqliteErr maps driver errors onto the package sentinels.
func sqliteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%s: %w", op, ErrDuplicateSlug)
		}
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%s: %w: %v", op, ErrNotProvisioned, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *SQLite) CreateLink(ctx context.Context, slug, longURL string, at time.Time) (Link, error) {
	at = at.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO links(slug, long_url, clicks, created_at) VALUES(?, ?, 0, ?)`, slug, longURL, at)
	if err != nil {
		return Link{}, sqliteErr("create link", err)
	}
	return Link{Slug: slug, LongURL: longURL, CreatedAt: at}, nil
}

func (s *SQLite) FindLink(ctx context.Context, slug string) (Link, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT slug, long_url, clicks, created_at, last_accessed FROM links WHERE slug = ?`, slug)
	l, err := scanLink(row)
	if err != nil {
		return Link{}, sqliteErr("find link", err)
	}
	return l, nil
}

func (s *SQLite) LinkExists(ctx context.Context, slug string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM links WHERE slug = ?`, slug).Scan(&one)
	switch err = sqliteErr("link exists", err); {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotProvisioned):
		return false, nil
	default:
		return false, err
	}
}

func (s *SQLite) IncrementClicks(ctx context.Context, slug string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE links SET clicks = clicks + 1, last_accessed = ? WHERE slug = ?`, at.UTC(), slug)
	return sqliteErr("increment clicks", err)
}

func (s *SQLite) ListRecent(ctx context.Context, limit, offset int) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slug, long_url, clicks, created_at, last_accessed FROM links
		ORDER BY created_at DESC, slug LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, sqliteErr("list recent", err)
	}
	defer rows.Close()
	res := make([]Link, 0, max(limit, 0))
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, sqliteErr("list recent", err)
		}
		res = append(res, l)
	}
	return res, sqliteErr("list recent", rows.Err())
}

func (s *SQLite) CountLinks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links`).Scan(&n); err != nil {
		return 0, sqliteErr("count links", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(sc scanner) (Link, error) {
	var l Link
	var last sql.NullTime
	if err := sc.Scan(&l.Slug, &l.LongURL, &l.Clicks, &l.CreatedAt, &last); err != nil {
		return Link{}, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	if last.Valid {
		t := last.Time.UTC()
		l.LastAccessed = &t
	}
	return l, nil
}

const clickColumns = `id, slug, ts, ip, user_agent, referer, country, location, is_bot,
	bot_category, bot_name, device_type, os, browser, user_id`

func (s *SQLite) InsertClick(ctx context.Context, ev ClickEvent) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO clicks(`+clickColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Slug, ev.Timestamp.UTC(), ev.IP, ev.UserAgent, ev.Referer, ev.Country, ev.Location, ev.IsBot,
		ev.BotCategory, ev.BotName, ev.Device.DeviceType, ev.Device.OS, ev.Device.Browser, ev.UserID)
	return sqliteErr("insert click", err)
}

func (s *SQLite) ClicksBySlug(ctx context.Context, slug string, limit, offset int) ([]ClickEvent, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
		offset = 0
	}
	return s.queryClicks(ctx, "clicks by slug", `SELECT `+clickColumns+` FROM clicks
		WHERE slug = ? ORDER BY ts DESC, id LIMIT ? OFFSET ?`, slug, limit, offset)
}

func (s *SQLite) ClicksByUser(ctx context.Context, userID string) ([]ClickEvent, error) {
	return s.queryClicks(ctx, "clicks by user", `SELECT `+clickColumns+` FROM clicks
		WHERE user_id = ? ORDER BY ts DESC, id`, userID)
}

func (s *SQLite) UserClicks(ctx context.Context) ([]ClickEvent, error) {
	return s.queryClicks(ctx, "user clicks", `SELECT `+clickColumns+` FROM clicks
		WHERE user_id <> '' ORDER BY ts DESC, id`)
}

func (s *SQLite) queryClicks(ctx context.Context, op, query string, args ...any) ([]ClickEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteErr(op, err)
	}
	defer rows.Close()
	var res []ClickEvent
	for rows.Next() {
		var ev ClickEvent
		if err := rows.Scan(&ev.ID, &ev.Slug, &ev.Timestamp, &ev.IP, &ev.UserAgent, &ev.Referer, &ev.Country,
			&ev.Location, &ev.IsBot, &ev.BotCategory, &ev.BotName, &ev.Device.DeviceType, &ev.Device.OS,
			&ev.Device.Browser, &ev.UserID); err != nil {
			return nil, sqliteErr(op, err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		res = append(res, ev)
	}
	return res, sqliteErr(op, rows.Err())
}

func (s *SQLite) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err = sqliteErr("get setting", err); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *SQLite) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	return sqliteErr("put setting", err)
}

func (s *SQLite) AddSecret(ctx context.Context, secret string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO totp_secrets(secret, verified, created_at) VALUES(?, 0, ?)`, secret, at.UTC())
	return sqliteErr("add secret", err)
}

func (s *SQLite) FindSecret(ctx context.Context, secret string) (TOTPSecret, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT secret, verified, created_at, verified_at FROM totp_secrets WHERE secret = ?`, secret)
	ts, err := scanSecret(row)
	if err != nil {
		return TOTPSecret{}, sqliteErr("find secret", err)
	}
	return ts, nil
}

func (s *SQLite) MarkVerified(ctx context.Context, secret string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE totp_secrets SET verified = 1, verified_at = ? WHERE secret = ?`, at.UTC(), secret)
	if err != nil {
		return sqliteErr("mark verified", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) VerifiedSecrets(ctx context.Context) ([]TOTPSecret, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT secret, verified, created_at, verified_at FROM totp_secrets WHERE verified = 1 ORDER BY created_at`)
	if err != nil {
		return nil, sqliteErr("verified secrets", err)
	}
	defer rows.Close()
	var res []TOTPSecret
	for rows.Next() {
		ts, err := scanSecret(rows)
		if err != nil {
			return nil, sqliteErr("verified secrets", err)
		}
		res = append(res, ts)
	}
	return res, sqliteErr("verified secrets", rows.Err())
}

func scanSecret(sc scanner) (TOTPSecret, error) {
	var ts TOTPSecret
	var verifiedAt sql.NullTime
	if err := sc.Scan(&ts.Secret, &ts.Verified, &ts.CreatedAt, &verifiedAt); err != nil {
		return TOTPSecret{}, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		ts.VerifiedAt = &t
	}
	return ts, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Migrate ensures schema exists
func (s *SQLite) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS links (
			slug TEXT PRIMARY KEY,
			long_url TEXT NOT NULL,
			clicks INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_accessed DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_links_created_at ON links(created_at);`,
		`CREATE TABLE IF NOT EXISTS clicks (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			ts DATETIME NOT NULL,
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			referer TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			is_bot BOOLEAN NOT NULL DEFAULT 0,
			bot_category TEXT NOT NULL DEFAULT '',
			bot_name TEXT NOT NULL DEFAULT '',
			device_type TEXT NOT NULL DEFAULT '',
			os TEXT NOT NULL DEFAULT '',
			browser TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_slug_ts ON clicks(slug, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_clicks_user_id ON clicks(user_id);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS totp_secrets (
			secret TEXT PRIMARY KEY,
			verified BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			verified_at DATETIME
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
