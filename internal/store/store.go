package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateSlug = errors.New("slug already exists")
	// ErrNotProvisioned means the schema has not been created yet.
	ErrNotProvisioned = errors.New("tables not initialized")
)

type Link struct {
	Slug         string     `json:"slug"`
	LongURL      string     `json:"longUrl"`
	Clicks       int64      `json:"clicks"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastAccessed *time.Time `json:"lastAccessed"`
}

type DeviceInfo struct {
	DeviceType string `json:"deviceType"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
}

// ClickEvent is append-only; nothing updates or deletes one once stored.
type ClickEvent struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Timestamp   time.Time  `json:"timestamp"`
	IP          string     `json:"ip"`
	UserAgent   string     `json:"userAgent"`
	Referer     string     `json:"referer"`
	Country     string     `json:"country,omitempty"`
	Location    string     `json:"location"`
	IsBot       bool       `json:"isBot"`
	BotCategory string     `json:"botCategory,omitempty"`
	BotName     string     `json:"botName,omitempty"`
	Device      DeviceInfo `json:"deviceInfo"`
	UserID      string     `json:"userId,omitempty"`
}

type TOTPSecret struct {
	Secret     string
	Verified   bool
	CreatedAt  time.Time
	VerifiedAt *time.Time
}

type LinkStore interface {
	// CreateLink fails with ErrDuplicateSlug if the slug is taken.
	CreateLink(ctx context.Context, slug, longURL string, at time.Time) (Link, error)
	FindLink(ctx context.Context, slug string) (Link, error)
	// LinkExists reports false, not an error, before the schema exists.
	LinkExists(ctx context.Context, slug string) (bool, error)
	IncrementClicks(ctx context.Context, slug string, at time.Time) error
	ListRecent(ctx context.Context, limit, offset int) ([]Link, error)
	CountLinks(ctx context.Context) (int64, error)
}

type ClickStore interface {
	InsertClick(ctx context.Context, ev ClickEvent) error
	// ClicksBySlug returns newest first; limit <= 0 returns the full history.
	ClicksBySlug(ctx context.Context, slug string, limit, offset int) ([]ClickEvent, error)
	ClicksByUser(ctx context.Context, userID string) ([]ClickEvent, error)
	// UserClicks returns every event that carries a user id.
	UserClicks(ctx context.Context) ([]ClickEvent, error)
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

type SecretStore interface {
	AddSecret(ctx context.Context, secret string, at time.Time) error
	FindSecret(ctx context.Context, secret string) (TOTPSecret, error)
	MarkVerified(ctx context.Context, secret string, at time.Time) error
	VerifiedSecrets(ctx context.Context) ([]TOTPSecret, error)
}

type Store interface {
	LinkStore
	ClickStore
	SettingsStore
	SecretStore
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
