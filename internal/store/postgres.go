package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres SQLSTATE codes the store distinguishes.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

type linkRow struct {
	Slug         string    `gorm:"primaryKey;type:varchar(64)"`
	LongURL      string    `gorm:"type:text;not null"`
	Clicks       int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null;index"`
	LastAccessed *time.Time
}

func (linkRow) TableName() string { return "links" }

type clickRow struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	Slug        string    `gorm:"type:varchar(64);not null;index:idx_clicks_slug_ts,priority:1"`
	Timestamp   time.Time `gorm:"column:ts;not null;index:idx_clicks_slug_ts,priority:2"`
	IP          string    `gorm:"type:varchar(64)"`
	UserAgent   string    `gorm:"type:text"`
	Referer     string    `gorm:"type:text"`
	Country     string    `gorm:"type:varchar(8)"`
	Location    string    `gorm:"type:text"`
	IsBot       bool      `gorm:"not null;default:false"`
	BotCategory string    `gorm:"type:varchar(64)"`
	BotName     string    `gorm:"type:varchar(64)"`
	DeviceType  string    `gorm:"type:varchar(32)"`
	OS          string    `gorm:"column:os;type:varchar(32)"`
	Browser     string    `gorm:"type:varchar(32)"`
	UserID      string    `gorm:"type:varchar(128);index"`
}

func (clickRow) TableName() string { return "clicks" }

type settingRow struct {
	Key       string `gorm:"primaryKey;type:varchar(64)"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (settingRow) TableName() string { return "settings" }

type secretRow struct {
	Secret     string    `gorm:"primaryKey;type:varchar(128)"`
	Verified   bool      `gorm:"not null;default:false;index"`
	CreatedAt  time.Time `gorm:"not null"`
	VerifiedAt *time.Time
}

func (secretRow) TableName() string { return "totp_secrets" }

func (r linkRow) toLink() Link {
	return Link{Slug: r.Slug, LongURL: r.LongURL, Clicks: r.Clicks, CreatedAt: r.CreatedAt.UTC(), LastAccessed: r.LastAccessed}
}

func fromClick(ev ClickEvent) clickRow {
	return clickRow{
		ID: ev.ID, Slug: ev.Slug, Timestamp: ev.Timestamp.UTC(), IP: ev.IP, UserAgent: ev.UserAgent,
		Referer: ev.Referer, Country: ev.Country, Location: ev.Location, IsBot: ev.IsBot,
		BotCategory: ev.BotCategory, BotName: ev.BotName, DeviceType: ev.Device.DeviceType,
		OS: ev.Device.OS, Browser: ev.Device.Browser, UserID: ev.UserID,
	}
}

func (r clickRow) toClick() ClickEvent {
	return ClickEvent{
		ID: r.ID, Slug: r.Slug, Timestamp: r.Timestamp.UTC(), IP: r.IP, UserAgent: r.UserAgent,
		Referer: r.Referer, Country: r.Country, Location: r.Location, IsBot: r.IsBot,
		BotCategory: r.BotCategory, BotName: r.BotName, UserID: r.UserID,
		Device: DeviceInfo{DeviceType: r.DeviceType, OS: r.OS, Browser: r.Browser},
	}
}

// Postgres is the gorm-backed store used when DB_DRIVER=postgres.
type Postgres struct {
	db *gorm.DB
}

func OpenPostgres(dsn, logLevel string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: NewGormLogger(logLevel)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return &Postgres{db: db}, nil
}

func pgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrDuplicateSlug)
		case pgUndefinedTable:
			return fmt.Errorf("%s: %w: %v", op, ErrNotProvisioned, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (p *Postgres) CreateLink(ctx context.Context, slug, longURL string, at time.Time) (Link, error) {
	row := linkRow{Slug: slug, LongURL: longURL, CreatedAt: at.UTC()}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Link{}, pgErr("create link", err)
	}
	return row.toLink(), nil
}

func (p *Postgres) FindLink(ctx context.Context, slug string) (Link, error) {
	var row linkRow
	if err := p.db.WithContext(ctx).Where("slug = ?", slug).First(&row).Error; err != nil {
		return Link{}, pgErr("find link", err)
	}
	return row.toLink(), nil
}

func (p *Postgres) LinkExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	err := pgErr("link exists", p.db.WithContext(ctx).Model(&linkRow{}).Where("slug = ?", slug).Count(&n).Error)
	if errors.Is(err, ErrNotProvisioned) {
		return false, nil
	}
	return n > 0, err
}

func (p *Postgres) IncrementClicks(ctx context.Context, slug string, at time.Time) error {
	err := p.db.WithContext(ctx).Model(&linkRow{}).Where("slug = ?", slug).
		Updates(map[string]any{"clicks": gorm.Expr("clicks + 1"), "last_accessed": at.UTC()}).Error
	return pgErr("increment clicks", err)
}

func (p *Postgres) ListRecent(ctx context.Context, limit, offset int) ([]Link, error) {
	var rows []linkRow
	err := p.db.WithContext(ctx).Order("created_at DESC").Order("slug").
		Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, pgErr("list recent", err)
	}
	res := make([]Link, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toLink())
	}
	return res, nil
}

func (p *Postgres) CountLinks(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.WithContext(ctx).Model(&linkRow{}).Count(&n).Error
	return n, pgErr("count links", err)
}

func (p *Postgres) InsertClick(ctx context.Context, ev ClickEvent) error {
	row := fromClick(ev)
	return pgErr("insert click", p.db.WithContext(ctx).Create(&row).Error)
}

func (p *Postgres) ClicksBySlug(ctx context.Context, slug string, limit, offset int) ([]ClickEvent, error) {
	q := p.db.WithContext(ctx).Where("slug = ?", slug).Order("ts DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	return p.findClicks(q, "clicks by slug")
}

func (p *Postgres) ClicksByUser(ctx context.Context, userID string) ([]ClickEvent, error) {
	return p.findClicks(p.db.WithContext(ctx).Where("user_id = ?", userID).Order("ts DESC"), "clicks by user")
}

func (p *Postgres) UserClicks(ctx context.Context) ([]ClickEvent, error) {
	return p.findClicks(p.db.WithContext(ctx).Where("user_id <> ''").Order("ts DESC"), "user clicks")
}

func (p *Postgres) findClicks(q *gorm.DB, op string) ([]ClickEvent, error) {
	var rows []clickRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, pgErr(op, err)
	}
	res := make([]ClickEvent, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toClick())
	}
	return res, nil
}

func (p *Postgres) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var row settingRow
	err := pgErr("get setting", p.db.WithContext(ctx).Where("key = ?", key).First(&row).Error)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return row.Value, true, nil
}

func (p *Postgres) PutSetting(ctx context.Context, key, value string) error {
	row := settingRow{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	return pgErr("put setting", err)
}

func (p *Postgres) AddSecret(ctx context.Context, secret string, at time.Time) error {
	row := secretRow{Secret: secret, CreatedAt: at.UTC()}
	return pgErr("add secret", p.db.WithContext(ctx).Create(&row).Error)
}

func (p *Postgres) FindSecret(ctx context.Context, secret string) (TOTPSecret, error) {
	var row secretRow
	if err := p.db.WithContext(ctx).Where("secret = ?", secret).First(&row).Error; err != nil {
		return TOTPSecret{}, pgErr("find secret", err)
	}
	return TOTPSecret(row), nil
}

func (p *Postgres) MarkVerified(ctx context.Context, secret string, at time.Time) error {
	t := at.UTC()
	res := p.db.WithContext(ctx).Model(&secretRow{}).Where("secret = ?", secret).
		Updates(map[string]any{"verified": true, "verified_at": &t})
	if res.Error != nil {
		return pgErr("mark verified", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) VerifiedSecrets(ctx context.Context) ([]TOTPSecret, error) {
	var rows []secretRow
	if err := p.db.WithContext(ctx).Where("verified = ?", true).Order("created_at").Find(&rows).Error; err != nil {
		return nil, pgErr("verified secrets", err)
	}
	res := make([]TOTPSecret, 0, len(rows))
	for _, r := range rows {
		res = append(res, TOTPSecret(r))
	}
	return res, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&linkRow{}, &clickRow{}, &settingRow{}, &secretRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
