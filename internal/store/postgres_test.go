package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestPgErr(t *testing.T) {
	assert.NoError(t, pgErr("op", nil))
	assert.ErrorIs(t, pgErr("op", gorm.ErrRecordNotFound), ErrNotFound)

	dup := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: pgUniqueViolation, Message: "duplicate key"})
	assert.ErrorIs(t, pgErr("create link", dup), ErrDuplicateSlug)

	missing := &pgconn.PgError{Code: pgUndefinedTable, Message: `relation "links" does not exist`}
	err := pgErr("list recent", missing)
	assert.ErrorIs(t, err, ErrNotProvisioned)
	assert.Contains(t, err.Error(), "list recent")

	other := errors.New("connection reset")
	assert.ErrorIs(t, pgErr("op", other), other)
}

func TestRowConversions(t *testing.T) {
	ev := ClickEvent{ID: "1", Slug: "abc", IsBot: true, BotName: "Google Bot",
		Device: DeviceInfo{DeviceType: "Mobile", OS: "Android", Browser: "Chrome"}, UserID: "u1"}
	assert.Equal(t, ev, fromClick(ev).toClick())
}

func TestNewGormLoggerLevels(t *testing.T) {
	assert.Equal(t, NewGormLogger("silent").level, NewGormLogger("disabled").level)
	assert.Greater(t, NewGormLogger("debug").level, NewGormLogger("info").level)
	assert.Greater(t, NewGormLogger("warn").level, NewGormLogger("error").level)
}
