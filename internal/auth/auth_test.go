package auth

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/linkpulse/internal/store"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st := store.NewSQLite(db)
	require.NoError(t, st.Migrate(context.Background()))

	svc := NewService(st, Options{Issuer: "LinkPulse", Account: "admin", JWTSecret: []byte("test-secret")})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func code(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	c, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)
	return c
}

// enroll runs setup + verify and returns the confirmed secret.
func enroll(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()
	e, err := svc.Setup(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Verify(ctx, e.Secret, code(t, e.Secret, fixedNow)))
	return e.Secret
}

func TestSetup(t *testing.T) {
	svc := newService(t)
	e, err := svc.Setup(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, e.Secret)
	assert.True(t, strings.HasPrefix(e.OTPAuthURL, "otpauth://totp/LinkPulse:admin?"))
	assert.True(t, strings.HasPrefix(e.QRCode, "data:image/png;base64,"))

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status{SetupAllowed: true, EnrolledDevices: 0}, st, "pending secrets are not devices yet")
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	e, err := svc.Setup(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Verify(ctx, e.Secret, "12345"), ErrInvalidCodeFormat)
	assert.ErrorIs(t, svc.Verify(ctx, e.Secret, "abcdef"), ErrInvalidCodeFormat)
	assert.ErrorIs(t, svc.Verify(ctx, "NOTASECRET", "123456"), ErrUnknownSecret)
	assert.ErrorIs(t, svc.Verify(ctx, e.Secret, code(t, e.Secret, fixedNow.Add(-10*time.Minute))), ErrInvalidCode)

	// Two steps of drift either way are tolerated.
	require.NoError(t, svc.Verify(ctx, e.Secret, code(t, e.Secret, fixedNow.Add(-60*time.Second))))
	assert.ErrorIs(t, svc.Verify(ctx, e.Secret, code(t, e.Secret, fixedNow)), ErrUnknownSecret, "already verified")

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.EnrolledDevices)
}

func TestLoginAcrossDevices(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	first := enroll(t, svc)
	second := enroll(t, svc)

	for _, secret := range []string{first, second} {
		tok, err := svc.Login(ctx, code(t, secret, fixedNow))
		require.NoError(t, err)
		assert.Equal(t, fixedNow.Add(24*time.Hour), tok.ExpiresAt)

		claims, err := svc.ValidateToken(tok.Token)
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Subject)
	}

	_, err := svc.Login(ctx, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = svc.Login(ctx, "0000")
	assert.ErrorIs(t, err, ErrInvalidCodeFormat)
}

func TestLoginWithoutDevices(t *testing.T) {
	svc := newService(t)
	_, err := svc.Login(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestToggleSetup(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	e, err := svc.Setup(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Toggle(ctx, false))
	allowed, err := svc.SetupAllowed(ctx)
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = svc.Setup(ctx)
	assert.ErrorIs(t, err, ErrSetupDisabled)
	assert.ErrorIs(t, svc.Verify(ctx, e.Secret, code(t, e.Secret, fixedNow)), ErrSetupDisabled)

	require.NoError(t, svc.Toggle(ctx, true))
	require.NoError(t, svc.Verify(ctx, e.Secret, code(t, e.Secret, fixedNow)))
}

func TestValidateToken(t *testing.T) {
	svc := newService(t)
	tok, err := svc.IssueToken()
	require.NoError(t, err)

	_, err = svc.ValidateToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = svc.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.ValidateToken(tok.Token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(nil, Options{JWTSecret: []byte("another-secret")})
	other.now = svc.now
	_, err = other.ValidateToken(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken, "signed with a different key")

	svc.now = func() time.Time { return fixedNow.Add(25 * time.Hour) }
	_, err = svc.ValidateToken(tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}
