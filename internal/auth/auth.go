// Package auth gates the dashboard API behind TOTP login and signed
// bearer tokens.
package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/roniherschmann/linkpulse/internal/store"
)

// SetupAllowedKey is the settings key holding the enrollment toggle.
const SetupAllowedKey = "totp_setup_allowed"

const (
	codePeriod = 30
	codeSkew   = 2
	qrSize     = 256
)

var (
	ErrSetupDisabled     = errors.New("2FA setup is disabled")
	ErrInvalidCodeFormat = errors.New("code must be 6 digits")
	ErrInvalidCode       = errors.New("invalid 2FA code")
	ErrUnknownSecret     = errors.New("unknown or already verified secret")
	ErrMissingToken      = errors.New("no token provided")
	ErrInvalidToken      = errors.New("invalid token")
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

type Store interface {
	store.SettingsStore
	store.SecretStore
}

type Options struct {
	Issuer    string
	Account   string
	JWTSecret []byte
	TokenTTL  time.Duration
}

type Service struct {
	store Store
	opts  Options
	now   func() time.Time
}

func NewService(st Store, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &Service{store: st, opts: opts, now: time.Now}
}

type Status struct {
	SetupAllowed    bool `json:"setupAllowed"`
	EnrolledDevices int  `json:"enrolledDevices"`
}

type Enrollment struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
	QRCode     string `json:"qrCode"`
}

type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SetupAllowed reads the enrollment toggle; an unset toggle means allowed.
func (s *Service) SetupAllowed(ctx context.Context) (bool, error) {
	v, ok, err := s.store.GetSetting(ctx, SetupAllowedKey)
	if err != nil {
		return false, fmt.Errorf("read setup flag: %w", err)
	}
	if !ok {
		return true, nil
	}
	allowed, err := strconv.ParseBool(v)
	if err != nil {
		return true, nil
	}
	return allowed, nil
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	allowed, err := s.SetupAllowed(ctx)
	if err != nil {
		return Status{}, err
	}
	secrets, err := s.store.VerifiedSecrets(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("list secrets: %w", err)
	}
	return Status{SetupAllowed: allowed, EnrolledDevices: len(secrets)}, nil
}

// Toggle switches whether new devices may enroll.
func (s *Service) Toggle(ctx context.Context, enabled bool) error {
	if err := s.store.PutSetting(ctx, SetupAllowedKey, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("write setup flag: %w", err)
	}
	return nil
}

// Setup creates a pending secret. It becomes usable for login only after
// Verify confirms a code generated from it.
func (s *Service) Setup(ctx context.Context) (Enrollment, error) {
	allowed, err := s.SetupAllowed(ctx)
	if err != nil {
		return Enrollment{}, err
	}
	if !allowed {
		return Enrollment{}, ErrSetupDisabled
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.opts.Issuer,
		AccountName: s.opts.Account,
		Period:      codePeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp key: %w", err)
	}
	qr, err := qrDataURL(key)
	if err != nil {
		return Enrollment{}, err
	}
	if err := s.store.AddSecret(ctx, key.Secret(), s.now()); err != nil {
		return Enrollment{}, fmt.Errorf("store secret: %w", err)
	}
	return Enrollment{Secret: key.Secret(), OTPAuthURL: key.URL(), QRCode: qr}, nil
}

func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *Service) validCode(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    codePeriod,
		Skew:      codeSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Verify confirms a pending enrollment with a code from the new device.
func (s *Service) Verify(ctx context.Context, secret, code string) error {
	if !codePattern.MatchString(code) {
		return ErrInvalidCodeFormat
	}
	allowed, err := s.SetupAllowed(ctx)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrSetupDisabled
	}
	pending, err := s.store.FindSecret(ctx, secret)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrUnknownSecret
	case err != nil:
		return fmt.Errorf("find secret: %w", err)
	case pending.Verified:
		return ErrUnknownSecret
	}
	if !s.validCode(code, secret) {
		return ErrInvalidCode
	}
	if err := s.store.MarkVerified(ctx, secret, s.now()); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// Login checks the code against every enrolled device and issues a token.
func (s *Service) Login(ctx context.Context, code string) (Token, error) {
	if !codePattern.MatchString(code) {
		return Token{}, ErrInvalidCodeFormat
	}
	secrets, err := s.store.VerifiedSecrets(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("list secrets: %w", err)
	}
	for _, sec := range secrets {
		if s.validCode(code, sec.Secret) {
			return s.IssueToken()
		}
	}
	return Token{}, ErrInvalidCode
}

func (s *Service) IssueToken() (Token, error) {
	now := s.now()
	exp := now.Add(s.opts.TokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   s.opts.Account,
		Issuer:    s.opts.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.JWTSecret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Token: signed, ExpiresAt: exp.UTC().Truncate(time.Second)}, nil
}

func (s *Service) ValidateToken(raw string) (*jwt.RegisteredClaims, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.opts.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
