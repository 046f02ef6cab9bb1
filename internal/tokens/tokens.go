package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/govlink/govlink/internal/partition"
)

type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type Claims struct {
	Role      string `json:"role"`
	Partition string `json:"ptn"`
	Type      Kind   `json:"typ"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	AccessExp    time.Time `json:"-"`
	RefreshExp   time.Time `json:"-"`
}

type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	now           func() time.Time
}

type Option func(*Manager)

func WithIssuer(iss string) Option {
	return func(m *Manager) { m.issuer = iss }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(accessSecret, refreshSecret []byte, opts ...Option) (*Manager, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, errors.New("tokens: access and refresh secrets are required")
	}
	m := &Manager{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue mints an access/refresh pair for the principal using the
// partition's lifetimes.
func (m *Manager) Issue(subject, role string, p partition.Config) (*Pair, error) {
	now := m.now()
	accessExp := now.Add(p.AccessTTL)
	refreshExp := now.Add(p.RefreshTTL)

	access, err := m.sign(Access, subject, role, p.Name, now, accessExp)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.sign(Refresh, subject, role, p.Name, now, refreshExp)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (m *Manager) sign(kind Kind, subject, role, ptn string, iat, exp time.Time) (string, error) {
	claims := Claims{
		Role:      role,
		Partition: ptn,
		Type:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret(kind))
}

func (m *Manager) secret(kind Kind) []byte {
	if kind == Refresh {
		return m.refreshSecret
	}
	return m.accessSecret
}

// Verify checks signature, expiry, token type and partition. A token of the
// wrong type or minted for another partition is invalid even when its
// signature holds.
func (m *Manager) Verify(raw string, kind Kind, ptn string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	tkn, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return m.secret(kind), nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, kind, claims.Type)
	}
	if claims.Partition != ptn {
		return nil, fmt.Errorf("%w: token belongs to partition %q", ErrInvalidToken, claims.Partition)
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, fmt.Errorf("%w: missing subject or role", ErrInvalidToken)
	}

	return &claims, nil
}
