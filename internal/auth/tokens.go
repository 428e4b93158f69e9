package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"starter/internal/models"
)

// ErrInvalidToken: подпись, срок или обязательные claims не прошли проверку.
var ErrInvalidToken = errors.New("invalid token")

type Config struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims: содержимое access-токена.
type Claims struct {
	UserID uint     `json:"uid"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Tokens выпускает и проверяет access-токены (HS256) и refresh-токены.
type Tokens struct {
	cfg    Config
	secret []byte
	now    func() time.Time
}

func NewTokens(cfg Config) *Tokens {
	return &Tokens{cfg: cfg, secret: []byte(cfg.Secret), now: func() time.Time { return time.Now().UTC() }}
}

// Access подписывает access-токен для пользователя.
func (t *Tokens) Access(u *models.User, roles []string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.cfg.AccessTTL)
	claims := Claims{
		UserID: u.ID,
		Name:   u.UserName,
		Email:  u.Email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    t.cfg.Issuer,
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse проверяет подпись, issuer, audience и сроки.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	}
	if t.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.cfg.Issuer))
	}
	if t.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(t.cfg.Audience))
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
