package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResetTokens подписывает токены сброса пароля.
//
// Формат: base64url(userID|exp|nonce) "." base64url(HMAC-SHA256(secret, payload\npasswordHash)).
// Хеш пароля входит в подпись, поэтому после смены пароля токен перестаёт проходить проверку.
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewResetTokens(secret string, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResetTokens{secret: []byte("reset:" + secret), ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (r *ResetTokens) TTL() time.Duration { return r.ttl }

func (r *ResetTokens) Issue(userID uint, passwordHash string) (string, time.Time) {
	exp := r.now().Add(r.ttl)
	payload := strings.Join([]string{
		strconv.FormatUint(uint64(userID), 10),
		strconv.FormatInt(exp.Unix(), 10),
		uuid.NewString(),
	}, "|")
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(payload)) + "." + enc.EncodeToString(r.sign(payload, passwordHash)), exp
}

// UserID читает пользователя из токена и проверяет срок. Подпись проверяет Verify,
// ей нужен текущий хеш пароля пользователя.
func (r *ResetTokens) UserID(token string) (uint, error) {
	payload, _, err := r.split(token)
	if err != nil {
		return 0, err
	}
	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	if !r.now().Before(time.Unix(exp, 0)) {
		return 0, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	return uint(id), nil
}

func (r *ResetTokens) Verify(token, passwordHash string) error {
	payload, sig, err := r.split(token)
	if err != nil {
		return err
	}
	if !hmac.Equal(sig, r.sign(payload, passwordHash)) {
		return ErrInvalidToken
	}
	return nil
}

// split принимает токен как есть или URL-кодированным (из ссылки в письме).
func (r *ResetTokens) split(token string) (string, []byte, error) {
	token = strings.TrimSpace(token)
	if dec, err := url.QueryUnescape(token); err == nil {
		token = dec
	}
	p, s, ok := strings.Cut(token, ".")
	if !ok {
		return "", nil, ErrInvalidToken
	}
	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(p)
	if err != nil {
		return "", nil, ErrInvalidToken
	}
	sig, err := enc.DecodeString(s)
	if err != nil {
		return "", nil, ErrInvalidToken
	}
	return string(payload), sig, nil
}

func (r *ResetTokens) sign(payload, passwordHash string) []byte {
	m := hmac.New(sha256.New, r.secret)
	m.Write([]byte(payload + "\n" + passwordHash))
	return m.Sum(nil)
}
