package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// RefreshToken: непрозрачный токен "<ulid>.<secret>". Клиент получает Raw,
// в БД хранится только Hash.
type RefreshToken struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// Refresh выпускает новый refresh-токен со сроком RefreshTTL.
func (t *Tokens) Refresh() (RefreshToken, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return RefreshToken{}, fmt.Errorf("refresh token entropy: %w", err)
	}
	raw := ulid.Make().String() + "." + base64.RawURLEncoding.EncodeToString(b)
	return RefreshToken{
		Raw:       raw,
		Hash:      HashRefresh(raw),
		ExpiresAt: t.now().Add(t.cfg.RefreshTTL),
	}, nil
}

// HashRefresh: sha256 hex от токена в том виде, как его прислал клиент.
func HashRefresh(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
