package auth

import (
	"context"
)

// Principal: аутентифицированный пользователь запроса с разрешёнными правами.
type Principal struct {
	UserID      uint
	UserName    string
	Email       string
	Roles       []string
	Permissions map[string]struct{}
}

func (p *Principal) Has(perm string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Permissions[perm]
	return ok
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
