package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"starter/internal/auth"
	"starter/internal/logs"
	"starter/internal/mail"
	"starter/internal/models"
	"starter/internal/repo"
)

// DefaultRole получает каждый зарегистрировавшийся пользователь.
const DefaultRole = "User"

// Сообщение на forgot-password одинаковое независимо от наличия пользователя.
const ForgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

type AuthService struct {
	r        *Repos
	users    *UserService
	tokens   *auth.Tokens
	reset    *auth.ResetTokens
	mailer   mail.Sender
	resetURL string
	audit    AuditSink
	now      func() time.Time
}

type AuthDeps struct {
	Repos    *Repos
	Users    *UserService
	Tokens   *auth.Tokens
	Reset    *auth.ResetTokens
	Mailer   mail.Sender
	ResetURL string // страница фронтенда, куда ведёт ссылка из письма
	Audit    AuditSink
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.Mailer == nil {
		d.Mailer = mail.LogSender{}
	}
	if d.Audit == nil {
		d.Audit = NopAudit{}
	}
	return &AuthService{
		r:        d.Repos,
		users:    d.Users,
		tokens:   d.Tokens,
		reset:    d.Reset,
		mailer:   d.Mailer,
		resetURL: d.ResetURL,
		audit:    d.Audit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var errInvalidCredentials = fail(ErrUnauthorized, "invalid user name/email or password")

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, client Actor) (models.AuthResponse, error) {
	u, err := s.users.FindByLogin(ctx, req.UserNameOrEmail)
	if errors.Is(err, ErrNotFound) {
		return models.AuthResponse{}, errInvalidCredentials
	}
	if err != nil {
		return models.AuthResponse{}, err
	}
	if !auth.VerifyPassword(u.PasswordHash, req.Password) {
		logs.WithRequest(client.RequestID, u.ID).Infof("auth: failed login for %s from %s", u.UserName, client.IP)
		return models.AuthResponse{}, errInvalidCredentials
	}
	if !u.IsActive {
		return models.AuthResponse{}, fail(ErrUnauthorized, "account is disabled")
	}
	if err := s.users.Touch(ctx, u, s.now()); err != nil {
		// время входа не должно мешать самому входу
		logs.WithRequest(client.RequestID, u.ID).Warnf("auth: record last login for %s: %v", u.UserName, err)
	}
	resp, err := s.issue(repo.WithUnit(ctx), u, client.IP)
	if err != nil {
		return models.AuthResponse{}, err
	}
	s.audit.Record(ctx, as(client, u), "User", u.ID, models.AuditLogin, nil)
	return resp, nil
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, client Actor) (models.AuthResponse, error) {
	d := models.UserDTO{
		UserName:  req.UserName,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsActive:  true,
	}
	if err := s.users.validate(ctx, d, nil); err != nil {
		return models.AuthResponse{}, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return models.AuthResponse{}, err
	}
	u := UserMapper.ToEntity(d)
	u.PasswordHash = hash
	if err := s.users.Insert(ctx, client, u); err != nil {
		return models.AuthResponse{}, err
	}
	if err := s.users.AddRoleByName(ctx, as(client, u), u.ID, DefaultRole); err != nil {
		if !errors.Is(err, ErrValidation) {
			return models.AuthResponse{}, err
		}
		logs.WithRequest(client.RequestID, u.ID).Warnf("auth: default role %q is missing, user %s has no roles", DefaultRole, u.UserName)
	}
	return s.issue(repo.WithUnit(ctx), u, client.IP)
}

// issue выпускает пару токенов. Новый refresh-токен ставится в Unit из ctx
// вместе с уже накопленными там изменениями.
func (s *AuthService) issue(ctx context.Context, u *models.User, ip string) (models.AuthResponse, error) {
	rt, err := s.tokens.Refresh()
	if err != nil {
		return models.AuthResponse{}, err
	}
	return s.issueWith(ctx, u, ip, rt)
}

// Refresh обменивает действующий refresh-токен на новую пару. Старый токен
// отзывается; повторное предъявление отозванного токена отзывает все токены пользователя.
func (s *AuthService) Refresh(ctx context.Context, raw string, client Actor) (models.AuthResponse, error) {
	rec, err := s.findRefresh(ctx, raw)
	if err != nil {
		return models.AuthResponse{}, err
	}
	now := s.now()
	if rec.IsRevoked {
		if rec.ReplacedByHash != "" {
			logs.WithRequest(client.RequestID, rec.UserID).Warnf("auth: reuse of rotated refresh token from %s, revoking all sessions", client.IP)
			ctx := repo.NewUnit(ctx)
			if err := revokeAll(ctx, s.r.RefreshTokens, rec.UserID, client.IP, "reuse of revoked token"); err != nil {
				return models.AuthResponse{}, err
			}
			if _, err := s.r.RefreshTokens.SaveChanges(ctx); err != nil {
				logs.WithRequest(client.RequestID, rec.UserID).Errorf("auth: revoke after reuse: %v", err)
			}
		}
		return models.AuthResponse{}, fail(ErrUnauthorized, "refresh token has been revoked")
	}
	if rec.IsExpired(now) {
		return models.AuthResponse{}, fail(ErrUnauthorized, "refresh token has expired")
	}
	u, err := s.r.Users.GetByID(ctx, rec.UserID)
	if err != nil || !u.IsActive {
		return models.AuthResponse{}, fail(ErrUnauthorized, "account is not available")
	}

	ctx = repo.NewUnit(ctx)
	next, err := s.tokens.Refresh()
	if err != nil {
		return models.AuthResponse{}, err
	}
	revoke(rec, now, client.IP, "replaced by new token")
	rec.ReplacedByHash = next.Hash
	if err := s.r.RefreshTokens.Update(ctx, rec); err != nil {
		return models.AuthResponse{}, err
	}
	resp, err := s.issueWith(ctx, u, client.IP, next)
	if errors.Is(err, repo.ErrConcurrency) {
		// тот же токен уже обменяли параллельным запросом
		return models.AuthResponse{}, fail(ErrUnauthorized, "refresh token has been revoked")
	}
	return resp, err
}

// issueWith: issue с заранее созданным refresh-токеном (при ротации его хеш
// записывается в ReplacedByHash старого).
func (s *AuthService) issueWith(ctx context.Context, u *models.User, ip string, rt auth.RefreshToken) (models.AuthResponse, error) {
	roles, err := s.users.RoleNames(ctx, u.ID)
	if err != nil {
		return models.AuthResponse{}, err
	}
	access, accessExp, err := s.tokens.Access(u, roles)
	if err != nil {
		return models.AuthResponse{}, err
	}
	rec := &models.RefreshToken{TokenHash: rt.Hash, UserID: u.ID, ExpiresAt: rt.ExpiresAt, CreatedByIP: ip}
	stamp(&rec.BaseEntity, UserActor(u.ID, u.UserName))
	if _, err := s.r.RefreshTokens.Add(ctx, rec); err != nil {
		return models.AuthResponse{}, err
	}
	if _, err := s.r.RefreshTokens.SaveChanges(ctx); err != nil {
		return models.AuthResponse{}, err
	}
	dto, err := s.users.GetByID(ctx, u.ID)
	if err != nil {
		return models.AuthResponse{}, err
	}
	return models.AuthResponse{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp,
		RefreshToken:          rt.Raw,
		RefreshTokenExpiresAt: rt.ExpiresAt,
		TokenType:             "Bearer",
		User:                  dto,
	}, nil
}

func (s *AuthService) findRefresh(ctx context.Context, raw string) (*models.RefreshToken, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fail(ErrUnauthorized, "refresh token is required")
	}
	rec, err := s.r.RefreshTokens.FindOne(ctx, repo.Where(repo.Eq("TokenHash", auth.HashRefresh(raw))))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fail(ErrUnauthorized, "invalid refresh token")
	}
	return rec, err
}

// Logout отзывает предъявленный refresh-токен. Неизвестный токен не ошибка.
func (s *AuthService) Logout(ctx context.Context, raw string, client Actor) error {
	rec, err := s.findRefresh(ctx, raw)
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.IsRevoked {
		return nil
	}
	ctx = repo.NewUnit(ctx)
	revoke(rec, s.now(), client.IP, "logout")
	if err := s.r.RefreshTokens.Update(ctx, rec); err != nil {
		return err
	}
	if _, err := s.r.RefreshTokens.SaveChanges(ctx); err != nil {
		if errors.Is(err, repo.ErrConcurrency) {
			return nil
		}
		return err
	}
	s.audit.Record(ctx, client, "User", rec.UserID, models.AuditLogout, nil)
	return nil
}

// ForgotPassword отправляет ссылку сброса, если пользователь есть и активен.
// Результат для клиента всегда одинаковый; ошибки только пишутся в лог.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, client Actor) models.MessageResponse {
	resp := models.MessageResponse{Message: ForgotPasswordMessage}
	log := logs.WithRequest(client.RequestID, 0)

	u, err := s.r.Users.FindOne(ctx, repo.Where(repo.EqFold("Email", strings.TrimSpace(email))))
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Errorf("auth: forgot-password lookup: %v", err)
		}
		return resp
	}
	if !u.IsActive {
		return resp
	}
	token, _ := s.reset.Issue(u.ID, u.PasswordHash)
	msg, err := mail.PasswordReset(u.Email, u.DisplayName(), s.resetLink(token), s.reset.TTL())
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		log.Errorf("auth: send reset mail to user %d: %v", u.ID, err)
	}
	return resp
}

func (s *AuthService) resetLink(token string) string {
	sep := "?"
	if strings.Contains(s.resetURL, "?") {
		sep = "&"
	}
	return s.resetURL + sep + "token=" + url.QueryEscape(token)
}

func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest, client Actor) error {
	invalid := fail(ErrValidation, "invalid or expired reset token")
	id, err := s.reset.UserID(req.Token)
	if err != nil {
		return invalid
	}
	u, err := s.r.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return invalid
		}
		return err
	}
	if err := s.reset.Verify(req.Token, u.PasswordHash); err != nil {
		return invalid
	}
	actor := as(client, u)
	if err := s.users.SetPassword(ctx, actor, u, req.NewPassword); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, "User", u.ID, models.AuditReset, nil)
	return nil
}

// Me: текущий пользователь с правами.
func (s *AuthService) Me(ctx context.Context, userID uint) (models.UserDTO, []string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.UserDTO{}, nil, err
	}
	perms, err := s.users.Permissions(ctx, userID)
	return u, perms, err
}

// as: клиентские данные запроса от имени пользователя u.
func as(client Actor, u *models.User) Actor {
	a := UserActor(u.ID, u.UserName)
	a.IP, a.UserAgent, a.RequestID = client.IP, client.UserAgent, client.RequestID
	return a
}

func revoke(t *models.RefreshToken, at time.Time, ip, reason string) {
	t.IsRevoked = true
	t.RevokedAt = &at
	t.RevokedByIP = ip
	t.ReasonRevoked = reason
}

// revokeAll ставит в Unit отзыв всех действующих refresh-токенов пользователя.
func revokeAll(ctx context.Context, r repo.Repository[models.RefreshToken], userID uint, ip, reason string) error {
	active, err := r.GetAll(ctx, repo.Where(repo.Eq("UserId", userID), repo.Eq("IsRevoked", false)))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, t := range active {
		revoke(t, now, ip, reason)
		if err := r.Update(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
