package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"starter/config"
	"starter/internal/api"
	"starter/internal/auth"
	"starter/internal/cache"
	"starter/internal/db"
	"starter/internal/health"
	"starter/internal/logs"
	"starter/internal/mail"
	"starter/internal/metrics"
	"starter/internal/middleware"
	"starter/internal/repo"
	"starter/internal/service"

	"github.com/gorilla/mux"
)

type App struct {
	cfg        *config.Config
	backend    repo.Backend
	cache      cache.Cache
	redis      *cache.Redis
	limiter    *middleware.RateLimiter
	proxies    *middleware.TrustedProxies
	Router     *mux.Router
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	/* 1) Логи */
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	/* 2) Хранилище: gorm или in-memory */
	b, err := db.Backend(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	a.backend = b

	/* 3) Кэш прав */
	checks := map[string]health.Pinger{"database": a.backend}
	switch a.cfg.Cache.Driver {
	case "redis":
		a.redis = cache.NewRedis(cache.NewRedisClient(a.cfg.Cache.Addr, a.cfg.Cache.Password, a.cfg.Cache.DB), "starter:")
		a.cache = a.redis
		checks["cache"] = a.redis
	default:
		a.cache = cache.NewMemory()
	}

	/* 4) Почта */
	var sender mail.Sender = mail.LogSender{}
	if a.cfg.SMTP.Host != "" {
		sender = mail.NewSMTP(mail.SMTPConfig{
			Host:     a.cfg.SMTP.Host,
			Port:     a.cfg.SMTP.Port,
			Username: a.cfg.SMTP.Username,
			Password: a.cfg.SMTP.Password,
			From:     a.cfg.SMTP.From,
		})
	} else {
		logs.Logger.Warn("smtp.host is empty: reset mails go to the log only")
	}

	/* 5) Сервисы */
	r := service.NewRepos(a.backend)
	audit := service.NewAuditService(r.AuditLogs)
	users := service.NewUserService(r, audit)
	roles := service.NewRoleService(r, audit)
	perms := service.NewPermissionService(r, audit)

	tokens := auth.NewTokens(auth.Config{
		Secret:     a.cfg.JWT.Secret,
		Issuer:     a.cfg.JWT.Issuer,
		Audience:   a.cfg.JWT.Audience,
		AccessTTL:  a.cfg.JWT.AccessTTL,
		RefreshTTL: a.cfg.JWT.RefreshTTL,
	})
	resolver := auth.NewResolver(roles, a.cache, cache.Options{Sliding: a.cfg.Cache.Sliding, Absolute: a.cfg.Cache.Absolute})
	roles.OnPermissionsChanged(resolver.Invalidate)
	perms.OnPermissionsChanged(resolver.Invalidate)

	authSvc := service.NewAuthService(service.AuthDeps{
		Repos:    r,
		Users:    users,
		Tokens:   tokens,
		Reset:    auth.NewResetTokens(a.cfg.JWT.Secret, a.cfg.Reset.TTL),
		Mailer:   sender,
		ResetURL: a.cfg.Reset.URL,
		Audit:    audit,
	})

	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := service.Seed(seedCtx, r, users, roles, service.SeedOptions{
		AdminEmail:    a.cfg.Seed.AdminEmail,
		AdminUserName: a.cfg.Seed.AdminUserName,
		AdminPassword: a.cfg.Seed.AdminPassword,
	}); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	/* 6) Router + middleware */
	m := metrics.New()
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
		m.Instrument,
		middleware.SecurityHeaders,
		middleware.MaxBodyBytes(a.cfg.HTTP.MaxBodyBytes),
	)

	/* 7) Health + метрики */
	health.RegisterRoutesWithChecks(a.Router, checks) // /healthz, /readyz
	a.Router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	/* 8) API */
	proxies, err := middleware.ParseTrustedProxies(a.cfg.HTTP.TrustedProxies)
	if err != nil {
		log.Fatalf("http.trusted_proxies: %v", err)
	}
	a.proxies = proxies
	if a.cfg.HTTP.RateRPS > 0 {
		a.limiter = middleware.NewRateLimiter(a.cfg.HTTP.RateRPS, a.cfg.HTTP.RateBurst)
	}
	api.Register(a.Router, api.Deps{
		Users:         users,
		Roles:         roles,
		Permissions:   perms,
		Settings:      service.NewSettingsService(r, audit),
		Notifications: service.NewNotificationService(r, audit),
		Audit:         audit,
		Auth:          authSvc,
		Authn:         auth.NewMiddleware(tokens, resolver),
		Limiter:       a.limiter,
		Metrics:       m,
		Production:    a.cfg.Production(),
	})

	/* (необязательно) вывести известные маршруты в лог при старте */
	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := rt.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logs.Logger.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	if a.limiter != nil {
		go a.limiter.Run(a.ctx)
	}

	// Таймауты на чтение заголовков, тела и ответа
	// CORS снаружи роутера: preflight OPTIONS не совпадает ни с одним маршрутом.
	// Адрес клиента от прокси подставляется раньше всех остальных middleware.
	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.proxies.Middleware(middleware.CORS(a.cfg.HTTP.CORSOrigins)(a.Router)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Logger.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logs.Logger.Errorf("redis close: %v", err)
		}
	}
	return nil
}
