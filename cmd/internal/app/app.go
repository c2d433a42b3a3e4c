// Package app wires the sitegate server runtime: config, logging, stores,
// the sign-in routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"sitegate/cmd/identity"
	authapi "sitegate/cmd/internal/auth/api"
	"sitegate/cmd/internal/auth/provider"
	"sitegate/cmd/internal/auth/session"
	"sitegate/cmd/internal/observability"
	"sitegate/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// App is the sitegate server runtime. It owns backend connections and the
// HTTP handler tree.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	rdb    *redis.Client

	metrics *observability.Metrics
	auth    *authapi.Handler
	hub     *realtime.Hub
	ws      *realtime.WSGateway
	relay   *realtime.BuildEventRelay
}

// New constructs a fully wired App from config and logger.
//
// Without SITEGATE_DATABASE_URL identities and memberships live in memory;
// without SITEGATE_REDIS_URL sessions do, and build events are in-process only.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	secrets, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: observability.New()}
	ok := false
	defer func() {
		if !ok {
			a.closeBackends()
		}
	}()

	identities, members, err := a.openPostgres(ctx, secrets)
	if err != nil {
		return nil, err
	}
	sessions, err := a.openSessionStore(ctx)
	if err != nil {
		return nil, err
	}

	provCfg, err := provider.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("provider config: %w", err)
	}
	gh, err := provider.NewGitHub(provCfg, nil)
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	sessionSvc := session.NewService(
		sessCfg,
		sessions,
		gh,
		identity.NewReconciler(identities, log),
		identities,
		log,
		session.WithOutcomeRecorder(a.metrics),
	)

	authCfg := authapi.LoadConfigFromEnv()
	cookies, err := authapi.NewCookies(authCfg, secrets.SessionKey, sessCfg.TTL)
	if err != nil {
		return nil, err
	}
	a.auth, err = authapi.NewHandler(log, authCfg, sessionSvc, cookies)
	if err != nil {
		return nil, err
	}

	a.hub = realtime.NewHub(log)
	authz, err := realtime.NewAuthorizer(sessionSvc, members, realtime.WithFailureSink(realtime.LogFailureSink{
		Log:     log,
		Counter: a.metrics.ChannelAuthFailures(),
	}))
	if err != nil {
		return nil, err
	}
	wsCfg, err := realtime.LoadGatewayConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("ws config: %w", err)
	}
	a.ws, err = realtime.NewWSGateway(log, wsCfg, a.hub, authz, cookies, realtime.WithConnectionGauge(a.metrics.Connections()))
	if err != nil {
		return nil, err
	}

	if a.rdb != nil {
		a.relay, err = realtime.NewBuildEventRelay(log, a.rdb, a.hub, cfg.BuildEventsTopic,
			realtime.WithDeliveredHook(a.metrics.BuildEventsDelivered))
		if err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

func (a *App) openPostgres(ctx context.Context, secrets Secrets) (identity.Store, realtime.MembershipStore, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return identity.NewInMemoryStore(), realtime.NewInMemoryMembershipStore(), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	a.dbPool = pool

	opts := []identity.PostgresOption{identity.WithSchema(a.cfg.DBSchema), identity.WithLogger(a.log)}
	if secrets.Sealer != nil {
		opts = append(opts, identity.WithTokenSealer(secrets.Sealer))
	} else {
		a.log.Warn("security.token_sealing.disabled", "hint", "set SITEGATE_TOKEN_SEAL_KEY to seal provider tokens at rest")
	}
	identities, err := identity.NewPostgresStore(pool, opts...)
	if err != nil {
		return nil, nil, err
	}
	members, err := realtime.NewPostgresMembershipStore(pool, realtime.WithMembershipSchema(a.cfg.DBSchema))
	if err != nil {
		return nil, nil, err
	}

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)
	return identities, members, nil
}

func (a *App) openSessionStore(ctx context.Context) (session.Store, error) {
	if a.cfg.RedisURL == "" {
		a.log.Info("redis.disabled.inmemory_sessions")
		return session.NewInMemoryStore(nil), nil
	}

	rdb, err := NewRedisClient(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.rdb = rdb

	store, err := session.NewRedisStore(rdb)
	if err != nil {
		return nil, err
	}
	a.log.Info("redis.enabled.session_store")
	return store, nil
}

// Handler returns the full middleware-wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)

	var h http.Handler = mux
	h = a.auth.Middleware(h)
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return WithRequestLogging(h, a.log)
}

// Run serves HTTP (and relays build events when Redis is configured) until
// ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	defer a.closeBackends()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := a.cfg.PublicBaseURL
	if base == "" {
		base = runtimeBaseURL(a.cfg.HTTPAddr)
	}
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"db_enabled", a.dbPool != nil,
		"redis_enabled", a.rdb != nil,
	)

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.relay != nil {
		grp.Go(func() error {
			return a.relay.Run(gctx)
		})
	}

	grp.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := grp.Wait(); err != nil {
		a.log.Error("server.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

func (a *App) closeBackends() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local browser can open.
// Wildcard binds map to loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL to its ws(s) counterpart.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
