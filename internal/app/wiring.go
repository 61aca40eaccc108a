package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agency-platform/internal/audit"
	"agency-platform/internal/auth"
	"agency-platform/internal/config"
	"agency-platform/internal/gate"
	apphttp "agency-platform/internal/http"
	"agency-platform/internal/http/handler"
	"agency-platform/internal/infra/cache"
	infrapg "agency-platform/internal/infra/postgres"
	"agency-platform/internal/metrics"
	"agency-platform/internal/notify"
	"agency-platform/internal/ratelimit"
	"agency-platform/internal/rbac"
	"agency-platform/internal/rbac/presets"
	"agency-platform/internal/repository/postgres"
	"agency-platform/internal/tenant"
	"agency-platform/pkg/password"
)

const (
	errConnectDatabaseFmt = "failed to connect to database: %w"
	errConnectRedisFmt    = "failed to connect to redis: %w"
	errTokenServiceFmt    = "failed to create token service: %w"
	errHasherFmt          = "failed to create password hasher: %w"
	errPermissionModelFmt = "failed to build permission model: %w"
	errMailerFmt          = "failed to create mailer: %w"
	errAuthHandlerFmt     = "failed to create auth handler: %w"
)

// InitializeService wires up all dependencies and returns a configured
// Service. Redis backs the limiter, replay guard and tenant cache when
// configured; otherwise in-process stores are used and swept periodically.
func InitializeService(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *Service, err error) {
	pool, err := infrapg.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf(errConnectDatabaseFmt, err)
	}
	db := postgres.New(pool)
	defer func() {
		if err != nil {
			_ = db.Close()
			pool.Close()
		}
	}()
	log.Info("database connection established")

	svc := &Service{config: cfg, log: log, pool: pool, db: db}

	var (
		limiterStore ratelimit.Store
		replay       auth.ReplayGuard
		tenantCache  cache.TenantCache
	)
	if cfg.Redis.Enabled() {
		var client *redis.Client
		client, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf(errConnectRedisFmt, err)
		}
		svc.redis = client
		limiterStore = ratelimit.NewRedisStore(client)
		replay = auth.NewRedisReplayGuard(client)
		tenantCache = cache.NewRedisTenantCache(client)
		log.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	} else {
		memStore := ratelimit.NewMemoryStore(ratelimit.MemoryStoreConfig{})
		memReplay := auth.NewMemoryReplayGuard()
		memTenants := cache.NewMemoryTenantCache()
		limiterStore, replay, tenantCache = memStore, memReplay, memTenants
		svc.sweepers = []Sweeper{memStore, memReplay, memTenants}
		log.Warn("redis not configured, using in-process stores")
	}
	defer func() {
		if err != nil && svc.redis != nil {
			_ = svc.redis.Close()
		}
	}()

	agencies := postgres.NewTenantRepository(db)
	clients := postgres.NewClientRepository(db)

	engine, err := rbac.New(presets.Agency(), clients)
	if err != nil {
		return nil, fmt.Errorf(errPermissionModelFmt, err)
	}
	users := postgres.NewUserRepository(db, engine)

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:           cfg.Auth.Secret,
		AccessTTL:        cfg.Auth.AccessTTL,
		RefreshTTL:       cfg.Auth.RefreshTTL,
		PasswordResetTTL: cfg.Auth.PasswordResetTTL,
	})
	if err != nil {
		return nil, fmt.Errorf(errTokenServiceFmt, err)
	}

	hasher, err := password.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf(errHasherFmt, err)
	}

	mailer, err := notify.NewMailerFromConfig(cfg.Mail, cfg.App.ServiceName, log)
	if err != nil {
		return nil, fmt.Errorf(errMailerFmt, err)
	}

	m := metrics.New("")
	svc.audit = audit.NewLogger(log, audit.NewSQLSink(db.SQL))

	resolver := tenant.NewResolver(agencies, tenantCache, tenant.Config{
		CacheTTL:     cfg.Tenant.CacheTTL,
		StoreTimeout: cfg.Tenant.StoreTimeout,
	}, log)

	g := gate.New(gate.Deps{
		Limiter:      ratelimit.NewLimiter(ratelimit.RulesFromConfig(cfg.RateLimit), limiterStore),
		Tokens:       tokens,
		Principals:   users,
		Tenants:      resolver,
		Engine:       engine,
		Audit:        svc.audit,
		Metrics:      m,
		Logger:       log,
		BaseDomain:   cfg.Server.BaseDomain,
		StoreTimeout: cfg.Tenant.StoreTimeout,
	})

	authHandler, err := handler.NewAuthHandler(handler.AuthHandlerConfig{
		Users:        users,
		Tokens:       tokens,
		Hasher:       hasher,
		Replay:       replay,
		Mailer:       mailer,
		Audit:        svc.audit,
		Metrics:      m,
		StoreTimeout: cfg.Tenant.StoreTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf(errAuthHandlerFmt, err)
	}

	svc.server = apphttp.NewServer(&apphttp.ServerDependencies{
		Config:   cfg,
		Logger:   log,
		Gate:     g,
		Metrics:  m,
		Auth:     authHandler,
		Owner:    handler.NewOwnerHandler(agencies, clients, cfg.Tenant.StoreTimeout),
		Operator: handler.NewOperatorHandler(clients, cfg.Tenant.StoreTimeout),
		Health:   db,
	})

	return svc, nil
}
