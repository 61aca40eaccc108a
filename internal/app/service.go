package app

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agency-platform/internal/audit"
	"agency-platform/internal/config"
	apphttp "agency-platform/internal/http"
	"agency-platform/internal/repository/postgres"
)

const (
	cleanupInterval  = 5 * time.Minute
	serverAddrPrefix = ":"
)

// Sweeper drops expired entries from an in-process store.
type Sweeper interface {
	Sweep()
}

// Service owns the HTTP server and every resource it was wired with.
type Service struct {
	config   *config.Config
	log      *zap.Logger
	pool     *pgxpool.Pool
	db       *postgres.DB
	redis    *redis.Client
	audit    *audit.Logger
	server   *apphttp.Server
	sweepers []Sweeper
}

// Start runs the background cleanup loop and blocks serving HTTP until the
// server is shut down or ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	go s.startCacheCleanup(ctx)

	s.log.Info("starting agency platform", zap.String("port", s.config.Server.Port))
	err := s.server.Start(serverAddrPrefix + s.config.Server.Port)
	if errors.Is(err, stdhttp.ErrServerClosed) {
		return nil
	}
	return err
}

// startCacheCleanup sweeps expired rate windows, replayed token ids and
// cached tenants. Only in-process stores are registered; Redis expires its
// own keys.
func (s *Service) startCacheCleanup(ctx context.Context) {
	if len(s.sweepers) == 0 {
		return
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sw := range s.sweepers {
				sw.Sweep()
			}
		}
	}
}

// Shutdown stops the server, drains pending audit writes and releases the
// stores, in that order.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.audit.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	s.pool.Close()
	return errors.Join(errs...)
}
