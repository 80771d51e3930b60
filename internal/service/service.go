package service

import (
	"context"
	"log"
	"time"

	"livraria/backend/internal/cache"
	"livraria/backend/internal/domain"
	"livraria/backend/internal/entity"
	"livraria/backend/internal/ledger"
	"livraria/backend/internal/storage"
	"livraria/backend/internal/store"
)

const (
	DefaultVerifyDelay       = 500 * time.Millisecond
	DefaultDashboardCacheTTL = 30 * time.Second
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// VerifyDelay is the pause before a sale's income row is re-read.
	VerifyDelay time.Duration
	Ledger      ledger.Ledger
	Uploader    storage.Uploader
	Cache       cache.DashboardCache
	CacheTTL    time.Duration
}

type Service struct {
	repo     store.Repository
	entities entity.Set

	ledger      ledger.Ledger
	uploader    storage.Uploader
	cache       cache.DashboardCache
	cacheTTL    time.Duration
	verifyDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(repo store.Repository, opts Options) *Service {
	if opts.VerifyDelay < 0 {
		opts.VerifyDelay = 0
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.NewMemory()
	}
	if opts.Uploader == nil {
		opts.Uploader = storage.Disabled{}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopDashboardCache{}
	}

	s := &Service{
		repo:        repo,
		ledger:      opts.Ledger,
		uploader:    opts.Uploader,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
		verifyDelay: opts.VerifyDelay,
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepContext,
	}
	s.entities = entity.NewSet(repo, s.invalidateDashboard)
	return s
}

func (s *Service) Entities() entity.Set { return s.entities }

func (s *Service) StoreName() string { return s.repo.Name() }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	log.Printf("[audit] actor=%s role=%s action=%s entity=%s/%s %s", actor.Username, actor.Role, action, entityType, entityID, detail)
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, cache.DashboardKey); err != nil {
		log.Printf("[dashboard] WARN: failed to invalidate cache: %v", err)
	}
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
