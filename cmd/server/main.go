package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"livraria/backend/internal/cache"
	"livraria/backend/internal/config"
	"livraria/backend/internal/httpapi"
	"livraria/backend/internal/ledger"
	"livraria/backend/internal/service"
	"livraria/backend/internal/storage"
	"livraria/backend/internal/store"
	"livraria/backend/internal/store/memory"
	pgstore "livraria/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: .env not loaded: %v", err)
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, closers, err := selectRepository(ctx, cfg, openPostgres)
	if err != nil {
		log.Fatalf("repository: %v", err)
	}

	var redisClient *redis.Client
	dashboardCache := cache.DashboardCache(cache.NewMemoryDashboardCache())
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisDashboardCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-process cache", err)
			_ = client.Close()
		} else {
			redisClient = client
			dashboardCache = redisCache
			closers = append(closers, client.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: in-process")
	}

	svc := service.New(repo, service.Options{
		VerifyDelay: cfg.VerifyDelay,
		Ledger:      selectLedger(cfg, redisClient),
		Uploader:    selectUploader(cfg),
		Cache:       dashboardCache,
		CacheTTL:    cfg.DashboardCacheTTL,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		LoginAttempts: cfg.LoginAttempts,
		LoginWindow:   cfg.LoginWindow,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           routes(cfg, api.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("livraria backend listening on %s (store=%s)", cfg.Address(), repo.Name())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

type postgresOpener func(ctx context.Context, cfg config.Config) (store.Repository, func() error, error)

func openPostgres(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return pg, pg.Close, nil
}

// selectRepository uses postgres when DATABASE_URL is a real connection
// string and the seeded memory store otherwise. With STRICT_DATABASE a
// configured database that cannot be reached is fatal.
func selectRepository(ctx context.Context, cfg config.Config, open postgresOpener) (store.Repository, []func() error, error) {
	if !cfg.UsesRealBackend() {
		if cfg.DatabaseURL != "" {
			log.Println("WARN: DATABASE_URL looks like a placeholder, ignoring it")
		}
		if cfg.StrictDatabase {
			return nil, nil, errors.New("STRICT_DATABASE is set but DATABASE_URL is not configured")
		}
		log.Println("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	repo, closeFn, err := open(ctx, cfg)
	if err != nil {
		if cfg.StrictDatabase {
			return nil, nil, fmt.Errorf("postgres unavailable: %w", err)
		}
		log.Printf("WARN: postgres unavailable (%v), falling back to in-memory store", err)
		return memory.NewSeeded(), nil, nil
	}
	log.Println("repository: postgres")
	return repo, []func() error{closeFn}, nil
}

func selectLedger(cfg config.Config, client *redis.Client) ledger.Ledger {
	if cfg.RedisLedger && client != nil {
		log.Println("ledger: redis")
		return ledger.NewRedis(client, ledger.DefaultRedisKey)
	}
	if cfg.LedgerPath == "" {
		log.Println("ledger: memory")
		return ledger.NewMemory()
	}
	log.Printf("ledger: file %s", cfg.LedgerPath)
	return ledger.NewFile(cfg.LedgerPath)
}

func selectUploader(cfg config.Config) storage.Uploader {
	if cfg.ReceiptsDir == "" {
		log.Println("receipts: storage disabled, receipts are embedded inline")
		return storage.Disabled{}
	}
	return storage.NewDir(cfg.ReceiptsDir, cfg.ReceiptsBaseURL)
}

// routes mounts the API and, when receipts are stored on disk under a local
// path, a file server for them.
func routes(cfg config.Config, api http.Handler) http.Handler {
	base := strings.TrimRight(cfg.ReceiptsBaseURL, "/")
	if cfg.ReceiptsDir == "" || !strings.HasPrefix(base, "/") {
		return api
	}
	mux := http.NewServeMux()
	mux.Handle("/", api)
	mux.Handle(base+"/", http.StripPrefix(base, http.FileServer(http.Dir(cfg.ReceiptsDir))))
	return mux
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if strings.Contains(strings.ToLower(cfg.AuthSecret), "change-me") {
		return fmt.Errorf("AUTH_SECRET still holds the template value")
	}
	return nil
}
