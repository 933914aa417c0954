// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: пул БД, репозитории, внешние клиенты, сервисы
// и планировщик собираются в один объект App.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/geohealth/internal/common"
	"serotonyl.ru/geohealth/internal/config"
	"serotonyl.ru/geohealth/internal/db/postgres"
	"serotonyl.ru/geohealth/internal/features/leaderboard"
	"serotonyl.ru/geohealth/internal/features/ledger"
	"serotonyl.ru/geohealth/internal/features/moderation"
	"serotonyl.ru/geohealth/internal/features/poi"
	"serotonyl.ru/geohealth/internal/features/reports"
	"serotonyl.ru/geohealth/internal/features/rewards"
	"serotonyl.ru/geohealth/internal/geocode"
	"serotonyl.ru/geohealth/internal/geosearch"
	"serotonyl.ru/geohealth/internal/jobs"
	"serotonyl.ru/geohealth/internal/oracle"
)

// App содержит все компоненты приложения.
type App struct {
	Ledger      *ledger.Service
	Reports     *reports.Service
	Moderation  *moderation.Service
	POI         *poi.Service
	Leaderboard *leaderboard.Service
	Scheduler   *jobs.Scheduler

	DB      *pgxpool.Pool
	Redis   *redis.Client
	limiter *common.RateLimiter
}

// Stores — хранилища всех фич. В проде это pgx-репозитории,
// в тестах и локальных прогонах — MemoryStore.
type Stores struct {
	Ledger     ledger.Store
	Reports    reports.Store
	Moderation moderation.Store
	POI        poi.Store
}

// New подключается к PostgreSQL (и Redis, если включён геоиндекс),
// применяет миграции и собирает приложение.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Redis для геоиндекса (необязательно) ===
	var rdb *redis.Client
	if cfg.GeoSearchEnabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Индекс вторичен: без Redis поиск уйдёт в базу
			log.WithError(err).Warn("Redis недоступен, геопоиск пойдёт через PostgreSQL")
		} else {
			log.WithField("addr", cfg.RedisAddr()).Info("Подключение к Redis установлено")
		}
	}

	// === 3. Репозитории ===
	stores := Stores{
		Ledger:     ledger.NewRepository(pool),
		Reports:    reports.NewRepository(pool),
		Moderation: moderation.NewRepository(pool),
		POI:        poi.NewRepository(pool),
	}

	a, err := Build(cfg, stores, rdb)
	if err != nil {
		pool.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	a.DB = pool
	return a, nil
}

// Build собирает сервисы поверх готовых хранилищ. rdb может быть nil.
func Build(cfg *config.Config, stores Stores, rdb *redis.Client) (*App, error) {
	// === Внешние клиенты ===
	guard := oracle.NewGuard(oracle.New(cfg), cfg)
	resolver := geocode.New(cfg)

	forms, err := reports.LoadForms(cfg.CategoryFormsPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки анкет категорий: %w", err)
	}

	// === Сервисы ===
	ledgerService := ledger.NewService(stores.Ledger, cfg)
	policy := rewards.NewPolicy(cfg)

	deps := poi.Deps{
		Store:       stores.POI,
		Reputations: ledgerService,
		Scorer:      guard,
		Resolver:    resolver,
	}
	if rdb != nil {
		index := geosearch.NewIndex(rdb, cfg.GeoSearchEnabled)
		deps.Index = index
		deps.IndexWriter = index
	}
	poiService := poi.NewService(deps, cfg)

	dedup := reports.NewDeduplicator(stores.Reports, cfg)
	limiter := common.NewRateLimiter(cfg.ReportRateLimitRequests, cfg.ReportRateLimitWindow)
	reportService := reports.NewService(stores.Reports, dedup, ledgerService, policy, forms, limiter, poiService)

	// Отзывы для рейтинга POI живут в отчётах: замыкаем цикл после создания обоих
	poiService.SetReviewSource(reportService)

	moderationService := moderation.NewService(
		stores.Reports, dedup, stores.Moderation, ledgerService, policy, guard, poiService,
	)
	leaderboardService := leaderboard.NewService(ledgerService, cfg)

	// === Планировщик задач ===
	scheduler := jobs.NewScheduler(cfg, ledgerService, poiService, leaderboardService)

	log.WithFields(log.Fields{
		"geosearch": rdb != nil,
		"geocoder":  resolver != nil,
		"forms":     len(forms),
	}).Info("Приложение собрано")

	return &App{
		Ledger:      ledgerService,
		Reports:     reportService,
		Moderation:  moderationService,
		POI:         poiService,
		Leaderboard: leaderboardService,
		Scheduler:   scheduler,
		Redis:       rdb,
		limiter:     limiter,
	}, nil
}

// Close освобождает ресурсы приложения.
func (a *App) Close() {
	a.limiter.Close()
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
