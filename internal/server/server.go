// Package server 组装会话引擎、持久化与传输层
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/palemoky/turnstile/internal/config"
	"github.com/palemoky/turnstile/internal/events"
	"github.com/palemoky/turnstile/internal/game/gametype"
	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/storage"
	"github.com/palemoky/turnstile/internal/storage/postgres"
	"github.com/palemoky/turnstile/internal/storage/sqlite"
	httptransport "github.com/palemoky/turnstile/internal/transport/http"
	"github.com/palemoky/turnstile/internal/transport/ws"
)

const (
	connectTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
	healthTimeout   = time.Second
)

// Server 进程内的所有组件
type Server struct {
	config   *config.Config
	engine   *session.Engine
	hub      *events.Hub
	registry *gametype.Registry
	http     *http.Server

	closers []func()
	health  map[string]httptransport.HealthCheck // 各存储驱动的连通性检查
}

// New 按配置创建服务器；失败时已创建的资源会被释放
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{config: cfg, health: make(map[string]httptransport.HealthCheck)}

	s.registry = gametype.NewRegistry()
	if err := s.registry.LoadScripts(cfg.GameTypes); err != nil {
		return nil, err
	}

	store, records, err := s.openStores(ctx)
	if err != nil {
		s.closeResources()
		return nil, err
	}

	s.hub = events.NewHub(0)
	s.engine = session.NewEngine(session.EngineDeps{
		Events:             s.hub,
		Store:              store,
		GameTypes:          s.registry,
		DefaultTurnTimeout: cfg.Game.TurnTimeoutDuration(),
		DefaultGameTimeout: cfg.Game.GameTimeoutDuration(),
		Retention:          cfg.Game.RetentionDuration(),
		SaveTimeout:        cfg.Persistence.SaveTimeoutDuration(),
	})

	wsHandler := ws.NewHandler(s.engine, s.hub, ws.Options{
		AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
		MaxConnections:       cfg.WebSocket.MaxConnections,
		MaxMessagesPerSecond: cfg.WebSocket.MaxMessagesPerSecond,
	})
	router := httptransport.NewRouter(httptransport.Deps{
		Engine:    s.engine,
		GameTypes: s.registry.Names,
		Records:   records,
		WebSocket: wsHandler,
		Health:    s.health,
	})

	s.http = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Strs("game_types", s.registry.Names()).
		Strs("persistence", cfg.Persistence.Drivers).
		Int("max_connections", cfg.WebSocket.MaxConnections).
		Msg("🔧 服务器已初始化")
	return s, nil
}

// openStores 按启用的驱动打开存储，返回写入用的 sink 和第一个可读的存储
func (s *Server) openStores(ctx context.Context) (session.PersistenceSink, httptransport.RecordReader, error) {
	cfg := s.config
	fanout := storage.NewFanout()
	var records httptransport.RecordReader

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	for _, driver := range cfg.Persistence.Drivers {
		switch driver {
		case config.DriverRedis:
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			s.closers = append(s.closers, func() { _ = rdb.Close() })
			if err := rdb.Ping(ctx).Err(); err != nil {
				return nil, nil, fmt.Errorf("redis 连接失败: %w", err)
			}
			s.health[driver] = func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, healthTimeout)
				defer cancel()
				return rdb.Ping(ctx).Err()
			}
			store := storage.NewRedisStore(rdb, cfg.Redis.RecordTTLDuration())
			fanout.Add(driver, store)
			if records == nil {
				records = store
			}

		case config.DriverPostgres:
			if err := postgres.Migrate(cfg.Postgres.DSN); err != nil {
				return nil, nil, err
			}
			store, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
			if err != nil {
				return nil, nil, err
			}
			s.closers = append(s.closers, store.Close)
			s.health[driver] = func(ctx context.Context) error { return store.Health(ctx, healthTimeout) }
			fanout.Add(driver, store)
			if records == nil {
				records = store
			}

		case config.DriverSQLite:
			store, err := sqlite.Open(cfg.SQLite.Path)
			if err != nil {
				return nil, nil, err
			}
			s.closers = append(s.closers, func() { _ = store.Close() })
			fanout.Add(driver, store)
			if records == nil {
				records = store
			}
		}
		log.Info().Str("driver", driver).Msg("💾 持久化已启用")
	}

	if fanout.Len() == 0 {
		log.Warn().Msg("未配置持久化驱动，对局记录不会保存")
		return nil, nil, nil
	}
	return fanout, records, nil
}

// Run 启动 HTTP 服务，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", s.http.Addr).Int("cpus", runtime.NumCPU()).Msg("🚀 服务器启动")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		s.monitorStats(ctx, statsInterval)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.GracefulShutdown(s.config.Server.DrainTimeoutDuration())
		return nil
	})

	return g.Wait()
}

// Engine 会话引擎
func (s *Server) Engine() *session.Engine { return s.engine }

// Handler HTTP 路由
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) closeResources() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
