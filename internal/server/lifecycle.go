package server

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	statsInterval      = 30 * time.Second
	drainCheckInterval = time.Second
)

// monitorStats 定期输出服务器状态
func (s *Server) monitorStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		log.Info().
			Int("active_sessions", s.engine.ActiveCount()).
			Int("sessions", len(s.engine.ListSessions(""))).
			Int("goroutines", runtime.NumGoroutine()).
			Float64("alloc_mb", float64(m.Alloc)/1024/1024).
			Msg("📊 [监控]")
	}
}

// drain 等待进行中的会话结束，超时返回仍在进行的数量
func (s *Server) drain(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(drainCheckInterval)
	defer ticker.Stop()

	for {
		active := s.engine.ActiveCount()
		if active == 0 || !time.Now().Before(deadline) {
			return active
		}
		log.Info().Int("active_sessions", active).Msg("⏳ 等待会话结束...")
		<-ticker.C
	}
}

// GracefulShutdown 等待会话结束后关闭服务器
func (s *Server) GracefulShutdown(drainTimeout time.Duration) {
	if drainTimeout > 0 {
		if active := s.drain(drainTimeout); active > 0 {
			log.Warn().Int("active_sessions", active).Msg("⚠️ 超时，仍有会话进行中，强制关闭")
		} else {
			log.Info().Msg("✅ 所有会话已结束")
		}
	}
	s.Shutdown()
}

// Shutdown 关闭 HTTP 服务、WebSocket 连接与存储
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP 服务关闭失败")
	}
	// 关闭订阅后 WebSocket 连接会收到 going away
	s.hub.Close()
	s.engine.Close()
	s.closeResources()

	log.Info().Msg("👋 服务器已关闭")
}
