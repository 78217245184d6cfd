package ws

import (
	"net/http"
	"strings"
	"time"
)

// OriginChecker 来源验证器
type OriginChecker struct {
	allowedOrigins map[string]bool
	allowAll       bool
}

// NewOriginChecker 创建来源验证器，空列表或包含 "*" 时允许所有来源
func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{
		allowedOrigins: make(map[string]bool),
		allowAll:       len(origins) == 0,
	}
	for _, origin := range origins {
		if origin == "*" {
			oc.allowAll = true
			return oc
		}
		oc.allowedOrigins[strings.ToLower(origin)] = true
	}
	return oc
}

// Check 检查来源是否允许
func (oc *OriginChecker) Check(r *http.Request) bool {
	if oc.allowAll {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// 没有 Origin 头，可能是本地客户端
		return true
	}
	return oc.allowedOrigins[strings.ToLower(origin)]
}

// messageRate 单个连接的消息速率，只在读协程中使用
type messageRate struct {
	max       int
	count     int
	lastReset time.Time
	warnings  int
}

func newMessageRate(maxPerSecond int) *messageRate {
	return &messageRate{max: maxPerSecond}
}

// allow 返回是否放行以及是否接近上限；max <= 0 不限速
func (m *messageRate) allow(now time.Time) (allowed, warning bool) {
	if m.max <= 0 {
		return true, false
	}
	if now.Sub(m.lastReset) >= time.Second {
		m.count = 1
		m.lastReset = now
		return true, false
	}

	m.count++
	if m.count > m.max {
		m.warnings++
		return false, true
	}
	return true, m.count > m.max/2
}
