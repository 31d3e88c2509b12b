package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthChecker 数据库连通性探测器
// 后台周期探测维护缓存状态，就绪检查也可用Check做实时探测
type HealthChecker struct {
	db       *sql.DB
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration

	mu        sync.RWMutex
	healthy   bool
	lastCheck time.Time
	lastErr   error
}

// HealthStatus 探测结果快照
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// NewHealthChecker 创建探测器，默认30秒探测一次、单次超时5秒
func NewHealthChecker(db *sql.DB, log *zap.Logger) *HealthChecker {
	return &HealthChecker{
		db:       db,
		logger:   log,
		interval: 30 * time.Second,
		timeout:  5 * time.Second,
	}
}

// SetInterval 调整后台探测间隔
func (hc *HealthChecker) SetInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if interval > 0 {
		hc.interval = interval
	}
}

// Check 执行一次探测并更新缓存状态
func (hc *HealthChecker) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	elapsed := time.Since(start)

	hc.mu.Lock()
	wasHealthy := hc.healthy
	hc.lastCheck = time.Now()
	hc.lastErr = err
	hc.healthy = err == nil
	hc.mu.Unlock()

	if err != nil {
		hc.logger.Warn("database health check failed",
			zap.Duration("response_time", elapsed),
			zap.Error(err))
		return err
	}
	if !wasHealthy {
		hc.logger.Info("database connection restored", zap.Duration("response_time", elapsed))
	}
	return nil
}

// Start 周期探测直到ctx取消，首次探测立即执行
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.mu.RLock()
	interval := hc.interval
	hc.mu.RUnlock()

	hc.logger.Info("database health checker started", zap.Duration("interval", interval))
	_ = hc.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hc.logger.Info("database health checker stopped")
			return
		case <-ticker.C:
			_ = hc.Check(ctx)
		}
	}
}

// IsHealthy 返回最近一次探测的结果
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.healthy
}

// Status 返回探测状态快照
func (hc *HealthChecker) Status() HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := HealthStatus{
		Healthy:   hc.healthy,
		LastCheck: hc.lastCheck,
	}
	if hc.lastErr != nil {
		status.LastError = hc.lastErr.Error()
	}
	return status
}
