package errors

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryPolicy 外部调用重试策略
type RetryPolicy struct {
	MaxAttempts int           // 总尝试次数上限（含首次）
	BaseDelay   time.Duration // 首次重试前的基础延迟
	MaxDelay    time.Duration // 单次延迟上限
}

// DefaultRetryPolicy 默认策略：3次尝试，200ms起步，5s封顶
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// IsRetryable 判断错误是否值得重试
// 网络错误、超时、5xx、429可重试；验证错误和其他4xx不可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Type == ErrorTypeValidation || appErr.Type == ErrorTypeBusiness {
			return false
		}
		if appErr.Type == ErrorTypeExternal {
			return appErr.Retryable
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// 上游SDK通常把HTTP状态嵌入错误文本
	msg := err.Error()
	for _, marker := range []string{"status code: 5", "status code: 429", "429", "connection refused", "connection reset", "EOF"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Retry 带全抖动指数退避的重试执行器
// 仅对IsRetryable判定为可重试的错误继续尝试
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// backoffDelay 计算第attempt次重试的延迟：base*2^(attempt-1)封顶后取全随机抖动
func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	base := float64(policy.BaseDelay) * math.Pow(2, float64(attempt-1))
	if max := float64(policy.MaxDelay); base > max {
		base = max
	}
	return time.Duration(rand.Float64() * base)
}
