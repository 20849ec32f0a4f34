package recommend

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// 健康状态
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

const healthCheckTimeout = time.Second

// Health 是健康检查结果。Ready 为 false 时不应接流量（热门榜单尚未预热）。
type Health struct {
	Status     string            `json:"status"`
	Ready      bool              `json:"ready"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checkedAt"`
}

// Check 是组件探活函数，返回错误表示组件不可用。
type Check func(ctx context.Context) error

// BreakerCheck 把熔断器状态转为探活：非关闭状态视为不可用。
func BreakerCheck(b interface{ State() gobreaker.State }) Check {
	return func(context.Context) error {
		if st := b.State(); st != gobreaker.StateClosed {
			return gobreaker.ErrOpenState
		}
		return nil
	}
}

// Health 汇总各组件状态。组件不可用时服务仍然可用，只是结果会降级。
func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Status:     StatusOK,
		Ready:      true,
		Components: map[string]string{"ledger": StatusOK},
		CheckedAt:  s.now(),
	}
	for name, check := range s.Checks {
		cctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := check(cctx)
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Str("check", name).Msg("health check failed")
			h.Components[name] = StatusUnavailable
			h.Status = StatusDegraded
			continue
		}
		h.Components[name] = StatusOK
	}
	if len(s.Popularity.Snapshot()) == 0 {
		h.Components["popularity"] = "warming"
		h.Ready = false
	} else {
		h.Components["popularity"] = StatusOK
	}
	return h
}
