package feature

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/metrics"
)

// GuardConfig 超时与熔断配置
type GuardConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	// ConsecutiveFailures 连续失败多少次后熔断
	ConsecutiveFailures uint32 `koanf:"consecutive_failures" validate:"gt=0"`
	// OpenTimeout 熔断后多久进入半开
	OpenTimeout time.Duration `koanf:"open_timeout" validate:"gt=0"`
	// HalfOpenRequests 半开状态允许的探测请求数
	HalfOpenRequests uint32 `koanf:"half_open_requests"`
}

// DefaultGuardConfig 默认配置
var DefaultGuardConfig = GuardConfig{
	Timeout:             150 * time.Millisecond,
	ConsecutiveFailures: 5,
	OpenTimeout:         10 * time.Second,
	HalfOpenRequests:    1,
}

// Guarded 为特征存储加上超时与熔断。
//
// 设计原则：
//   - 每次调用都有超时上限，超时返回 UNAVAILABLE，调用方按特征缺失处理
//   - NOT_FOUND 与 NOT_SUPPORTED 是下游的确定答复，原样返回，不计入熔断失败
//   - 熔断打开时立即返回 UNAVAILABLE，不再访问下游
type Guarded struct {
	next    core.FeatureStore
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger
}

// NewGuarded 创建带超时与熔断的特征存储。
func NewGuarded(next core.FeatureStore, cfg GuardConfig, logger zerolog.Logger) *Guarded {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGuardConfig.Timeout
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultGuardConfig.ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultGuardConfig.OpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = DefaultGuardConfig.HalfOpenRequests
	}
	g := &Guarded{next: next, timeout: cfg.Timeout, logger: logger}
	name := "feature:" + next.Name()
	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || core.IsNotFound(err) || core.IsNotSupported(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			g.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("feature store circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return g
}

func (g *Guarded) Name() string { return g.next.Name() }

// State 返回熔断器状态，用于就绪检查。
func (g *Guarded) State() gobreaker.State { return g.cb.State() }

// call 在超时与熔断保护下执行 fn。下游不响应 ctx 时也不会阻塞调用方超过 timeout。
func call[T any](ctx context.Context, g *Guarded, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	res, err := g.cb.Execute(func() (any, error) {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		type result struct {
			v   T
			err error
		}
		done := make(chan result, 1)
		go func() {
			v, err := fn(cctx)
			done <- result{v, err}
		}()
		select {
		case r := <-done:
			return r.v, r.err
		case <-cctx.Done():
			return zero, core.UnavailableError(core.ModuleFeature, cctx.Err(), "%s %s timed out", g.next.Name(), op)
		}
	})
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			reason = "breaker_open"
			err = core.UnavailableError(core.ModuleFeature, err, "%s %s", g.next.Name(), op)
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		case core.IsNotFound(err), core.IsNotSupported(err):
			return zero, err
		}
		metrics.FeatureErrors.WithLabelValues(g.next.Name(), reason).Inc()
		if !core.IsUnavailable(err) {
			err = core.UnavailableError(core.ModuleFeature, err, "%s %s", g.next.Name(), op)
		}
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

func (g *Guarded) GetUserFeatures(ctx context.Context, userID string) (*core.UserFeatures, error) {
	return call(ctx, g, "user", func(ctx context.Context) (*core.UserFeatures, error) {
		return g.next.GetUserFeatures(ctx, userID)
	})
}

func (g *Guarded) GetProductFeatures(ctx context.Context, productID string) (*core.ProductFeatures, error) {
	return call(ctx, g, "product", func(ctx context.Context) (*core.ProductFeatures, error) {
		return g.next.GetProductFeatures(ctx, productID)
	})
}

func (g *Guarded) BatchGetProductFeatures(ctx context.Context, productIDs []string) (map[string]*core.ProductFeatures, error) {
	return call(ctx, g, "batch", func(ctx context.Context) (map[string]*core.ProductFeatures, error) {
		return g.next.BatchGetProductFeatures(ctx, productIDs)
	})
}

// ListProductIDs 是后台任务使用的全量读取，不受在线超时约束，但仍受熔断保护。
func (g *Guarded) ListProductIDs(ctx context.Context) ([]string, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.next.ListProductIDs(ctx)
	})
	switch {
	case core.IsNotSupported(err):
		return nil, err
	case err != nil:
		return nil, core.UnavailableError(core.ModuleFeature, err, "%s list", g.next.Name())
	}
	ids, _ := res.([]string)
	return ids, nil
}

var _ core.FeatureStore = (*Guarded)(nil)
