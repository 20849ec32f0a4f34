package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/metrics"
	"github.com/rushteam/lookbook/pkg/logging"
	"github.com/rushteam/lookbook/pkg/validation"
)

// Config 画像衰减与保留期配置
type Config struct {
	HalfLife   time.Duration `koanf:"half_life" validate:"gt=0"`
	Lookback   time.Duration `koanf:"lookback" validate:"gt=0"`
	Retention  time.Duration `koanf:"retention" validate:"gtefield=Lookback"`
	ProfileTTL time.Duration `koanf:"profile_ttl" validate:"gte=0"`

	// KindWeights 各交互类型的基础权重，key 为 EventKind
	KindWeights map[string]float64 `koanf:"kind_weights" validate:"dive,gte=0"`

	RecentlyViewedLimit int           `koanf:"recently_viewed_limit" validate:"gte=0"`
	SweepInterval       time.Duration `koanf:"sweep_interval" validate:"gt=0"`
}

// DefaultConfig 默认配置：半衰期 14 天，回溯 90 天。
func DefaultConfig() Config {
	return Config{
		HalfLife:   14 * 24 * time.Hour,
		Lookback:   90 * 24 * time.Hour,
		Retention:  180 * 24 * time.Hour,
		ProfileTTL: 5 * time.Minute,
		KindWeights: map[string]float64{
			string(core.EventPurchase): 1.0,
			string(core.EventCartAdd):  0.6,
			string(core.EventFavorite): 0.4,
			string(core.EventView):     0.2,
			string(core.EventRemove):   0,
		},
		RecentlyViewedLimit: 20,
		SweepInterval:       time.Hour,
	}
}

// Ledger 是交互流水与画像派生的入口。
//
// 设计原则：
//   - 写入按用户加锁，不同用户之间没有共享锁
//   - 画像是流水的纯派生结果，缓存只是加速，新事件写入即失效
//   - 商品特征缺失时退化为类目匹配，不因特征服务故障拒绝画像
type Ledger struct {
	cfg      Config
	log      Log
	features core.FeatureStore
	now      func() time.Time
	logger   zerolog.Logger

	partitions sync.Map // userID -> *partition
	profiles   sync.Map // userID -> *cachedProfile

	mu        sync.RWMutex
	listeners []func(core.InteractionEvent)
}

type partition struct {
	mu      sync.Mutex
	version atomic.Uint64
}

type cachedProfile struct {
	profile *core.UserProfile
	version uint64
	asOf    time.Time
}

// Option 配置 Ledger
type Option func(*Ledger)

// WithFeatureStore 设置用于展开商品属性的特征存储。
func WithFeatureStore(fs core.FeatureStore) Option {
	return func(l *Ledger) { l.features = fs }
}

// WithClock 替换时钟，用于测试。
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logging.Component(logger, "ledger") }
}

// New 创建 Ledger。
func New(log Log, cfg Config, opts ...Option) *Ledger {
	l := &Ledger{
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) partition(userID string) *partition {
	if p, ok := l.partitions.Load(userID); ok {
		return p.(*partition)
	}
	p, _ := l.partitions.LoadOrStore(userID, &partition{})
	return p.(*partition)
}

// OnRecord 注册事件写入后的回调，回调在写入方的 goroutine 中同步执行。
func (l *Ledger) OnRecord(fn func(core.InteractionEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Version 返回用户流水版本，每次写入递增。
func (l *Ledger) Version(userID string) uint64 {
	if p, ok := l.partitions.Load(userID); ok {
		return p.(*partition).version.Load()
	}
	return 0
}

// Record 校验并追加一条交互事件。时间戳为空时使用当前时间。
func (l *Ledger) Record(ctx context.Context, ev core.InteractionEvent) error {
	if err := validation.Struct(core.ModuleLedger, ev); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}

	p := l.partition(ev.UserID)
	p.mu.Lock()
	err := l.log.Append(ctx, ev)
	if err == nil {
		p.version.Add(1)
		l.profiles.Delete(ev.UserID)
	}
	p.mu.Unlock()
	if err != nil {
		return core.UnavailableError(core.ModuleLedger, err, "append event for %s", ev.UserID)
	}

	metrics.LedgerEvents.WithLabelValues(string(ev.Kind)).Inc()
	l.logger.Debug().
		Str("user_id", ev.UserID).
		Str("product_id", ev.ProductID).
		Str("kind", string(ev.Kind)).
		Msg("event recorded")

	l.mu.RLock()
	listeners := l.listeners
	l.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}

// Scan 遍历 since 之后的全部事件。
func (l *Ledger) Scan(ctx context.Context, since time.Time, fn func(core.InteractionEvent) error) error {
	return l.log.Scan(ctx, since, fn)
}

// Sweep 删除超过保留期的事件。
func (l *Ledger) Sweep(ctx context.Context, now time.Time) (int, error) {
	n, err := l.log.Sweep(ctx, now.Add(-l.cfg.Retention))
	if err != nil {
		return 0, core.UnavailableError(core.ModuleLedger, err, "sweep")
	}
	metrics.LedgerSwept.Add(float64(n))
	return n, nil
}

// Close 关闭底层存储。
func (l *Ledger) Close() error {
	return l.log.Close()
}
