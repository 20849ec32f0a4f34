package core

import "context"

// Store 是特征与目录数据依赖的最小键值接口，由 store 包实现（内存 / Redis）。
//
// 承载的数据：
//   - 商品特征、用户显式偏好（JSON）
//   - 热门榜单、共现表（有序集合）
//   - 库存（哈希）
type Store interface {
	// Name 返回后端名称，用于日志与熔断器命名
	Name() string

	// Get 读取单个 key，不存在返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key，ttl 单位为秒，省略表示不过期
	Set(ctx context.Context, key string, value []byte, ttl ...int) error

	// Delete 删除 key，对有序集合与哈希同样生效；不存在时不报错
	Delete(ctx context.Context, key string) error

	// BatchGet 批量读取，不存在的 key 不出现在结果中
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	Close() error
}

// ScoredMember 是有序集合中的成员及分数。
type ScoredMember struct {
	Member string
	Score  float64
}

// KeyValueStore 在 Store 之上提供有序集合与哈希。
type KeyValueStore interface {
	Store

	// ZAdd 写入或更新有序集合成员
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZReplace 以 members 整体替换有序集合，读方不会看到中间状态；members 为空时删除 key
	ZReplace(ctx context.Context, key string, members []ScoredMember) error

	// ZRange 按分数降序返回 [start, stop] 区间的成员，stop 为负数表示到末尾
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZRangeWithScores 同 ZRange，同时返回分数
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	// HGet 读取哈希字段，不存在返回 ErrStoreNotFound
	HGet(ctx context.Context, key, field string) ([]byte, error)

	// HSet 写入哈希字段
	HSet(ctx context.Context, key, field string, value []byte) error
}

// ErrStoreNotFound 表示 key 或字段不存在
var ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

// IsStoreNotFound 判断是否为存储层的 key 不存在。
func IsStoreNotFound(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Module == ModuleStore && de.Code == ErrorCodeNotFound
}
