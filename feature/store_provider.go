package feature

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rushteam/lookbook/core"
)

// KeyPrefix 定义特征在 KV 存储中的 key 布局。
type KeyPrefix struct {
	Product string // 商品特征，默认 "feat:product:"
	User    string // 用户显式偏好，默认 "feat:user:"
	Catalog string // 商品目录有序集合，默认 "catalog:products"
}

// DefaultKeyPrefix 默认 key 布局
var DefaultKeyPrefix = KeyPrefix{
	Product: "feat:product:",
	User:    "feat:user:",
	Catalog: "catalog:products",
}

// KVStore 是基于 core.KeyValueStore 的特征存储。
// 特征以 JSON 存储；商品目录额外维护一个有序集合（分数为上架时间），用于 ListProductIDs。
//
// 后端可以是 store.MemoryStore（单机 / 测试）或 store.RedisStore（生产）。
type KVStore struct {
	kv     core.KeyValueStore
	prefix KeyPrefix
}

// NewKVStore 创建 KV 特征存储。
func NewKVStore(kv core.KeyValueStore, prefix KeyPrefix) *KVStore {
	if prefix.Product == "" {
		prefix.Product = DefaultKeyPrefix.Product
	}
	if prefix.User == "" {
		prefix.User = DefaultKeyPrefix.User
	}
	if prefix.Catalog == "" {
		prefix.Catalog = DefaultKeyPrefix.Catalog
	}
	return &KVStore{kv: kv, prefix: prefix}
}

func (s *KVStore) Name() string { return "kv:" + s.kv.Name() }

func (s *KVStore) GetUserFeatures(ctx context.Context, userID string) (*core.UserFeatures, error) {
	data, err := s.kv.Get(ctx, s.prefix.User+userID)
	if err != nil {
		return nil, s.mapErr(err, "user %s", userID)
	}
	var uf core.UserFeatures
	if err := json.Unmarshal(data, &uf); err != nil {
		return nil, fmt.Errorf("decode user features %s: %w", userID, err)
	}
	return &uf, nil
}

func (s *KVStore) GetProductFeatures(ctx context.Context, productID string) (*core.ProductFeatures, error) {
	data, err := s.kv.Get(ctx, s.prefix.Product+productID)
	if err != nil {
		return nil, s.mapErr(err, "product %s", productID)
	}
	var pf core.ProductFeatures
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("decode product features %s: %w", productID, err)
	}
	return &pf, nil
}

// BatchGetProductFeatures 一次往返读取多个商品；解码失败的条目按缺失处理。
func (s *KVStore) BatchGetProductFeatures(ctx context.Context, productIDs []string) (map[string]*core.ProductFeatures, error) {
	if len(productIDs) == 0 {
		return map[string]*core.ProductFeatures{}, nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = s.prefix.Product + id
	}
	raw, err := s.kv.BatchGet(ctx, keys)
	if err != nil {
		return nil, core.UnavailableError(core.ModuleFeature, err, "batch get product features")
	}
	out := make(map[string]*core.ProductFeatures, len(raw))
	for i, id := range productIDs {
		data, ok := raw[keys[i]]
		if !ok {
			continue
		}
		var pf core.ProductFeatures
		if json.Unmarshal(data, &pf) != nil {
			continue
		}
		out[id] = &pf
	}
	return out, nil
}

func (s *KVStore) ListProductIDs(ctx context.Context) ([]string, error) {
	ids, err := s.kv.ZRange(ctx, s.prefix.Catalog, 0, -1)
	if err != nil {
		return nil, core.UnavailableError(core.ModuleFeature, err, "list products")
	}
	return ids, nil
}

// PutProduct 写入商品特征并登记到目录。
func (s *KVStore) PutProduct(ctx context.Context, pf *core.ProductFeatures) error {
	data, err := json.Marshal(pf)
	if err != nil {
		return fmt.Errorf("encode product %s: %w", pf.ProductID, err)
	}
	if err := s.kv.Set(ctx, s.prefix.Product+pf.ProductID, data); err != nil {
		return err
	}
	return s.kv.ZAdd(ctx, s.prefix.Catalog, float64(pf.AddedAt.Unix()), pf.ProductID)
}

// PutUser 写入用户显式偏好。
func (s *KVStore) PutUser(ctx context.Context, uf *core.UserFeatures) error {
	data, err := json.Marshal(uf)
	if err != nil {
		return fmt.Errorf("encode user %s: %w", uf.UserID, err)
	}
	return s.kv.Set(ctx, s.prefix.User+uf.UserID, data)
}

func (s *KVStore) mapErr(err error, format string, args ...any) error {
	if core.IsStoreNotFound(err) {
		return core.WrapDomainError(core.ModuleFeature, core.ErrorCodeNotFound, err, "feature not found: "+format, args...)
	}
	return core.UnavailableError(core.ModuleFeature, err, "feature read: "+format, args...)
}

var _ core.FeatureStore = (*KVStore)(nil)
