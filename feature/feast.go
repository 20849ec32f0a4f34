package feature

import (
	"context"
	"fmt"
	"time"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"

	"github.com/rushteam/lookbook/core"
)

// FeastConfig Feast 在线特征服务配置
type FeastConfig struct {
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
	Project string `koanf:"project"`
	Token   string `koanf:"token"`

	ProductEntity string `koanf:"product_entity"` // 默认 product_id
	UserEntity    string `koanf:"user_entity"`    // 默认 user_id
	ProductTable  string `koanf:"product_table"`  // 默认 product_features
	UserTable     string `koanf:"user_table"`     // 默认 user_features
}

func (c *FeastConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 6565
	}
	if c.ProductEntity == "" {
		c.ProductEntity = "product_id"
	}
	if c.UserEntity == "" {
		c.UserEntity = "user_id"
	}
	if c.ProductTable == "" {
		c.ProductTable = "product_features"
	}
	if c.UserTable == "" {
		c.UserTable = "user_features"
	}
}

// OnlineClient 是 Feast SDK 在线特征接口的最小子集，*feastsdk.GrpcClient 满足此接口。
type OnlineClient interface {
	GetOnlineFeatures(ctx context.Context, req *feastsdk.OnlineFeaturesRequest) (*feastsdk.OnlineFeaturesResponse, error)
}

// 商品与用户特征在 Feast 中的字段名。
var (
	productFields = []string{
		"category_path", "color_family", "material", "season", "formality",
		"price_tier", "tags", "sizes", "gender", "embedding", "popularity", "added_at",
	}
	userFields = []string{"pref_size", "pref_gender", "embedding"}
)

// FeastStore 是基于 Feast 在线特征服务的 FeatureStore。
//
// 设计原则：
//   - 只读在线特征，历史特征与物化不在服务链路内
//   - 所有字段都可能缺失，缺失字段保持零值
//   - Feast 不提供目录枚举，ListProductIDs 委托给 Catalog（通常是 KVStore）
type FeastStore struct {
	cfg     FeastConfig
	fetch   func(ctx context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error)
	catalog func(ctx context.Context) ([]string, error)
}

// NewFeastGrpcClient 使用官方 SDK 建立 gRPC 连接。
func NewFeastGrpcClient(cfg FeastConfig) (*feastsdk.GrpcClient, error) {
	cfg.applyDefaults()
	var (
		client *feastsdk.GrpcClient
		err    error
	)
	if cfg.Token != "" {
		client, err = feastsdk.NewSecureGrpcClient(cfg.Host, cfg.Port, feastsdk.SecurityConfig{
			Credential: feastsdk.NewStaticCredential(cfg.Token),
		})
	} else {
		client, err = feastsdk.NewGrpcClient(cfg.Host, cfg.Port)
	}
	if err != nil {
		return nil, core.UnavailableError(core.ModuleFeature, err, "connect feast %s:%d", cfg.Host, cfg.Port)
	}
	return client, nil
}

// NewFeastStore 创建 Feast 特征存储。catalog 可为空，此时 ListProductIDs 返回 NOT_SUPPORTED。
func NewFeastStore(client OnlineClient, cfg FeastConfig, catalog func(ctx context.Context) ([]string, error)) *FeastStore {
	cfg.applyDefaults()
	return &FeastStore{
		cfg: cfg,
		fetch: func(ctx context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
			resp, err := client.GetOnlineFeatures(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp.Rows(), nil
		},
		catalog: catalog,
	}
}

func (s *FeastStore) Name() string { return "feast" }

func refs(table string, fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = table + ":" + f
	}
	return out
}

func (s *FeastStore) query(ctx context.Context, table, entity string, fields, ids []string) ([]feastsdk.Row, error) {
	entities := make([]feastsdk.Row, len(ids))
	for i, id := range ids {
		entities[i] = feastsdk.Row{entity: feastsdk.StrVal(id)}
	}
	rows, err := s.fetch(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: refs(table, fields),
		Entities: entities,
		Project:  s.cfg.Project,
	})
	if err != nil {
		return nil, core.UnavailableError(core.ModuleFeature, err, "feast online features %s", table)
	}
	if len(rows) != len(ids) {
		return nil, core.UnavailableError(core.ModuleFeature, nil, "feast: expected %d rows, got %d", len(ids), len(rows))
	}
	return rows, nil
}

func (s *FeastStore) GetUserFeatures(ctx context.Context, userID string) (*core.UserFeatures, error) {
	rows, err := s.query(ctx, s.cfg.UserTable, s.cfg.UserEntity, userFields, []string{userID})
	if err != nil {
		return nil, err
	}
	get := rowGetter(rows[0], s.cfg.UserTable)
	uf := &core.UserFeatures{
		UserID: userID,
		Preferences: core.Preferences{
			Size:   get("pref_size").GetStringVal(),
			Gender: get("pref_gender").GetStringVal(),
		},
		Embedding: doubles(get("embedding")),
	}
	if uf.Preferences.Size == "" && uf.Preferences.Gender == "" && len(uf.Embedding) == 0 {
		return nil, core.NotFoundError(core.ModuleFeature, "feature not found: user %s", userID)
	}
	return uf, nil
}

func (s *FeastStore) GetProductFeatures(ctx context.Context, productID string) (*core.ProductFeatures, error) {
	got, err := s.BatchGetProductFeatures(ctx, []string{productID})
	if err != nil {
		return nil, err
	}
	pf, ok := got[productID]
	if !ok {
		return nil, core.NotFoundError(core.ModuleFeature, "feature not found: product %s", productID)
	}
	return pf, nil
}

// BatchGetProductFeatures 一次请求读取多个商品；没有类目的行视为缺失。
func (s *FeastStore) BatchGetProductFeatures(ctx context.Context, productIDs []string) (map[string]*core.ProductFeatures, error) {
	out := make(map[string]*core.ProductFeatures, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rows, err := s.query(ctx, s.cfg.ProductTable, s.cfg.ProductEntity, productFields, productIDs)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		pf := decodeProduct(productIDs[i], rowGetter(row, s.cfg.ProductTable))
		if len(pf.CategoryPath) == 0 {
			continue
		}
		out[pf.ProductID] = pf
	}
	return out, nil
}

func (s *FeastStore) ListProductIDs(ctx context.Context) ([]string, error) {
	if s.catalog == nil {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeNotSupported, "feast: product listing not supported")
	}
	return s.catalog(ctx)
}

// rowGetter 兼容带表名前缀与不带前缀两种字段命名。
func rowGetter(row feastsdk.Row, table string) func(field string) *types.Value {
	return func(field string) *types.Value {
		if v, ok := row[table+":"+field]; ok {
			return v
		}
		return row[field]
	}
}

func decodeProduct(id string, get func(string) *types.Value) *core.ProductFeatures {
	pf := &core.ProductFeatures{
		ProductID:    id,
		CategoryPath: get("category_path").GetStringListVal().GetVal(),
		Attributes: core.ProductAttributes{
			PriceTier:   int(get("price_tier").GetInt64Val()),
			ColorFamily: get("color_family").GetStringVal(),
			Material:    get("material").GetStringVal(),
			Season:      get("season").GetStringVal(),
			Formality:   get("formality").GetStringVal(),
		},
		Tags:       get("tags").GetStringListVal().GetVal(),
		Sizes:      get("sizes").GetStringListVal().GetVal(),
		Gender:     get("gender").GetStringVal(),
		Embedding:  doubles(get("embedding")),
		Popularity: get("popularity").GetDoubleVal(),
	}
	if ts := get("added_at").GetInt64Val(); ts > 0 {
		pf.AddedAt = time.Unix(ts, 0).UTC()
	}
	return pf
}

// doubles 读取 double / float 列表。
func doubles(v *types.Value) []float64 {
	if d := v.GetDoubleListVal().GetVal(); len(d) > 0 {
		return d
	}
	f := v.GetFloatListVal().GetVal()
	if len(f) == 0 {
		return nil
	}
	out := make([]float64, len(f))
	for i, x := range f {
		out[i] = float64(x)
	}
	return out
}

// String 用于日志。
func (s *FeastStore) String() string {
	return fmt.Sprintf("feast(%s:%d/%s)", s.cfg.Host, s.cfg.Port, s.cfg.Project)
}

var _ core.FeatureStore = (*FeastStore)(nil)
