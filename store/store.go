// Package store 提供 core.Store / core.KeyValueStore / core.VectorService 的实现，
// 以及服务层使用的结果缓存。
//
// 注意：接口定义在 core 包。
//
//	var kv core.KeyValueStore = store.NewMemoryStore()
//	var kv core.KeyValueStore, _ = store.NewRedisStore(ctx, store.RedisConfig{Addr: "localhost:6379"})
package store

import "github.com/rushteam/lookbook/core"

// ErrNotFound 是 core.ErrStoreNotFound 的别名，方便包内使用。
var ErrNotFound = core.ErrStoreNotFound
