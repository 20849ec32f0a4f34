package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/bundle"
	"github.com/rushteam/lookbook/config"
	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/feature"
	"github.com/rushteam/lookbook/ledger"
	"github.com/rushteam/lookbook/rank"
	"github.com/rushteam/lookbook/recall"
	"github.com/rushteam/lookbook/recommend"
	"github.com/rushteam/lookbook/store"
)

// vectorLoadBatch 启动时从特征存储加载 embedding 的批大小
const vectorLoadBatch = 500

// app 持有按配置装配好的全部组件。
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	service *recommend.Service
	ranker  *rank.Ranker

	ledger    *ledger.Ledger
	refresher *recommend.PopularityRefresher

	closers []func() error
}

// build 按配置装配存储、特征、流水、候选生成、排序、搭配与编排层。
// 任一步失败时关闭已创建的资源。
func build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if cerr := a.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("release partially built components")
			}
		}
	}()

	kv, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, kv.Close)

	kvFeatures := feature.NewKVStore(kv, feature.DefaultKeyPrefix)
	cooc := feature.NewKVCoOccurrence(kv)
	availability := feature.NewKVAvailability(kv)
	vectors := store.NewMemoryVectorService()
	a.closers = append(a.closers, vectors.Close)

	if cfg.SeedPath != "" {
		seed, err := feature.LoadSeed(cfg.SeedPath)
		if err != nil {
			return nil, err
		}
		if err := seed.Apply(ctx, feature.SeedTarget{
			Features:     kvFeatures,
			CoOccurrence: cooc,
			Availability: availability,
			Vectors:      vectors,
		}); err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SeedPath).Int("products", len(seed.Products)).Msg("catalog seed applied")
	}

	var features core.FeatureStore = kvFeatures
	if cfg.Features.Backend == config.BackendFeast {
		client, err := feature.NewFeastGrpcClient(cfg.Features.Feast)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		features = feature.NewFeastStore(client, cfg.Features.Feast, kvFeatures.ListProductIDs)
	}
	guarded := feature.NewGuarded(features, cfg.Features.Guard, logger)
	features = guarded
	checks := map[string]recommend.Check{"features": recommend.BreakerCheck(guarded)}
	if p, ok := kv.(interface{ Ping(context.Context) error }); ok {
		checks["store"] = p.Ping
	}
	if cfg.Features.CacheSize > 0 {
		cached := feature.NewCachedStore(features, cfg.Features.CacheSize, cfg.Features.CacheTTL)
		a.closers = append(a.closers, func() error { cached.Close(); return nil })
		features = cached
	}

	if cfg.SeedPath == "" {
		n, err := loadVectors(ctx, features, vectors)
		if err != nil {
			logger.Warn().Err(err).Msg("product embeddings not loaded, content similarity disabled until restart")
		} else {
			logger.Info().Int("products", n).Msg("product embeddings loaded")
		}
	}

	log, err := openLog(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	a.ledger = ledger.New(log, cfg.Ledger.Profile,
		ledger.WithFeatureStore(features),
		ledger.WithLogger(logger),
	)
	a.closers = append(a.closers, a.ledger.Close)

	popularity := recall.NewPopularityIndex(kv)
	generator := recall.NewGenerator(cfg.Recall, recall.Dependencies{
		Vectors:      vectors,
		Collection:   feature.ProductCollection,
		Features:     features,
		Availability: availability,
		CoOccurrence: cooc,
		Popularity:   popularity,
	}, logger)

	a.ranker, err = rank.NewRanker(cfg.Rank, features, availability, rank.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	composer, err := bundle.NewComposer(cfg.Bundle, features, cooc, availability, logger)
	if err != nil {
		return nil, err
	}

	a.service, err = recommend.NewService(cfg.Recommend, recommend.Components{
		Ledger:       a.ledger,
		Features:     features,
		Availability: availability,
		Generator:    generator,
		Ranker:       a.ranker,
		Composer:     composer,
		Popularity:   popularity,
		Vectors:      vectors,
		Checks:       checks,
	}, recommend.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a.refresher = recommend.NewPopularityRefresher(cfg.Recommend.Refresh, a.ledger, features, popularity, logger)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (core.KeyValueStore, error) {
	if cfg.Backend == config.BackendRedis {
		return store.NewRedisStore(ctx, cfg.Redis)
	}
	return store.NewMemoryStore(), nil
}

func openLog(cfg config.LedgerConfig) (ledger.Log, error) {
	if cfg.Backend == config.BackendBadger {
		return ledger.OpenBadgerLog(cfg.Badger)
	}
	return ledger.NewMemoryLog(), nil
}

// loadVectors 把特征存储中的商品 embedding 写入内存向量索引。
func loadVectors(ctx context.Context, features core.FeatureStore, vectors core.VectorIndex) (int, error) {
	ids, err := features.ListProductIDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for start := 0; start < len(ids); start += vectorLoadBatch {
		end := min(start+vectorLoadBatch, len(ids))
		got, err := features.BatchGetProductFeatures(ctx, ids[start:end])
		if err != nil {
			return n, fmt.Errorf("load embeddings: %w", err)
		}
		for id, pf := range got {
			if len(pf.Embedding) == 0 {
				continue
			}
			if err := vectors.Upsert(ctx, feature.ProductCollection, id, pf.Embedding); err != nil {
				return n, fmt.Errorf("index embedding %s: %w", id, err)
			}
			n++
		}
	}
	return n, nil
}

// Close 按创建的逆序释放资源。
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
