// Package service 组合数据集的导入、存储与查询，对外提供 port.DatasetService。
package service

import (
	"QueryAegis/internal/adapter/archive"
	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/dataset/builder"
	"QueryAegis/internal/dataset/schema"
	"QueryAegis/internal/dataset/store"
	"QueryAegis/internal/query"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/panjf2000/ants/v2"
	"github.com/patrickmn/go-cache"
)

// 静态断言，确保 DatasetService 实现了 port.DatasetService 接口。
var _ port.DatasetService = (*DatasetService)(nil)

// Options 配置 DatasetService，零值字段使用默认值。
type Options struct {
	MaxResults       int                 // 单次查询的最大行数，默认 query.DefaultMaxResults
	CacheEntries     int                 // 查询结果缓存条目数，0 表示关闭结果缓存
	CacheTTL         time.Duration       // 缓存过期时间，默认 10 分钟
	RateLimit        float64             // 全局每秒允许的查询数，0 表示不限制
	RateBurst        int                 // 全局查询限流的峰值
	DatasetRateLimit float64             // 单个数据集每秒允许的查询数，0 表示不限制
	DatasetRateBurst int                 // 单个数据集查询限流的峰值
	PoolSize         int                 // 工作池大小，默认 CPU 核数
	Logger           *slog.Logger
	Metrics          *aegobserve.Metrics // 为空时创建一组未注册的指标
}

type cachedResult struct {
	ds   *domain.Dataset
	rows []domain.Row
}

// DatasetService 是数据集的门面：所有操作都在有界工作池中执行，调用方可通过 ctx 停止等待。
type DatasetService struct {
	store   *store.Store
	builder *builder.Builder
	pool    *ants.Pool
	results *lru.LRU[string, cachedResult] // 可能为 nil
	parsed  *cache.Cache                   // 规范化查询文本 -> *query.Query
	limiter *queryLimiter                  // 可能为 nil
	metrics *aegobserve.Metrics
	logger  *slog.Logger

	maxResults int
}

// NewDatasetService 创建服务。调用 Init 之后才能看到已持久化的数据集。
func NewDatasetService(snapshots port.SnapshotStore, opts Options) (*DatasetService, error) {
	if snapshots == nil {
		return nil, errors.New("DatasetService 初始化失败: 快照存储不能为 nil")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = aegobserve.NewMetrics()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = query.DefaultMaxResults
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = runtime.NumCPU()
	}
	logger := opts.Logger.With("component", "DatasetService")

	pool, err := ants.NewPool(opts.PoolSize, ants.WithPanicHandler(func(v any) {
		logger.Error("工作池任务发生 panic", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("创建工作池失败: %w", err)
	}

	s := &DatasetService{
		store: store.New(snapshots, opts.Logger),
		builder: builder.New(
			builder.WithLogger(opts.Logger),
			builder.WithSkipHook(func(kind domain.Kind, n int) {
				opts.Metrics.RecordsSkipped.WithLabelValues(string(kind)).Add(float64(n))
			}),
		),
		pool:       pool,
		parsed:     cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		metrics:    opts.Metrics,
		logger:     logger,
		maxResults: opts.MaxResults,
	}
	if opts.CacheEntries > 0 {
		s.results = lru.NewLRU[string, cachedResult](opts.CacheEntries, nil, opts.CacheTTL)
	}
	s.limiter = newQueryLimiter(opts.RateLimit, opts.RateBurst, opts.DatasetRateLimit, opts.DatasetRateBurst)

	logger.Info("DatasetService 已创建",
		"pool_size", opts.PoolSize, "max_results", opts.MaxResults,
		"cache_entries", opts.CacheEntries, "cache_ttl", opts.CacheTTL,
		"rate_limit", opts.RateLimit, "dataset_rate_limit", opts.DatasetRateLimit)
	return s, nil
}

// Init 从快照重建数据集索引
func (s *DatasetService) Init(ctx context.Context) error {
	if err := s.store.Init(ctx); err != nil {
		return err
	}
	s.metrics.DatasetsLoaded.Set(float64(s.store.Len()))
	return nil
}

// Close 等待工作池中的任务结束并释放快照存储
func (s *DatasetService) Close() error {
	if err := s.pool.ReleaseTimeout(5 * time.Second); err != nil {
		s.logger.Warn("等待工作池退出超时", "error", err)
	}
	return s.store.Close()
}

// AddDataset 解码、构建并持久化数据集，返回注册后的全部标识符。
func (s *DatasetService) AddDataset(ctx context.Context, id string, content []byte, kind domain.Kind) (ids []string, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("add", start, err) }()

	if err := port.ValidateID(id); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: 不支持的数据集类别 '%s'", port.ErrInvalidContent, kind)
	}
	if _, err := s.store.Get(id); err == nil {
		return nil, fmt.Errorf("%w: '%s'", port.ErrDuplicateDataset, id)
	}

	// 变更一旦开始就执行到底，调用方取消只影响等待
	taskCtx := context.WithoutCancel(ctx)
	ids, err = submit(ctx, s.pool, func() ([]string, error) {
		entries, err := archive.Decode(content)
		if err != nil {
			return nil, err
		}
		ds, err := s.builder.Build(taskCtx, id, entries, kind)
		if err != nil {
			return nil, err
		}
		ids, err := s.store.Add(taskCtx, ds)
		if err != nil {
			return nil, err
		}
		s.metrics.DatasetsLoaded.Set(float64(s.store.Len()))
		return ids, nil
	})
	if err != nil {
		s.logger.Warn("添加数据集失败", "dataset", id, "kind", kind, "error", err)
		return nil, err
	}
	return ids, nil
}

// RemoveDataset 删除数据集及其快照，并清除相关缓存。
func (s *DatasetService) RemoveDataset(ctx context.Context, id string) (removed string, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("remove", start, err) }()

	if err := port.ValidateID(id); err != nil {
		return "", err
	}
	taskCtx := context.WithoutCancel(ctx)
	return submit(ctx, s.pool, func() (string, error) {
		removed, err := s.store.Remove(taskCtx, id)
		if err != nil {
			return "", err
		}
		s.invalidate(id)
		s.limiter.forget(id)
		s.metrics.DatasetsLoaded.Set(float64(s.store.Len()))
		return removed, nil
	})
}

// ListDatasets 返回当前全部数据集的元信息，只在 ctx 已取消时返回错误。
func (s *DatasetService) ListDatasets(ctx context.Context) (metas []domain.DatasetMeta, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("list", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.List(), nil
}

// PerformQuery 校验并执行查询。queryDoc 可以是已解码的 JSON 值、JSON 字节或 JSON 字符串。
func (s *DatasetService) PerformQuery(ctx context.Context, queryDoc any) (rows []domain.Row, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe("query", start, err) }()

	if err := s.limiter.waitGlobal(ctx); err != nil {
		return nil, err
	}

	qid := uuid.NewString()
	q, err := s.parse(queryDoc)
	if err != nil {
		s.logger.Debug("查询校验失败", "query_id", qid, "error", err)
		return nil, err
	}
	if err := s.limiter.waitDataset(ctx, q.DatasetID); err != nil {
		return nil, err
	}

	return submit(ctx, s.pool, func() ([]domain.Row, error) {
		ds, err := s.store.Get(q.DatasetID)
		if err != nil {
			return nil, err
		}

		key := q.DatasetID + "\x00" + q.Canonical
		if s.results != nil {
			if hit, ok := s.results.Get(key); ok && hit.ds == ds {
				s.metrics.CacheLookup("result", true)
				return cloneRows(hit.rows), nil
			}
			s.metrics.CacheLookup("result", false)
		}

		rows, err := query.Evaluate(q, ds, s.maxResults)
		if err != nil {
			s.logger.Debug("查询执行失败", "query_id", qid, "dataset", q.DatasetID, "error", err)
			return nil, err
		}
		if s.results != nil {
			s.results.Add(key, cachedResult{ds: ds, rows: rows})
		}
		s.logger.Debug("查询完成", "query_id", qid, "dataset", q.DatasetID, "rows", len(rows), "elapsed", time.Since(start))
		return cloneRows(rows), nil
	})
}

// parse 先查已解析查询的缓存，未命中时完整校验。校验失败的结果不缓存。
func (s *DatasetService) parse(queryDoc any) (*query.Query, error) {
	_, canonical, err := query.Normalize(queryDoc)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.parsed.Get(canonical); ok {
		s.metrics.CacheLookup("parsed", true)
		return cached.(*query.Query), nil
	}
	s.metrics.CacheLookup("parsed", false)

	q, err := query.Parse(canonical, s.lookupSchema)
	if err != nil {
		return nil, err
	}
	s.parsed.Set(canonical, q, cache.DefaultExpiration)
	return q, nil
}

func (s *DatasetService) lookupSchema(id string) (*schema.Schema, error) {
	ds, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return schema.For(ds.Kind)
}

// invalidate 清除与数据集相关的全部缓存
func (s *DatasetService) invalidate(id string) {
	for key, item := range s.parsed.Items() {
		if q, ok := item.Object.(*query.Query); ok && q.DatasetID == id {
			s.parsed.Delete(key)
		}
	}
	if s.results != nil {
		for _, key := range s.results.Keys() {
			if hit, ok := s.results.Peek(key); ok && hit.ds.ID == id {
				s.results.Remove(key)
			}
		}
	}
	s.logger.Debug("数据集相关缓存已清除", "dataset", id)
}

// submit 在工作池中执行 fn，并在结果返回或 ctx 结束时返回。
func submit[T any](ctx context.Context, pool *ants.Pool, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ch := make(chan result, 1)
	err := pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("任务执行时发生 panic: %v", r)}
			}
		}()
		v, err := fn()
		ch <- result{v: v, err: err}
	})
	if err != nil {
		return zero, fmt.Errorf("提交任务到工作池失败: %w", err)
	}

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func cloneRows(rows []domain.Row) []domain.Row {
	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
