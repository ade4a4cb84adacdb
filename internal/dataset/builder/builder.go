// Package builder 将解码后的归档条目构建为经过校验的不可变数据集。
package builder

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/dataset/schema"
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Builder 负责数据集构建。它没有可变状态，可并发使用。
type Builder struct {
	logger      *slog.Logger
	parallelism int
	onSkip      func(kind domain.Kind, n int)
}

// Option 配置 Builder
type Option func(*Builder)

// WithLogger 指定日志记录器
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithParallelism 限制同时解析的单元数量
func WithParallelism(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.parallelism = n
		}
	}
}

// WithSkipHook 在每次构建结束后报告被跳过的无效记录数
func WithSkipHook(fn func(kind domain.Kind, n int)) Option {
	return func(b *Builder) { b.onSkip = fn }
}

// New 创建 Builder
func New(opts ...Option) *Builder {
	b := &Builder{
		logger:      slog.Default(),
		parallelism: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "DatasetBuilder")
	return b
}

// unitResult 是单个单元的解析结果
type unitResult struct {
	records []domain.Record
	skipped int
}

// Build 校验布局、逐单元解析并校验记录，按 "单元顺序 -> 单元内顺序" 组装数据集。
// 布局不符或没有任何有效记录时返回 port.ErrInvalidDataset。
func (b *Builder) Build(ctx context.Context, id string, entries port.ArchiveEntries, kind domain.Kind) (*domain.Dataset, error) {
	sch, err := schema.For(kind)
	if err != nil {
		return nil, err
	}
	if err := sch.CheckLayout(entries); err != nil {
		return nil, err
	}
	units, err := sch.Units(entries)
	if err != nil {
		return nil, err
	}

	results := make([]unitResult, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.buildUnit(sch, u, entries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("构建数据集 '%s' 被中断: %w", id, err)
	}

	var total, skipped int
	for _, r := range results {
		total += len(r.records)
		skipped += r.skipped
	}
	if b.onSkip != nil && skipped > 0 {
		b.onSkip(kind, skipped)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: 数据集 '%s' 中没有任何有效记录", port.ErrInvalidDataset, id)
	}

	records := make([]domain.Record, 0, total)
	for _, r := range results {
		records = append(records, r.records...)
	}

	b.logger.Info("数据集构建完成", "dataset", id, "kind", kind, "units", len(units), "records", total, "skipped", skipped)
	return &domain.Dataset{ID: id, Kind: kind, Records: records}, nil
}

// buildUnit 解析单个单元；单元本身无法解析时整体跳过，不影响其他单元。
func (b *Builder) buildUnit(sch *schema.Schema, u schema.Unit, entries port.ArchiveEntries) unitResult {
	content, ok := entries[u.Path]
	if !ok {
		b.logger.Debug("单元在归档中不存在，已跳过", "path", u.Path)
		return unitResult{}
	}
	raws, err := sch.Extract(u, content)
	if err != nil {
		b.logger.Debug("单元解析失败，已跳过", "path", u.Path, "error", err)
		return unitResult{}
	}

	res := unitResult{records: make([]domain.Record, 0, len(raws))}
	for _, raw := range raws {
		rec, ok := sch.Validate(raw)
		if !ok {
			res.skipped++
			continue
		}
		res.records = append(res.records, rec)
	}
	return res
}
