// Package service file: internal/service/query_limiter.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleAfter     = 15 * time.Minute
	limiterSweepInterval = 10 * time.Minute
)

// limiterEntry 存储限制器和最后访问时间
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// queryLimiter 管理查询的准入配额：一个全局限制器，加上按数据集标识符分配的限制器。
// 任一层的速率为 0 表示该层不限制。
type queryLimiter struct {
	global *rate.Limiter

	mu        sync.Mutex
	datasets  map[string]*limiterEntry
	dsRate    rate.Limit
	dsBurst   int
	lastSweep time.Time
	now       func() time.Time
}

// newQueryLimiter 创建查询限制器，两层都不限制时返回 nil。
func newQueryLimiter(globalRate float64, globalBurst int, dsRate float64, dsBurst int) *queryLimiter {
	if globalRate <= 0 && dsRate <= 0 {
		return nil
	}
	l := &queryLimiter{
		datasets: make(map[string]*limiterEntry),
		dsRate:   rate.Limit(dsRate),
		dsBurst:  max(dsBurst, 1),
		now:      time.Now,
	}
	if globalRate > 0 {
		l.global = rate.NewLimiter(rate.Limit(globalRate), max(globalBurst, 1))
	}
	l.lastSweep = l.now()
	return l
}

// waitGlobal 等待全局配额
func (l *queryLimiter) waitGlobal(ctx context.Context) error {
	if l == nil || l.global == nil {
		return nil
	}
	if err := l.global.Wait(ctx); err != nil {
		return fmt.Errorf("等待全局查询配额被中断: %w", err)
	}
	return nil
}

// waitDataset 等待指定数据集的配额
func (l *queryLimiter) waitDataset(ctx context.Context, id string) error {
	if l == nil || l.dsRate <= 0 {
		return nil
	}
	if err := l.limiterFor(id).Wait(ctx); err != nil {
		return fmt.Errorf("等待数据集 '%s' 的查询配额被中断: %w", id, err)
	}
	return nil
}

// limiterFor 返回或创建数据集的限制器，并顺带清理不活跃的条目。
func (l *queryLimiter) limiterFor(id string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= limiterSweepInterval {
		l.sweepLocked(now)
	}
	entry, exists := l.datasets[id]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.dsRate, l.dsBurst)}
		l.datasets[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (l *queryLimiter) sweepLocked(now time.Time) {
	for id, entry := range l.datasets {
		if now.Sub(entry.lastSeen) > limiterIdleAfter {
			delete(l.datasets, id)
		}
	}
	l.lastSweep = now
}

// forget 在数据集被删除后丢弃它的限制器
func (l *queryLimiter) forget(id string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.datasets, id)
	l.mu.Unlock()
}

func (l *queryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.datasets)
}
