// Package aegobserve 定义进程内的 Prometheus 指标
package aegobserve

import (
	"QueryAegis/internal/core/port"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics 汇总数据集服务的全部指标。每个实例注册到自己的 Registerer，测试之间互不影响。
type Metrics struct {
	Operations     *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	DatasetsLoaded prometheus.Gauge
	RecordsSkipped *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
}

// NewMetrics 创建指标，尚未注册。
func NewMetrics() *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queryaegis_operations_total",
			Help: "数据集操作总数，按操作与结果分类",
		}, []string{"op", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queryaegis_operation_duration_seconds",
			Help:    "数据集操作耗时",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		DatasetsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queryaegis_datasets_loaded",
			Help: "当前已注册的数据集数量",
		}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queryaegis_records_skipped_total",
			Help: "导入时因校验失败被跳过的记录数",
		}, []string{"kind"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queryaegis_query_cache_lookups_total",
			Help: "查询缓存命中情况",
		}, []string{"cache", "result"}),
	}
}

// Register 将全部指标注册到 reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Operations, m.Duration, m.DatasetsLoaded, m.RecordsSkipped, m.CacheLookups} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("注册指标失败: %w", err)
		}
	}
	return nil
}

// Observe 记录一次操作的结果与耗时
func (m *Metrics) Observe(op string, start time.Time, err error) {
	m.Operations.WithLabelValues(op, ResultLabel(err)).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CacheLookup 记录一次缓存查找
func (m *Metrics) CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// ResultLabel 将错误归类为指标标签
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, port.ErrInvalidID):
		return "invalid_id"
	case errors.Is(err, port.ErrInvalidContent):
		return "invalid_content"
	case errors.Is(err, port.ErrDuplicateDataset):
		return "duplicate"
	case errors.Is(err, port.ErrNotFound):
		return "not_found"
	case errors.Is(err, port.ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, port.ErrResultTooLarge):
		return "too_large"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

// WriteSummary 以 Prometheus 文本格式输出 g 中的全部指标。
func WriteSummary(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("收集指标失败: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("输出指标 '%s' 失败: %w", mf.GetName(), err)
		}
	}
	return nil
}
