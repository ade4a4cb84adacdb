package service

import (
	"QueryAegis/internal/adapter/snapshot/sqlite"
	"QueryAegis/internal/aegobserve"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// newTestService 在 dataDir 上创建并初始化服务；dataDir 为空时使用临时目录。
func newTestService(t *testing.T, dataDir string, opts Options) *DatasetService {
	t.Helper()
	if dataDir == "" {
		dataDir = t.TempDir()
	}
	snapshots, err := sqlite.NewManager(dataDir, nil)
	require.NoError(t, err)

	if opts.Metrics == nil {
		opts.Metrics = aegobserve.NewMetrics()
		require.NoError(t, opts.Metrics.Register(prometheus.NewRegistry()))
	}
	svc, err := NewDatasetService(snapshots, opts)
	require.NoError(t, err)
	require.NoError(t, svc.Init(context.Background()))
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

const deptQuery = `{"WHERE":{},"OPTIONS":{"COLUMNS":["courses_dept"]}}`
