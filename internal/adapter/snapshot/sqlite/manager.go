// Package sqlite — 以 SQLite 文件保存数据集快照的持久化适配器
// internal/adapter/snapshot/sqlite/manager.go
package sqlite

import (
	"QueryAegis/internal/core/port"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite"
)

// 断言 *Manager 实现 port.SnapshotStore 接口，编译期校验
var _ port.SnapshotStore = (*Manager)(nil)

const (
	snapshotExt = ".db"
	tmpExt      = ".tmp"
)

// Manager 管理快照目录，每个数据集对应目录下的一个 "<id>.db" 文件。
// 快照目录由 Manager 独占，其他组件不应直接读写。
type Manager struct {
	// root 是快照目录的根路径, e.g., "data"
	root string

	// loadParallelism 启动时并发读取快照的上限
	loadParallelism int

	logger *slog.Logger
}

// NewManager 创建 Manager，目录不存在时自动创建。
func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("快照目录不能为空")
	}
	if logger == nil {
		logger = slog.Default()
	}
	clean := filepath.Clean(root)
	if err := os.MkdirAll(clean, 0o755); err != nil {
		return nil, fmt.Errorf("创建快照目录 '%s' 失败: %w", clean, err)
	}
	return &Manager{
		root:            clean,
		loadParallelism: runtime.NumCPU(),
		logger:          logger.With("component", "SnapshotStore"),
	}, nil
}

// Root 返回快照目录
func (m *Manager) Root() string {
	return m.root
}

// Close 快照文件只在读写期间打开，这里无需释放任何资源。
func (m *Manager) Close() error {
	return nil
}
