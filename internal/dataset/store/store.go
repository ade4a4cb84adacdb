// Package store 是进程内的数据集注册表，以快照持久化保证重启后数据集仍然存在。
package store

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Store 维护 "标识符 -> 数据集" 的内存索引。
// 同一标识符上的 Add/Remove 由键锁串行化；不同标识符之间互不阻塞。
type Store struct {
	persister port.SnapshotStore
	logger    *slog.Logger
	locks     *keyedMutex

	mu       sync.RWMutex
	datasets map[string]*domain.Dataset
	order    []string // 插入顺序
}

// New 创建 Store。调用 Init 之前索引为空。
func New(persister port.SnapshotStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persister: persister,
		logger:    logger.With("component", "DatasetStore"),
		locks:     newKeyedMutex(),
		datasets:  make(map[string]*domain.Dataset),
	}
}

// Init 从持久化快照重建内存索引。磁盘上没有插入顺序，按标识符排序注册。
func (s *Store) Init(ctx context.Context) error {
	all, err := s.persister.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("从快照重建数据集索引失败: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = make(map[string]*domain.Dataset, len(all))
	s.order = s.order[:0]
	for _, ds := range all {
		if ds == nil {
			continue
		}
		if err := port.ValidateID(ds.ID); err != nil {
			s.logger.Warn("快照中的标识符无效，已忽略", "dataset", ds.ID, "error", err)
			continue
		}
		if _, dup := s.datasets[ds.ID]; dup {
			continue
		}
		s.datasets[ds.ID] = ds
		s.order = append(s.order, ds.ID)
	}
	s.logger.Info("数据集索引已重建", "datasets", len(s.order))
	return nil
}

// Add 先持久化快照再注册到索引，返回注册后的全部标识符 (插入顺序)。
// 持久化失败时索引保持不变。
func (s *Store) Add(ctx context.Context, ds *domain.Dataset) ([]string, error) {
	if ds == nil {
		return nil, errors.New("数据集不能为空")
	}
	if err := port.ValidateID(ds.ID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(ds.ID)
	defer unlock()

	if s.exists(ds.ID) {
		return nil, fmt.Errorf("%w: '%s'", port.ErrDuplicateDataset, ds.ID)
	}
	if err := s.persister.Write(ctx, ds); err != nil {
		return nil, fmt.Errorf("持久化数据集 '%s' 失败: %w", ds.ID, err)
	}

	s.mu.Lock()
	s.datasets[ds.ID] = ds
	s.order = append(s.order, ds.ID)
	ids := append([]string(nil), s.order...)
	s.mu.Unlock()

	s.logger.Info("数据集已注册", "dataset", ds.ID, "kind", ds.Kind, "rows", len(ds.Records))
	return ids, nil
}

// Remove 先删除快照再移出索引；快照删除失败时索引保持不变。
func (s *Store) Remove(ctx context.Context, id string) (string, error) {
	if err := port.ValidateID(id); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if !s.exists(id) {
		return "", fmt.Errorf("%w: '%s'", port.ErrNotFound, id)
	}
	if err := s.persister.Delete(ctx, id); err != nil {
		return "", fmt.Errorf("删除数据集 '%s' 的快照失败: %w", id, err)
	}

	s.mu.Lock()
	delete(s.datasets, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.logger.Info("数据集已移除", "dataset", id)
	return id, nil
}

// List 返回当前元信息的副本 (插入顺序)，从不失败。
func (s *Store) List() []domain.DatasetMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DatasetMeta, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.datasets[id].Meta())
	}
	return out
}

// Get 返回已注册的数据集。数据集不可变，可在锁外安全读取。
func (s *Store) Get(id string) (*domain.Dataset, error) {
	s.mu.RLock()
	ds, ok := s.datasets[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", port.ErrNotFound, id)
	}
	return ds, nil
}

// IDs 返回全部标识符 (插入顺序)
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len 返回已注册的数据集数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Close 内存索引无需持久化，关闭只释放持久化协作者。
func (s *Store) Close() error {
	return s.persister.Close()
}

func (s *Store) exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.datasets[id]
	return ok
}
