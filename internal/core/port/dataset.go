// Package port file: internal/core/port/dataset.go
package port

import (
	"QueryAegis/internal/core/domain"
	"context"
	"errors"
	"fmt"
	"strings"
)

// 标准错误。调用方通过 errors.Is 区分错误种类，决定重试或放弃。
var (
	ErrInvalidID        = errors.New("数据集标识符无效")
	ErrInvalidContent   = errors.New("数据集内容无效")
	ErrDuplicateDataset = errors.New("数据集已存在")
	ErrNotFound         = errors.New("数据集未找到")
	ErrInvalidQuery     = errors.New("查询无效")
	ErrResultTooLarge   = errors.New("查询结果过大")
)

// ErrInvalidDataset 是构建阶段对 ErrInvalidContent 的称呼，二者是同一个错误。
var ErrInvalidDataset = ErrInvalidContent

// ValidateID 校验数据集标识符：不能为空、不能全为空白、不能包含下划线。
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: 标识符为空", ErrInvalidID)
	}
	if strings.Contains(id, "_") {
		return fmt.Errorf("%w: '%s' 包含下划线", ErrInvalidID, id)
	}
	return nil
}

// IsRetryable 判断错误是否可能是暂时性的 (如持久化 I/O 失败)。
// 六类业务错误都不可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidContent),
		errors.Is(err, ErrDuplicateDataset),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidQuery),
		errors.Is(err, ErrResultTooLarge),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// ArchiveEntries 是解压后的归档内容：条目路径 -> 文本内容。
type ArchiveEntries map[string]string

// SnapshotStore 是数据集快照的持久化协作者，以数据集标识符为键。
type SnapshotStore interface {
	// Write 持久化一个完整的数据集快照，要么全部写入，要么不留痕迹。
	Write(ctx context.Context, ds *domain.Dataset) error

	// Delete 删除指定数据集的快照
	Delete(ctx context.Context, id string) error

	// ReadAll 在启动时读取全部快照
	ReadAll(ctx context.Context) ([]*domain.Dataset, error)

	Close() error
}
