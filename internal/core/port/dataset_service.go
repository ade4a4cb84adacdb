// Package port file: internal/core/port/dataset_service.go
package port

import (
	"QueryAegis/internal/core/domain"
	"context"
)

// DatasetService 是对外公开的操作面：添加、删除、列出数据集以及执行查询。
// 所有方法都可并发调用；对同一标识符的 add/remove 会被串行化。
type DatasetService interface {
	// AddDataset 解码并校验归档，持久化后注册，返回注册后的全部标识符。
	AddDataset(ctx context.Context, id string, content []byte, kind domain.Kind) ([]string, error)

	// RemoveDataset 删除数据集及其快照，返回被删除的标识符。
	RemoveDataset(ctx context.Context, id string) (string, error)

	// ListDatasets 返回当前所有数据集的元信息。
	ListDatasets(ctx context.Context) ([]domain.DatasetMeta, error)

	// PerformQuery 校验并执行一个查询文档。
	PerformQuery(ctx context.Context, query any) ([]domain.Row, error)
}
