package query

import (
	"QueryAegis/internal/adapter/archive"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/dataset/builder"
	"QueryAegis/internal/dataset/schema"
	"QueryAegis/internal/testutil"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// coursesDataset 用示例归档构建名为 "courses" 的数据集 (6 条记录)
func coursesDataset(t *testing.T) *domain.Dataset {
	t.Helper()
	entries, err := archive.Decode(testutil.SampleCoursesArchive(t))
	require.NoError(t, err)
	ds, err := builder.New().Build(context.Background(), "courses", entries, domain.KindCourses)
	require.NoError(t, err)
	return ds
}

// lookupFor 返回只认识给定数据集的 SchemaLookup
func lookupFor(datasets ...*domain.Dataset) SchemaLookup {
	return func(id string) (*schema.Schema, error) {
		for _, ds := range datasets {
			if ds.ID == id {
				return schema.For(ds.Kind)
			}
		}
		return nil, fmt.Errorf("%w: '%s'", port.ErrNotFound, id)
	}
}

// run 解析并执行查询
func run(t *testing.T, ds *domain.Dataset, doc string) []domain.Row {
	t.Helper()
	q, err := Parse(doc, lookupFor(ds))
	require.NoError(t, err)
	rows, err := Evaluate(q, ds, DefaultMaxResults)
	require.NoError(t, err)
	return rows
}

// column 取出结果中某一列的值
func column(rows []domain.Row, key string) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		v, _ := r.Get(key)
		out[i] = v.Interface()
	}
	return out
}
