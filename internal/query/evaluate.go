package query

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/dataset/schema"
	"fmt"
	"slices"
	"sort"
)

// DefaultMaxResults 单次查询允许返回的最大行数
const DefaultMaxResults = 5000

// Evaluate 对数据集执行查询：过滤 -> 行数上限检查 -> 投影 -> 稳定排序。
// maxRows <= 0 时使用 DefaultMaxResults。匹配行数超过上限时返回 port.ErrResultTooLarge，不返回部分结果。
func Evaluate(q *Query, ds *domain.Dataset, maxRows int) ([]domain.Row, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxResults
	}
	if err := recheck(q, ds); err != nil {
		return nil, err
	}

	matched := make([]domain.Record, 0)
	for _, rec := range ds.Records {
		if q.Where.eval(rec) != yes {
			continue
		}
		if len(matched) == maxRows {
			return nil, fmt.Errorf("%w: 匹配行数超过上限 %d", port.ErrResultTooLarge, maxRows)
		}
		matched = append(matched, rec)
	}

	fields := make([]string, len(q.Columns))
	for i, key := range q.Columns {
		fields[i] = q.fieldOf(key)
	}
	rows := make([]domain.Row, len(matched))
	for i, rec := range matched {
		row := make(domain.Row, len(fields))
		for j, f := range fields {
			row[j] = domain.Cell{Key: q.Columns[j], Value: rec[f]}
		}
		rows[i] = row
	}

	if q.Order != nil {
		sortRows(rows, q.Columns, q.Order)
	}
	return rows, nil
}

// sortRows 多键稳定排序，所有键都相等的行保持过滤时的相对顺序。
func sortRows(rows []domain.Row, columns []string, order *Order) {
	idx := make([]int, 0, len(order.Keys))
	for _, k := range order.Keys {
		for i, c := range columns {
			if c == k {
				idx = append(idx, i)
				break
			}
		}
	}
	desc := order.Dir == DirDown
	sort.SliceStable(rows, func(a, b int) bool {
		for _, i := range idx {
			c := domain.CompareValues(rows[a][i].Value, rows[b][i].Value)
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// recheck 在执行前确认查询确实针对该数据集，并且引用的字段在数据集的 Schema 中存在且类型相符。
func recheck(q *Query, ds *domain.Dataset) error {
	if q == nil || q.Where == nil || len(q.Columns) == 0 {
		return invalidf("查询未经校验")
	}
	if ds == nil {
		return fmt.Errorf("%w: '%s'", port.ErrNotFound, q.DatasetID)
	}
	if q.DatasetID != ds.ID {
		return invalidf("查询引用数据集 '%s'，实际数据集为 '%s'", q.DatasetID, ds.ID)
	}
	sch, err := schema.For(ds.Kind)
	if err != nil {
		return invalidf("数据集 '%s' 的类别 '%s' 无法识别", ds.ID, ds.Kind)
	}

	p := &parser{id: ds.ID, schema: sch}
	for _, key := range q.Columns {
		if _, _, err := p.field(key); err != nil {
			return err
		}
	}
	if q.Order != nil {
		for _, key := range q.Order.Keys {
			if !slices.Contains(q.Columns, key) {
				return invalidf("排序键 '%s' 不在 COLUMNS 中", key)
			}
		}
	}

	var bad error
	q.Where.visit(func(field string, want domain.FieldType) {
		if bad != nil {
			return
		}
		if typ, ok := sch.FieldType(field); !ok || typ != want {
			bad = invalidf("字段 '%s' 在数据集 '%s' 中不存在或类型不符", field, ds.ID)
		}
	})
	return bad
}
