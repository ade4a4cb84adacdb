// Package sqlite file: internal/adapter/snapshot/sqlite/schema.go
package sqlite

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/dataset/schema"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// ReadAll 扫描快照目录并加载全部快照，结果按标识符排序。
// 无法读取或结构不符的快照会被跳过并记录日志，不会导致启动失败。
func (m *Manager) ReadAll(ctx context.Context) ([]*domain.Dataset, error) {
	m.removeStaleTmp()

	files, err := filepath.Glob(filepath.Join(m.root, "*"+snapshotExt))
	if err != nil {
		return nil, fmt.Errorf("扫描快照目录 '%s' 失败: %w", m.root, err)
	}
	sort.Strings(files)
	m.logger.Info("开始加载快照", "dir", m.root, "files", len(files))

	loaded := make([]*domain.Dataset, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.loadParallelism)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ds, err := loadSnapshot(gctx, f)
			if err != nil {
				m.logger.Warn("快照无法加载，已跳过", "path", f, "error", err)
				return nil
			}
			loaded[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(loaded))
	out := make([]*domain.Dataset, 0, len(loaded))
	for i, ds := range loaded {
		if ds == nil {
			continue
		}
		if _, dup := seen[ds.ID]; dup {
			m.logger.Warn("快照标识符重复，已跳过", "dataset", ds.ID, "path", files[i])
			continue
		}
		seen[ds.ID] = struct{}{}
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	m.logger.Info("快照加载完成", "loaded", len(out), "skipped", len(files)-len(out))
	return out, nil
}

// removeStaleTmp 清理上次异常退出遗留的临时文件
func (m *Manager) removeStaleTmp() {
	stale, err := filepath.Glob(filepath.Join(m.root, "*"+tmpExt))
	if err != nil {
		return
	}
	for _, f := range stale {
		if err := os.Remove(f); err != nil {
			m.logger.Warn("清理遗留临时文件失败", "path", f, "error", err)
			continue
		}
		m.logger.Info("已清理遗留临时文件", "path", f)
	}
}

// loadSnapshot 读取单个快照文件：校验元信息与记录表结构，再按写入顺序读取记录。
func loadSnapshot(ctx context.Context, path string) (*domain.Dataset, error) {
	db, err := sql.Open("sqlite", openDSN(path))
	if err != nil {
		return nil, fmt.Errorf("sql.Open 失败: %w", err)
	}
	defer db.Close()

	tables, err := getTablesSet(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("读取表清单失败: %w", err)
	}
	if _, ok := tables[metaTable]; !ok {
		return nil, fmt.Errorf("缺少元信息表 '%s'", metaTable)
	}
	if _, ok := tables[recordsTable]; !ok {
		return nil, fmt.Errorf("缺少记录表 '%s'", recordsTable)
	}

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}
	id := meta["id"]
	if err := port.ValidateID(id); err != nil {
		return nil, err
	}
	kind, ok := domain.ParseKind(meta["kind"])
	if !ok {
		return nil, fmt.Errorf("未知的数据集类别 '%s'", meta["kind"])
	}
	sch, err := schema.For(kind)
	if err != nil {
		return nil, err
	}

	cols, err := listColumns(ctx, db, recordsTable)
	if err != nil {
		return nil, err
	}
	for _, f := range sch.Fields {
		typ, exists := cols[f.Name]
		if !exists {
			return nil, fmt.Errorf("记录表缺少字段 '%s'", f.Name)
		}
		if typ != sqlType(f.Type) {
			return nil, fmt.Errorf("字段 '%s' 的类型为 %s，期望 %s", f.Name, typ, sqlType(f.Type))
		}
	}

	records, err := readRecords(ctx, db, sch.Fields)
	if err != nil {
		return nil, err
	}
	if want, err := strconv.Atoi(meta["num_rows"]); err != nil || want != len(records) {
		return nil, fmt.Errorf("记录数与元信息不符: 元信息 '%s'，实际 %d", meta["num_rows"], len(records))
	}
	return &domain.Dataset{ID: id, Kind: kind, Records: records}, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT key, value FROM %q`, metaTable))
	if err != nil {
		return nil, fmt.Errorf("读取元信息失败: %w", err)
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("扫描元信息失败: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func readRecords(ctx context.Context, db *sql.DB, fields []schema.Field) ([]domain.Record, error) {
	query, err := buildSelectRecordsSQL(fields)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("读取记录失败: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	dest := make([]any, len(fields))
	for rows.Next() {
		nums := make([]sql.NullFloat64, len(fields))
		strs := make([]sql.NullString, len(fields))
		for i, f := range fields {
			if f.Type == domain.FieldNumber {
				dest[i] = &nums[i]
			} else {
				dest[i] = &strs[i]
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("扫描第 %d 条记录失败: %w", len(records), err)
		}
		rec := make(domain.Record, len(fields))
		for i, f := range fields {
			if f.Type == domain.FieldNumber {
				if !nums[i].Valid {
					return nil, fmt.Errorf("第 %d 条记录的字段 '%s' 为空", len(records), f.Name)
				}
				rec[f.Name] = domain.NumberValue(nums[i].Float64)
				continue
			}
			if !strs[i].Valid {
				return nil, fmt.Errorf("第 %d 条记录的字段 '%s' 为空", len(records), f.Name)
			}
			rec[f.Name] = domain.StringValue(strs[i].String)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
