// Package sqlite file: internal/adapter/snapshot/sqlite/db_ops.go
package sqlite

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/dataset/schema"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

const formatVersion = "1"

// snapshotFileName 把标识符转换为安全的文件名；标识符本身保存在元信息表中。
func snapshotFileName(id string) string {
	return url.PathEscape(id) + snapshotExt
}

// openDSN 构造 modernc sqlite 的连接串
func openDSN(path string) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(5000)", path)
}

// Write 先写入同目录下的临时文件，成功后原子地重命名为正式快照。
// 任何一步失败都会清理临时文件，已有快照保持不变。
func (m *Manager) Write(ctx context.Context, ds *domain.Dataset) (err error) {
	if ds == nil {
		return errors.New("数据集不能为空")
	}
	sch, err := schema.For(ds.Kind)
	if err != nil {
		return err
	}

	tmp := filepath.Join(m.root, uuid.NewString()+tmpExt)
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
				m.logger.Warn("清理临时快照失败", "path", tmp, "error", rmErr)
			}
		}
	}()

	if err = writeSnapshotFile(ctx, tmp, ds, sch.Fields); err != nil {
		return fmt.Errorf("写入数据集 '%s' 的快照失败: %w", ds.ID, err)
	}

	final := filepath.Join(m.root, snapshotFileName(ds.ID))
	if err = os.Rename(tmp, final); err != nil {
		return fmt.Errorf("重命名快照 '%s' -> '%s' 失败: %w", tmp, final, err)
	}

	m.logger.Info("快照已写入", "dataset", ds.ID, "kind", ds.Kind, "rows", len(ds.Records), "path", final)
	return nil
}

// writeSnapshotFile 在单个事务中创建表结构并写入全部记录
func writeSnapshotFile(ctx context.Context, path string, ds *domain.Dataset, fields []schema.Field) error {
	db, err := sql.Open("sqlite", openDSN(path))
	if err != nil {
		return fmt.Errorf("sql.Open '%s' 失败: %w", path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	createSQL, err := buildCreateRecordsSQL(fields)
	if err != nil {
		return err
	}
	insertSQL, err := buildInsertRecordSQL(fields)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %q (key TEXT PRIMARY KEY, value TEXT NOT NULL)`, metaTable)); err != nil {
		return fmt.Errorf("创建元信息表失败: %w", err)
	}
	meta := [][2]string{
		{"id", ds.ID},
		{"kind", string(ds.Kind)},
		{"num_rows", strconv.Itoa(len(ds.Records))},
		{"format_version", formatVersion},
	}
	for _, kv := range meta {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %q (key, value) VALUES (?, ?)`, metaTable), kv[0], kv[1]); err != nil {
			return fmt.Errorf("写入元信息 '%s' 失败: %w", kv[0], err)
		}
	}

	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("创建记录表失败: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("预编译插入语句失败: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(fields)+1)
	for i, rec := range ds.Records {
		args[0] = i
		for j, f := range fields {
			v, ok := rec[f.Name]
			if !ok || v.Type != f.Type {
				return fmt.Errorf("第 %d 条记录的字段 '%s' 缺失或类型不符", i, f.Name)
			}
			args[j+1] = v.Interface()
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("插入第 %d 条记录失败: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// Delete 删除快照文件。快照本就不存在时只记录日志，不视为错误。
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(m.root, snapshotFileName(id))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("快照不存在，无需删除", "dataset", id, "path", path)
			return nil
		}
		return fmt.Errorf("删除数据集 '%s' 的快照失败: %w", id, err)
	}
	m.logger.Info("快照已删除", "dataset", id, "path", path)
	return nil
}
