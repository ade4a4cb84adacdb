// Package sqlite file: internal/adapter/snapshot/sqlite/helpers.go
package sqlite

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/dataset/schema"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	innerPrefix  = "_queryaegis_internal_"
	metaTable    = innerPrefix + "meta"
	recordsTable = "records"
	seqColumn    = "seq"
)

// sqlType 将字段类型映射为 SQLite 列类型
func sqlType(t domain.FieldType) string {
	if t == domain.FieldNumber {
		return "REAL"
	}
	return "TEXT"
}

// buildCreateRecordsSQL 根据 Schema 构建记录表的建表语句
func buildCreateRecordsSQL(fields []schema.Field) (string, error) {
	if len(fields) == 0 {
		return "", errors.New("字段列表不能为空 (buildCreateRecordsSQL)")
	}
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, fmt.Sprintf("%q INTEGER PRIMARY KEY", seqColumn))
	for _, f := range fields {
		cols = append(cols, fmt.Sprintf("%q %s NOT NULL", f.Name, sqlType(f.Type)))
	}
	return fmt.Sprintf("CREATE TABLE %q (%s)", recordsTable, strings.Join(cols, ", ")), nil
}

// buildInsertRecordSQL 构建插入一条记录的语句，参数顺序为 seq + 字段声明顺序
func buildInsertRecordSQL(fields []schema.Field) (string, error) {
	if len(fields) == 0 {
		return "", errors.New("字段列表不能为空 (buildInsertRecordSQL)")
	}
	cols := make([]string, 0, len(fields)+1)
	placeholders := make([]string, 0, len(fields)+1)
	cols = append(cols, fmt.Sprintf("%q", seqColumn))
	placeholders = append(placeholders, "?")
	for _, f := range fields {
		cols = append(cols, fmt.Sprintf("%q", f.Name))
		placeholders = append(placeholders, "?")
	}
	return fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", recordsTable, strings.Join(cols, ", "), strings.Join(placeholders, ", ")), nil
}

// buildSelectRecordsSQL 按写入顺序读取全部记录
func buildSelectRecordsSQL(fields []schema.Field) (string, error) {
	if len(fields) == 0 {
		return "", errors.New("字段列表不能为空 (buildSelectRecordsSQL)")
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = fmt.Sprintf("%q", f.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %q ORDER BY %q ASC", strings.Join(cols, ", "), recordsTable, seqColumn), nil
}

// getTablesSet 返回数据库中所有表的集合 (包含内部表)
func getTablesSet(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[string]struct{})
	for rows.Next() {
		var tbl string
		if err := rows.Scan(&tbl); err != nil {
			return nil, fmt.Errorf("getTablesSet 扫描表名失败: %w", err)
		}
		set[tbl] = struct{}{}
	}
	return set, rows.Err()
}

// listColumns 返回指定表的所有物理列名及其声明类型
func listColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, tableName))
	if err != nil {
		return nil, fmt.Errorf("PRAGMA table_info for table %q 失败: %w", tableName, err)
	}
	defer rows.Close()
	cols := make(map[string]string)
	for rows.Next() {
		var (
			cid       int
			colName   string
			colType   string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notnull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("listColumns for table '%s' 扫描列信息失败: %w", tableName, err)
		}
		cols[colName] = strings.ToUpper(colType)
	}
	return cols, rows.Err()
}
