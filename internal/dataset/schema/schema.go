// Package schema 定义每一类数据集的记录 Schema、字段类型以及归档布局约束。
package schema

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field 描述 Schema 中的一个字段
type Field struct {
	Name string
	Type domain.FieldType
}

// Unit 是归档中一个待解析的单元 (一个课程文件或一栋楼的房间页)。
// Attrs 携带从上级页面继承的属性。
type Unit struct {
	Path  string
	Attrs map[string]string
}

// layout 是某一类数据集在归档中的组织方式。
type layout interface {
	check(entries port.ArchiveEntries) error
	units(entries port.ArchiveEntries) ([]Unit, error)
	extract(u Unit, content string) ([]map[string]any, error)
}

// Schema 是某一类数据集的记录 Schema。
type Schema struct {
	Kind   domain.Kind
	Root   string
	Fields []Field

	types  map[string]domain.FieldType
	coerce func(raw map[string]any) (domain.Record, bool)
	layout layout
}

func newSchema(kind domain.Kind, root string, fields []Field, coerce func(map[string]any) (domain.Record, bool), l layout) *Schema {
	types := make(map[string]domain.FieldType, len(fields))
	for _, f := range fields {
		types[f.Name] = f.Type
	}
	return &Schema{Kind: kind, Root: root, Fields: fields, types: types, coerce: coerce, layout: l}
}

var registry = map[domain.Kind]*Schema{
	domain.KindCourses: coursesSchema,
	domain.KindRooms:   roomsSchema,
}

// For 返回指定类别的 Schema。
func For(kind domain.Kind) (*Schema, error) {
	s, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: 不支持的数据集类别 '%s'", port.ErrInvalidContent, kind)
	}
	return s, nil
}

// FieldType 返回字段类型，字段不存在时 ok 为 false。
func (s *Schema) FieldType(name string) (domain.FieldType, bool) {
	t, ok := s.types[name]
	return t, ok
}

// Has 判断字段是否存在
func (s *Schema) Has(name string) bool {
	_, ok := s.types[name]
	return ok
}

// FieldNames 按声明顺序返回字段名
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate 将一条原始记录转换为 Record；缺少必需字段或类型转换失败时返回 false。
// 纯函数，无副作用。
func (s *Schema) Validate(raw map[string]any) (domain.Record, bool) {
	if raw == nil {
		return nil, false
	}
	rec, ok := s.coerce(raw)
	if !ok {
		return nil, false
	}
	for _, f := range s.Fields {
		v, exists := rec[f.Name]
		if !exists || v.Type != f.Type {
			return nil, false
		}
	}
	return rec, true
}

// CheckLayout 检查归档布局前置条件，不满足时返回 port.ErrInvalidContent。
func (s *Schema) CheckLayout(entries port.ArchiveEntries) error {
	return s.layout.check(entries)
}

// Units 按确定性顺序返回归档中需要解析的单元。
func (s *Schema) Units(entries port.ArchiveEntries) ([]Unit, error) {
	return s.layout.units(entries)
}

// Extract 将一个单元解析为零或多条原始记录。
func (s *Schema) Extract(u Unit, content string) ([]map[string]any, error) {
	return s.layout.extract(u, content)
}

// asString 接受字符串或数字 (数字按最短十进制形式输出)
func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

// asNumber 接受数字或可解析为数字的字符串
func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
