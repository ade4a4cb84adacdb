// Package domain file: internal/core/domain/dataset_models.go
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind 是数据集的类别，决定了其记录所遵循的 Schema。
type Kind string

const (
	KindCourses Kind = "courses"
	KindRooms   Kind = "rooms"
)

// Kinds 返回所有受支持的数据集类别。
func Kinds() []Kind {
	return []Kind{KindCourses, KindRooms}
}

// Valid 判断类别是否属于封闭的枚举集合。
func (k Kind) Valid() bool {
	switch k {
	case KindCourses, KindRooms:
		return true
	}
	return false
}

// ParseKind 将字符串 (大小写不敏感) 解析为 Kind。
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	return k, k.Valid()
}

// FieldType 字段的值类型
type FieldType string

const (
	FieldNumber FieldType = "number"
	FieldString FieldType = "string"
)

// Value 是记录中的一个带类型的标量值。
type Value struct {
	Type FieldType
	Num  float64
	Str  string
}

func NumberValue(f float64) Value { return Value{Type: FieldNumber, Num: f} }
func StringValue(s string) Value  { return Value{Type: FieldString, Str: s} }

// Interface 返回值的 Go 原生表示 (float64 或 string)。
func (v Value) Interface() any {
	if v.Type == FieldNumber {
		return v.Num
	}
	return v.Str
}

func (v Value) String() string {
	if v.Type == FieldNumber {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}

// MarshalJSON 数字按 JSON number 输出，字符串按 JSON string 输出。
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Type == FieldNumber {
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return nil, fmt.Errorf("无法序列化非有限数值: %v", v.Num)
		}
		return []byte(strconv.FormatFloat(v.Num, 'f', -1, 64)), nil
	}
	return json.Marshal(v.Str)
}

// CompareValues 返回 -1/0/1。数字按数值比较，字符串按字节序比较；
// 类型不同时数字排在字符串之前。
func CompareValues(a, b Value) int {
	if a.Type != b.Type {
		if a.Type == FieldNumber {
			return -1
		}
		return 1
	}
	if a.Type == FieldNumber {
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	}
	return strings.Compare(a.Str, b.Str)
}

// Record 是数据集中一条经过校验的记录，键为不带数据集前缀的字段名 (如 "avg")。
type Record map[string]Value

// Dataset 是一个命名的、不可变的、有序的记录集合。
type Dataset struct {
	ID      string
	Kind    Kind
	Records []Record
}

// Meta 返回数据集的元信息。
func (d *Dataset) Meta() DatasetMeta {
	return DatasetMeta{ID: d.ID, Kind: d.Kind, NumRows: len(d.Records)}
}

// DatasetMeta 描述数据集但不暴露记录本身。
type DatasetMeta struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	NumRows int    `json:"numRows"`
}

// Cell 是结果行中的一列。
type Cell struct {
	Key   string
	Value Value
}

// Row 是一条投影后的结果行，列顺序与查询的 COLUMNS 一致。
type Row []Cell

// Get 按列名取值
func (r Row) Get(key string) (Value, bool) {
	for _, c := range r {
		if c.Key == key {
			return c.Value, true
		}
	}
	return Value{}, false
}

// Map 将结果行转为普通 map，便于调用方消费。
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r))
	for _, c := range r {
		out[c.Key] = c.Value.Interface()
	}
	return out
}

// Clone 返回结果行的副本。
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// MarshalJSON 以 COLUMNS 的顺序输出 JSON 对象。
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := c.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
