// Package query 解析并执行声明式的数据集查询 (WHERE / OPTIONS)。
package query

import (
	"QueryAegis/internal/core/domain"
	"strings"
)

// truth 是三值逻辑：记录缺少字段或类型不符时谓词结果为 unknown，
// unknown 在最终结果中按不匹配处理。
type truth int8

const (
	unknown truth = iota
	no
	yes
)

func truthOf(b bool) truth {
	if b {
		return yes
	}
	return no
}

// Node 是谓词树中的一个节点。
type Node interface {
	eval(rec domain.Record) truth
	// visit 依次回调树中引用的每个字段 (不带数据集前缀) 及其要求的类型
	visit(fn func(field string, typ domain.FieldType))
}

// MatchAll 对应空的 WHERE，匹配所有记录。
type MatchAll struct{}

// And 所有子节点为真时为真
type And struct{ Children []Node }

// Or 任一子节点为真时为真
type Or struct{ Children []Node }

// Not 对子节点取反
type Not struct{ Child Node }

// Op 数值比较运算符
type Op string

const (
	OpLT Op = "LT"
	OpGT Op = "GT"
	OpEQ Op = "EQ"
)

// Comparison 数值字段与常量比较
type Comparison struct {
	Key   string // 带前缀的键，如 "courses_avg"
	Field string
	Op    Op
	Value float64
}

// StringMatch 字符串字段匹配，通配符 '*' 只能出现在首尾。
type StringMatch struct {
	Key     string
	Field   string
	Pattern string

	literal string
	prefix  bool // 模式以 '*' 开头
	suffix  bool // 模式以 '*' 结尾
}

func (MatchAll) eval(domain.Record) truth             { return yes }
func (MatchAll) visit(func(string, domain.FieldType)) {}

func (n *Not) visit(fn func(string, domain.FieldType)) { n.Child.visit(fn) }

func (n *Comparison) visit(fn func(string, domain.FieldType)) { fn(n.Field, domain.FieldNumber) }

func (n *StringMatch) visit(fn func(string, domain.FieldType)) { fn(n.Field, domain.FieldString) }

func (n *And) eval(rec domain.Record) truth {
	out := yes
	for _, c := range n.Children {
		switch c.eval(rec) {
		case no:
			return no
		case unknown:
			out = unknown
		}
	}
	return out
}

func (n *And) visit(fn func(string, domain.FieldType)) {
	for _, c := range n.Children {
		c.visit(fn)
	}
}

func (n *Or) eval(rec domain.Record) truth {
	out := no
	for _, c := range n.Children {
		switch c.eval(rec) {
		case yes:
			return yes
		case unknown:
			out = unknown
		}
	}
	return out
}

func (n *Or) visit(fn func(string, domain.FieldType)) {
	for _, c := range n.Children {
		c.visit(fn)
	}
}

func (n *Not) eval(rec domain.Record) truth {
	switch n.Child.eval(rec) {
	case yes:
		return no
	case no:
		return yes
	}
	return unknown
}

func (n *Comparison) eval(rec domain.Record) truth {
	v, ok := rec[n.Field]
	if !ok || v.Type != domain.FieldNumber {
		return unknown
	}
	switch n.Op {
	case OpLT:
		return truthOf(v.Num < n.Value)
	case OpGT:
		return truthOf(v.Num > n.Value)
	case OpEQ:
		return truthOf(v.Num == n.Value)
	}
	return unknown
}

func (n *StringMatch) eval(rec domain.Record) truth {
	v, ok := rec[n.Field]
	if !ok || v.Type != domain.FieldString {
		return unknown
	}
	return truthOf(n.match(v.Str))
}

func (n *StringMatch) match(s string) bool {
	switch {
	case n.prefix && n.suffix:
		return strings.Contains(s, n.literal)
	case n.prefix:
		return strings.HasSuffix(s, n.literal)
	case n.suffix:
		return strings.HasPrefix(s, n.literal)
	}
	return s == n.literal
}

// newStringMatch 解析通配符模式；中间出现 '*' 时 ok 为 false。
func newStringMatch(key, field, pattern string) (*StringMatch, bool) {
	n := &StringMatch{Key: key, Field: field, Pattern: pattern}
	lit := pattern
	if strings.HasPrefix(lit, "*") {
		n.prefix = true
		lit = lit[1:]
	}
	if strings.HasSuffix(lit, "*") {
		n.suffix = true
		lit = lit[:len(lit)-1]
	}
	if strings.Contains(lit, "*") {
		return nil, false
	}
	n.literal = lit
	return n, true
}

// Direction 排序方向
type Direction string

const (
	DirUp   Direction = "UP"
	DirDown Direction = "DOWN"
)

// Order 排序说明，Keys 均为 COLUMNS 中的键。
type Order struct {
	Dir  Direction
	Keys []string
}

// Query 是经过校验的强类型查询。
type Query struct {
	DatasetID string
	Kind      domain.Kind
	Where     Node
	Columns   []string // 带前缀的键，输出顺序
	Order     *Order

	// Canonical 是查询文档的规范化 JSON，用作缓存键
	Canonical string
}

// fieldOf 去掉键的数据集前缀
func (q *Query) fieldOf(key string) string {
	return strings.TrimPrefix(key, q.DatasetID+"_")
}
