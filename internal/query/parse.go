package query

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/dataset/schema"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SchemaLookup 按数据集标识符返回其类别与 Schema；标识符未注册时返回 port.ErrNotFound。
type SchemaLookup func(id string) (*schema.Schema, error)

// Normalize 将调用方传入的查询文档 (已解码的值、JSON 字节或 JSON 字符串) 统一解码，
// 并返回键有序的规范化 JSON 文本。
func Normalize(raw any) (any, string, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, "", fmt.Errorf("%w: 查询文档为空", port.ErrInvalidQuery)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("%w: 查询文档无法序列化: %v", port.ErrInvalidQuery, err)
		}
		data = b
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, "", fmt.Errorf("%w: 查询文档不是合法的 JSON: %v", port.ErrInvalidQuery, err)
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("%w: 查询文档后存在多余内容", port.ErrInvalidQuery)
	}

	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", port.ErrInvalidQuery, err)
	}
	return doc, string(canonical), nil
}

// Parse 校验查询文档并转换为强类型的 Query。
// 结构错误、字段或类型错误返回 port.ErrInvalidQuery；引用的数据集未注册时返回 lookup 给出的 port.ErrNotFound。
// 只读取查询文档本身，耗时与文档大小成正比。
func Parse(raw any, lookup SchemaLookup) (*Query, error) {
	doc, canonical, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	if err := validateStructure(doc); err != nil {
		return nil, err
	}

	top, _ := doc.(map[string]any)
	opts, _ := top["OPTIONS"].(map[string]any)
	where, ok := top["WHERE"].(map[string]any)
	if opts == nil || !ok {
		return nil, invalidf("WHERE 与 OPTIONS 必须是对象")
	}
	cols, _ := opts["COLUMNS"].([]any)
	if len(cols) == 0 {
		return nil, invalidf("COLUMNS 不能为空")
	}

	// 数据集由第一个输出列决定，其余键都必须引用同一个数据集
	first, _ := cols[0].(string)
	id, _, ok := splitKey(first)
	if !ok {
		return nil, invalidf("键 '%s' 不符合 <id>_<field> 格式", first)
	}
	sch, err := lookup(id)
	if err != nil {
		return nil, err
	}
	if sch == nil {
		return nil, fmt.Errorf("%w: '%s'", port.ErrNotFound, id)
	}

	p := &parser{id: id, schema: sch}
	q := &Query{DatasetID: id, Kind: sch.Kind, Canonical: canonical}

	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		key, _ := c.(string)
		if _, _, err := p.field(key); err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			return nil, invalidf("COLUMNS 中的键 '%s' 重复", key)
		}
		seen[key] = struct{}{}
		q.Columns = append(q.Columns, key)
	}

	if len(where) == 0 {
		q.Where = MatchAll{}
	} else if q.Where, err = p.filter(where); err != nil {
		return nil, err
	}

	if q.Order, err = parseOrder(opts["ORDER"], seen); err != nil {
		return nil, err
	}
	return q, nil
}

// parseOrder 解析 ORDER；排序键必须出现在 COLUMNS 中。
func parseOrder(raw any, columns map[string]struct{}) (*Order, error) {
	var order *Order
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		order = &Order{Dir: DirUp, Keys: []string{v}}
	case map[string]any:
		dir, _ := v["dir"].(string)
		keys, _ := v["keys"].([]any)
		if dir != string(DirUp) && dir != string(DirDown) {
			return nil, invalidf("ORDER.dir 必须是 UP 或 DOWN")
		}
		if len(keys) == 0 {
			return nil, invalidf("ORDER.keys 不能为空")
		}
		order = &Order{Dir: Direction(dir)}
		for _, k := range keys {
			key, ok := k.(string)
			if !ok {
				return nil, invalidf("ORDER.keys 只能包含字符串")
			}
			order.Keys = append(order.Keys, key)
		}
	default:
		return nil, invalidf("ORDER 必须是字符串或对象")
	}

	for _, k := range order.Keys {
		if _, ok := columns[k]; !ok {
			return nil, invalidf("排序键 '%s' 不在 COLUMNS 中", k)
		}
	}
	return order, nil
}

type parser struct {
	id     string
	schema *schema.Schema
}

// field 校验键的数据集前缀与字段，返回字段名与类型。
func (p *parser) field(key string) (string, domain.FieldType, error) {
	id, field, ok := splitKey(key)
	if !ok {
		return "", "", invalidf("键 '%s' 不符合 <id>_<field> 格式", key)
	}
	if id != p.id {
		return "", "", invalidf("查询只能引用一个数据集，却同时引用了 '%s' 与 '%s'", p.id, id)
	}
	typ, ok := p.schema.FieldType(field)
	if !ok {
		return "", "", invalidf("数据集类别 '%s' 中不存在字段 '%s'", p.schema.Kind, field)
	}
	return field, typ, nil
}

func (p *parser) filter(raw any) (Node, error) {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) != 1 {
		return nil, invalidf("过滤条件必须是只有一个键的对象")
	}
	for op, body := range obj {
		switch op {
		case "AND", "OR":
			list, ok := body.([]any)
			if !ok || len(list) == 0 {
				return nil, invalidf("%s 必须是非空数组", op)
			}
			children := make([]Node, 0, len(list))
			for _, item := range list {
				child, err := p.filter(item)
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
			if op == "AND" {
				return &And{Children: children}, nil
			}
			return &Or{Children: children}, nil

		case "NOT":
			child, err := p.filter(body)
			if err != nil {
				return nil, err
			}
			return &Not{Child: child}, nil

		case "LT", "GT", "EQ":
			key, val, err := singleEntry(op, body)
			if err != nil {
				return nil, err
			}
			field, typ, err := p.field(key)
			if err != nil {
				return nil, err
			}
			if typ != domain.FieldNumber {
				return nil, invalidf("%s 只能用于数值字段，'%s' 是字符串字段", op, key)
			}
			num, ok := toNumber(val)
			if !ok {
				return nil, invalidf("%s 的比较值必须是数字", op)
			}
			return &Comparison{Key: key, Field: field, Op: Op(op), Value: num}, nil

		case "IS":
			key, val, err := singleEntry(op, body)
			if err != nil {
				return nil, err
			}
			field, typ, err := p.field(key)
			if err != nil {
				return nil, err
			}
			if typ != domain.FieldString {
				return nil, invalidf("IS 只能用于字符串字段，'%s' 是数值字段", key)
			}
			pattern, ok := val.(string)
			if !ok {
				return nil, invalidf("IS 的匹配值必须是字符串")
			}
			node, ok := newStringMatch(key, field, pattern)
			if !ok {
				return nil, invalidf("通配符 '*' 只能出现在模式 '%s' 的首尾", pattern)
			}
			return node, nil
		}
		return nil, invalidf("未知的过滤运算符 '%s'", op)
	}
	return nil, invalidf("过滤条件为空")
}

func singleEntry(op string, body any) (string, any, error) {
	obj, ok := body.(map[string]any)
	if !ok || len(obj) != 1 {
		return "", nil, invalidf("%s 必须是只有一个键的对象", op)
	}
	for k, v := range obj {
		return k, v, nil
	}
	return "", nil, invalidf("%s 为空", op)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	}
	return 0, false
}

// splitKey 在第一个下划线处切分 "<id>_<field>"；标识符本身不含下划线。
func splitKey(key string) (id, field string, ok bool) {
	i := strings.IndexByte(key, '_')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", port.ErrInvalidQuery, fmt.Sprintf(format, args...))
}
