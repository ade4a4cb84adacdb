package schema

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const coursesRoot = "courses/"

// overallYear 是 "overall" 汇总 section 的年份
const overallYear = 1900

// courseSource 字段与课程文件中原始键名的对应关系
var courseSource = []struct {
	field  string
	source string
	typ    domain.FieldType
}{
	{"dept", "Subject", domain.FieldString},
	{"id", "Course", domain.FieldString},
	{"avg", "Avg", domain.FieldNumber},
	{"instructor", "Professor", domain.FieldString},
	{"title", "Title", domain.FieldString},
	{"pass", "Pass", domain.FieldNumber},
	{"fail", "Fail", domain.FieldNumber},
	{"audit", "Audit", domain.FieldNumber},
	{"uuid", "id", domain.FieldString},
	{"year", "Year", domain.FieldNumber},
}

var coursesSchema = newSchema(domain.KindCourses, coursesRoot, courseFields(), coerceCourse, coursesLayout{})

func courseFields() []Field {
	fields := make([]Field, len(courseSource))
	for i, m := range courseSource {
		fields[i] = Field{Name: m.field, Type: m.typ}
	}
	return fields
}

func coerceCourse(raw map[string]any) (domain.Record, bool) {
	rec := make(domain.Record, len(courseSource))
	for _, m := range courseSource {
		v, ok := raw[m.source]
		if !ok || v == nil {
			return nil, false
		}
		switch m.typ {
		case domain.FieldString:
			s, ok := asString(v)
			if !ok {
				return nil, false
			}
			rec[m.field] = domain.StringValue(s)
		case domain.FieldNumber:
			n, ok := asNumber(v)
			if !ok {
				return nil, false
			}
			rec[m.field] = domain.NumberValue(n)
		}
	}
	if section, _ := raw["Section"].(string); section == "overall" {
		rec["year"] = domain.NumberValue(overallYear)
	}
	return rec, true
}

type coursesLayout struct{}

func (coursesLayout) check(entries port.ArchiveEntries) error {
	for p := range entries {
		if strings.HasPrefix(p, coursesRoot) {
			return nil
		}
	}
	return fmt.Errorf("%w: 归档中缺少 '%s' 根目录", port.ErrInvalidDataset, coursesRoot)
}

func (coursesLayout) units(entries port.ArchiveEntries) ([]Unit, error) {
	var units []Unit
	for p := range entries {
		if strings.HasPrefix(p, coursesRoot) {
			units = append(units, Unit{Path: p})
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Path < units[j].Path })
	return units, nil
}

// courseFile 是单个课程文件的结构，一个文件对应一门课程的多个 section。
type courseFile struct {
	Result []json.RawMessage `json:"result"`
}

func (coursesLayout) extract(_ Unit, content string) ([]map[string]any, error) {
	var cf courseFile
	if err := json.Unmarshal([]byte(content), &cf); err != nil {
		return nil, fmt.Errorf("解析课程文件失败: %w", err)
	}
	if cf.Result == nil {
		return nil, errors.New("课程文件缺少 'result' 字段")
	}
	raws := make([]map[string]any, 0, len(cf.Result))
	for _, item := range cf.Result {
		var section map[string]any
		if err := json.Unmarshal(item, &section); err != nil {
			// 非对象的 section 以 nil 交给 Validate 拒绝
			section = nil
		}
		raws = append(raws, section)
	}
	return raws, nil
}
