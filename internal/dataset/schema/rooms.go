package schema

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"fmt"
	"path"
	"strings"

	"golang.org/x/net/html"
)

const (
	roomsRoot  = "rooms/"
	roomsIndex = "rooms/index.htm"

	classBuildingCode    = "views-field-field-building-code"
	classBuildingTitle   = "views-field-title"
	classBuildingAddress = "views-field-field-building-address"
	classRoomNumber      = "views-field-field-room-number"
	classRoomCapacity    = "views-field-field-room-capacity"
	classRoomFurniture   = "views-field-field-room-furniture"
	classRoomType        = "views-field-field-room-type"
)

var roomsSchema = newSchema(domain.KindRooms, roomsRoot, []Field{
	{Name: "fullname", Type: domain.FieldString},
	{Name: "shortname", Type: domain.FieldString},
	{Name: "number", Type: domain.FieldString},
	{Name: "name", Type: domain.FieldString},
	{Name: "address", Type: domain.FieldString},
	{Name: "seats", Type: domain.FieldNumber},
	{Name: "type", Type: domain.FieldString},
	{Name: "furniture", Type: domain.FieldString},
	{Name: "href", Type: domain.FieldString},
}, coerceRoom, roomsLayout{})

func coerceRoom(raw map[string]any) (domain.Record, bool) {
	rec := make(domain.Record, 9)
	for _, key := range []string{"fullname", "shortname", "number", "address", "type", "furniture", "href"} {
		s, ok := raw[key].(string)
		if !ok {
			return nil, false
		}
		rec[key] = domain.StringValue(s)
	}
	if rec["shortname"].Str == "" || rec["number"].Str == "" || rec["href"].Str == "" {
		return nil, false
	}
	rec["name"] = domain.StringValue(rec["shortname"].Str + "_" + rec["number"].Str)

	seats := 0.0
	if s, _ := raw["seats"].(string); strings.TrimSpace(s) != "" {
		n, ok := asNumber(s)
		if !ok {
			return nil, false
		}
		seats = n
	}
	rec["seats"] = domain.NumberValue(seats)
	return rec, true
}

type roomsLayout struct{}

func (roomsLayout) check(entries port.ArchiveEntries) error {
	if _, ok := entries[roomsIndex]; !ok {
		return fmt.Errorf("%w: 归档中缺少 '%s'", port.ErrInvalidDataset, roomsIndex)
	}
	return nil
}

// units 解析索引页，每栋楼宇对应一个单元，顺序与索引页一致。
func (roomsLayout) units(entries port.ArchiveEntries) ([]Unit, error) {
	doc, err := html.Parse(strings.NewReader(entries[roomsIndex]))
	if err != nil {
		return nil, fmt.Errorf("%w: 解析楼宇索引页失败: %v", port.ErrInvalidDataset, err)
	}

	var units []Unit
	for _, cells := range tableRows(doc) {
		code, okCode := cells[classBuildingCode]
		title, okTitle := cells[classBuildingTitle]
		if !okCode || !okTitle {
			continue
		}
		href := linkHref(title)
		if href == "" {
			continue
		}
		units = append(units, Unit{
			Path: path.Join(roomsRoot, href),
			Attrs: map[string]string{
				"shortname": textOf(code),
				"fullname":  textOf(title),
				"address":   textOf(cells[classBuildingAddress]),
			},
		})
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: 楼宇索引页中没有任何楼宇", port.ErrInvalidDataset)
	}
	return units, nil
}

func (roomsLayout) extract(u Unit, content string) ([]map[string]any, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("解析楼宇页面 '%s' 失败: %w", u.Path, err)
	}

	var raws []map[string]any
	for _, cells := range tableRows(doc) {
		numberCell, ok := cells[classRoomNumber]
		if !ok {
			continue
		}
		raw := map[string]any{
			"number":    textOf(numberCell),
			"href":      linkHref(numberCell),
			"seats":     textOf(cells[classRoomCapacity]),
			"furniture": textOf(cells[classRoomFurniture]),
			"type":      textOf(cells[classRoomType]),
		}
		for k, v := range u.Attrs {
			raw[k] = v
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// tableRows 遍历文档中所有 <tr>，返回 "views-field-* class -> <td>" 的映射。
func tableRows(doc *html.Node) []map[string]*html.Node {
	var rows []map[string]*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			cells := make(map[string]*html.Node)
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode || c.Data != "td" {
					continue
				}
				for _, class := range strings.Fields(attr(c, "class")) {
					if strings.HasPrefix(class, "views-field-") {
						cells[class] = c
					}
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf 返回节点内全部文本，空白折叠并去除首尾空白。
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// linkHref 返回节点内第一个 <a> 的 href
func linkHref(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.ElementNode && n.Data == "a" {
		return strings.TrimSpace(attr(n, "href"))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if h := linkHref(c); h != "" {
			return h
		}
	}
	return ""
}
