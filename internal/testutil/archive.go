// Package testutil 提供测试共用的归档构造工具。
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// Zip 将 path -> content 按路径排序后打包成 zip 字节。
func Zip(t testing.TB, files map[string]string) []byte {
	t.Helper()
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range paths {
		w, err := zw.Create(p)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[p]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// Section 是一条课程 section 的原始记录。
type Section struct {
	Dept       string
	Course     string
	Title      string
	Instructor string
	Avg        float64
	Pass       int
	Fail       int
	Audit      int
	UUID       int
	Year       string
	Section    string
}

// Raw 返回与真实归档一致的键名。
func (s Section) Raw() map[string]any {
	sec := s.Section
	if sec == "" {
		sec = "101"
	}
	return map[string]any{
		"Subject":   s.Dept,
		"Course":    s.Course,
		"Title":     s.Title,
		"Professor": s.Instructor,
		"Avg":       s.Avg,
		"Pass":      s.Pass,
		"Fail":      s.Fail,
		"Audit":     s.Audit,
		"id":        s.UUID,
		"Year":      s.Year,
		"Section":   sec,
	}
}

// CourseFile 生成一个课程文件的 JSON 文本，extra 中的原始记录追加在 sections 之后。
func CourseFile(t testing.TB, sections []Section, extra ...map[string]any) string {
	t.Helper()
	result := make([]map[string]any, 0, len(sections)+len(extra))
	for _, s := range sections {
		result = append(result, s.Raw())
	}
	result = append(result, extra...)
	data, err := json.Marshal(map[string]any{"result": result, "rank": 0})
	require.NoError(t, err)
	return string(data)
}

// CoursesArchive 将 文件名 -> sections 打包到 courses/ 目录下。
func CoursesArchive(t testing.TB, files map[string][]Section) []byte {
	t.Helper()
	entries := make(map[string]string, len(files))
	for name, sections := range files {
		entries["courses/"+name] = CourseFile(t, sections)
	}
	return Zip(t, entries)
}

// SampleSections 一组覆盖常见查询场景的课程记录。
func SampleSections() []Section {
	return []Section{
		{Dept: "cpsc", Course: "310", Title: "intro sw eng", Instructor: "holmes, reid", Avg: 78.5, Pass: 120, Fail: 5, Audit: 1, UUID: 1001, Year: "2015"},
		{Dept: "cpsc", Course: "310", Title: "intro sw eng", Instructor: "", Avg: 80.1, Pass: 300, Fail: 10, Audit: 0, UUID: 1002, Year: "2015", Section: "overall"},
		{Dept: "cpsc", Course: "110", Title: "comptn, progrmng", Instructor: "kiczales, gregor", Avg: 72.3, Pass: 200, Fail: 40, Audit: 2, UUID: 1003, Year: "2014"},
		{Dept: "math", Course: "100", Title: "diff calculus", Instructor: "smith, j", Avg: 66.2, Pass: 150, Fail: 30, Audit: 0, UUID: 2001, Year: "2016"},
		{Dept: "math", Course: "221", Title: "matrix algebra", Instructor: "lee, a", Avg: 78.5, Pass: 90, Fail: 12, Audit: 3, UUID: 2002, Year: "2013"},
		{Dept: "anth", Course: "100", Title: "intro anth", Instructor: "wong, k", Avg: 97.25, Pass: 40, Fail: 0, Audit: 0, UUID: 3001, Year: "2016"},
	}
}

// SampleCoursesArchive 包含 SampleSections 以及一条缺字段的无效记录和一个非 JSON 文件。
func SampleCoursesArchive(t testing.TB) []byte {
	t.Helper()
	all := SampleSections()
	return Zip(t, map[string]string{
		"courses/CPSC310": CourseFile(t, all[:2]),
		"courses/CPSC110": CourseFile(t, all[2:3], map[string]any{"Subject": "cpsc", "Course": "999"}),
		"courses/MATH":    CourseFile(t, all[3:5]),
		"courses/ANTH100": CourseFile(t, all[5:]),
		"courses/README":  "not json",
	})
}

// RoomsIndexHTML 是一个最小化的楼宇索引页。
const RoomsIndexHTML = `<html><body>
<table class="views-table">
<thead><tr><th>Code</th><th>Building</th><th>Address</th></tr></thead>
<tbody>
<tr>
  <td class="views-field views-field-field-building-code"> ACU </td>
  <td class="views-field views-field-title"><a href="./campus/discover/buildings-and-classrooms/ACU.htm" title="Building Details and Map">Acute Care Unit</a></td>
  <td class="views-field views-field-field-building-address"> 2211 Wesbrook Mall </td>
</tr>
<tr>
  <td class="views-field views-field-field-building-code">DMP</td>
  <td class="views-field views-field-title"><a href="./campus/discover/buildings-and-classrooms/DMP.htm">Hugh Dempster Pavilion</a></td>
  <td class="views-field views-field-field-building-address">6245 Agronomy Road V6T 1Z4</td>
</tr>
<tr>
  <td class="views-field views-field-field-building-code">GONE</td>
  <td class="views-field views-field-title"><a href="./campus/discover/buildings-and-classrooms/GONE.htm">Missing Building</a></td>
  <td class="views-field views-field-field-building-address">nowhere</td>
</tr>
</tbody>
</table>
</body></html>`

// RoomsACUHTML 楼宇 ACU 的房间页
const RoomsACUHTML = `<html><body><div class="view-content">
<table class="views-table"><tbody>
<tr>
  <td class="views-field views-field-field-room-number"><a href="http://students.ubc.ca/campus/discover/buildings-and-classrooms/room/ACU-101">101</a></td>
  <td class="views-field views-field-field-room-capacity"> 30 </td>
  <td class="views-field views-field-field-room-furniture">Classroom-Movable Tables &amp; Chairs</td>
  <td class="views-field views-field-field-room-type">Small Group</td>
</tr>
<tr>
  <td class="views-field views-field-field-room-number"><a href="http://students.ubc.ca/campus/discover/buildings-and-classrooms/room/ACU-201">201</a></td>
  <td class="views-field views-field-field-room-capacity"></td>
  <td class="views-field views-field-field-room-furniture">Classroom-Fixed Tablets</td>
  <td class="views-field views-field-field-room-type">Case Style</td>
</tr>
</tbody></table></div></body></html>`

// RoomsDMPHTML 楼宇 DMP 的房间页，含一行缺少房间号的无效记录
const RoomsDMPHTML = `<html><body>
<table><tbody>
<tr>
  <td class="views-field views-field-field-room-number"><a href="http://students.ubc.ca/campus/discover/buildings-and-classrooms/room/DMP-110">110</a></td>
  <td class="views-field views-field-field-room-capacity">120</td>
  <td class="views-field views-field-field-room-furniture">Classroom-Fixed Tables/Movable Chairs</td>
  <td class="views-field views-field-field-room-type">Tiered Large Group</td>
</tr>
<tr>
  <td class="views-field views-field-field-room-number"></td>
  <td class="views-field views-field-field-room-capacity">10</td>
  <td class="views-field views-field-field-room-furniture">x</td>
  <td class="views-field views-field-field-room-type">y</td>
</tr>
</tbody></table></body></html>`

// RoomsArchive 返回包含 3 个有效房间的 rooms 归档。
func RoomsArchive(t testing.TB) []byte {
	t.Helper()
	return Zip(t, map[string]string{
		"rooms/index.htm": RoomsIndexHTML,
		"rooms/campus/discover/buildings-and-classrooms/ACU.htm": RoomsACUHTML,
		"rooms/campus/discover/buildings-and-classrooms/DMP.htm": RoomsDMPHTML,
	})
}
