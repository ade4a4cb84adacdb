package schema

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/testutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	s, err := For(domain.KindCourses)
	require.NoError(t, err)
	assert.Equal(t, []string{"dept", "id", "avg", "instructor", "title", "pass", "fail", "audit", "uuid", "year"}, s.FieldNames())

	typ, ok := s.FieldType("avg")
	assert.True(t, ok)
	assert.Equal(t, domain.FieldNumber, typ)
	assert.False(t, s.Has("seats"))

	_, err = For(domain.Kind("buildings"))
	assert.ErrorIs(t, err, port.ErrInvalidContent)
}

func TestCoursesValidate(t *testing.T) {
	s, err := For(domain.KindCourses)
	require.NoError(t, err)

	t.Run("happy path", func(t *testing.T) {
		raw := testutil.SampleSections()[0].Raw()
		rec, ok := s.Validate(raw)
		require.True(t, ok)
		assert.Equal(t, domain.StringValue("cpsc"), rec["dept"])
		assert.Equal(t, domain.StringValue("310"), rec["id"])
		assert.Equal(t, domain.NumberValue(78.5), rec["avg"])
		assert.Equal(t, domain.StringValue("1001"), rec["uuid"])
		assert.Equal(t, domain.NumberValue(2015), rec["year"])
		assert.Len(t, rec, 10)
	})

	t.Run("overall section has year 1900", func(t *testing.T) {
		raw := testutil.SampleSections()[1].Raw()
		rec, ok := s.Validate(raw)
		require.True(t, ok)
		assert.Equal(t, domain.NumberValue(1900), rec["year"])
	})

	t.Run("numeric year and string uuid", func(t *testing.T) {
		raw := testutil.SampleSections()[0].Raw()
		raw["Year"] = float64(2010)
		raw["id"] = "abc"
		rec, ok := s.Validate(raw)
		require.True(t, ok)
		assert.Equal(t, domain.NumberValue(2010), rec["year"])
		assert.Equal(t, domain.StringValue("abc"), rec["uuid"])
	})

	t.Run("missing key is invalid", func(t *testing.T) {
		raw := testutil.SampleSections()[0].Raw()
		delete(raw, "Professor")
		_, ok := s.Validate(raw)
		assert.False(t, ok)
	})

	t.Run("failed coercion is invalid", func(t *testing.T) {
		raw := testutil.SampleSections()[0].Raw()
		raw["Avg"] = "eighty"
		_, ok := s.Validate(raw)
		assert.False(t, ok)

		raw = testutil.SampleSections()[0].Raw()
		raw["Title"] = nil
		_, ok = s.Validate(raw)
		assert.False(t, ok)
	})

	t.Run("nil raw is invalid", func(t *testing.T) {
		_, ok := s.Validate(nil)
		assert.False(t, ok)
	})
}

func TestCoursesLayout(t *testing.T) {
	s, err := For(domain.KindCourses)
	require.NoError(t, err)

	assert.ErrorIs(t, s.CheckLayout(port.ArchiveEntries{"other/A": "{}"}), port.ErrInvalidDataset)
	require.NoError(t, s.CheckLayout(port.ArchiveEntries{"courses/A": "{}"}))

	units, err := s.Units(port.ArchiveEntries{"courses/B": "", "courses/A": "", "x/C": ""})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "courses/A", units[0].Path)
	assert.Equal(t, "courses/B", units[1].Path)

	raws, err := s.Extract(units[0], `{"result":[{"a":1}, 3, {"b":2}]}`)
	require.NoError(t, err)
	require.Len(t, raws, 3)
	assert.Nil(t, raws[1])
	_, ok := s.Validate(raws[1])
	assert.False(t, ok)

	_, err = s.Extract(units[0], `not json`)
	assert.Error(t, err)
	_, err = s.Extract(units[0], `{"rank":0}`)
	assert.Error(t, err)
}

func TestRooms(t *testing.T) {
	s, err := For(domain.KindRooms)
	require.NoError(t, err)

	entries := port.ArchiveEntries{
		"rooms/index.htm": testutil.RoomsIndexHTML,
		"rooms/campus/discover/buildings-and-classrooms/ACU.htm": testutil.RoomsACUHTML,
	}
	require.NoError(t, s.CheckLayout(entries))
	assert.ErrorIs(t, s.CheckLayout(port.ArchiveEntries{"rooms/ACU.htm": ""}), port.ErrInvalidDataset)

	units, err := s.Units(entries)
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, "rooms/campus/discover/buildings-and-classrooms/ACU.htm", units[0].Path)
	assert.Equal(t, "ACU", units[0].Attrs["shortname"])
	assert.Equal(t, "Acute Care Unit", units[0].Attrs["fullname"])
	assert.Equal(t, "2211 Wesbrook Mall", units[0].Attrs["address"])
	assert.Equal(t, "DMP", units[1].Attrs["shortname"])

	raws, err := s.Extract(units[0], testutil.RoomsACUHTML)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	rec, ok := s.Validate(raws[0])
	require.True(t, ok)
	assert.Equal(t, domain.StringValue("ACU_101"), rec["name"])
	assert.Equal(t, domain.NumberValue(30), rec["seats"])
	assert.Equal(t, domain.StringValue("Classroom-Movable Tables & Chairs"), rec["furniture"])
	assert.Equal(t, domain.StringValue("http://students.ubc.ca/campus/discover/buildings-and-classrooms/room/ACU-101"), rec["href"])

	rec, ok = s.Validate(raws[1])
	require.True(t, ok)
	assert.Equal(t, domain.NumberValue(0), rec["seats"], "空容量按 0 处理")

	raws, err = s.Extract(units[1], testutil.RoomsDMPHTML)
	require.NoError(t, err)
	require.Len(t, raws, 2)
	_, ok = s.Validate(raws[1])
	assert.False(t, ok, "缺少房间号的行无效")
}

func TestRoomsIndexWithoutBuildings(t *testing.T) {
	s, err := For(domain.KindRooms)
	require.NoError(t, err)
	_, err = s.Units(port.ArchiveEntries{"rooms/index.htm": "<html><body><p>empty</p></body></html>"})
	assert.ErrorIs(t, err, port.ErrInvalidDataset)
}
