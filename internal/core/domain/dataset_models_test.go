package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, ok := ParseKind(" Courses ")
	assert.True(t, ok)
	assert.Equal(t, KindCourses, k)

	_, ok = ParseKind("buildings")
	assert.False(t, ok)
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, -1, CompareValues(NumberValue(1), NumberValue(2)))
	assert.Equal(t, 1, CompareValues(NumberValue(2.5), NumberValue(2)))
	assert.Equal(t, 0, CompareValues(NumberValue(3), NumberValue(3)))
	assert.Equal(t, -1, CompareValues(StringValue("ANTH"), StringValue("CPSC")))
	assert.Equal(t, 1, CompareValues(StringValue("b"), StringValue("B")))
	assert.Equal(t, -1, CompareValues(NumberValue(100), StringValue("0")))
}

func TestRowMarshalKeepsColumnOrder(t *testing.T) {
	row := Row{
		{Key: "courses_title", Value: StringValue("intro \"cs\"")},
		{Key: "courses_avg", Value: NumberValue(87.5)},
		{Key: "courses_year", Value: NumberValue(2015)},
	}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"courses_title":"intro \"cs\"","courses_avg":87.5,"courses_year":2015}`, string(data))

	v, ok := row.Get("courses_avg")
	require.True(t, ok)
	assert.Equal(t, 87.5, v.Num)
	assert.Equal(t, map[string]any{
		"courses_title": "intro \"cs\"",
		"courses_avg":   87.5,
		"courses_year":  float64(2015),
	}, row.Map())
}

func TestValueMarshalRejectsNaN(t *testing.T) {
	_, err := NumberValue(math.NaN()).MarshalJSON()
	assert.Error(t, err)
}

func TestDatasetMeta(t *testing.T) {
	ds := &Dataset{ID: "courses", Kind: KindCourses, Records: make([]Record, 3)}
	assert.Equal(t, DatasetMeta{ID: "courses", Kind: KindCourses, NumRows: 3}, ds.Meta())
}
