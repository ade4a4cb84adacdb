package service

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/testutil"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueryLimiter_Disabled(t *testing.T) {
	l := newQueryLimiter(0, 0, 0, 0)
	assert.Nil(t, l)
	assert.NoError(t, l.waitGlobal(context.Background()))
	assert.NoError(t, l.waitDataset(context.Background(), "courses"))
	l.forget("courses")
}

func TestQueryLimiter_PerDataset(t *testing.T) {
	l := newQueryLimiter(0, 0, 0.001, 1)
	require.NotNil(t, l)
	ctx := context.Background()

	require.NoError(t, l.waitDataset(ctx, "a"))
	require.NoError(t, l.waitDataset(ctx, "b"), "不同数据集的配额互不影响")

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.waitDataset(short, "a"))
	assert.Equal(t, 2, l.size())

	l.forget("a")
	assert.Equal(t, 1, l.size())
	assert.NoError(t, l.waitDataset(ctx, "a"), "删除后重新分配配额")
}

func TestQueryLimiter_SweepsIdleEntries(t *testing.T) {
	l := newQueryLimiter(0, 0, 100, 10)
	clock := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return clock }
	l.lastSweep = clock

	l.limiterFor("old")
	clock = clock.Add(limiterIdleAfter + time.Minute)
	l.limiterFor("new")
	assert.Equal(t, 1, l.size(), "超过闲置时间的条目被清理")
}

func TestPerformQuery_DatasetRateLimit(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, "", Options{DatasetRateLimit: 0.001, DatasetRateBurst: 1})
	_, err := svc.AddDataset(ctx, "courses", testutil.SampleCoursesArchive(t), domain.KindCourses)
	require.NoError(t, err)
	_, err = svc.AddDataset(ctx, "other", testutil.SampleCoursesArchive(t), domain.KindCourses)
	require.NoError(t, err)

	_, err = svc.PerformQuery(ctx, deptQuery)
	require.NoError(t, err)
	_, err = svc.PerformQuery(ctx, `{"WHERE":{},"OPTIONS":{"COLUMNS":["other_dept"]}}`)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = svc.PerformQuery(short, deptQuery)
	assert.Error(t, err)
}
