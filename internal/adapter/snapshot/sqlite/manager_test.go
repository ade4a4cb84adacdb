package sqlite

import (
	"QueryAegis/internal/adapter/archive"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/dataset/builder"
	"QueryAegis/internal/dataset/schema"
	"QueryAegis/internal/testutil"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestManager 在临时目录中创建 Manager
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func buildDataset(t *testing.T, id string, content []byte, kind domain.Kind) *domain.Dataset {
	t.Helper()
	entries, err := archive.Decode(content)
	require.NoError(t, err)
	ds, err := builder.New().Build(context.Background(), id, entries, kind)
	require.NoError(t, err)
	return ds
}

func TestNewManager(t *testing.T) {
	_, err := NewManager("", nil)
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "data")
	m, err := NewManager(dir, nil)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, dir, m.Root())
}

func TestWriteAndReadAll(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	courses := buildDataset(t, "courses", testutil.SampleCoursesArchive(t), domain.KindCourses)
	rooms := buildDataset(t, "rooms", testutil.RoomsArchive(t), domain.KindRooms)
	require.NoError(t, m.Write(ctx, rooms))
	require.NoError(t, m.Write(ctx, courses))

	all, err := m.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, "courses", all[0].ID, "结果按标识符排序")
	assert.Equal(t, domain.KindCourses, all[0].Kind)
	assert.Equal(t, courses.Records, all[0].Records, "记录内容与顺序保持不变")

	assert.Equal(t, "rooms", all[1].ID)
	assert.Equal(t, rooms.Records, all[1].Records)

	tmps, err := filepath.Glob(filepath.Join(m.Root(), "*"+tmpExt))
	require.NoError(t, err)
	assert.Empty(t, tmps, "写入完成后不应残留临时文件")
}

func TestWrite_UnusualIDs(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	for _, id := range []string{"../escape", "a/b", "with space", ".."} {
		ds := buildDataset(t, id, testutil.SampleCoursesArchive(t), domain.KindCourses)
		require.NoError(t, m.Write(ctx, ds), id)
	}

	entries, err := os.ReadDir(m.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 4, "所有快照都应位于快照目录内")

	all, err := m.ReadAll(ctx)
	require.NoError(t, err)
	var ids []string
	for _, ds := range all {
		ids = append(ids, ds.ID)
	}
	assert.Equal(t, []string{"..", "../escape", "a/b", "with space"}, ids)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	ds := buildDataset(t, "courses", testutil.SampleCoursesArchive(t), domain.KindCourses)
	require.NoError(t, m.Write(ctx, ds))
	require.NoError(t, m.Delete(ctx, "courses"))

	all, err := m.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.NoError(t, m.Delete(ctx, "courses"), "删除不存在的快照不是错误")
}

func TestReadAll_SkipsBrokenSnapshots(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	ds := buildDataset(t, "good", testutil.SampleCoursesArchive(t), domain.KindCourses)
	require.NoError(t, m.Write(ctx, ds))

	require.NoError(t, os.WriteFile(filepath.Join(m.Root(), "garbage.db"), []byte("this is not sqlite"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.Root(), "empty.db"), nil, 0o644))
	stale := filepath.Join(m.Root(), "leftover"+tmpExt)
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))

	all, err := m.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].ID)
	assert.NoFileExists(t, stale, "遗留临时文件应被清理")
}

func TestReadAll_EmptyDir(t *testing.T) {
	all, err := newTestManager(t).ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLBuilders(t *testing.T) {
	fields := []schema.Field{{Name: "avg", Type: domain.FieldNumber}, {Name: "dept", Type: domain.FieldString}}
	create, err := buildCreateRecordsSQL(fields)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE "records" ("seq" INTEGER PRIMARY KEY, "avg" REAL NOT NULL, "dept" TEXT NOT NULL)`, create)

	insert, err := buildInsertRecordSQL(fields)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "records" ("seq", "avg", "dept") VALUES (?, ?, ?)`, insert)

	sel, err := buildSelectRecordsSQL(fields)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "avg", "dept" FROM "records" ORDER BY "seq" ASC`, sel)

	_, err = buildCreateRecordsSQL(nil)
	assert.Error(t, err)
}
