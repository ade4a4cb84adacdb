package main

import (
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/testutil"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute 以给定参数运行根命令，返回标准输出内容
func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{fmt.Errorf("x: %w", port.ErrInvalidID), exitInvalid},
		{port.ErrInvalidContent, exitInvalid},
		{port.ErrInvalidQuery, exitInvalid},
		{port.ErrDuplicateDataset, exitDuplicate},
		{port.ErrNotFound, exitNotFound},
		{port.ErrResultTooLarge, exitTooLarge},
		{context.Canceled, exitCanceled},
		{errors.New("disk full"), exitFailure},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, exitCode(tc.err), "%v", tc.err)
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	assert.Equal(t, "msg", colorize(colorGreen, "msg"))

	noColor = false
	assert.Contains(t, colorize(colorGreen, "msg"), "\033[")
}

func TestCLI_EndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "courses.zip")
	require.NoError(t, os.WriteFile(archivePath, testutil.SampleCoursesArchive(t), 0o644))
	common := []string{"--data-dir", dataDir, "--no-color", "--log-level", "error"}
	run := func(stdin io.Reader, args ...string) (string, error) {
		return execute(t, stdin, append(append([]string{}, common...), args...)...)
	}

	out, err := run(nil, "add", "courses", archivePath, "--kind", "courses")
	require.NoError(t, err)
	assert.Equal(t, "courses\n", out)

	_, err = run(nil, "add", "courses", archivePath, "--kind", "courses")
	assert.ErrorIs(t, err, port.ErrDuplicateDataset)
	assert.Equal(t, exitDuplicate, exitCode(err))

	_, err = run(nil, "add", "bad_id", archivePath, "--kind", "courses")
	assert.ErrorIs(t, err, port.ErrInvalidID)

	_, err = run(nil, "add", "x", archivePath, "--kind", "buildings")
	assert.ErrorIs(t, err, port.ErrInvalidContent)

	// 每次命令都是新的服务实例，数据集来自快照
	out, err = run(nil, "list", "--json=true")
	require.NoError(t, err)
	var metas []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &metas))
	assert.Equal(t, []map[string]any{{"id": "courses", "kind": "courses", "numRows": 6.0}}, metas)

	out, err = run(nil, "list", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "courses")

	doc := `{"WHERE":{"IS":{"courses_dept":"math"}},"OPTIONS":{"COLUMNS":["courses_uuid","courses_avg"],"ORDER":"courses_avg"}}`
	out, err = run(strings.NewReader(doc), "query", "-")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, []map[string]any{
		{"courses_uuid": "2001", "courses_avg": 66.2},
		{"courses_uuid": "2002", "courses_avg": 78.5},
	}, rows)

	queryFile := filepath.Join(t.TempDir(), "q.json")
	require.NoError(t, os.WriteFile(queryFile, []byte(`{"WHERE":{},"OPTIONS":{"COLUMNS":["nope_dept"]}}`), 0o644))
	_, err = run(nil, "query", queryFile)
	assert.ErrorIs(t, err, port.ErrNotFound)

	out, err = run(nil, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "queryaegis_datasets_loaded 1")

	out, err = run(nil, "remove", "courses")
	require.NoError(t, err)
	assert.Equal(t, "courses\n", out)

	_, err = run(nil, "remove", "courses")
	assert.ErrorIs(t, err, port.ErrNotFound)
	assert.Equal(t, exitNotFound, exitCode(err))
}
