// file: internal/downloader/downloader.go
package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes 单个归档允许读取的最大字节数
const DefaultMaxBytes int64 = 512 << 20

var (
	ErrUnsupportedScheme = errors.New("不支持的来源协议")
	ErrTooLarge          = errors.New("来源内容超过大小上限")
)

// Downloader 是所有下载器都必须实现的接口。
type Downloader interface {
	// SupportsScheme 支持的协议 (e.g., "file")
	SupportsScheme(scheme string) bool
	// Download 执行下载，返回一个可读取文件内容的对象
	Download(ctx context.Context, sourceURL *url.URL) (io.ReadCloser, error)
}

// FileDownloader =============================================================================
//
//	本地文件“下载”器 (实际上是打开文件)
//
// =============================================================================
type FileDownloader struct{}

func (d *FileDownloader) SupportsScheme(scheme string) bool {
	return scheme == "file"
}

func (d *FileDownloader) Download(ctx context.Context, sourceURL *url.URL) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(resolveLocalFilePath(sourceURL))
}

// resolveLocalFilePath 将 file URL 转为本地路径。
// 例如 "file:///C:/Users/..." -> Path: "/C:/Users/..."，在 Windows 上需要去掉这个前导斜杠
func resolveLocalFilePath(u *url.URL) string {
	path := filepath.FromSlash(u.Path)
	if len(path) > 2 && path[0] == filepath.Separator && path[2] == ':' {
		path = path[1:]
	}
	return path
}

// Fetcher 按来源协议选择下载器，并把内容完整读入内存。
type Fetcher struct {
	downloaders []Downloader
	maxBytes    int64
}

// NewFetcher 创建 Fetcher。未指定下载器时只支持本地文件。
func NewFetcher(maxBytes int64, downloaders ...Downloader) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(downloaders) == 0 {
		downloaders = []Downloader{&FileDownloader{}}
	}
	return &Fetcher{downloaders: downloaders, maxBytes: maxBytes}
}

// ParseSource 将 "file://..." 形式的 URL 或普通本地路径统一解析为 URL。
func ParseSource(source string) (*url.URL, error) {
	if strings.Contains(source, "://") {
		u, err := url.Parse(source)
		if err != nil {
			return nil, fmt.Errorf("解析来源 '%s' 失败: %w", source, err)
		}
		return u, nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("解析路径 '%s' 失败: %w", source, err)
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

// Fetch 读取来源的全部内容
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	u, err := ParseSource(source)
	if err != nil {
		return nil, err
	}
	for _, d := range f.downloaders {
		if !d.SupportsScheme(u.Scheme) {
			continue
		}
		rc, err := d.Download(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("读取 '%s' 失败: %w", source, err)
		}
		defer rc.Close()
		return readLimited(rc, f.maxBytes)
	}
	return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedScheme, u.Scheme)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("%w (%d 字节)", ErrTooLarge, limit)
	}
	return buf.Bytes(), nil
}
