// Package archive 负责把归档字节解码为 "路径 -> 文本" 的条目映射。
package archive

import (
	"QueryAegis/internal/core/port"
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxEntrySize 单个条目解压后的上限
const maxEntrySize = 64 << 20

var (
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
)

// Decode 接受原始 zip 字节或其 base64 文本，返回全部非目录条目。
// 任何解码失败都包装为 port.ErrInvalidContent。
func Decode(content []byte) (port.ArchiveEntries, error) {
	raw, err := rawZip(content)
	if err != nil {
		return nil, err
	}

	r, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: 打开 zip 失败: %v", port.ErrInvalidContent, err)
	}

	entries := make(port.ArchiveEntries, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := cleanEntryName(f.Name)
		if err != nil {
			return nil, err
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: 打开 zip 内部文件失败 (%s): %v", port.ErrInvalidContent, f.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: 读取 zip 内部文件失败 (%s): %v", port.ErrInvalidContent, f.Name, err)
		}
		if len(data) > maxEntrySize {
			return nil, fmt.Errorf("%w: zip 内部文件过大 (%s)", port.ErrInvalidContent, f.Name)
		}
		entries[name] = string(data)
	}
	return entries, nil
}

// rawZip 识别 zip 魔数；不是 zip 时尝试按 base64 解码一次。
func rawZip(content []byte) ([]byte, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: 归档内容为空", port.ErrInvalidContent)
	}
	if isZip(content) {
		return content, nil
	}

	trimmed := bytes.TrimSpace(content)
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(decoded, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: 内容既不是 zip 也不是合法的 base64: %v", port.ErrInvalidContent, err)
	}
	decoded = decoded[:n]
	if !isZip(decoded) {
		return nil, fmt.Errorf("%w: base64 解码后的内容不是 zip", port.ErrInvalidContent)
	}
	return decoded, nil
}

func isZip(b []byte) bool {
	return bytes.HasPrefix(b, zipMagic) || bytes.HasPrefix(b, zipEmptyMagic)
}

// cleanEntryName 统一分隔符并拒绝越界路径
func cleanEntryName(name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: 检测到潜在非法路径 (文件: %s)", port.ErrInvalidContent, name)
	}
	return cleaned, nil
}
