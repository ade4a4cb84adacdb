// Package service file: internal/service/import_watcher.go
package service

import (
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/downloader"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce = 2 * time.Second
	importExt       = ".zip"
	doneSuffix      = ".done"
	failedSuffix    = ".failed"
)

// ImportWatcher 监视导入目录，把放入的 "<id>.<kind>.zip" 文件添加为数据集。
// 处理成功的文件重命名为 *.done，失败的重命名为 *.failed。
type ImportWatcher struct {
	svc      port.DatasetService
	dir      string
	fetcher  *downloader.Fetcher
	logger   *slog.Logger
	debounce time.Duration

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// WatcherOption 配置 ImportWatcher
type WatcherOption func(*ImportWatcher)

// WithDebounce 设置事件防抖时间
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *ImportWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger 指定日志记录器
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *ImportWatcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewImportWatcher 创建导入目录监视器
func NewImportWatcher(svc port.DatasetService, dir string, opts ...WatcherOption) *ImportWatcher {
	w := &ImportWatcher{
		svc:      svc,
		dir:      filepath.Clean(dir),
		fetcher:  downloader.NewFetcher(0),
		logger:   slog.Default(),
		debounce: defaultDebounce,
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "ImportWatcher")
	return w
}

// ParseImportName 从文件名 "<id>.<kind>.zip" 中解析标识符与类别。
func ParseImportName(name string) (string, domain.Kind, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(strings.ToLower(base), importExt) {
		return "", "", false
	}
	stem := base[:len(base)-len(importExt)]
	dot := strings.LastIndexByte(stem, '.')
	if dot <= 0 {
		return "", "", false
	}
	kind, ok := domain.ParseKind(stem[dot+1:])
	if !ok {
		return "", "", false
	}
	return stem[:dot], kind, true
}

// Start 创建导入目录并开始监视，目录中已有的归档会立即处理一次。
func (w *ImportWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("创建导入目录 '%s' 失败: %w", w.dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建 fsnotify watcher 失败: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("添加导入目录 '%s' 到监视器失败: %w", w.dir, err)
	}
	w.watcher = watcher
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.loop()
	w.logger.Info("导入目录监视已启动", "dir", w.dir, "debounce", w.debounce)

	existing, err := filepath.Glob(filepath.Join(w.dir, "*"))
	if err != nil {
		return nil
	}
	for _, path := range existing {
		if _, _, ok := ParseImportName(path); ok {
			w.schedule(path)
		}
	}
	return nil
}

// Close 停止监视并等待进行中的导入完成
func (w *ImportWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	w.cancel()
	err := w.watcher.Close()

	w.timersMu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.timersMu.Unlock()

	w.wg.Wait()
	w.watcher = nil
	return err
}

func (w *ImportWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				if _, _, ok := ParseImportName(event.Name); ok {
					w.schedule(filepath.Clean(event.Name))
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("文件监视器报告错误", "error", err)
		}
	}
}

// schedule 对同一文件的连续事件做防抖，只在最后一次事件之后处理。
func (w *ImportWatcher) schedule(path string) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	if t, exists := w.timers[path]; exists {
		if !t.Stop() {
			// 计时器已触发，处理函数会自行清理
			return
		}
		w.wg.Done()
	}
	w.wg.Add(1)
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.timersMu.Lock()
		delete(w.timers, path)
		w.timersMu.Unlock()
		if _, err := os.Stat(path); err != nil {
			return
		}
		_ = w.ProcessFile(w.ctx, path)
	})
}

// ProcessFile 导入单个归档文件，并按结果重命名。
func (w *ImportWatcher) ProcessFile(ctx context.Context, path string) error {
	id, kind, ok := ParseImportName(path)
	if !ok {
		return fmt.Errorf("文件名 '%s' 不符合 <id>.<kind>.zip 格式", filepath.Base(path))
	}
	content, err := w.fetcher.Fetch(ctx, path)
	if err == nil {
		_, err = w.svc.AddDataset(ctx, id, content, kind)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// 文件保留原名，下次启动时重新导入
		w.logger.Warn("导入被中断，归档保持原样", "path", path, "dataset", id, "error", err)
		return err
	}

	suffix := doneSuffix
	if err != nil {
		suffix = failedSuffix
		w.logger.Error("导入归档失败", "path", path, "dataset", id, "kind", kind, "error", err)
	} else {
		w.logger.Info("导入归档成功", "path", path, "dataset", id, "kind", kind)
	}
	if renameErr := os.Rename(path, path+suffix); renameErr != nil {
		w.logger.Warn("重命名已处理的归档失败", "path", path, "error", renameErr)
	}
	return err
}
