package configwatcher

import (
	"context"
	"exam_proctor_backend/pkg/logger"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader 文件稳定后回调，返回错误时保留旧配置
type Reloader func(path string) error

const defaultDebounce = time.Second

// WatchFile 监听文件所在目录（编辑器常以 rename 方式保存），防抖后调用 reload，ctx 结束时返回
func WatchFile(ctx context.Context, path string, debounce time.Duration, reload Reloader) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 防抖处理
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
		case <-timer.C:
			if err := reload(absPath); err != nil {
				logger.Log.Error("Failed to reload config file", zap.String("path", absPath), zap.Error(err))
				continue
			}
			logger.Log.Info("Config file reloaded", zap.String("path", absPath))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}
