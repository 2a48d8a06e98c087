package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听配置文件变化并回调新配置。
// 监听所在目录而非文件本身，编辑器以重命名方式保存时同样能收到事件。
type Watcher struct {
	path     string
	cooldown time.Duration
	log      *zap.Logger
	watcher  *fsnotify.Watcher

	load func(string) (AppConfig, error)
	now  func() time.Time

	mu         sync.Mutex
	lastReload time.Time
}

// NewWatcher 创建热更新器；cooldown 内的重复事件被忽略。
func NewWatcher(path string, cooldown time.Duration, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		cooldown: cooldown,
		log:      log.Named("config"),
		watcher:  fw,
		load:     LoadWithEnvOverrides,
		now:      time.Now,
	}, nil
}

// Run 阻塞直到 ctx 结束；加载或校验失败时保留旧配置并记录错误。
func (w *Watcher) Run(ctx context.Context, onUpdate func(AppConfig)) error {
	defer w.watcher.Close()
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange(onUpdate)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// LastReload 最近一次成功重载的时间。
func (w *Watcher) LastReload() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReload
}

func (w *Watcher) handleChange(onUpdate func(AppConfig)) {
	w.mu.Lock()
	now := w.now()
	if !w.lastReload.IsZero() && now.Sub(w.lastReload) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := w.load(w.path)
	if err != nil {
		w.log.Error("config reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.lastReload = now
	w.mu.Unlock()

	w.log.Info("config reloaded", zap.String("path", w.path))
	if onUpdate != nil {
		onUpdate(cfg)
	}
}
