// monitor.go
package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监控数据目录，新的或被修改的表格文件会触发处理
type FileMonitor struct {
	watchDir string
	watcher  *fsnotify.Watcher
	lastMod  map[string]time.Time
	exts     []string
	mu       sync.Mutex
}

func NewFileMonitor(dir string) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileMonitor{
		watchDir: dir,
		watcher:  watcher,
		lastMod:  make(map[string]time.Time),
		exts:     []string{".csv", ".xlsx"},
	}, nil
}

// Close 停止监控
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}

// Watch 阻塞直到ctx取消或watcher出错，handler在调用方goroutine中顺序执行
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if m.shouldHandle(event.Name) {
				handler(event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// shouldHandle 过滤扩展名并按修改时间去重
func (m *FileMonitor) shouldHandle(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	matched := false
	for _, e := range m.exts {
		if ext == e {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !info.ModTime().After(m.lastMod[name]) {
		return false
	}
	m.lastMod[name] = info.ModTime()
	return true
}
