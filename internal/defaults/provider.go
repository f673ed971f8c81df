package defaults

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Provider は現在有効な初期コンテンツを保持する。
// 上書きファイルが指定されている場合はそれを優先し、変更を監視して再読み込みする。
type Provider struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Content
}

// NewProvider はProviderを生成する。
// pathが空の場合は同梱コンテンツのみを使用する。
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	content, err := Bundled()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if content, err = LoadFile(path); err != nil {
			return nil, err
		}
	}

	return &Provider{path: path, logger: logger, current: content}, nil
}

// Current は現在の初期コンテンツを返す。返り値は変更しないこと。
func (p *Provider) Current() *Content {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Reload は上書きファイルを読み直す。
// 読み込みに失敗した場合は直前の内容を維持してエラーを返す。
func (p *Provider) Reload() error {
	if p.path == "" {
		return nil
	}
	content, err := LoadFile(p.path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = content
	p.mu.Unlock()
	return nil
}

// Watch は上書きファイルの変更を監視し、変更のたびに再読み込みする。
// ctxが終了するまでブロックする。上書きファイルが無い場合は即座に戻る。
func (p *Provider) Watch(ctx context.Context) error {
	if p.path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	// エディタの置き換え保存に追従するためディレクトリを監視する
	dir := filepath.Dir(p.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(p.path)

	p.logger.Info("defaults watcher started", slog.String("path", p.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := p.Reload(); err != nil {
				p.logger.Warn("defaults reload failed, keeping previous content",
					slog.String("path", p.path),
					slog.String("error", err.Error()),
				)
				continue
			}
			p.logger.Info("defaults reloaded", slog.String("path", p.path))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("defaults watcher error", slog.String("error", err.Error()))
		}
	}
}
