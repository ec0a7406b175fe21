package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tapwatch/pkg/logx"
)

// Watch re-parses the config file whenever it changes on disk and calls
// onChange with the new, validated config. Invalid edits are logged and the
// previous config stays in effect.
//
// Editors commonly emit several write/rename events per save, so events are
// debounced before re-reading.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: rename-based saves replace the inode.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()

		const debounce = 300 * time.Millisecond
		var timer *time.Timer
		var timerC <-chan time.Time

		base := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerC = timer.C
				} else {
					timer.Reset(debounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watch error", logx.Err(err))
			case <-timerC:
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config reload rejected", logx.Err(err))
					continue
				}
				log.Info("config reloaded", logx.String("path", path))
				onChange(cfg)
			}
		}
	}()

	return nil
}
