// config_watch.go: Hot reload of pixmem configuration files
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadSettle lets editors finish writing before the file is reread
const reloadSettle = 10 * time.Millisecond

// ConfigWatcher reloads a configuration file whenever it changes.
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(Config, error)
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// WatchConfigFile loads path once, calls onChange with the result, and calls
// it again after every change to the file. onChange runs on the watcher
// goroutine. Close stops watching.
func WatchConfigFile(path string, onChange func(Config, error)) (*ConfigWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("nil onChange callback: %w", ErrInvalidConfig)
	}
	config, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	w := &ConfigWatcher{
		path:     path,
		watcher:  watcher,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	onChange(config, nil)

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *ConfigWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.drain() {
				return
			}
			w.onChange(LoadConfigFile(w.path))
			// editors often replace the file by rename, so watch it again
			_ = w.watcher.Add(w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onChange(Config{}, fmt.Errorf("watch %s: %w", w.path, err))
		}
	}
}

// drain swallows the burst of events a single save produces. It returns
// false once the watcher is closed.
func (w *ConfigWatcher) drain() bool {
	settle := time.NewTimer(reloadSettle)
	defer settle.Stop()
	for {
		select {
		case <-w.done:
			return false
		case _, ok := <-w.watcher.Events:
			if !ok {
				return false
			}
			settle.Reset(reloadSettle)
		case <-settle.C:
			return true
		}
	}
}

// Path returns the watched file.
func (w *ConfigWatcher) Path() string { return w.path }

// Close stops watching and waits for the watcher goroutine to exit.
func (w *ConfigWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
