package route

import (
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch loads path once and then reloads it into t whenever the file is
// written, using fsnotify. It supplements the specification's static
// route_table_load with the long-running-daemon case implied but left
// unspecified by the multi-node deployments in section 1. The returned
// stop function closes the watcher; it is always safe to call exactly
// once.
func (t *Table) Watch(path string) (stop func() error, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := t.LoadTable(string(data)); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				data, err := os.ReadFile(path)
				if err != nil {
					t.log.WithField("component", "route").WithError(err).Warn("route table reload: read failed")
					continue
				}
				if err := t.LoadTable(string(data)); err != nil {
					t.log.WithField("component", "route").WithError(err).Warn("route table reload: load failed")
					continue
				}
				t.log.WithField("component", "route").Info("route table reloaded")

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				t.log.WithField("component", "route").WithError(err).Warn("route table watcher error")

			case <-done:
				return
			}
		}
	}()

	var logOnce logrus.Fields = logrus.Fields{"component": "route", "path": path}
	t.log.WithFields(logOnce).Info("watching route table file")

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}
