package rules

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"bytematch/internal/metrics"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Watch reloads path whenever it changes and sends the new set to out.
// The directory is watched rather than the file so editors that replace
// the file on save are still seen. Bursts of events within debounce
// collapse into one reload. Files that fail to load are logged and skipped.
func Watch(path string, debounce time.Duration, out chan<- Set) (io.Closer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		resetTimer := func() {
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
			timerC = timer.C
		}
		reload := func() {
			doc, err := Load(abs)
			if err == nil {
				var rs Set
				if rs, err = doc.Set(); err == nil {
					log.Info().Str("path", abs).Int("rules", len(rs.Rules)).Msg("rules file reloaded")
					select {
					case out <- rs:
					case <-stopCh:
					}
					return
				}
			}
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeRulesLoad, "file").Inc()
			log.Err(err).Str("path", abs).Msg("rules reload failed, keeping current rule set")
		}

		for {
			select {
			case <-stopCh:
				if timer != nil {
					timer.Stop()
				}
				return
			case <-timerC:
				timerC = nil
				reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Err(err).Msg("rules watcher error")
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if shouldReload(evt, abs) {
					resetTimer()
				}
			}
		}
	}()

	log.Info().Str("path", abs).Dur("debounce", debounce).Msg("rules auto-reload enabled")
	return closerFunc(func() error {
		close(stopCh)
		err := watcher.Close()
		<-doneCh
		return err
	}), nil
}

func shouldReload(evt fsnotify.Event, path string) bool {
	if strings.TrimSpace(evt.Name) == "" {
		return false
	}
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(evt.Name) == path
}
