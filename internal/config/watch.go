package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const lexiconReloadDebounce = 200 * time.Millisecond

// LexiconWatcher monitors the configured lexicon file and invokes the
// supplied callback whenever the word lists change. Stop must be called to
// release filesystem resources.
type LexiconWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *LexiconWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchLexicon wires fsnotify around the lexicon file and reloads the word
// lists on any relevant change. The callback receives the freshly parsed
// lexicon; parse failures go to onError and leave the previous snapshot in
// place.
func WatchLexicon(ctx context.Context, path string, onChange func(Lexicon), onError func(error)) (*LexiconWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("config: watch lexicon requires a change callback")
	}
	if path == "" {
		return nil, fmt.Errorf("config: no lexicon file configured for watching")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("config: watch lexicon: %w", err)
	}

	lex, err := LoadLexicon(path)
	if err != nil {
		if closeErr := watcher.Close(); closeErr != nil && onError != nil {
			onError(fmt.Errorf("config: watch lexicon close: %w", closeErr))
		}
		cancel()
		return nil, err
	}
	onChange(lex)

	// Watch the parent directory so atomic rename-based rewrites (editors,
	// configmap updates) still surface events for the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil && onError != nil {
			onError(fmt.Errorf("config: watch lexicon close: %w", closeErr))
		}
		cancel()
		return nil, fmt.Errorf("config: watch lexicon dir: %w", err)
	}

	done := make(chan struct{})
	w := &LexiconWatcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil && onError != nil {
				onError(fmt.Errorf("config: watch lexicon close: %w", err))
			}
		}()

		var timer *time.Timer
		var timerCh <-chan time.Time
		reload := func() {
			lex, err := LoadLexicon(path)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(lex)
		}

		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(lexiconReloadDebounce)
					timerCh = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(lexiconReloadDebounce)
				}
			case <-timerCh:
				timerCh = nil
				timer = nil
				reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if err != nil && onError != nil {
					onError(fmt.Errorf("config: watch lexicon: %w", err))
				}
			}
		}
	}()

	return w, nil
}
