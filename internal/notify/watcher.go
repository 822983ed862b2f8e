package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// EventWatcher watches the events directory and dispatches callbacks. Event
// files are consumed (deleted) as they are processed, so multiple watchers on
// the same directory split the stream rather than duplicating it.
type EventWatcher struct {
	dir      string
	callback func(eventType, memoryID string)
	log      zerolog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewEventWatcher creates a watcher for {dataPath}/events/.
func NewEventWatcher(dataPath string, logger zerolog.Logger, callback func(eventType, memoryID string)) *EventWatcher {
	return &EventWatcher{
		dir:      filepath.Join(dataPath, "events"),
		callback: callback,
		log:      logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Any event files already present are drained first,
// so changes made while no watcher was running are not lost. Call Stop to
// clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	ew.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	go ew.loop()
	ew.log.Debug().Str("dir", ew.dir).Msg("watching for change events")
	return nil
}

// Stop shuts down the watcher and waits for the dispatch loop to exit.
func (ew *EventWatcher) Stop() {
	if ew.watcher != nil {
		_ = ew.watcher.Close()
	}
	<-ew.done
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&fsnotify.Create != 0 && strings.HasSuffix(evt.Name, ".event") {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.log.Warn().Err(err).Msg("change watcher error")
		}
	}
}

func (ew *EventWatcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".event") {
			ew.processFile(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // already consumed by another watcher
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		ew.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("invalid event file")
		return
	}

	if event.MemoryID != "" && ew.callback != nil {
		ew.callback(event.Type, event.MemoryID)
	}
}
