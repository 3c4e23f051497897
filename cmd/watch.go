package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchJSON bool

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Scan images as they appear in a directory",
	Long: `Watch a directory and scan every image file that is created or
rewritten in it. Bursts of events for the same file are coalesced.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print one JSON object per file")
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

func isImagePath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return imageExtensions[strings.ToLower(filepath.Ext(base))]
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dir := args[0]

	uc, cleanup, err := newLocalUseCase(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, formatMuted("Watching: "+dir))
	fmt.Fprintln(out, formatMuted("Press Ctrl+C to stop"))

	var outMu sync.Mutex
	deb := newDebouncer(time.Duration(appConfig.Watch.DebounceMS)*time.Millisecond, func(path string) {
		report := scanFile(ctx, uc, path)
		outMu.Lock()
		defer outMu.Unlock()
		if err := writeReport(out, report, watchJSON); err != nil {
			logger.Warn("failed to write report", zap.Error(err))
		}
	})
	defer deb.Stop()

	return watchLoop(ctx, watcher.Events, watcher.Errors, deb)
}

func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, deb *debouncer) error {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !isImagePath(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				deb.Trigger(event.Name)
			}
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		case <-ctx.Done():
			return nil
		}
	}
}

// debouncer runs fn for a key once no trigger for it arrived within delay.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func(key string)
	timers  map[string]*time.Timer
	running sync.WaitGroup
	stopped bool
}

func newDebouncer(delay time.Duration, fn func(key string)) *debouncer {
	return &debouncer{delay: delay, fn: fn, timers: make(map[string]*time.Timer)}
}

func (d *debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.timers[key] == timer {
			delete(d.timers, key)
		}
		if d.stopped {
			d.mu.Unlock()
			return
		}
		d.running.Add(1)
		d.mu.Unlock()

		defer d.running.Done()
		d.fn(key)
	})
	d.timers[key] = timer
}

// Stop cancels pending calls and waits for the ones already running.
func (d *debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
	d.mu.Unlock()
	d.running.Wait()
}
