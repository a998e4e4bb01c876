// Package watcher inserts audio files into the EmySound service as they
// appear under a directory tree.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"emysound/internal/cache"
	"emysound/internal/metadata"
	"emysound/internal/telemetry"
	"emysound/pkg/emysound"
	"emysound/pkg/identity"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Inserter registers media with the service. *emysound.Client satisfies it.
type Inserter interface {
	Insert(ctx context.Context, src emysound.Source, in identity.Input) (identity.TrackID, error)
}

// Result reports the outcome for one file.
type Result struct {
	Path      string
	ID        identity.TrackID
	Duplicate bool
	Skipped   bool // shorter than Options.MinDuration, not sent
	Err       error
}

// Options configures a Watcher. Directory, Client and Extractor are required.
type Options struct {
	Directory   string
	Settle      time.Duration // wait after a create event before reading the file
	MinDuration time.Duration // skip shorter files; zero inserts everything
	Client      Inserter
	Extractor   *metadata.Extractor
	Submissions *cache.SubmissionCache // defaults to a one hour cache
	Metrics     *telemetry.Metrics     // optional
	Logger      logrus.FieldLogger
	OnResult    func(Result) // optional, called once per handled file
}

// Watcher monitors a directory tree with fsnotify.
type Watcher struct {
	opts     Options
	logger   logrus.FieldLogger
	fsw      *fsnotify.Watcher
	ownCache bool

	mu       sync.Mutex
	inflight map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates opts and builds a stopped watcher.
func New(opts Options) (*Watcher, error) {
	if opts.Directory == "" {
		return nil, errors.New("watch directory cannot be empty")
	}
	if opts.Client == nil || opts.Extractor == nil {
		return nil, errors.New("watcher needs a client and a metadata extractor")
	}

	w := &Watcher{opts: opts, inflight: make(map[string]struct{})}
	if w.opts.Submissions == nil {
		w.opts.Submissions = cache.NewSubmissionCache(time.Hour)
		w.ownCache = true
	}
	w.logger = opts.Logger
	if w.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		w.logger = l
	}
	return w, nil
}

// Start creates the directory if needed, registers it and every
// subdirectory, and begins handling events until ctx is done or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.opts.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create watch directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := w.addDirectory(w.opts.Directory); err != nil {
		fsw.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.watchFiles(ctx)

	w.logger.WithField("directory", w.opts.Directory).Info("File watcher started")
	return nil
}

// Stop ends event handling and waits for in-flight submissions.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.ownCache {
		w.opts.Submissions.Close()
	}
}

// addDirectory recursively walks and adds subdirectories to the watcher.
func (w *Watcher) addDirectory(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) watchFiles(ctx context.Context) {
	defer w.wg.Done()
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

// ignored reports hidden and temporary files.
func ignored(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp")
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if ignored(event.Name) || !event.Has(fsnotify.Create) {
		return
	}

	if w.opts.Extractor.IsAudioFile(event.Name) {
		w.wg.Add(1)
		go func(path string) {
			defer w.wg.Done()
			timer := time.NewTimer(w.opts.Settle)
			defer timer.Stop()
			select {
			case <-timer.C:
				w.handleNewFile(ctx, path)
			case <-ctx.Done():
			}
		}(event.Name)
		return
	}

	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if err := w.addDirectory(event.Name); err != nil {
			w.logger.WithError(err).WithField("directory", event.Name).Error("Failed to watch new directory")
			return
		}
		w.logger.WithField("directory", event.Name).Info("Watching new directory")
	}
}

// claim marks path as being handled. It fails when another goroutine holds it.
func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inflight[path]; busy {
		return false
	}
	w.inflight[path] = struct{}{}
	return true
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, path)
}

// handleNewFile inserts a file unless it was submitted recently.
func (w *Watcher) handleNewFile(ctx context.Context, path string) {
	log := w.logger.WithField("file_path", path)

	if !w.claim(path) {
		w.finish(Result{Path: path, Duplicate: true}, log)
		return
	}
	defer w.release(path)

	if id, ok := w.opts.Submissions.Submitted(path); ok {
		w.finish(Result{Path: path, ID: id, Duplicate: true}, log)
		return
	}

	log.Info("New audio file detected")

	if w.tooShort(path, log) {
		w.finish(Result{Path: path, Skipped: true}, log)
		return
	}

	in, err := w.opts.Extractor.Complete(path, identity.Input{})
	if err != nil {
		w.finish(Result{Path: path, Err: fmt.Errorf("failed to read metadata: %w", err)}, log)
		return
	}

	id, err := w.opts.Client.Insert(ctx, emysound.FromFile(path), in)
	if err != nil {
		w.finish(Result{Path: path, Err: err}, log)
		return
	}

	w.opts.Submissions.MarkSubmitted(path, id)
	log.WithFields(logrus.Fields{
		"artist":   in.Artist,
		"title":    in.Title,
		"track_id": id.Value,
	}).Info("Inserted new track")
	w.finish(Result{Path: path, ID: id}, log)
}

// tooShort reports whether path plays for less than MinDuration. A file
// that cannot be measured is not short; the service decides what to do
// with it.
func (w *Watcher) tooShort(path string, log logrus.FieldLogger) bool {
	if w.opts.MinDuration <= 0 {
		return false
	}
	d, err := w.opts.Extractor.Duration(path)
	if err != nil {
		log.WithError(err).Debug("Could not measure duration, inserting anyway")
		return false
	}
	if d < w.opts.MinDuration {
		log.WithFields(logrus.Fields{
			"duration":     d,
			"min_duration": w.opts.MinDuration,
		}).Info("Skipping short audio file")
		return true
	}
	return false
}

func (w *Watcher) finish(res Result, log logrus.FieldLogger) {
	outcome := telemetry.FileInserted
	switch {
	case res.Err != nil:
		outcome = telemetry.FileFailed
		log.WithError(res.Err).Error("Failed to insert track")
	case res.Duplicate:
		outcome = telemetry.FileDuplicate
		log.Debug("Track already submitted")
	case res.Skipped:
		outcome = telemetry.FileSkipped
	}

	if w.opts.Metrics != nil {
		w.opts.Metrics.ObserveFile(outcome)
	}
	if w.opts.OnResult != nil {
		w.opts.OnResult(res)
	}
}
