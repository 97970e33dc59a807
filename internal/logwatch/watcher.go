// Package logwatch tails a game log file and turns matching lines into
// scheduler events.
package logwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/internal/scheduler"
)

// defaultMaxRead is the most bytes consumed per FetchNewLines call.
const defaultMaxRead = 1 << 20

// defaultMaxLine is the longest line kept while waiting for its newline.
const defaultMaxLine = 64 << 10

// EventSink receives the events created for matching lines.
type EventSink interface {
	AddEvent(ctx context.Context, e scheduler.Event) bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithFromStart reads the content already in the file on the first fetch
// instead of skipping to its end.
func WithFromStart() Option {
	return func(w *Watcher) { w.fromStart = true }
}

// WithPattern adds a pattern. Patterns are tested in the order they were
// added; every matching pattern creates its event.
func WithPattern(p *Pattern) Option {
	return func(w *Watcher) { w.patterns = append(w.patterns, p) }
}

// WithMaxRead limits the bytes consumed per fetch.
func WithMaxRead(n int64) Option {
	return func(w *Watcher) { w.maxRead = n }
}

// WithMaxLine sets the longest line buffered while its newline is missing.
// Longer lines are dropped up to and including their newline.
func WithMaxLine(n int) Option {
	return func(w *Watcher) { w.maxLine = n }
}

// Watcher tails a log file. It implements scheduler.LineSource.
//
// Only complete lines are handled; a trailing partial line is kept until its
// newline arrives. A file that shrinks or is replaced is read again from the
// start.
type Watcher struct {
	path      string
	sink      EventSink
	patterns  []*Pattern
	fromStart bool
	maxRead   int64
	maxLine   int
	logger    *slog.Logger

	started bool
	offset  int64
	info    os.FileInfo
	partial []byte
	// skipping drops input up to the next newline after an over-long line.
	skipping bool

	lines   atomic.Int64
	matches atomic.Int64
}

var _ scheduler.LineSource = (*Watcher)(nil)

// New creates a watcher for path.
func New(path string, sink EventSink, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		path:    path,
		sink:    sink,
		maxRead: defaultMaxRead,
		maxLine: defaultMaxLine,
		logger:  logging.Component(logger, "logwatch", "path", path),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stats returns the number of lines read and patterns matched.
func (w *Watcher) Stats() (lines, matches int64) {
	return w.lines.Load(), w.matches.Load()
}

// FetchNewLines reads the lines appended since the previous call and
// creates events for the matching ones. A missing file is not an error.
func (w *Watcher) FetchNewLines(ctx context.Context) error {
	var chunk []byte
	err := scheduler.Detach(ctx, func() error {
		var err error
		chunk, err = w.read()
		return err
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", w.path, err)
	}
	if len(chunk) == 0 {
		return nil
	}

	if w.skipping {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			return nil
		}
		chunk, w.skipping = chunk[i+1:], false
	}

	data := append(w.partial, chunk...)
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		if len(data) > w.maxLine {
			w.logger.Warn("line too long, discarding", "bytes", len(data), "max_line", w.maxLine)
			w.partial, w.skipping = nil, true
			return nil
		}
		w.partial = data
		return nil
	}
	w.partial = bytes.Clone(data[last+1:])

	var errs []error
	for _, raw := range bytes.Split(data[:last], []byte{'\n'}) {
		line := strings.TrimSuffix(string(raw), "\r")
		w.lines.Add(1)
		if err := w.handle(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// read returns the bytes appended since the last read.
func (w *Watcher) read() ([]byte, error) {
	f, err := os.Open(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		if w.info != nil {
			w.logger.Info("log file gone")
			w.info = nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	switch {
	case !w.started:
		w.started = true
		if !w.fromStart {
			w.offset = info.Size()
		}
		w.logger.Debug("log watch started", "offset", w.offset)
	case w.info == nil || !os.SameFile(w.info, info):
		w.logger.Info("log file replaced, reading from start")
		w.offset, w.partial, w.skipping = 0, nil, false
	case info.Size() < w.offset:
		w.logger.Info("log file truncated, reading from start", "size", info.Size(), "offset", w.offset)
		w.offset, w.partial, w.skipping = 0, nil, false
	}
	w.info = info

	n := min(info.Size()-w.offset, w.maxRead)
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	read, err := f.ReadAt(buf, w.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	w.offset += int64(read)
	return buf[:read], nil
}

func (w *Watcher) handle(ctx context.Context, line string) error {
	var errs []error
	for _, p := range w.patterns {
		args, ok, err := p.Match(line)
		if err != nil {
			w.logger.Warn("pattern match failed", "pattern", p.Name(), "error", err)
			continue
		}
		if !ok {
			continue
		}
		w.matches.Add(1)
		w.logger.Debug("pattern matched", "pattern", p.Name())

		e, err := p.factory(ctx, args)
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern %s: %w", p.Name(), err))
			continue
		}
		if e != nil {
			w.sink.AddEvent(ctx, e)
		}
	}
	return errors.Join(errs...)
}
