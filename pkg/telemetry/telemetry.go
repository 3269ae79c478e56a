// Package telemetry records per-operation step timings and appends them as
// JSON lines to one file per operation name. Tracing is off until Init is
// called; Track then still returns a usable trace that records nothing.
package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"chatstore/pkg/state/logger"
)

type Step struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

type Trace struct {
	Name    string    `json:"name"`
	Start   time.Time `json:"start"`
	Steps   []Step    `json:"steps"`
	TotalMS float64   `json:"total_ms"`

	lastMark time.Time
	tel      *Telemetry
}

// Options tunes the background writer.
type Options struct {
	BufferSize    int
	QueueCapacity int
	FlushInterval time.Duration
	// MaxFileSize truncates an operation's file once it grows past this
	// many bytes. Zero disables truncation.
	MaxFileSize int64
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 32 * 1024
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 1024
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	return o
}

// Telemetry owns the trace queue and the per-operation files.
type Telemetry struct {
	dir  string
	opts Options

	mu      sync.Mutex
	files   map[string]*os.File
	buffers map[string]*bufio.Writer

	traces   chan *Trace
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64
}

var (
	globalMu sync.Mutex
	global   *Telemetry
)

// Init starts the process-wide writer under dir.
func Init(dir string, opts Options) error {
	t, err := New(dir, opts)
	if err != nil {
		return err
	}
	globalMu.Lock()
	prev := global
	global = t
	globalMu.Unlock()
	prev.Close()
	return nil
}

// Track starts a trace on the process-wide writer.
func Track(name string) *Trace {
	globalMu.Lock()
	t := global
	globalMu.Unlock()
	return t.Track(name)
}

// Close stops the process-wide writer and flushes what it holds.
func Close() {
	globalMu.Lock()
	t := global
	global = nil
	globalMu.Unlock()
	t.Close()
}

func New(dir string, opts Options) (*Telemetry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: create %s: %w", dir, err)
	}
	opts = opts.withDefaults()
	t := &Telemetry{
		dir:     dir,
		opts:    opts,
		files:   make(map[string]*os.File),
		buffers: make(map[string]*bufio.Writer),
		traces:  make(chan *Trace, opts.QueueCapacity),
		stopCh:  make(chan struct{}),
	}
	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

// Track starts a trace bound to t. A nil t yields a trace that is never
// written.
func (t *Telemetry) Track(name string) *Trace {
	now := time.Now()
	return &Trace{Name: name, Start: now, lastMark: now, tel: t}
}

// Dropped counts traces discarded because the queue was full.
func (t *Telemetry) Dropped() int64 {
	if t == nil {
		return 0
	}
	return t.dropped.Load()
}

// Close drains the queue, flushes and closes every file. It is safe to
// call more than once.
func (t *Telemetry) Close() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
	})
}

// Mark records the time elapsed since the previous mark under label.
func (tr *Trace) Mark(label string) {
	now := time.Now()
	tr.Steps = append(tr.Steps, Step{Name: label, Duration: ms(now.Sub(tr.lastMark))})
	tr.lastMark = now
}

// Finish closes the trace and hands it to the writer. Later calls are
// no-ops, so it can be deferred next to explicit calls.
func (tr *Trace) Finish() {
	t := tr.tel
	if t == nil {
		return
	}
	tr.tel = nil
	tr.TotalMS = ms(time.Since(tr.Start))
	var marked float64
	for _, s := range tr.Steps {
		marked += s.Duration
	}
	if rest := tr.TotalMS - marked; rest > 0.001 {
		tr.Steps = append(tr.Steps, Step{Name: "unmarked", Duration: rest})
	}
	select {
	case <-t.stopCh:
		t.dropped.Add(1)
		return
	default:
	}
	select {
	case t.traces <- tr:
	default:
		t.dropped.Add(1)
	}
}

func ms(d time.Duration) float64 {
	return d.Seconds() * 1000
}

func (t *Telemetry) writerLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case tr := <-t.traces:
			t.write(tr)
		case <-ticker.C:
			t.flush(true)
		case <-t.stopCh:
			for {
				select {
				case tr := <-t.traces:
					t.write(tr)
					continue
				default:
				}
				break
			}
			t.flush(false)
			t.closeFiles()
			return
		}
	}
}

func (t *Telemetry) write(tr *Trace) {
	data, err := json.Marshal(tr)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.bufferFor(tr.Name)
	if b == nil {
		return
	}
	b.Write(data)
	b.WriteByte('\n')
}

func (t *Telemetry) flush(truncate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, b := range t.buffers {
		if err := b.Flush(); err != nil {
			logger.Warn("telemetry_flush_failed", "op", name, "error", err)
		}
		if !truncate || t.opts.MaxFileSize <= 0 {
			continue
		}
		f := t.files[name]
		fi, err := f.Stat()
		if err != nil || fi.Size() <= t.opts.MaxFileSize {
			continue
		}
		if err := f.Truncate(0); err != nil {
			logger.Warn("telemetry_truncate_failed", "op", name, "error", err)
			continue
		}
		logger.Info("telemetry_truncated", "op", name, "limit", t.opts.MaxFileSize)
	}
}

func (t *Telemetry) closeFiles() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.files {
		f.Sync()
		f.Close()
	}
	t.files = map[string]*os.File{}
	t.buffers = map[string]*bufio.Writer{}
}

// Path is the file traces named op are appended to.
func (t *Telemetry) Path(op string) string {
	return filepath.Join(t.dir, op+".jsonl")
}

func (t *Telemetry) bufferFor(op string) *bufio.Writer {
	if b, ok := t.buffers[op]; ok {
		return b
	}
	f, err := os.OpenFile(t.Path(op), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warn("telemetry_open_failed", "op", op, "error", err)
		return nil
	}
	b := bufio.NewWriterSize(f, t.opts.BufferSize)
	t.files[op] = f
	t.buffers[op] = b
	return b
}
