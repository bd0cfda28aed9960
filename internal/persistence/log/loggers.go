package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/pipeline"
)

// JSONLZstdWriter appends one JSON document per line to zstd-compressed
// files, starting a new file every UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	// Flush the zstd block too so a crash loses at most the current record.
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// FaultRecord is the on-disk form of a generation fault.
type FaultRecord struct {
	Time  string           `json:"time"`
	Coord coord.ChunkCoord `json:"coord"`
	Seed  int64            `json:"seed"`
	Stage string           `json:"stage"`
	Error string           `json:"error"`
	Stack string           `json:"stack,omitempty"`
}

// FaultLogger writes one JSONL entry per generation fault (compressed).
// It satisfies pipeline.FaultRecorder.
type FaultLogger struct {
	w *JSONLZstdWriter

	mu      sync.Mutex
	lastErr error
}

func NewFaultLogger(dir string) *FaultLogger {
	return &FaultLogger{w: NewJSONLZstdWriter(dir, "faults")}
}

func (l *FaultLogger) RecordFault(f *pipeline.GenerationFault) {
	if l == nil || f == nil {
		return
	}
	rec := FaultRecord{
		Time:  l.w.now().UTC().Format(time.RFC3339Nano),
		Coord: f.Coord,
		Seed:  f.Seed,
		Stage: f.Stage.String(),
		Stack: string(f.Stack),
	}
	if f.Err != nil {
		rec.Error = f.Err.Error()
	}
	if err := l.w.Write(rec); err != nil {
		l.mu.Lock()
		l.lastErr = err
		l.mu.Unlock()
	}
}

// Err reports the most recent write failure, if any.
func (l *FaultLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *FaultLogger) Close() error { return l.w.Close() }
