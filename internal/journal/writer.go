package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Writer appends JSON lines to hourly zstd-compressed files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under dir. Reopening an hour appends a
// new zstd frame to the existing file.
type Writer struct {
	dir    string
	prefix string
	now    func() time.Time
	open   func(path string) (io.WriteCloser, error)

	mu   sync.Mutex
	hour time.Time
	seg  *segment
}

func NewWriter(dir, prefix string) *Writer {
	return &Writer{dir: dir, prefix: prefix, now: time.Now, open: openAppend}
}

func openAppend(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Write encodes v as one line, switching files when the UTC hour changes.
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Truncate(time.Hour)
	if w.seg == nil || !hour.Equal(w.hour) {
		if err := w.closeSegment(); err != nil {
			return err
		}
		seg, err := newSegment(w.open, w.path(hour))
		if err != nil {
			return err
		}
		w.seg, w.hour = seg, hour
	}
	return w.seg.append(v)
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeSegment()
}

func (w *Writer) closeSegment() error {
	if w.seg == nil {
		return nil
	}
	err := w.seg.close()
	w.seg = nil
	if err != nil {
		return fmt.Errorf("close journal %s: %w", w.path(w.hour), err)
	}
	return nil
}

func (w *Writer) path(hour time.Time) string {
	return filepath.Join(w.dir, w.prefix+"-"+hour.Format("2006-01-02-15")+".jsonl.zst")
}

// segment is one open hourly file: sink <- zstd <- bufio <- json.
type segment struct {
	sink io.WriteCloser
	zw   *zstd.Encoder
	buf  *bufio.Writer
	enc  *json.Encoder
}

func newSegment(open func(string) (io.WriteCloser, error), path string) (*segment, error) {
	sink, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	zw, err := zstd.NewWriter(sink, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("journal encoder: %w", err)
	}
	buf := bufio.NewWriterSize(zw, 64*1024)
	return &segment{sink: sink, zw: zw, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (s *segment) append(v any) error {
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	return s.buf.Flush()
}

// close tears the chain down outermost first and reports the first failure.
func (s *segment) close() error {
	var first error
	for _, step := range []func() error{s.buf.Flush, s.zw.Close, s.sink.Close} {
		if err := step(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Files lists the journal files written under dir with the given prefix, in
// chronological order.
func Files(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadFile decodes every line of one journal file. Files still held open by
// a Writer may be missing their last block.
func ReadFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []T
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var v T
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			return out, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		out = append(out, v)
	}
	return out, scanner.Err()
}
