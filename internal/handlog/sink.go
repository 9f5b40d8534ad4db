package handlog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink is the durable side of a Log. Append buffers a line; Flush makes
// every buffered line durable; Discard drops whatever is not yet durable.
type Sink interface {
	Append(line []byte) error
	Flush() error
	Discard() error
	Close() error
}

// FileSink appends lines to a file and fsyncs on Flush. Bytes that were
// written but never synced are truncated away by Discard, so a file only
// ever grows by whole, durable lines.
type FileSink struct {
	path string

	mu      sync.Mutex
	file    *os.File
	pending [][]byte
	size    int64 // bytes in the file, including a torn tail
	written int64 // end of the last complete write
	synced  int64 // end of the last fsync
}

// OpenFileSink opens path for appending, creating it and its directory. A
// partial final line left by a crash is treated as unwritten and is
// truncated before the next write lands.
func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("handlog: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("handlog: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("handlog: stat %s: %w", path, err)
	}
	size := info.Size()
	complete, err := completeLength(path, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileSink{path: path, file: f, size: size, written: complete, synced: complete}, nil
}

// completeLength returns the offset just past the last newline in the first
// size bytes of path.
func completeLength(path string, size int64) (int64, error) {
	if size == 0 {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("handlog: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 4096)
	for end := size; end > 0; {
		start := max(end-int64(len(buf)), 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil {
			return 0, fmt.Errorf("handlog: read %s: %w", path, err)
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Append(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}
	s.pending = append(s.pending, line)
	return nil
}

func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}

	if len(s.pending) > 0 {
		if s.size != s.written {
			// A previous write was torn; drop the partial line first.
			if err := s.file.Truncate(s.written); err != nil {
				return fmt.Errorf("handlog: truncate torn write: %w", err)
			}
			s.size = s.written
		}
		var buf []byte
		for _, l := range s.pending {
			buf = append(buf, l...)
		}
		n, err := s.file.Write(buf)
		s.size += int64(n)
		if err != nil {
			return fmt.Errorf("handlog: write %s: %w", s.path, err)
		}
		s.written = s.size
		s.pending = nil
	}

	if s.synced != s.written {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("handlog: sync %s: %w", s.path, err)
		}
		s.synced = s.written
	}
	return nil
}

func (s *FileSink) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	if s.file == nil || s.size == s.synced {
		return nil
	}
	if err := s.file.Truncate(s.synced); err != nil {
		return fmt.Errorf("handlog: discard unsynced bytes: %w", err)
	}
	s.size, s.written = s.synced, s.synced
	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	closed := s.file == nil
	s.mu.Unlock()
	if closed {
		return nil
	}

	err := s.Flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return err
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}
