package deliverylog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultFilePath is used when no log path is configured.
const DefaultFilePath = "logs/email-logs.txt"

// FileSink appends rendered lines to a text file.
type FileSink struct {
	path string
	loc  *time.Location
	mu   sync.Mutex
}

// NewFileSink creates a sink writing to path with timestamps in loc.
func NewFileSink(path string, loc *time.Location) *FileSink {
	if path == "" {
		path = DefaultFilePath
	}
	if loc == nil {
		loc = time.Local
	}
	return &FileSink{path: path, loc: loc}
}

// Path returns the log file location.
func (s *FileSink) Path() string {
	return s.path
}

// Append writes one line.
func (s *FileSink) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open delivery log: %w", err)
	}
	if _, err := f.WriteString(e.Format(s.loc) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write delivery log: %w", err)
	}
	return f.Close()
}

// Lines reads the file. A missing file is an empty log.
func (s *FileSink) Lines(_ context.Context) ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to open delivery log: %w", err)
	}
	defer f.Close()

	// bufio.Reader has no line limit, so one oversized line written by an
	// older version cannot hide the rest of the log.
	lines := []string{}
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			lines = append(lines, line)
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read delivery log: %w", err)
		}
	}
}
