package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/teemow/bulkmail/internal/logging"
)

// DefaultPath is used when no credential path is configured.
const DefaultPath = "token.json"

// FileStore keeps the TokenSet as a JSON document on disk.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		logger: logger.With(logging.Operation("credential.file")),
	}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes ts to a temporary file next to the target and renames it into place.
func (s *FileStore) Save(_ context.Context, ts TokenSet) error {
	data, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token set: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set credential file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	s.logger.Debug("token set saved", slog.String("path", s.path))
	return nil
}

// Load reads the stored TokenSet. Missing and corrupt files both report false.
func (s *FileStore) Load(_ context.Context) (*TokenSet, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("credential file unreadable", slog.String("path", s.path), logging.Err(err))
		}
		return nil, false
	}
	return decode(data, s.logger)
}

func decode(data []byte, logger *slog.Logger) (*TokenSet, bool) {
	var ts TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		logger.Warn("stored credential is corrupt, treating as absent", logging.Err(err))
		return nil, false
	}
	if ts.AccessToken == "" && ts.RefreshToken == "" {
		logger.Warn("stored credential is empty, treating as absent")
		return nil, false
	}
	return &ts, true
}
