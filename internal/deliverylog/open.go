package deliverylog

import (
	"fmt"
	"time"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Options selects and configures a Sink.
type Options struct {
	Backend  string
	Path     string
	Location *time.Location
}

// Open builds the Sink described by opts. An empty backend means file.
// The returned close function releases the sink's resources.
func Open(opts Options) (Sink, func() error, error) {
	switch opts.Backend {
	case "", BackendFile:
		return NewFileSink(opts.Path, opts.Location), func() error { return nil }, nil
	case BackendSQLite:
		path := opts.Path
		if path == "" {
			path = "bulkmail.db"
		}
		s, err := NewSQLiteSink(path, opts.Location)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown delivery log backend %q", opts.Backend)
	}
}
