package credential

import (
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendValkey = "valkey"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend string
	Path    string
	Valkey  ValkeyConfig
}

// Open builds the Store described by opts. An empty backend means file.
func Open(opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		return NewFileStore(opts.Path, logger), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendValkey:
		return NewValkeyStore(opts.Valkey, logger)
	default:
		return nil, fmt.Errorf("unknown credential store backend %q", opts.Backend)
	}
}
