package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/valkey-io/valkey-go"

	"github.com/teemow/bulkmail/internal/logging"
)

// DefaultValkeyKey is the key the token set is stored under.
const DefaultValkeyKey = "bulkmail:credential"

// ValkeyConfig configures the Valkey backend.
type ValkeyConfig struct {
	// Address is host:port of the Valkey server.
	Address  string
	Password string
	DB       int
	Key      string

	// DisableCache turns off client-side caching. Required for servers that
	// do not support RESP3 client tracking.
	DisableCache bool

	// AlwaysRESP2 skips the RESP3 handshake. Implies DisableCache.
	AlwaysRESP2 bool
}

// ValkeyStore keeps the TokenSet as a JSON string under a single key.
type ValkeyStore struct {
	client valkey.Client
	key    string
	logger *slog.Logger
}

// NewValkeyStore connects to Valkey and returns a store.
func NewValkeyStore(cfg ValkeyConfig, logger *slog.Logger) (*ValkeyStore, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultValkeyKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{cfg.Address},
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: cfg.DisableCache || cfg.AlwaysRESP2,
		AlwaysRESP2:  cfg.AlwaysRESP2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return &ValkeyStore{
		client: client,
		key:    cfg.Key,
		logger: logger.With(logging.Operation("credential.valkey")),
	}, nil
}

// Save writes ts under the configured key.
func (s *ValkeyStore) Save(ctx context.Context, ts TokenSet) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("failed to marshal token set: %w", err)
	}
	cmd := s.client.B().Set().Key(s.key).Value(string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save token set: %w", err)
	}
	return nil
}

// Load reads the key. A missing key, a connection failure and a corrupt value
// all report false.
func (s *ValkeyStore) Load(ctx context.Context) (*TokenSet, bool) {
	val, err := s.client.Do(ctx, s.client.B().Get().Key(s.key).Build()).ToString()
	if err != nil {
		if !valkey.IsValkeyNil(err) {
			s.logger.Warn("failed to read credential from valkey", logging.Err(err))
		}
		return nil, false
	}
	return decode([]byte(val), s.logger)
}

// Close releases the client connections.
func (s *ValkeyStore) Close() {
	s.client.Close()
}
