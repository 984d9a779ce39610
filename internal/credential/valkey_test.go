package credential

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValkeyStore(t *testing.T) (*ValkeyStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := NewValkeyStore(ValkeyConfig{
		Address:     mr.Addr(),
		AlwaysRESP2: true,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s, mr
}

func TestValkeyStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestValkeyStore(t)

	_, ok := s.Load(ctx)
	assert.False(t, ok, "missing key should be absent")

	expiry := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, TokenSet{AccessToken: "a", RefreshToken: "r", Expiry: expiry}))

	got, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, got.Expiry.Equal(expiry))

	assert.True(t, mr.Exists(DefaultValkeyKey))
}

func TestValkeyStore_CorruptIsAbsent(t *testing.T) {
	s, mr := newTestValkeyStore(t)
	require.NoError(t, mr.Set(DefaultValkeyKey, "{broken"))

	_, ok := s.Load(context.Background())
	assert.False(t, ok)
}

func TestNewValkeyStore_RequiresAddress(t *testing.T) {
	_, err := NewValkeyStore(ValkeyConfig{}, nil)
	assert.Error(t, err)
}
