package client

import (
	"testing"

	"github.com/and161185/cipherchat/internal/crypto/e2e"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestKeyring_Transitions(t *testing.T) {
	t.Parallel()

	k := NewKeyring()
	gid := uuid.Must(uuid.NewV4())

	require.Equal(t, NoKey, k.State(gid))
	_, ok := k.Key(gid)
	require.False(t, ok)

	require.True(t, k.MarkRequested(gid))
	require.Equal(t, KeyRequested, k.State(gid))
	_, ok = k.Key(gid)
	require.False(t, ok, "requested is not received")

	first, err := e2e.GenerateGroupKey()
	require.NoError(t, err)
	second, err := e2e.GenerateGroupKey()
	require.NoError(t, err)

	require.True(t, k.Set(gid, first))
	require.False(t, k.Set(gid, second), "first key wins")
	got, ok := k.Key(gid)
	require.True(t, ok)
	require.Equal(t, first, got)

	require.False(t, k.MarkRequested(gid), "no request once the key is held")
	require.Equal(t, KeyReceived, k.State(gid))

	k.Forget(gid)
	require.Equal(t, NoKey, k.State(gid))
}

func TestKeyring_Reset(t *testing.T) {
	t.Parallel()

	k := NewKeyring()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	key, err := e2e.GenerateGroupKey()
	require.NoError(t, err)
	k.Set(a, key)
	k.MarkRequested(b)

	k.Reset()
	require.Equal(t, NoKey, k.State(a))
	require.Equal(t, NoKey, k.State(b))
}

func TestKeyState_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "no key", NoKey.String())
	require.Equal(t, "key requested", KeyRequested.String())
	require.Equal(t, "key received", KeyReceived.String())
	require.Equal(t, "unknown", KeyState(42).String())
}
