package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchkit/dpm-relay/internal/dpm"
)

func TestMemoryStoreCopiesOnReadAndWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	in := &dpm.Session{Orders: map[string]dpm.Record{"o": {"k": "v"}}}
	require.NoError(t, store.Set(ctx, "s", in))

	// mutating the caller's copy must not leak into the store
	in.Orders["o"]["k"] = "changed"

	out, err := store.Get(ctx, "s")
	require.NoError(t, err)
	require.Equal(t, "v", out.Orders["o"]["k"])

	out.Orders["o"]["k"] = "changed again"
	again, err := store.Get(ctx, "s")
	require.NoError(t, err)
	require.Equal(t, "v", again.Orders["o"]["k"])
}

func TestMemoryStoreAbsentAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sess, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, sess)

	require.NoError(t, store.Set(ctx, "s", &dpm.Session{}))
	require.Equal(t, 1, store.Len())
	require.NoError(t, store.Set(ctx, "s", nil))
	require.Equal(t, 0, store.Len())
}
