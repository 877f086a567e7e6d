package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suna-chat/internal/localstore"
)

func TestOutbox_AddCoalescesPerSession(t *testing.T) {
	ctx := context.Background()
	box := New(localstore.NewMemoryBackend(), nil)

	first, err := box.Add(ctx, "s1", errors.New("timeout"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempts)
	assert.Len(t, first.ID, 26)

	second, err := box.Add(ctx, "s1", errors.New("503"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempts)
	assert.Equal(t, "503", second.LastError)
	assert.Equal(t, 1, box.Len(ctx))
}

func TestOutbox_HoldKeepsEntryUntilReAdded(t *testing.T) {
	ctx := context.Background()
	box := New(localstore.NewMemoryBackend(), nil)

	held, err := box.Hold(ctx, "s1", errors.New("422 invalid title"))
	require.NoError(t, err)
	assert.True(t, held.Held)
	assert.Equal(t, 1, held.Attempts)
	assert.True(t, box.Has(ctx, "s1"))

	again, err := box.Add(ctx, "s1", errors.New("503"))
	require.NoError(t, err)
	assert.Equal(t, held.ID, again.ID)
	assert.False(t, again.Held)
	assert.Equal(t, 2, again.Attempts)

	entries := box.List(ctx)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Held)
}

func TestOutbox_ListOldestFirstAndRemove(t *testing.T) {
	ctx := context.Background()
	box := New(localstore.NewMemoryBackend(), nil)
	clock := int64(1_000)
	box.now = func() time.Time { clock += 10; return time.UnixMilli(clock) }

	_, err := box.Add(ctx, "b", nil)
	require.NoError(t, err)
	_, err = box.Add(ctx, "a", nil)
	require.NoError(t, err)

	entries := box.List(ctx)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].SessionID)
	assert.Equal(t, "a", entries[1].SessionID)

	require.NoError(t, box.Remove(ctx, "b"))
	require.NoError(t, box.Remove(ctx, "unknown"))
	assert.False(t, box.Has(ctx, "b"))
	assert.True(t, box.Has(ctx, "a"))
}

func TestOutbox_ScopedPerUser(t *testing.T) {
	ctx := context.Background()
	base := New(localstore.NewMemoryBackend(), nil)
	_, err := base.WithScope(1).Add(ctx, "s", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, base.WithScope(1).Len(ctx))
	assert.Equal(t, 0, base.WithScope(2).Len(ctx))
	assert.Equal(t, 0, base.Len(ctx))
}
