package scan

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *pebble.DB {
	db, err := pebble.Open(t.TempDir(), &pebble.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMutatorBatches(t *testing.T) {
	db := openTestDB(t)
	mut := newMutator(db, pebble.NoSync, nil, 2, "test")

	commits := 0
	inner := mut.commit
	mut.commit = func(b *pebble.Batch) error {
		commits++
		return inner(b)
	}

	ctx := context.Background()
	for i := byte(0); i < 5; i++ {
		require.NoError(t, mut.Set(ctx, []byte{'k', i}, []byte{i}))
	}
	assert.Equal(t, 2, commits)
	require.NoError(t, mut.Flush(ctx))
	assert.Equal(t, 3, commits)

	for i := byte(0); i < 5; i++ {
		_, closer, err := db.Get([]byte{'k', i})
		require.NoError(t, err, "key %d", i)
		require.NoError(t, closer.Close())
	}

	// Nothing pending: flush is a no-op.
	require.NoError(t, mut.Flush(ctx))
	assert.Equal(t, 3, commits)
}

func TestMutatorDelete(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Set([]byte("gone"), []byte{1}, pebble.NoSync))

	mut := newMutator(db, pebble.NoSync, nil, 16, "test")
	ctx := context.Background()
	require.NoError(t, mut.Delete(ctx, []byte("gone")))
	require.NoError(t, mut.Flush(ctx))

	_, _, err := db.Get([]byte("gone"))
	assert.ErrorIs(t, err, pebble.ErrNotFound)
}

func TestMutatorFlushRetries(t *testing.T) {
	db := openTestDB(t)
	mut := newMutator(db, pebble.NoSync, nil, 16, "test")

	attempts := 0
	inner := mut.commit
	mut.commit = func(b *pebble.Batch) error {
		attempts++
		if attempts < 3 {
			return errors.New("backend rejected batch")
		}
		return inner(b)
	}

	ctx := context.Background()
	require.NoError(t, mut.Set(ctx, []byte("retried"), []byte{1}))
	require.NoError(t, mut.Flush(ctx))
	assert.Equal(t, 3, attempts)

	_, closer, err := db.Get([]byte("retried"))
	require.NoError(t, err)
	require.NoError(t, closer.Close())
}

func TestMutatorFlushGivesUp(t *testing.T) {
	db := openTestDB(t)
	mut := newMutator(db, pebble.NoSync, nil, 16, "test")

	attempts := 0
	mut.commit = func(b *pebble.Batch) error {
		attempts++
		return errors.New("backend down")
	}

	ctx := context.Background()
	require.NoError(t, mut.Set(ctx, []byte("lost"), []byte{1}))
	err := mut.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, maxFlushAttempts, attempts)
}

func TestMutatorFlushHonorsCancellation(t *testing.T) {
	db := openTestDB(t)
	mut := newMutator(db, pebble.NoSync, nil, 16, "test")
	mut.commit = func(b *pebble.Batch) error {
		return errors.New("backend down")
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, mut.Set(ctx, []byte("k"), []byte{1}))
	cancel()
	err := mut.Flush(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
