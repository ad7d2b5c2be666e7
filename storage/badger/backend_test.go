package badger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/digest/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_CreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/db"
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	assert.DirExists(t, dir)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(func(tx *badger.Txn) error { return nil }, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestBackendUpdate_RetriesConflicts(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	key := []byte("counter")

	// Concurrent read-modify-write increments must not lose updates.
	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := backend.Update(ctx, func(tx *badger.Txn) error {
				var n byte
				item, err := tx.Get(key)
				if err == nil {
					val, err := item.ValueCopy(nil)
					if err != nil {
						return err
					}
					n = val[0]
				} else if !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				return tx.Set(key, []byte{n + 1})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	err = backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		require.NoError(t, err)
		val, err := item.ValueCopy(nil)
		require.NoError(t, err)
		assert.Equal(t, byte(writers), val[0])
		return nil
	}, false)
	require.NoError(t, err)
}

func TestBackendUpdate_FunctionErrorAborts(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	boom := errors.New("boom")
	var calls atomic.Int32
	err = backend.Update(context.Background(), func(tx *badger.Txn) error {
		calls.Add(1)
		if err := tx.Set([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())

	err = backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte("k"))
		return err
	}, false)
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestBackendUpdate_CanceledContext(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = backend.Update(ctx, func(tx *badger.Txn) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackendDeleteKeys(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	err = backend.WriteBatch(ctx, func(wb *badger.WriteBatch) error {
		for _, k := range []string{"p:a", "p:b", "p:keep", "q:a"} {
			if err := wb.Set([]byte(k), []byte("v")); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	n, err := backend.DeleteKeys(ctx, []byte("p:"), func(key []byte) bool {
		return string(key) == "p:keep"
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	err = backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte("p:keep"))
		assert.NoError(t, err)
		_, err = tx.Get([]byte("q:a"))
		assert.NoError(t, err)
		_, err = tx.Get([]byte("p:a"))
		assert.ErrorIs(t, err, badger.ErrKeyNotFound)
		return nil
	}, false)
	require.NoError(t, err)

	n, err = backend.DeleteKeys(ctx, []byte("missing:"), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChunkKeyOrdering(t *testing.T) {
	a := makeChunkKey(1, 2, 9)
	b := makeChunkKey(1, 2, 10)
	c := makeChunkKey(1, 3, 0)
	assert.Less(t, string(a), string(b))
	assert.Less(t, string(b), string(c))
	assert.Equal(t, uint64(3), chunkKeyGeneration(c))
	assert.Equal(t, uint64(0), chunkKeyGeneration([]byte("short")))
}
