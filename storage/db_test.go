package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	ok, err := db.Has([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("a")))
	_, err = db.Get([]byte("a"))
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("mutable")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("mutable"), got)
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("campaign"), []byte("state")))

	got, err := db.Get([]byte("campaign"))
	require.NoError(t, err)
	require.Equal(t, []byte("state"), got)

	_, err = db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))
}
