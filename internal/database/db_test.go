package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Profile: ProfileStandard,
		Name:    "test",
	})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "test", db.Name())
	assert.NoError(t, db.Ping(context.Background()))

	_, err = db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO t (v) VALUES (?)`, "hello")
	require.NoError(t, err)

	var v string
	require.NoError(t, db.QueryRow(`SELECT v FROM t WHERE id = 1`).Scan(&v))
	assert.Equal(t, "hello", v)
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "test.db")
	db, err := New(Config{Path: path, Name: "nested"})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))
}

func TestBuildConnectionString(t *testing.T) {
	t.Run("standard profile", func(t *testing.T) {
		s := buildConnectionString("/tmp/x.db", ProfileStandard)
		assert.True(t, strings.HasPrefix(s, "/tmp/x.db?_pragma=journal_mode(WAL)"))
		assert.Contains(t, s, "synchronous(NORMAL)")
		assert.Contains(t, s, "foreign_keys(1)")
	})

	t.Run("cache profile", func(t *testing.T) {
		s := buildConnectionString("/tmp/x.db", ProfileCache)
		assert.Contains(t, s, "synchronous(OFF)")
	})
}
