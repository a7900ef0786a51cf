package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optimal-execution/internal/config"
)

func TestNewSQLite_InMemorySharesOneConnection(t *testing.T) {
	st, err := NewSQLite(config.DatabaseConfig{InMemory: true})
	require.NoError(t, err)
	defer st.Close()

	_, err = st.DB().Exec(`CREATE TABLE t (v INTEGER)`)
	require.NoError(t, err)
	_, err = st.DB().Exec(`INSERT INTO t (v) VALUES (1)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestNewSQLite_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "db.sqlite")
	st, err := NewSQLite(config.DatabaseConfig{Path: path, MaxOpenConns: 2, MaxIdleConns: 2})
	require.NoError(t, err)
	require.NoError(t, st.Close())
	assert.FileExists(t, path)
}
