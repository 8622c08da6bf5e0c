package db

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agent.db")

	db, err := ConnectWithOptions(Options{Driver: DriverSQLite, DatabasePath: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE t (v TEXT)")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestConnectSQLiteMemory(t *testing.T) {
	db, err := ConnectWithOptions(Options{Driver: DriverSQLite, DatabasePath: MemoryPath, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE t (v TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t VALUES ('x')")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM t").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestConnectRejectsBadOptions(t *testing.T) {
	_, err := ConnectWithOptions(Options{Driver: "postgres", DatabasePath: MemoryPath})
	assert.Error(t, err)

	_, err = ConnectWithOptions(Options{Driver: DriverSQLite})
	assert.Error(t, err)
}
