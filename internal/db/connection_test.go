package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		query  string
		want   string
	}{
		{DriverSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DriverPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DriverPostgres, "SELECT 1", "SELECT 1"},
		{DriverPostgres, "INSERT INTO t (x) VALUES (?) -- çã", "INSERT INTO t (x) VALUES ($1) -- çã"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rebind(tt.driver, tt.query))
	}
}

func TestOpenSQLiteMemory(t *testing.T) {
	conn, err := Open(context.Background(), DriverSQLite, ":memory:", 0)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.DB.Exec(`CREATE TABLE t (v TEXT)`)
	require.NoError(t, err)
	_, err = conn.DB.Exec(conn.Rebind(`INSERT INTO t (v) VALUES (?)`), "ok")
	require.NoError(t, err)

	var v string
	require.NoError(t, conn.DB.QueryRow(`SELECT v FROM t`).Scan(&v))
	assert.Equal(t, "ok", v)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "", 0)
	assert.Error(t, err)
}

func TestPostgresDSNFromEnv(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGDATABASE", "xref")
	dsn := PostgresDSNFromEnv()
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "dbname=xref")
	assert.Contains(t, dsn, "sslmode=disable")
}
