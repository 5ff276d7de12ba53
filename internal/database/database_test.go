package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		db, err := Connect(Config{
			Driver:           "sqlite9",
			ConnectionString: "file::memory:",
		})
		require.Error(t, err)
		assert.Nil(t, db)
		assert.Contains(t, err.Error(), "sql: unknown driver")
	})

	t.Run("unreachable server", func(t *testing.T) {
		db, err := Connect(Config{
			Driver:             "postgres",
			ConnectionString:   "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1",
			MaxOpenConnections: 2,
			MaxIdleConnections: 1,
			ConnMaxLifetime:    time.Minute,
		})
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}
