package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := Config{
		User:     "chat",
		Password: "secret",
		Host:     "db.internal",
		Port:     6432,
		DBName:   "roomchat",
	}
	require.Equal(t,
		"user=chat password=secret host=db.internal port=6432 dbname=roomchat sslmode=disable",
		cfg.DSN(),
	)
}

func TestTestConfigTargetsTestDatabase(t *testing.T) {
	require.Equal(t, "roomchat_test", TestConfig.DBName)
}
