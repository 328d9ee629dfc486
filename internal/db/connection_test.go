package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoadmin/indexsync/internal/config"
)

func TestNewPool_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.DatabaseConfig
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "database configuration is required"},
		{name: "missing host", cfg: &config.DatabaseConfig{Port: 5432, User: "u", Database: "d"}, wantErr: "database host is required"},
		{name: "missing port", cfg: &config.DatabaseConfig{Host: "h", User: "u", Database: "d"}, wantErr: "database port is required"},
		{name: "missing user", cfg: &config.DatabaseConfig{Host: "h", Port: 5432, Database: "d"}, wantErr: "database user is required"},
		{name: "missing database", cfg: &config.DatabaseConfig{Host: "h", Port: 5432, User: "u"}, wantErr: "database name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPool(context.Background(), tt.cfg)
			require.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestApplyPoolSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		cfg          *config.DatabaseConfig
		wantMaxConns int32
		wantLifetime time.Duration
		wantErr      bool
	}{
		{name: "defaults", cfg: &config.DatabaseConfig{}, wantMaxConns: defaultMaxConns, wantLifetime: defaultConnMaxLifetime},
		{name: "overrides", cfg: &config.DatabaseConfig{MaxOpenConns: 40, ConnMaxLifetime: "1h"}, wantMaxConns: 40, wantLifetime: time.Hour},
		{name: "bad lifetime", cfg: &config.DatabaseConfig{ConnMaxLifetime: "forever"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			poolConfig, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/d?sslmode=disable")
			require.NoError(t, err)

			err = applyPoolSettings(poolConfig, tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMaxConns, poolConfig.MaxConns)
			assert.Equal(t, tt.wantLifetime, poolConfig.MaxConnLifetime)
			assert.Equal(t, defaultConnectTimeout, poolConfig.ConnConfig.ConnectTimeout)
		})
	}
}
