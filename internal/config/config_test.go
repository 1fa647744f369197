package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "test-key")
	t.Setenv("WEBHOOK_API_KEY", "hook-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, 45*time.Minute, cfg.Payment.OrderTTL)
	assert.Equal(t, "SEVQR", cfg.Payment.ProtocolTag)
	assert.Equal(t, "TKPAT1", cfg.Payment.SubAccountTag)
	assert.Equal(t, "AT", cfg.Payment.CheckoutCodePrefix)
	assert.Equal(t, time.Minute, cfg.Sweeper.ExpireInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Sweeper.Retention)
	assert.Equal(t, 500, cfg.Sweeper.BatchSize)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestLoad_RequiresSecrets(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "MissingEncryptionKey",
			env:  map[string]string{"ENCRYPTION_KEY": "", "WEBHOOK_API_KEY": "hook-secret"},
		},
		{
			name: "BlankEncryptionKey",
			env:  map[string]string{"ENCRYPTION_KEY": "   ", "WEBHOOK_API_KEY": "hook-secret"},
		},
		{
			name: "MissingWebhookKey",
			env:  map[string]string{"ENCRYPTION_KEY": "test-key", "WEBHOOK_API_KEY": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "must not be empty")
		})
	}
}

func TestLoad_RejectsOversizedBatch(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "test-key")
	t.Setenv("WEBHOOK_API_KEY", "hook-secret")
	t.Setenv("SWEEP_BATCH_SIZE", "1000")

	_, err := Load()
	assert.Error(t, err)
}

func TestStoreConfig_DSNs(t *testing.T) {
	s := StoreConfig{
		MySQLUser: "u", MySQLPassword: "p", MySQLHost: "db", MySQLPort: 3306, MySQLName: "shop",
		PostgresUser: "u", PostgresPassword: "p", PostgresHost: "pg", PostgresPort: 5432, PostgresName: "shop", PostgresSSLMode: "disable",
		SQLitePath: "/tmp/x.db",
	}
	assert.Equal(t, "u:p@tcp(db:3306)/shop?parseTime=true&loc=UTC", s.MySQLDSN())
	assert.Equal(t, "postgres://u:p@pg:5432/shop?sslmode=disable", s.PostgresDSN())
	assert.Contains(t, s.SQLiteDSN(), "file:/tmp/x.db?")
}
