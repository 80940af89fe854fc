package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/visitguard/internal/errs"
)

var testMaster = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))

func requiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VISITGUARD_SERVER_JWT_KEY", "secret")
	t.Setenv("VISITGUARD_KMS_MASTER_KEY", testMaster)
}

func TestLoad_Defaults(t *testing.T) {
	requiredEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8443", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Limits.MaxPerHour)
	assert.Equal(t, 50, cfg.Limits.MaxPerDay)
	assert.Equal(t, 3, cfg.Limits.MaxPerVisit)
	assert.Equal(t, 24*time.Hour, cfg.Webhook.NonceTTL)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "visitguard:nonce:", cfg.Redis.NoncePrefix)
	assert.Empty(t, cfg.Database.DSN)
	assert.True(t, cfg.Database.Migrate)

	m, err := cfg.KMS.Master()
	require.NoError(t, err)
	assert.Len(t, m, 32)
	s, err := cfg.KMS.Salt()
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	requiredEnv(t)
	path := filepath.Join(t.TempDir(), "visitguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
limits:
  max_per_hour: 4
  max_per_visit: 2
webhook:
  timeout: 3s
  per_webhook_rps: 2.5
`), 0o600))
	t.Setenv("VISITGUARD_LIMITS_MAX_PER_VISIT", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Limits.MaxPerHour)
	assert.Equal(t, 50, cfg.Limits.MaxPerDay)
	assert.Equal(t, 9, cfg.Limits.MaxPerVisit)
	assert.Equal(t, 3*time.Second, cfg.Webhook.Timeout)
	assert.InDelta(t, 2.5, cfg.Webhook.PerWebhookRPS, 1e-9)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	requiredEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"no jwt key":     {"VISITGUARD_KMS_MASTER_KEY": testMaster},
		"short master":   {"VISITGUARD_SERVER_JWT_KEY": "s", "VISITGUARD_KMS_MASTER_KEY": "c2hvcnQ="},
		"zero limit":     {"VISITGUARD_SERVER_JWT_KEY": "s", "VISITGUARD_KMS_MASTER_KEY": testMaster, "VISITGUARD_LIMITS_MAX_PER_DAY": "0"},
		"short salt":     {"VISITGUARD_SERVER_JWT_KEY": "s", "VISITGUARD_KMS_MASTER_KEY": testMaster, "VISITGUARD_KMS_INDEX_SALT": "c2FsdA=="},
		"zero nonce ttl": {"VISITGUARD_SERVER_JWT_KEY": "s", "VISITGUARD_KMS_MASTER_KEY": testMaster, "VISITGUARD_WEBHOOK_NONCE_TTL": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}
