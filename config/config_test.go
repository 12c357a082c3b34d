package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"KAFKA_BOOTSTRAP_SERVERS", "SPLEIS_BEHOVTOPIC",
		"SERVICE_USER_USERNAME", "SERVICE_USER_PASSWORD",
		"STATE_DIR", "COMMIT_INTERVAL_MS",
	}
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		if had {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBootstrapServers)
	assert.Equal(t, "behov", cfg.SpleisBehovtopic)
	assert.Equal(t, "./data/state", cfg.StateDir)
	assert.Equal(t, 1000, cfg.CommitIntervalMs)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker1:9092, broker2:9092")
	os.Setenv("SPLEIS_BEHOVTOPIC", "mytopic")
	os.Setenv("COMMIT_INTERVAL_MS", "250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBootstrapServers)
	assert.Equal(t, "mytopic", cfg.SpleisBehovtopic)
	assert.Equal(t, 250, cfg.CommitIntervalMs)
}

func TestLoad_RejectsInvalidCommitInterval(t *testing.T) {
	clearEnv(t)
	os.Setenv("COMMIT_INTERVAL_MS", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}
