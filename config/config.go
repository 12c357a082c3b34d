// Package config loads process configuration from the environment. No
// third-party config/env library appears in the retrieval pack wired to
// anything this module needs (viper shows up once, unrelated); plain
// os.Getenv is the stdlib fallback documented in DESIGN.md.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ServiceUser carries the SASL/PLAIN credentials used to authenticate
// against the Kafka cluster.
type ServiceUser struct {
	Username string
	Password string
}

// Config is the full set of process configuration for
// cmd/behovsakkumulator.
type Config struct {
	KafkaBootstrapServers []string
	SpleisBehovtopic      string
	ServiceUser           ServiceUser
	StateDir              string
	CommitIntervalMs      int
}

const (
	defaultBootstrapServers = "localhost:9092"
	defaultTopic            = "behov"
	defaultStateDir         = "./data/state"
	defaultCommitIntervalMs = 1000
)

// Load reads Config from the environment, applying defaults suitable for
// local development wherever a variable is unset.
func Load() (Config, error) {
	cfg := Config{
		KafkaBootstrapServers: splitCSV(getenv("KAFKA_BOOTSTRAP_SERVERS", defaultBootstrapServers)),
		SpleisBehovtopic:      getenv("SPLEIS_BEHOVTOPIC", defaultTopic),
		ServiceUser: ServiceUser{
			Username: os.Getenv("SERVICE_USER_USERNAME"),
			Password: os.Getenv("SERVICE_USER_PASSWORD"),
		},
		StateDir:         getenv("STATE_DIR", defaultStateDir),
		CommitIntervalMs: defaultCommitIntervalMs,
	}

	if raw := os.Getenv("COMMIT_INTERVAL_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, errors.Wrap(err, "parsing COMMIT_INTERVAL_MS")
		}
		cfg.CommitIntervalMs = ms
	}

	if len(cfg.KafkaBootstrapServers) == 0 {
		return Config{}, errors.New("KAFKA_BOOTSTRAP_SERVERS must not be empty")
	}
	if cfg.SpleisBehovtopic == "" {
		return Config{}, errors.New("SPLEIS_BEHOVTOPIC must not be empty")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
