package transport

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTopic(t *testing.T) {
	require.Equal(t, "psi.round1.v1.default", RoundTopic("default", 1))
	require.Equal(t, "psi.round2.v1.staging", RoundTopic("staging", 2))
}

func TestParseConfigRequiresBrokers(t *testing.T) {
	os.Unsetenv("KAFKA_BROKERS")
	_, err := ParseConfig()
	require.Error(t, err)
}

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_MIN_BYTES", "")
	t.Setenv("KAFKA_MAX_BYTES", "")
	t.Setenv("KAFKA_MAX_WAIT_MS", "")

	conf, err := ParseConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"broker1:9092", "broker2:9092"}, conf.Brokers)
	require.Equal(t, DefaultMinBytes, conf.MinBytes)
	require.Equal(t, int(DefaultMaxBytes), conf.MaxBytes)
	require.Equal(t, DefaultMaxWaitMs, conf.MaxWaitMs)
}

func TestGenerateSSLConfigEmpty(t *testing.T) {
	conf, err := GenerateSSLConfig("")
	require.NoError(t, err)
	require.Nil(t, conf)
}

func TestGenerateSSLConfigInvalidJSON(t *testing.T) {
	_, err := GenerateSSLConfig("not json")
	require.Error(t, err)
}
