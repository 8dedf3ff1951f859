package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkbrsn/httpscope"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "HTTPSCOPE_FIELDS", "HTTPSCOPE_LABEL", "HTTPSCOPE_CONCURRENCY",
		"HTTPSCOPE_TIMEOUT", "HTTPSCOPE_HAR_FILE", "HTTPSCOPE_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.True(t, cfg.StatusErrs)
	assert.Equal(t, httpscope.DefaultFields().Names(), cfg.FieldSet().Names())
	assert.Equal(t, httpscope.LabelVerbose, cfg.LabelFormat())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTPSCOPE_FIELDS", "method, status_code,bogus,,")
	t.Setenv("HTTPSCOPE_LABEL", "compact")
	t.Setenv("HTTPSCOPE_CONCURRENCY", "16")
	t.Setenv("HTTPSCOPE_TIMEOUT", "5s")
	t.Setenv("HTTPSCOPE_STATUS_ERRORS", "false")
	t.Setenv("HTTPSCOPE_METRICS_SAMPLE_RATE", "0.25")
	t.Setenv("HTTPSCOPE_HAR_FILE", "/tmp/out.har")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"method", "status_code", "bogus"}, cfg.Fields)
	assert.Equal(t, []string{"method", "status_code"}, cfg.FieldSet().Names())
	assert.Equal(t, httpscope.LabelCompact, cfg.LabelFormat())
	assert.Equal(t, 16, cfg.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.StatusErrs)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, "/tmp/out.har", cfg.HARFile)
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("HTTPSCOPE_CONCURRENCY", "many")
	t.Setenv("HTTPSCOPE_TIMEOUT", "soon")

	cfg := FromEnv()
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Concurrency: 0,
		Timeout:     -time.Second,
		SampleRate:  2,
		Label:       "fancy",
		MetricsAddr: ":9090",
		LiveAddr:    ":9090",
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"concurrency", "timeout", "sample rate", "label format", "no known fields", "share an address"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateKeepsPartiallyKnownFields(t *testing.T) {
	cfg := Config{Concurrency: 1, Label: "compact", Fields: []string{"bogus", "method"}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"method"}, cfg.FieldSet().Names())

	cfg.Fields = []string{"bogus"}
	assert.ErrorContains(t, cfg.Validate(), "no known fields")
}
