package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATALAKE_DATA_FILE", "")
	t.Setenv("AUDIT_ENABLED", "")
	t.Setenv("RATE_LIMIT_ENABLED", "")

	cfg := Load()
	assert.Equal(t, "datalake.xml", cfg.DataFile)
	assert.True(t, cfg.SaveOnShutdown)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "sqlite", cfg.Audit.DBType)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 300*time.Second, cfg.Audit.ConnMaxLifetime)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATALAKE_DATA_FILE", "/tmp/state.xml")
	t.Setenv("DATALAKE_SAVE_ON_SHUTDOWN", "off")
	t.Setenv("SNOWFLAKE_NODE", "7")
	t.Setenv("RATE_LIMIT_ENABLED", "yes")
	t.Setenv("RATE_LIMIT_UPLOADS_PER_SECOND", "-2")

	cfg := Load()
	assert.Equal(t, "/tmp/state.xml", cfg.DataFile)
	assert.False(t, cfg.SaveOnShutdown)
	assert.Equal(t, int64(7), cfg.SnowflakeNode)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, float64(1), cfg.RateLimit.Rate)
}

func TestInvoiceSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datalake.yml")
	content := "invoice:\n  issuerName: Nube S.A.\n  issuerEmail: cobros@nube.test\n  currency: GTQ\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	holder, err := NewInvoiceSettingsHolder(Config{SettingsPath: path})
	require.NoError(t, err)

	settings := holder.Get()
	assert.Equal(t, "Nube S.A.", settings.IssuerName)
	assert.Equal(t, "cobros@nube.test", settings.IssuerEmail)
	assert.Equal(t, "GTQ", settings.Currency)
}

func TestInvoiceSettingsRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datalake.yml")
	require.NoError(t, os.WriteFile(path, []byte("invoice:\n  currency: dollars\n"), 0o644))

	_, err := NewInvoiceSettingsHolder(Config{SettingsPath: path})
	assert.Error(t, err)
}

func TestLoadTelemetry(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "")

	tel := Load().Telemetry
	assert.Equal(t, "debug", tel.LogLevel)
	assert.True(t, tel.OtelEnabled)
	assert.Equal(t, "http/protobuf", tel.ExporterProtocol)
	assert.Equal(t, 0.1, tel.SamplingRatio)
}
