package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: t.Parallel() is intentionally omitted in this package.
// These tests share process-global environment variables; t.Setenv in
// TestLoad_EnvOverride would race with any concurrent reader.

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "voice-provisioner", cfg.Telemetry.ServiceName)
	assert.Equal(t, "python3.11", cfg.Environment.Python)
	assert.Equal(t, "~3.11", cfg.Environment.PythonVersion)
	assert.Equal(t, ".env.example", cfg.Environment.ConfigTemplate)
	assert.Equal(t, ".env", cfg.Environment.ConfigPath)
	assert.Equal(t, "logs", cfg.Environment.LogDir)
	assert.Equal(t, "http://localhost:11434", cfg.Model.URL)
	assert.Equal(t, "/api/tags", cfg.Model.HealthPath)
	assert.Equal(t, 2*time.Second, cfg.Model.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Model.ReadyTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Model.WarmupTimeout)
	assert.Equal(t, "llama3.2:3b", cfg.Model.Name)
	assert.Equal(t, "voice-assistant-ollama", cfg.Model.Container)
	assert.Equal(t, []string{"src", "main.py", "tests"}, cfg.Deps.Paths)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PROVISIONER_SERVER_PORT", "9090")
	t.Setenv("PROVISIONER_MODEL_NAME", "qwen2.5:7b")
	t.Setenv("PROVISIONER_MODEL_READY_TIMEOUT", "0s")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qwen2.5:7b", cfg.Model.Name)
	assert.Equal(t, time.Duration(0), cfg.Model.ReadyTimeout)
}

func TestLoad_MixedCaseModelName(t *testing.T) {
	t.Setenv("PROVISIONER_MODEL_NAME", "hf.co/bartowski/Llama-3.2-3B-Instruct-GGUF:Q4_K_M")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "hf.co/bartowski/Llama-3.2-3B-Instruct-GGUF:Q4_K_M", cfg.Model.Name)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PROVISIONER_MODEL_CONTAINER=from-env-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PROVISIONER_MODEL_CONTAINER") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-env-file", cfg.Model.Container)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "voice-assistant-ollama", cfg.Model.Container)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provisioner.yaml")
	body := "model:\n  poll_interval: 500ms\n  service: llm\nenvironment:\n  python: python3.12\n  python_version: \"~3.12\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Model.PollInterval)
	assert.Equal(t, "llm", cfg.Model.Service)
	assert.Equal(t, "python3.12", cfg.Environment.Python)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml", "")
	assert.Error(t, err)
}

func TestLoad_EnvIsolation(t *testing.T) {
	require.Empty(t, os.Getenv("PROVISIONER_SERVER_PORT"))

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("", "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "bad version constraint",
			mutate:  func(c *Config) { c.Environment.PythonVersion = "three" },
			wantErr: "python_version",
		},
		{
			name:    "unbalanced compose quoting",
			mutate:  func(c *Config) { c.Model.ComposeCommand = `docker "compose` },
			wantErr: "compose_command",
		},
		{
			name:   "model name is checked by the model pipeline",
			mutate: func(c *Config) { c.Model.Name = "model::tag" },
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Model.PollInterval = 0 },
			wantErr: "poll_interval",
		},
		{
			name:    "zero probe timeout",
			mutate:  func(c *Config) { c.Model.ProbeTimeout = 0 },
			wantErr: "probe_timeout",
		},
		{
			name:    "zero warmup timeout",
			mutate:  func(c *Config) { c.Model.WarmupTimeout = 0 },
			wantErr: "warmup_timeout",
		},
		{
			name:   "zero ready timeout means unbounded",
			mutate: func(c *Config) { c.Model.ReadyTimeout = 0 },
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Telemetry.LogFormat = "xml" },
			wantErr: "log_format",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
