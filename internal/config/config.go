package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"
)

// Config is the root configuration for the provisioner.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Environment EnvironmentConfig `mapstructure:"environment"`
	Model       ModelConfig       `mapstructure:"model"`
	Deps        DepsConfig        `mapstructure:"deps"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	LogFile      string `mapstructure:"log_file"`
}

// EnvironmentConfig drives the Python environment pipeline. Relative paths
// are resolved against Root.
type EnvironmentConfig struct {
	Root           string        `mapstructure:"root"`
	Python         string        `mapstructure:"python"`
	PythonVersion  string        `mapstructure:"python_version"`
	VenvDir        string        `mapstructure:"venv_dir"`
	Requirements   string        `mapstructure:"requirements"`
	LogDir         string        `mapstructure:"log_dir"`
	ConfigTemplate string        `mapstructure:"config_template"`
	ConfigPath     string        `mapstructure:"config_path"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ModelConfig drives the container + model pipeline.
type ModelConfig struct {
	ComposeCommand string        `mapstructure:"compose_command"`
	ComposeFile    string        `mapstructure:"compose_file"`
	Service        string        `mapstructure:"service"`
	DockerCommand  string        `mapstructure:"docker_command"`
	Container      string        `mapstructure:"container"`
	URL            string        `mapstructure:"url"`
	HealthPath     string        `mapstructure:"health_path"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	Name           string        `mapstructure:"name"`
	Warmup         bool          `mapstructure:"warmup"`
	WarmupPrompt   string        `mapstructure:"warmup_prompt"`
	WarmupTimeout  time.Duration `mapstructure:"warmup_timeout"`
}

type DepsConfig struct {
	Paths           []string `mapstructure:"paths"`
	DevRequirements string   `mapstructure:"dev_requirements"`
	LockFile        string   `mapstructure:"lock_file"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the PROVISIONER_ prefix (e.g.
// PROVISIONER_MODEL_NAME). Variables from envFile are exported first when the
// file exists; they never override variables already set in the process.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PROVISIONER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values that would only fail later, halfway through a
// pipeline.
func (c *Config) Validate() error {
	if _, err := semver.NewConstraint(c.Environment.PythonVersion); err != nil {
		return fmt.Errorf("environment.python_version %q: %w", c.Environment.PythonVersion, err)
	}
	if c.Environment.Python == "" {
		return errors.New("environment.python must not be empty")
	}
	if words, err := shellquote.Split(c.Model.ComposeCommand); err != nil || len(words) == 0 {
		return fmt.Errorf("model.compose_command %q is not a valid command", c.Model.ComposeCommand)
	}
	if words, err := shellquote.Split(c.Model.DockerCommand); err != nil || len(words) == 0 {
		return fmt.Errorf("model.docker_command %q is not a valid command", c.Model.DockerCommand)
	}
	if c.Model.PollInterval <= 0 {
		return fmt.Errorf("model.poll_interval must be positive, got %s", c.Model.PollInterval)
	}
	if c.Model.ProbeTimeout <= 0 {
		return fmt.Errorf("model.probe_timeout must be positive, got %s", c.Model.ProbeTimeout)
	}
	if c.Model.WarmupTimeout <= 0 {
		return fmt.Errorf("model.warmup_timeout must be positive, got %s", c.Model.WarmupTimeout)
	}
	if c.Model.ReadyTimeout < 0 {
		return fmt.Errorf("model.ready_timeout must not be negative, got %s", c.Model.ReadyTimeout)
	}
	switch strings.ToLower(c.Telemetry.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("telemetry.log_format %q: want json or text", c.Telemetry.LogFormat)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "voice-provisioner")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_format", "json")
	v.SetDefault("telemetry.log_file", "")

	v.SetDefault("environment.root", ".")
	v.SetDefault("environment.python", "python3.11")
	v.SetDefault("environment.python_version", "~3.11")
	v.SetDefault("environment.venv_dir", "venv")
	v.SetDefault("environment.requirements", "requirements.txt")
	v.SetDefault("environment.log_dir", "logs")
	v.SetDefault("environment.config_template", ".env.example")
	v.SetDefault("environment.config_path", ".env")
	v.SetDefault("environment.timeout", 30*time.Minute)

	v.SetDefault("model.compose_command", "docker compose")
	v.SetDefault("model.compose_file", "docker-compose.yml")
	v.SetDefault("model.service", "ollama")
	v.SetDefault("model.docker_command", "docker")
	v.SetDefault("model.container", "voice-assistant-ollama")
	v.SetDefault("model.url", "http://localhost:11434")
	v.SetDefault("model.health_path", "/api/tags")
	v.SetDefault("model.poll_interval", 2*time.Second)
	v.SetDefault("model.ready_timeout", 5*time.Minute)
	v.SetDefault("model.probe_timeout", 5*time.Second)
	v.SetDefault("model.name", "llama3.2:3b")
	v.SetDefault("model.warmup", false)
	v.SetDefault("model.warmup_prompt", "Reply with the single word: ready")
	v.SetDefault("model.warmup_timeout", 2*time.Minute)

	v.SetDefault("deps.paths", []string{"src", "main.py", "tests"})
	v.SetDefault("deps.dev_requirements", "requirements-dev.txt")
	v.SetDefault("deps.lock_file", "requirements.lock")
}
