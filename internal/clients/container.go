package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/distribution/reference"
	"github.com/kballard/go-shellquote"
	"github.com/sony/gobreaker"

	"voice-assistant/provisioner/internal/config"
	"voice-assistant/provisioner/internal/orchestrator"
)

// ErrInvalidModel means a model name is not a valid registry reference.
var ErrInvalidModel = errors.New("invalid model reference")

// ContainerClient drives the container runtime hosting the model service:
// compose for lifecycle, exec for model management, inspect for health.
type ContainerClient struct {
	compose     []string
	docker      []string
	composeFile string
	service     string
	container   string
	runner      Runner
	cb          *gobreaker.CircuitBreaker
}

// NewContainerClient constructs a ContainerClient. The compose and docker
// command prefixes are shell-quoted strings such as "docker compose" or
// "sudo -n docker".
func NewContainerClient(cfg config.ModelConfig, runner Runner, cb *gobreaker.CircuitBreaker) (*ContainerClient, error) {
	compose, err := splitCommand("model.compose_command", cfg.ComposeCommand)
	if err != nil {
		return nil, err
	}
	docker, err := splitCommand("model.docker_command", cfg.DockerCommand)
	if err != nil {
		return nil, err
	}

	return &ContainerClient{
		compose:     compose,
		docker:      docker,
		composeFile: cfg.ComposeFile,
		service:     cfg.Service,
		container:   cfg.Container,
		runner:      runner,
		cb:          cb,
	}, nil
}

// Start brings the compose service up in the background. Compose leaves an
// already running service untouched, so Start is safe to repeat.
func (c *ContainerClient) Start(ctx context.Context) error {
	args := append([]string{}, c.compose[1:]...)
	if c.composeFile != "" {
		args = append(args, "-f", c.composeFile)
	}
	args = append(args, "up", "-d", c.service)

	if err := c.runner.Stream(ctx, c.compose[0], args...); err != nil {
		return fmt.Errorf("starting service %s: %w", c.service, err)
	}
	return nil
}

// Pull downloads model inside the container and blocks until the download
// finishes. Nothing is rolled back on failure.
func (c *ContainerClient) Pull(ctx context.Context, model string) error {
	if err := ValidateModelName(model); err != nil {
		return err
	}

	args := append(append([]string{}, c.docker[1:]...), "exec", c.container, "ollama", "pull", model)
	if err := c.runner.Stream(ctx, c.docker[0], args...); err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	return nil
}

// Running reports whether the container is up according to the runtime.
func (c *ContainerClient) Running(ctx context.Context) (bool, error) {
	args := append(append([]string{}, c.docker[1:]...), "inspect", "--format", "{{.State.Running}}", c.container)
	out, err := c.runner.Output(ctx, c.docker[0], args...)
	if err != nil {
		return false, fmt.Errorf("inspecting container %s: %w", c.container, err)
	}
	return strings.TrimSpace(string(out)) == "true", nil
}

// Probe reports whether the container is running.
func (c *ContainerClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	return guardedProbe(ctx, c.cb, c.container, func() error {
		running, err := c.Running(ctx)
		if err != nil {
			return err
		}
		if !running {
			return fmt.Errorf("container %s is not running", c.container)
		}
		return nil
	})
}

// ValidateModelName checks that name is a well-formed model reference such
// as "llama3.2:3b" or "hf.co/bartowski/Llama-3.2-3B-Instruct-GGUF:Q4_K_M".
// The model service matches repositories case-insensitively, so the
// repository part is lowercased before it is parsed as a registry reference.
func ValidateModelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidModel)
	}
	if _, err := reference.ParseNormalizedNamed(foldRepository(name)); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidModel, name, err)
	}
	return nil
}

// CheckModel reports whether model can be pulled. It runs nothing.
func (c *ContainerClient) CheckModel(model string) error {
	return ValidateModelName(model)
}

// foldRepository lowercases name up to its tag or digest.
func foldRepository(name string) string {
	end := len(name)
	if i := strings.IndexByte(name, '@'); i >= 0 {
		end = i
	}
	if i := strings.LastIndexByte(name[:end], ':'); i > strings.LastIndexByte(name[:end], '/') {
		end = i
	}
	return strings.ToLower(name[:end]) + name[end:]
}

func splitCommand(key, raw string) ([]string, error) {
	words, err := shellquote.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", key, raw, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%s must not be empty", key)
	}
	return words, nil
}
