package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/sony/gobreaker"

	"voice-assistant/provisioner/internal/config"
	"voice-assistant/provisioner/internal/orchestrator"
)

var (
	// ErrInterpreterMissing means the configured interpreter could not be run.
	ErrInterpreterMissing = errors.New("python interpreter unavailable")
	// ErrInterpreterVersion means the interpreter runs but its version does
	// not satisfy the configured constraint.
	ErrInterpreterVersion = errors.New("python interpreter version not supported")
	// ErrManifestMissing means the requirements file does not exist.
	ErrManifestMissing = errors.New("dependency manifest not found")
)

const venvProbeName = "venv"

// pythonVersionRe splits "3.13.0rc1" into the release and pre-release parts.
var pythonVersionRe = regexp.MustCompile(`^(\d+(?:\.\d+){0,2})([a-z]+\d*)?$`)

// PythonClient checks the interpreter and manages the project's virtual
// environment through pip.
type PythonClient struct {
	cfg        config.EnvironmentConfig
	root       string
	constraint *semver.Constraints
	runner     Runner
	cb         *gobreaker.CircuitBreaker
	venvCB     *gobreaker.CircuitBreaker
	goos       string
}

// NewPythonClient constructs a PythonClient. Relative paths in cfg are
// resolved against cfg.Root. No command runs at construction time.
func NewPythonClient(cfg config.EnvironmentConfig, runner Runner, cb, venvCB *gobreaker.CircuitBreaker) (*PythonClient, error) {
	constraint, err := semver.NewConstraint(cfg.PythonVersion)
	if err != nil {
		return nil, fmt.Errorf("parsing python version constraint %q: %w", cfg.PythonVersion, err)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root %s: %w", cfg.Root, err)
	}

	return &PythonClient{
		cfg:        cfg,
		root:       root,
		constraint: constraint,
		runner:     runner,
		cb:         cb,
		venvCB:     venvCB,
		goos:       runtime.GOOS,
	}, nil
}

// CheckInterpreter runs "<python> --version" and verifies the result against
// the configured constraint. It returns the detected version.
func (c *PythonClient) CheckInterpreter(ctx context.Context) (string, error) {
	out, err := c.runner.Output(ctx, c.cfg.Python, "--version")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s not found on PATH; install Python %s and re-run",
				ErrInterpreterMissing, c.cfg.Python, c.cfg.PythonVersion)
		}
		return "", fmt.Errorf("%w: %v", ErrInterpreterMissing, err)
	}

	v, err := parsePythonVersion(string(out))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInterpreterMissing, err)
	}

	if !c.constraint.Check(v) {
		return "", fmt.Errorf("%w: %s is %s, need %s",
			ErrInterpreterVersion, c.cfg.Python, v, c.cfg.PythonVersion)
	}

	return v.String(), nil
}

// CreateVenv creates the virtual environment. Running it over an existing
// environment leaves installed packages alone.
func (c *PythonClient) CreateVenv(ctx context.Context) error {
	if _, err := c.runner.Output(ctx, c.cfg.Python, "-m", "venv", c.venvDir()); err != nil {
		return fmt.Errorf("creating virtual environment: %w", err)
	}
	return nil
}

// UpgradeInstaller upgrades pip inside the virtual environment.
func (c *PythonClient) UpgradeInstaller(ctx context.Context) error {
	if err := c.runner.Stream(ctx, c.VenvPython(), "-m", "pip", "install", "--upgrade", "pip"); err != nil {
		return fmt.Errorf("upgrading pip: %w", err)
	}
	return nil
}

// InstallRequirements installs the dependency manifest into the virtual
// environment.
func (c *PythonClient) InstallRequirements(ctx context.Context) error {
	manifest := c.RequirementsPath()
	if _, err := os.Stat(manifest); err != nil {
		return fmt.Errorf("%w: %s", ErrManifestMissing, manifest)
	}

	if err := c.runner.Stream(ctx, c.VenvPython(), "-m", "pip", "install", "-r", manifest); err != nil {
		return fmt.Errorf("installing %s: %w", filepath.Base(manifest), err)
	}
	return nil
}

// ListInstalled returns installed distributions keyed by lower-cased name.
func (c *PythonClient) ListInstalled(ctx context.Context) (map[string]string, error) {
	out, err := c.runner.Output(ctx, c.VenvPython(), "-m", "pip", "list", "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("listing installed packages: %w", err)
	}

	var pkgs []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(out, &pkgs); err != nil {
		return nil, fmt.Errorf("decoding pip list output: %w", err)
	}

	installed := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		installed[strings.ToLower(p.Name)] = p.Version
	}
	return installed, nil
}

// Freeze returns "pip freeze" output for the virtual environment.
func (c *PythonClient) Freeze(ctx context.Context) ([]byte, error) {
	out, err := c.runner.Output(ctx, c.VenvPython(), "-m", "pip", "freeze")
	if err != nil {
		return nil, fmt.Errorf("pip freeze: %w", err)
	}
	return out, nil
}

// Uninstall removes packages from the virtual environment in one pip call.
func (c *PythonClient) Uninstall(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"-m", "pip", "uninstall", "-y"}, packages...)
	if err := c.runner.Stream(ctx, c.VenvPython(), args...); err != nil {
		return fmt.Errorf("uninstalling %d packages: %w", len(packages), err)
	}
	return nil
}

// Probe reports whether the interpreter satisfies the version constraint.
func (c *PythonClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	return guardedProbe(ctx, c.cb, c.cfg.Python, func() error {
		_, err := c.CheckInterpreter(ctx)
		return err
	})
}

// ProbeVenv reports whether the virtual environment has a working pip.
func (c *PythonClient) ProbeVenv(ctx context.Context) orchestrator.ProbeResult {
	return guardedProbe(ctx, c.venvCB, venvProbeName, func() error {
		if _, err := c.runner.Output(ctx, c.VenvPython(), "-m", "pip", "--version"); err != nil {
			return fmt.Errorf("venv pip: %w", err)
		}
		return nil
	})
}

// VenvPython is the interpreter inside the virtual environment.
func (c *PythonClient) VenvPython() string {
	if c.goos == "windows" {
		return filepath.Join(c.venvDir(), "Scripts", "python.exe")
	}
	return filepath.Join(c.venvDir(), "bin", "python")
}

// RequirementsPath is the absolute path of the dependency manifest.
func (c *PythonClient) RequirementsPath() string {
	return c.abs(c.cfg.Requirements)
}

func (c *PythonClient) venvDir() string {
	return c.abs(c.cfg.VenvDir)
}

func (c *PythonClient) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.root, p)
}

// parsePythonVersion extracts the version from "Python 3.11.9" style output.
// Pre-release suffixes ("3.13.0rc1") become semver pre-releases.
func parsePythonVersion(out string) (*semver.Version, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return nil, errors.New("empty version output")
	}

	raw := strings.TrimSuffix(fields[len(fields)-1], "+")
	m := pythonVersionRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("unrecognised version %q", raw)
	}

	normalized := m[1]
	if m[2] != "" {
		normalized += "-" + m[2]
	}

	v, err := semver.NewVersion(normalized)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", raw, err)
	}
	return v, nil
}
