package deps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"voice-assistant/provisioner/internal/config"
)

// ErrNotConfirmed means a destructive operation was requested without the
// operator's confirmation.
var ErrNotConfirmed = errors.New("operation not confirmed")

const backupStamp = "20060102_150405"

// Installer is the package manager of the virtual environment.
type Installer interface {
	ListInstalled(ctx context.Context) (map[string]string, error)
	Freeze(ctx context.Context) ([]byte, error)
	Uninstall(ctx context.Context, packages []string) error
}

// PruneResult lists what a prune changed on disk and in the environment.
type PruneResult struct {
	Removed []string `json:"removed"`
	Backups []string `json:"backups"`
	Written []string `json:"written"`
}

// Service audits and prunes the dependencies of one project.
type Service struct {
	fs              afero.Fs
	installer       Installer
	root            string
	paths           []string
	requirements    string
	devRequirements string
	lockFile        string
	now             func() time.Time
}

// New returns a Service for the project described by env and cfg.
func New(fsys afero.Fs, installer Installer, env config.EnvironmentConfig, cfg config.DepsConfig) *Service {
	return &Service{
		fs:              fsys,
		installer:       installer,
		root:            env.Root,
		paths:           cfg.Paths,
		requirements:    env.Requirements,
		devRequirements: cfg.DevRequirements,
		lockFile:        cfg.LockFile,
		now:             time.Now,
	}
}

// Audit scans the project sources and compares them with the environment.
func (s *Service) Audit(ctx context.Context) (*Audit, error) {
	imports, err := Scan(s.fs, s.root, s.paths)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "imports scanned", "count", len(imports))

	installed, err := s.installer.ListInstalled(ctx)
	if err != nil {
		return nil, err
	}

	a := Analyze(imports, installed)
	slog.InfoContext(ctx, "dependency audit",
		"installed", len(a.Installed), "used", len(a.Used), "unused", len(a.Unused))
	return a, nil
}

// Prune uninstalls the distributions a reports as unused and rewrites the
// requirement files from what remains. The current manifest and a freeze of
// the environment are backed up first. Without confirmation nothing changes;
// confirmation is not needed when there is nothing to remove.
func (s *Service) Prune(ctx context.Context, a *Audit, confirmed bool) (*PruneResult, error) {
	res := &PruneResult{Removed: []string{}, Backups: []string{}, Written: []string{}}
	if len(a.Unused) == 0 {
		slog.InfoContext(ctx, "nothing to prune")
		return res, nil
	}
	if !confirmed {
		return nil, ErrNotConfirmed
	}

	now := s.now()
	stamp := now.Format(backupStamp)

	backups, err := s.backup(ctx, stamp)
	if err != nil {
		return nil, err
	}
	res.Backups = backups

	if err := s.installer.Uninstall(ctx, a.Unused); err != nil {
		return res, err
	}
	res.Removed = append(res.Removed, a.Unused...)
	slog.InfoContext(ctx, "packages uninstalled", "count", len(a.Unused))

	written, err := s.writeRequirements(a, now)
	res.Written = written
	if err != nil {
		return res, err
	}

	lock, err := s.installer.Freeze(ctx)
	if err != nil {
		return res, err
	}
	if err := afero.WriteFile(s.fs, s.path(s.lockFile), lock, 0o644); err != nil {
		return res, fmt.Errorf("writing %s: %w", s.lockFile, err)
	}
	res.Written = append(res.Written, s.path(s.lockFile))

	return res, nil
}

func (s *Service) backup(ctx context.Context, stamp string) ([]string, error) {
	var backups []string

	manifest := s.path(s.requirements)
	exists, err := afero.Exists(s.fs, manifest)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", manifest, err)
	}
	if exists {
		dst := manifest + ".backup_" + stamp
		if err := s.fs.Rename(manifest, dst); err != nil {
			return nil, fmt.Errorf("backing up %s: %w", manifest, err)
		}
		backups = append(backups, dst)
		slog.InfoContext(ctx, "manifest backed up", "path", dst)
	}

	freeze, err := s.installer.Freeze(ctx)
	if err != nil {
		return backups, err
	}
	dst := s.path("installed_packages_" + stamp + ".txt")
	if err := afero.WriteFile(s.fs, dst, freeze, 0o644); err != nil {
		return backups, fmt.Errorf("writing %s: %w", dst, err)
	}
	backups = append(backups, dst)
	slog.InfoContext(ctx, "environment freeze backed up", "path", dst)

	return backups, nil
}

func (s *Service) writeRequirements(a *Audit, now time.Time) ([]string, error) {
	var written []string

	var prod strings.Builder
	prod.WriteString("# Production dependencies\n")
	prod.WriteString("# Generated: " + now.Format(time.RFC3339) + "\n\n")
	for _, name := range a.Production() {
		prod.WriteString(pin(name, a.Installed[name]) + "\n")
	}

	manifest := s.path(s.requirements)
	if err := afero.WriteFile(s.fs, manifest, []byte(prod.String()), 0o644); err != nil {
		return written, fmt.Errorf("writing %s: %w", manifest, err)
	}
	written = append(written, manifest)

	if len(a.Dev) == 0 {
		return written, nil
	}

	var dev strings.Builder
	dev.WriteString("# Development dependencies\n")
	dev.WriteString("-r " + filepath.Base(manifest) + "\n\n")
	for _, name := range a.Dev {
		dev.WriteString(pin(name, a.Installed[name]) + "\n")
	}

	devPath := s.path(s.devRequirements)
	if err := afero.WriteFile(s.fs, devPath, []byte(dev.String()), 0o644); err != nil {
		return written, fmt.Errorf("writing %s: %w", devPath, err)
	}
	return append(written, devPath), nil
}

func (s *Service) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.root, p)
}

func pin(name, version string) string {
	if version == "" {
		return name
	}
	return name + "==" + version
}

// Confirmed reports whether an interactive answer accepts the prompt.
func Confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
