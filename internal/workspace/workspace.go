// Package workspace prepares the files and directories the voice assistant
// expects next to its code: the log directory and the configuration file
// materialised from its template.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"voice-assistant/provisioner/internal/config"
)

// ErrTemplateMissing means the configuration template does not exist and no
// configuration file is present either.
var ErrTemplateMissing = errors.New("configuration template not found")

// Workspace operates on the project root through an afero filesystem so the
// same code runs against the real disk and an in-memory tree in tests.
type Workspace struct {
	fs         afero.Fs
	logDir     string
	template   string
	configPath string
}

// New returns a Workspace rooted at cfg.Root. Relative paths in cfg are
// resolved against the root.
func New(fsys afero.Fs, cfg config.EnvironmentConfig) *Workspace {
	join := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(cfg.Root, p)
	}

	return &Workspace{
		fs:         fsys,
		logDir:     join(cfg.LogDir),
		template:   join(cfg.ConfigTemplate),
		configPath: join(cfg.ConfigPath),
	}
}

// NewOS returns a Workspace on the host filesystem.
func NewOS(cfg config.EnvironmentConfig) *Workspace {
	return New(afero.NewOsFs(), cfg)
}

// EnsureLogDir creates the log directory if needed. It reports whether the
// directory was created by this call.
func (w *Workspace) EnsureLogDir() (bool, error) {
	info, err := w.fs.Stat(w.logDir)
	switch {
	case err == nil && info.IsDir():
		return false, nil
	case err == nil:
		return false, fmt.Errorf("log path %s exists and is not a directory", w.logDir)
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("checking log directory: %w", err)
	}

	if err := w.fs.MkdirAll(w.logDir, 0o755); err != nil {
		return false, fmt.Errorf("creating log directory: %w", err)
	}
	return true, nil
}

// MaterializeConfig copies the template to the configuration path unless a
// configuration file already exists. An existing file is never touched. It
// reports whether a copy was made.
func (w *Workspace) MaterializeConfig() (bool, error) {
	exists, err := afero.Exists(w.fs, w.configPath)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", w.configPath, err)
	}
	if exists {
		return false, nil
	}

	info, err := w.fs.Stat(w.template)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", ErrTemplateMissing, w.template)
		}
		return false, fmt.Errorf("checking template: %w", err)
	}

	data, err := afero.ReadFile(w.fs, w.template)
	if err != nil {
		return false, fmt.Errorf("reading template: %w", err)
	}

	if err := w.fs.MkdirAll(filepath.Dir(w.configPath), 0o755); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}

	// O_EXCL keeps a file written concurrently by someone else intact.
	f, err := w.fs.OpenFile(w.configPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating %s: %w", w.configPath, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("writing %s: %w", w.configPath, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("closing %s: %w", w.configPath, err)
	}
	return true, nil
}

// LogDir is the resolved log directory.
func (w *Workspace) LogDir() string { return w.logDir }

// ConfigPath is the resolved configuration file path.
func (w *Workspace) ConfigPath() string { return w.configPath }
