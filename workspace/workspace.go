// Package workspace manages automation package directories under a single
// root: scaffolding new packages, rewriting their dependency, dev-data and
// code files, reading files back, and opening a package in an editor.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"actions-bootstrapper/config"
)

// File names inside a package directory.
const (
	PackageFile = "package.yaml"
	ActionsFile = "actions.py"
	DevDataDir  = "devdata"
)

var (
	ErrInvalidName     = errors.New("invalid name")
	ErrPackageNotFound = errors.New("action package does not exist")
	ErrOutsidePackage  = errors.New("path escapes the package directory")
)

// PackageNotFoundError names the package whose directory is missing.
type PackageNotFoundError struct {
	Name string
	Path string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("Action package '%s' does not exist at path %s.", e.Name, e.Path)
}

func (e *PackageNotFoundError) Unwrap() error { return ErrPackageNotFound }

// Workspace operates on the packages below one root directory.
type Workspace struct {
	root         string
	editor       string
	formatter    []string
	actionServer string
	logger       *slog.Logger
}

// New returns a Workspace for cfg. actionServer is the automation server
// binary used to scaffold packages.
func New(cfg config.WorkspaceConfig, actionServer string, logger *slog.Logger) *Workspace {
	return &Workspace{
		root:         cfg.Root,
		editor:       cfg.Editor,
		formatter:    cfg.Formatter,
		actionServer: actionServer,
		logger:       logger.With("component", "workspace"),
	}
}

// Root returns the directory holding all packages.
func (w *Workspace) Root() string {
	return w.root
}

// Path returns the directory of the named package. The directory need not
// exist.
func (w *Workspace) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(w.root, name), nil
}

// Dir returns the directory of the named package and fails with a
// *PackageNotFoundError when it does not exist.
func (w *Workspace) Dir(name string) (string, error) {
	dir, err := w.Path(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", &PackageNotFoundError{Name: name, Path: dir}
	}
	return dir, nil
}

// ReadFile returns the contents of file inside the named package. A missing
// file is reported as an *fs.PathError wrapping fs.ErrNotExist.
func (w *Workspace) ReadFile(name, file string) (string, error) {
	dir, err := w.Path(name)
	if err != nil {
		return "", err
	}
	if file == "" {
		file = ActionsFile
	}
	path, err := within(dir, file)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// ValidateName rejects names that are empty or could leave the root.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// within joins rel onto dir and rejects results outside dir.
func within(dir, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsidePackage, rel)
	}
	path := filepath.Join(dir, rel)
	r, err := filepath.Rel(dir, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsidePackage, rel)
	}
	return path, nil
}

// writeFile replaces path through a temp file and a rename.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
