package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"actions-bootstrapper/robot"
)

var (
	ErrInvalidYAML = errors.New("dependencies are not valid YAML")
	ErrInvalidJSON = errors.New("dev data is not valid JSON")
)

// Bootstrap scaffolds a package from the minimal template and empties its
// dependency, code and dev-data files. It returns the package directory.
func (w *Workspace) Bootstrap(ctx context.Context, name string) (string, error) {
	dir, err := w.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace root: %w", err)
	}

	argv := []string{w.actionServer, "new", "--name", name, "--template", "minimal"}
	res, err := robot.Exec(ctx, w.root, argv)
	if err != nil {
		return "", fmt.Errorf("scaffolding %s: %w", name, err)
	}
	if !res.OK() {
		w.logger.Warn("scaffolding failed", "package", name, "exit_code", res.ExitCode, "output", res.Output)
		return "", fmt.Errorf("scaffolding %s: exit status %d: %s", name, res.ExitCode, strings.TrimSpace(res.Output))
	}
	w.logger.Info("package scaffolded", "package", name, "dir", dir)

	if _, err := w.UpdateDependencies(name, ""); err != nil {
		return "", err
	}
	if _, err := w.writeCode(dir, ""); err != nil {
		return "", err
	}
	if _, err := w.UpdateDevData(name, "", ""); err != nil {
		return "", err
	}
	return dir, nil
}

// UpdateDependencies replaces package.yaml. Empty content is allowed; any
// other content must parse as YAML.
func (w *Workspace) UpdateDependencies(name, content string) (string, error) {
	dir, err := w.Dir(name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) != "" {
		var doc any
		if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	}

	path := filepath.Join(dir, PackageFile)
	if err := writeFile(path, []byte(content)); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	w.logger.Info("dependencies updated", "package", name, "bytes", len(content))
	return path, nil
}

// DevDataPath returns devdata/input_<action>.json of the named package.
func (w *Workspace) DevDataPath(name, action string) (string, error) {
	dir, err := w.Path(name)
	if err != nil {
		return "", err
	}
	if action != "" {
		if err := ValidateName(action); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, DevDataDir, "input_"+action+".json"), nil
}

// UpdateDevData writes the dev input of one action. Comments and trailing
// commas are stripped; empty content is written as is.
func (w *Workspace) UpdateDevData(name, action, content string) (string, error) {
	if _, err := w.Dir(name); err != nil {
		return "", err
	}
	path, err := w.DevDataPath(name, action)
	if err != nil {
		return "", err
	}

	data := []byte(content)
	if strings.TrimSpace(content) != "" {
		data = jsonc.ToJSON(data)
		if !json.Valid(data) {
			return "", ErrInvalidJSON
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating devdata directory: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	w.logger.Info("dev data updated", "package", name, "action", action)
	return path, nil
}

// UpdateCode formats code and replaces actions.py.
func (w *Workspace) UpdateCode(ctx context.Context, name, code string) (string, error) {
	dir, err := w.Dir(name)
	if err != nil {
		return "", err
	}
	formatted, err := w.format(ctx, code)
	if err != nil {
		return "", err
	}
	return w.writeCode(dir, formatted)
}

func (w *Workspace) writeCode(dir, code string) (string, error) {
	path := filepath.Join(dir, ActionsFile)
	if err := writeFile(path, []byte(code)); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
