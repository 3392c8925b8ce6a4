package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"actions-bootstrapper/robot"
)

var ErrFormat = errors.New("formatter rejected the code")

// EditorError reports an editor that could not open a package.
type EditorError struct {
	Package  string
	Editor   string
	ExitCode int
	// NotFound is set when the editor binary is missing.
	NotFound bool
	Err      error
}

func (e *EditorError) Error() string {
	label := editorLabel(e.Editor)
	hint := fmt.Sprintf("Ensure %s is installed and the '%s' command is available in your PATH.", label, e.Editor)
	switch {
	case e.NotFound:
		return fmt.Sprintf("'%s' command not found. %s", e.Editor, hint)
	case e.Err != nil:
		return fmt.Sprintf("Unexpected error: %v. Please check your setup and try again.", e.Err)
	default:
		return fmt.Sprintf("Failed to open the action package '%s' with %s. Subprocess returned non-zero exit status %d. %s",
			e.Package, label, e.ExitCode, hint)
	}
}

func (e *EditorError) Unwrap() error { return e.Err }

// OpenCode opens the package directory in the configured editor and returns
// the confirmation shown to the user.
func (w *Workspace) OpenCode(ctx context.Context, name string) (string, error) {
	dir, err := w.Dir(name)
	if err != nil {
		return "", err
	}

	res, err := robot.Exec(ctx, "", []string{w.editor, dir})
	switch {
	case errors.Is(err, robot.ErrBinaryNotFound):
		return "", &EditorError{Package: name, Editor: w.editor, NotFound: true}
	case err != nil:
		return "", &EditorError{Package: name, Editor: w.editor, Err: err}
	case !res.OK():
		w.logger.Warn("editor failed", "package", name, "exit_code", res.ExitCode, "output", res.Output)
		return "", &EditorError{Package: name, Editor: w.editor, ExitCode: res.ExitCode}
	}
	return fmt.Sprintf("%s code opened with %s.", name, editorLabel(w.editor)), nil
}

func editorLabel(editor string) string {
	if strings.TrimSuffix(filepath.Base(editor), ".exe") == "code" {
		return "VSCode"
	}
	return editor
}

// format pipes code through the formatter command. A missing formatter
// leaves the code unchanged.
func (w *Workspace) format(ctx context.Context, code string) (string, error) {
	if len(w.formatter) == 0 || strings.TrimSpace(code) == "" {
		return code, nil
	}

	cmd := exec.CommandContext(ctx, w.formatter[0], w.formatter[1:]...)
	cmd.Stdin = strings.NewReader(code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), nil
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		w.logger.Warn("formatter not found, writing code unformatted", "formatter", w.formatter[0])
		return code, nil
	case errors.As(err, &exitErr):
		return "", fmt.Errorf("%w: %s", ErrFormat, strings.TrimSpace(stderr.String()))
	default:
		return "", fmt.Errorf("running formatter: %w", err)
	}
}
