//go:build !windows

package helper

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer prints the URL it was asked to serve and the value of a secret.
const fakeServer = `#!/bin/sh
echo "Action Server running at http://localhost:$3"
echo "token=$API_TOKEN extra=$6"
echo "warming up" >&2
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "action-server")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func readLog(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "action_server.log"))
	require.NoError(t, err)
	return string(data)
}

func TestRun_WritesServerOutputToLog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "action_server.log"), []byte("previous run\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), Options{
		Binary:    writeScript(t, fakeServer),
		StartArgs: []string{"--verbose"},
		LogFile:   "action_server.log",
		Stdout:    &stdout,
		Stderr:    &stderr,
	}, dir, "8085", `{"API_TOKEN": "s3cret"}`)
	require.NoError(t, err)

	log := readLog(t, dir)
	assert.Contains(t, log, "previous run\n", "the log is appended to")
	assert.Contains(t, log, "Action Server running at http://localhost:8085\n")
	assert.Contains(t, log, "token=s3cret extra=--verbose\n")
	assert.Contains(t, log, "warming up\n")
	assert.Contains(t, stdout.String(), "http://localhost:8085")
	assert.Equal(t, "warming up\n", stderr.String())
}

func TestRun_NonZeroExitWritesMarker(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	err := Run(context.Background(), Options{
		Binary:  writeScript(t, "#!/bin/sh\necho 'bad package.yaml' >&2\nexit 7\n"),
		LogFile: "action_server.log",
		Stderr:  &stderr,
	}, dir, "8080", "")
	require.Error(t, err)

	log := readLog(t, dir)
	assert.Contains(t, log, "bad package.yaml\n")
	assert.Contains(t, log, "Error executing action-server: exit status 7\n")
	assert.Contains(t, stderr.String(), "Error executing action-server: exit status 7")
}

func TestRun_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	err := Run(context.Background(), Options{
		Binary:  filepath.Join(t.TempDir(), "action-server"),
		LogFile: "action_server.log",
	}, dir, "8080", "{}")
	require.Error(t, err)
	assert.Contains(t, readLog(t, dir), "Error executing action-server: ")
}

func TestRun_BadSecrets(t *testing.T) {
	dir := t.TempDir()
	err := Run(context.Background(), Options{
		Binary:  writeScript(t, fakeServer),
		LogFile: "action_server.log",
	}, dir, "8080", `["not", "an", "object"]`)
	require.Error(t, err)

	log := readLog(t, dir)
	assert.Contains(t, log, "Error executing action-server: secrets must be a JSON object")
	assert.NotContains(t, log, "running at", "the server is never started")
}

func TestRun_BadPort(t *testing.T) {
	dir := t.TempDir()
	err := Run(context.Background(), Options{Binary: writeScript(t, fakeServer), LogFile: "action_server.log"}, dir, "eighty", "")
	require.Error(t, err)
	assert.Contains(t, readLog(t, dir), `Error executing action-server: invalid port "eighty"`)
}

func TestRun_ContextCancelKillsServer(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Run(ctx, Options{
		Binary:  writeScript(t, "#!/bin/sh\nexec sleep 30\n"),
		LogFile: "action_server.log",
	}, dir, "8080", "")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestSecretsEnv(t *testing.T) {
	env, err := SecretsEnv(`{
		// keys for the demo
		"OPENAI_API_KEY": "sk-123",
		"RETRIES": 3,
		"CONFIG": {"a": [1, 2]},
	}`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`CONFIG={"a":[1,2]}`,
		"OPENAI_API_KEY=sk-123",
		"RETRIES=3",
	}, env)

	env, err = SecretsEnv("  ")
	require.NoError(t, err)
	assert.Empty(t, env)

	_, err = SecretsEnv(`{"A=B": "x"}`)
	assert.Error(t, err)

	_, err = SecretsEnv(`not json`)
	assert.Error(t, err)
}

type recordingChild struct {
	mu      sync.Mutex
	signals []os.Signal
	kills   int
}

func (c *recordingChild) Signal(sig os.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, sig)
	return nil
}

func (c *recordingChild) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kills++
	return nil
}

func TestSupervise_KillsOnceWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &recordingChild{}
	sigs := make(chan os.Signal, 1)
	done := make(chan error, 1)

	sigs <- syscall.SIGTERM
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
		time.Sleep(100 * time.Millisecond)
		done <- nil
	}()

	require.NoError(t, supervise(ctx, c, sigs, done))
	assert.Equal(t, 1, c.kills)
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, c.signals)
}
