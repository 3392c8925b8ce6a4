// Package actionserver talks to a running automation server over HTTP: it
// asks the server to shut down and fetches the text logs of action runs.
package actionserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OutputArtifact is the run artifact holding an action's plain text output.
const OutputArtifact = "__action_server_output.txt"

// maxResponseSize bounds every response body read.
const maxResponseSize int64 = 16 << 20

// Messages returned by Shutdown.
const (
	MsgShutdownOK          = "Successfully shutdown the action server"
	MsgShutdownFailed      = "Failed to stop the action server"
	MsgShutdownUnreachable = "Could not connect to the server"
)

var (
	// ErrUnreachable wraps transport failures.
	ErrUnreachable = errors.New("action server unreachable")
	// ErrNoRuns is returned when the server has no runs to report on.
	ErrNoRuns = errors.New("action server has no runs")
)

// ShutdownOutcome classifies a shutdown attempt.
type ShutdownOutcome string

const (
	ShutdownStopped     ShutdownOutcome = "stopped"
	ShutdownRejected    ShutdownOutcome = "rejected"
	ShutdownUnreachable ShutdownOutcome = "unreachable"
)

// ShutdownResult is the outcome of one shutdown request.
type ShutdownResult struct {
	Outcome    ShutdownOutcome
	StatusCode int
	Message    string
}

// Client issues requests against automation servers. The zero value is not
// usable; call NewClient.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// NewClient returns a Client using hc, or a client with a 30 second timeout
// when hc is nil.
func NewClient(hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: hc, logger: logger.With("component", "actionserver")}
}

// Shutdown POSTs to {baseURL}/api/shutdown. It never returns an error: every
// failure is folded into the result, matching the stop_action_server tool.
// A server that is already gone reports ShutdownUnreachable.
func (c *Client) Shutdown(ctx context.Context, baseURL string) ShutdownResult {
	endpoint := strings.TrimRight(baseURL, "/") + "/api/shutdown"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		c.logger.Warn("building shutdown request", "url", endpoint, "error", err)
		return ShutdownResult{Outcome: ShutdownUnreachable, Message: MsgShutdownUnreachable}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Info("shutdown request failed", "url", endpoint, "error", err)
		return ShutdownResult{Outcome: ShutdownUnreachable, Message: MsgShutdownUnreachable}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		c.logger.Info("action server shut down", "url", baseURL)
		return ShutdownResult{Outcome: ShutdownStopped, StatusCode: resp.StatusCode, Message: MsgShutdownOK}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	c.logger.Warn("shutdown rejected",
		"url", endpoint,
		"status", resp.StatusCode,
		"body", string(body),
	)
	return ShutdownResult{Outcome: ShutdownRejected, StatusCode: resp.StatusCode, Message: MsgShutdownFailed}
}

// Run is one entry of the server's run list.
type Run struct {
	ID string `json:"id"`
}

// UnmarshalJSON accepts both string and numeric run IDs.
func (r *Run) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var id string
	if err := json.Unmarshal(raw.ID, &id); err == nil {
		r.ID = id
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.ID, &n); err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	r.ID = n.String()
	return nil
}

// RunLogs returns the plain text output of run runID.
func (c *Client) RunLogs(ctx context.Context, baseURL, runID string) (string, error) {
	if runID == "" {
		return "", errors.New("run id is required")
	}
	target, err := resolve(baseURL, "/api/runs/"+runID+"/artifacts/text-content",
		url.Values{"artifact_names": {OutputArtifact}})
	if err != nil {
		return "", err
	}

	var artifacts map[string]json.RawMessage
	if err := c.getJSON(ctx, target, &artifacts); err != nil {
		return "", err
	}
	raw, ok := artifacts[OutputArtifact]
	if !ok {
		return "", fmt.Errorf("run %s has no %s artifact", runID, OutputArtifact)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("decoding %s: %w", OutputArtifact, err)
	}
	return text, nil
}

// LatestRunLogs returns the plain text output of the most recent run.
func (c *Client) LatestRunLogs(ctx context.Context, baseURL string) (string, error) {
	runs, err := c.Runs(ctx, baseURL)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", ErrNoRuns
	}
	return c.RunLogs(ctx, baseURL, runs[len(runs)-1].ID)
}

// Runs lists the runs known to the server, oldest first.
func (c *Client) Runs(ctx context.Context, baseURL string) ([]Run, error) {
	target, err := resolve(baseURL, "/api/runs", nil)
	if err != nil {
		return nil, err
	}
	var runs []Run
	if err := c.getJSON(ctx, target, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (c *Client) getJSON(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: status %d: %s", target, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response from %s: %w", target, err)
	}
	return nil
}

// resolve joins an absolute API path onto the server's base URL. Like a
// browser, an absolute path replaces whatever path the base URL carried.
func resolve(baseURL, path string, query url.Values) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing action server URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("action server URL %q must be absolute", baseURL)
	}
	ref := &url.URL{Path: path}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	return base.ResolveReference(ref).String(), nil
}
