package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"actions-bootstrapper/actionserver"
	"actions-bootstrapper/process"
)

const (
	defaultExitedSince = 10 * time.Minute
	maxInitialRead     = 100 * 1024
	streamInterval     = 500 * time.Millisecond
)

// stopResponse is returned by the stop endpoint.
type stopResponse struct {
	Outcome actionserver.ShutdownOutcome `json:"outcome"`
	Message string                       `json:"message"`
	Server  *process.View                `json:"server,omitempty"`
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	filter := process.ListFilter{
		Package:     r.URL.Query().Get("package"),
		ExitedSince: defaultExitedSince,
	}
	if secs := r.URL.Query().Get("exited_since_secs"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil {
			filter.ExitedSince = time.Duration(n) * time.Second
			filter.RunningOnly = n <= 0
		}
	}

	servers, err := s.launcher.List(filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if servers == nil {
		servers = []process.View{}
	}
	writeJSON(w, servers)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	view, err := s.launcher.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	out, err := s.launcher.Output(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.launcher.LogTail(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, logs)
}

func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	view, err := s.launcher.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	f, err := os.Open(view.LogPath)
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
		return
	}

	pos := int64(0)
	if stat.Size() > maxInitialRead {
		pos = stat.Size() - maxInitialRead
	}
	pos = s.sendFrom(w, flusher, f, pos)

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat, err := f.Stat()
			if err != nil {
				continue
			}
			if stat.Size() < pos {
				// Truncated; start over.
				pos = 0
			}
			if stat.Size() > pos {
				pos = s.sendFrom(w, flusher, f, pos)
			}
		}
	}
}

// sendFrom sends everything in f from pos as one event and returns the new
// position.
func (s *Server) sendFrom(w http.ResponseWriter, flusher http.Flusher, f *os.File, pos int64) int64 {
	data, err := io.ReadAll(io.NewSectionReader(f, pos, 1<<62))
	if err != nil {
		s.logger.Debug("reading log for stream", "error", err)
		return pos
	}
	if len(data) > 0 {
		sendSSEData(w, flusher, string(data))
	}
	return pos + int64(len(data))
}

func sendSSEData(w http.ResponseWriter, flusher http.Flusher, data string) {
	// Multi-line data becomes one event with a data: line per line.
	lines := strings.Split(data, "\n")
	for i, line := range lines {
		if i < len(lines)-1 || line != "" {
			fmt.Fprintf(w, "data: %s\n", line)
		}
	}
	fmt.Fprintf(w, "\n")
	flusher.Flush()
}

func (s *Server) handleStopServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.sup.StopServer(r.Context(), id)
	if err != nil && errors.Is(err, process.ErrNotFound) {
		writeError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("stopping server", "server_id", id, "error", err)
	}

	resp := stopResponse{Outcome: res.Outcome, Message: res.Message}
	if view, err := s.launcher.Get(id); err == nil {
		resp.Server = view
	}
	writeJSON(w, resp)
}

func (s *Server) handleKillServer(w http.ResponseWriter, r *http.Request) {
	view, err := s.launcher.Kill(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, process.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, process.ErrNoOutput):
		status = http.StatusGone
	}
	http.Error(w, err.Error(), status)
}
