package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/diskscan"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/dispatch"
)

// maxChatBody caps the size of a chat request.
const maxChatBody = 64 << 10

// errorResponse is the error body shape used by every route.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply to POST /api/chat. Background results for the
// same request are pushed over /ws with the same ID.
type ChatResponse struct {
	ID    string `json:"id"`
	Reply string `json:"reply"`
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	g.writeJSON(w, code, errorResponse{Error: errorBody{Message: msg, Code: code}})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("response write failed", "error", err)
	}
}

// handleHealth implements GET /health.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    g.version,
		"uptime_sec": int(time.Since(g.startedAt).Seconds()),
		"ws_clients": g.hub.count(),
	})
}

// handleChat implements POST /api/chat.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		g.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		g.writeError(w, "message is required", http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	sink := func(text string) {
		g.hub.broadcast(Event{Type: EventResult, ID: id, Text: text})
	}
	reply := g.backend.HandleMessage(dispatch.WithSource(r.Context(), "gateway"), req.Message, sink)
	g.writeJSON(w, http.StatusOK, ChatResponse{ID: id, Reply: reply})
}

// handleTasks implements GET /api/tasks.
func (g *Gateway) handleTasks(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{"tasks": g.backend.Tasks().List()})
}

// handleTask implements GET /api/tasks/{id}.
func (g *Gateway) handleTask(w http.ResponseWriter, r *http.Request) {
	rec, ok := g.backend.Tasks().Status(r.PathValue("id"))
	if !ok {
		g.writeError(w, "task not found", http.StatusNotFound)
		return
	}
	g.writeJSON(w, http.StatusOK, rec)
}

// handleTranscript implements GET /api/transcript?limit=N.
func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request) {
	msgs, err := g.backend.Transcript(r.Context(), queryLimit(r, 50))
	if err != nil {
		g.logger.Error("transcript query failed", "error", err)
		g.writeError(w, "transcript unavailable", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleActions implements GET /api/actions?limit=N.
func (g *Gateway) handleActions(w http.ResponseWriter, r *http.Request) {
	actions, err := g.backend.Actions(r.Context(), queryLimit(r, 50))
	if err != nil {
		g.logger.Error("audit query failed", "error", err)
		g.writeError(w, "audit log unavailable", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// handleDiskStatus implements GET /api/diskscan/status.
func (g *Gateway) handleDiskStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := g.backend.Disk().Config()
	g.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":       cfg.Enabled,
		"max_depth":     cfg.MaxDepth,
		"max_results":   cfg.MaxResults,
		"blocked_paths": cfg.BlockedPaths,
	})
}

// handleDiskRoots implements GET /api/diskscan/roots.
func (g *Gateway) handleDiskRoots(w http.ResponseWriter, r *http.Request) {
	vols, err := g.backend.Disk().Roots(r.Context())
	if err != nil {
		g.writeDiskError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"roots": vols})
}

// handleDiskBrowse implements GET /api/diskscan/browse?path=.
func (g *Gateway) handleDiskBrowse(w http.ResponseWriter, r *http.Request) {
	listing, err := g.backend.Disk().Browse(r.URL.Query().Get("path"))
	if err != nil {
		g.writeDiskError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, listing)
}

// handleDiskInfo implements GET /api/diskscan/info?path=.
func (g *Gateway) handleDiskInfo(w http.ResponseWriter, r *http.Request) {
	info, err := g.backend.Disk().Info(r.URL.Query().Get("path"))
	if err != nil {
		g.writeDiskError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, info)
}

// handleDiskSearch implements GET /api/diskscan/search?path=&pattern=.
func (g *Gateway) handleDiskSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := g.backend.Disk().Search(r.Context(), q.Get("path"), q.Get("pattern"))
	if err != nil {
		g.writeDiskError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, res)
}

// writeDiskError maps diskscan errors to status codes.
func (g *Gateway) writeDiskError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, diskscan.ErrBlocked), errors.Is(err, diskscan.ErrDisabled):
		code = http.StatusForbidden
	case errors.Is(err, diskscan.ErrNotFound):
		code = http.StatusNotFound
	}
	g.writeError(w, diskscan.Describe(err), code)
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, 500)
}
