package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"secscan/core"
	"secscan/logger"
	"secscan/models"
)

type handlers struct {
	engine *core.ScanEngine
}

type scanCodeRequest struct {
	Code    string             `json:"code"`
	Path    string             `json:"path"`
	Options models.ScanOptions `json:"options"`
}

type scanFileRequest struct {
	Path    string             `json:"path"`
	Options models.ScanOptions `json:"options"`
}

type scanDirectoryRequest struct {
	Path      string             `json:"path"`
	Recursive bool               `json:"recursive"`
	Options   models.ScanOptions `json:"options"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("api: encoding response: %v", err)
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]models.AnalyzerStatus{
		"static": h.engine.StaticStatus(),
		"llm":    h.engine.LLMStatus(),
	})
}

func (h *handlers) scanCode(w http.ResponseWriter, r *http.Request) {
	var req scanCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("scanCode: decoding request: %v", err)
		http.Error(w, "invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Path == "" {
		req.Path = "snippet.txt"
	}

	result, err := h.engine.ScanCode(r.Context(), req.Code, req.Path, req.Options)
	if err != nil {
		logger.Error("scanCode: scan failed: %v", err)
		http.Error(w, "scan failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) scanFile(w http.ResponseWriter, r *http.Request) {
	var req scanFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("scanFile: decoding request: %v", err)
		http.Error(w, "invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Path) == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	result, err := h.engine.ScanFile(r.Context(), req.Path, req.Options)
	if err != nil {
		if errors.Is(err, core.ErrTargetNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.Error("scanFile: scan of %s failed: %v", req.Path, err)
		http.Error(w, "scan failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) scanDirectory(w http.ResponseWriter, r *http.Request) {
	var req scanDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("scanDirectory: decoding request: %v", err)
		http.Error(w, "invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Path) == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	result, err := h.engine.ScanDirectory(r.Context(), req.Path, req.Recursive, req.Options)
	if err != nil {
		if errors.Is(err, core.ErrTargetNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.Error("scanDirectory: scan of %s failed: %v", req.Path, err)
		http.Error(w, "scan failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// scanDirectoryStream yields one JSON result per line (NDJSON) as files
// complete, flushing after each so callers see partial progress.
func (h *handlers) scanDirectoryStream(w http.ResponseWriter, r *http.Request) {
	var req scanDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("scanDirectoryStream: decoding request: %v", err)
		http.Error(w, "invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Path) == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	results, err := h.engine.ScanDirectoryStreaming(r.Context(), req.Path, req.Recursive, req.Options)
	if err != nil {
		if errors.Is(err, core.ErrTargetNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		logger.Error("scanDirectoryStream: scan of %s failed: %v", req.Path, err)
		http.Error(w, "scan failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for result := range results {
		if err := enc.Encode(result); err != nil {
			logger.Error("scanDirectoryStream: encoding result for %s: %v", result.Target, err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
