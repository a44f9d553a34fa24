package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dlptools/dlpscan"
	"github.com/dlptools/dlpscan/ingest"
	"github.com/dlptools/dlpscan/purview"
	"github.com/dlptools/dlpscan/store"
)

type handler struct {
	engine dlpscan.Engine
	cfg    dlpscan.Config
}

func newHandler(e dlpscan.Engine, cfg dlpscan.Config) *handler {
	return &handler{engine: e, cfg: cfg}
}

// POST /scans
// Accepts a multipart upload (fields: file, options) or JSON with a path.
func (h *handler) handleSubmitScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(256 << 20); err == nil {
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			safeName := ingest.SafeFilename(header.Filename)
			if err := os.MkdirAll(h.cfg.StoragePath, 0o755); err != nil {
				slog.Error("creating storage dir", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to store file")
				return
			}
			target := filepath.Join(h.cfg.StoragePath, safeName)
			dst, err := os.Create(target)
			if err != nil {
				slog.Error("creating upload file", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to store file")
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				slog.Error("saving upload", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to store file")
				return
			}
			dst.Close()

			job, err := h.engine.SubmitScanRaw(r.Context(), target,
				[]byte(r.FormValue("options")))
			if err != nil {
				h.writeEngineError(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, job)
			return
		}
	}

	var req struct {
		Path    string          `json:"path"`
		Options json.RawMessage `json:"options,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart upload or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if _, err := os.Stat(req.Path); err != nil {
		writeError(w, http.StatusBadRequest, "path does not exist")
		return
	}

	job, err := h.engine.SubmitScanRaw(r.Context(), req.Path, req.Options)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// GET /jobs?limit=N
func (h *handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	jobs, err := h.engine.ListJobs(r.Context(), limit)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handler) handleJobFindings(w http.ResponseWriter, r *http.Request) {
	rows, err := h.engine.Findings(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": rows})
}

func (h *handler) handleJobItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.ScanItems(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// POST /suggest
// Drafts SIT definitions from sample text.
func (h *handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string `json:"text"`
		Source string `json:"source,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	defs, err := h.engine.SuggestSITs(r.Context(), req.Text, req.Source)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": defs})
}

func (h *handler) handleCreateSIT(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	sit, err := h.engine.CreateSIT(r.Context(), req.Name, req.Description)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sit)
}

func (h *handler) handleListSITs(w http.ResponseWriter, r *http.Request) {
	sits, err := h.engine.ListSITs(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sits": sits})
}

func (h *handler) handleGetSIT(w http.ResponseWriter, r *http.Request) {
	sit, err := h.engine.GetSIT(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sit)
}

func (h *handler) handleDeleteSIT(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteSIT(r.Context(), r.PathValue("id")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var in store.NewVersionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid version body")
		return
	}
	v, err := h.engine.CreateSITVersion(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *handler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.engine.ListSITVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *handler) handleCreateKeywordList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description,omitempty"`
		Items       []string `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	kl, err := h.engine.CreateKeywordList(r.Context(), req.Name, req.Description, req.Items)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, kl)
}

func (h *handler) handleListKeywordLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.engine.ListKeywordLists(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keyword_lists": lists})
}

func (h *handler) handleGetKeywordList(w http.ResponseWriter, r *http.Request) {
	kl, err := h.engine.GetKeywordList(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kl)
}

func (h *handler) handleCreateRulepack(w http.ResponseWriter, r *http.Request) {
	var in store.NewRulepackInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	rp, err := h.engine.CreateRulepack(r.Context(), in)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rp)
}

func (h *handler) handleListRulepacks(w http.ResponseWriter, r *http.Request) {
	packs, err := h.engine.ListRulepacks(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rulepacks": packs})
}

func (h *handler) handleGetRulepack(w http.ResponseWriter, r *http.Request) {
	rp, err := h.engine.GetRulepack(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

func (h *handler) handleDeleteRulepack(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteRulepack(r.Context(), r.PathValue("id")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleSetSelections(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VersionIDs []string `json:"version_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid selection body")
		return
	}
	if err := h.engine.SetSelections(r.Context(), r.PathValue("id"), req.VersionIDs); err != nil {
		h.writeEngineError(w, err)
		return
	}
	rp, err := h.engine.GetRulepack(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

// GET /rulepacks/{id}/export
// Responds with the rule-package XML document.
func (h *handler) handleExportRulepack(w http.ResponseWriter, r *http.Request) {
	xmlBytes, err := h.engine.ExportRulepack(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="rulepack.xml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(xmlBytes)
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError maps engine sentinels to HTTP statuses.
func (h *handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dlpscan.ErrJobNotFound),
		errors.Is(err, dlpscan.ErrSITNotFound),
		errors.Is(err, dlpscan.ErrRulepackNotFound),
		errors.Is(err, dlpscan.ErrKeywordListNotFound),
		errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dlpscan.ErrUnknownOption):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, purview.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
