package gateway

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/filestore"
)

func (g *Gateway) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	content, err := io.ReadAll(io.LimitReader(r.Body, 1<<30))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "failed_to_read_body")
		return
	}

	mediaType := r.Header.Get("content-type")
	fileName := r.Header.Get("x-file-name")
	appID := r.Header.Get("x-app-id")
	if appID == "" {
		appID = g.cfg.AppID
	}

	rec, err := g.cfg.Store.CreateFile(content, mediaType, domain.SourceUploaded, appID, fileName)
	if err == filestore.ErrEmptyContent {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "empty_content")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FILE_STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (g *Gateway) handleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid_limit")
			return
		}
		limit = n
	}

	var cursor int64
	if raw := q.Get("cursor"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid_cursor")
			return
		}
		cursor = n
	}

	filter := domain.FileFilter{
		MediaType: q.Get("media_type"),
		Source:    domain.FileSource(q.Get("source")),
		AppID:     q.Get("app_id"),
	}

	records, nextCursor, err := g.cfg.Store.ListFiles(limit, cursor, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FILE_STORE_ERROR", err.Error())
		return
	}

	resp := map[string]any{"items": records}
	if nextCursor != nil {
		resp["next_cursor"] = *nextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := g.cfg.Store.GetFile(id)
	if err == filestore.ErrNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FILE_STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (g *Gateway) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := g.cfg.Store.GetFile(id)
	if err == filestore.ErrNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FILE_STORE_ERROR", err.Error())
		return
	}

	blob, err := g.cfg.Store.ReadBlob(rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FILE_STORE_ERROR", err.Error())
		return
	}

	w.Header().Set("content-type", rec.MediaType)
	w.Header().Set("content-disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalName))
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}
