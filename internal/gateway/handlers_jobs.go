package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/comfyendpoints/runtime/internal/filestore"
	"github.com/comfyendpoints/runtime/internal/observability"
)

func (g *Gateway) handleRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "failed_to_read_body")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid_json")
		return
	}

	if err := validateRunPayload(g.cfg.Contract, payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	job, err := g.cfg.Store.CreateJob(json.RawMessage(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FILE_STORE_ERROR", err.Error())
		return
	}

	span := observability.SpanFromContext(r.Context())
	span.SetAttributes(observability.AttrJobID.String(job.JobID), observability.AttrAppID.String(g.cfg.AppID))

	g.cfg.Exec.Enqueue(job.JobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID, "state": string(job.State)})
}

func (g *Gateway) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	observability.SpanFromContext(r.Context()).SetAttributes(observability.AttrJobID.String(id))
	job, err := g.cfg.Store.GetJob(id)
	if err == filestore.ErrJobNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FILE_STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (g *Gateway) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	observability.SpanFromContext(r.Context()).SetAttributes(observability.AttrJobID.String(id))
	job, err := g.cfg.Store.RequestCancel(id)
	if err == filestore.ErrJobNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "FILE_STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":           job.JobID,
		"state":            job.State,
		"cancel_requested": job.CancelRequested,
	})
}
