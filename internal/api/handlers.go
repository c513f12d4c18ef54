package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/certforge/certmailer/internal/batch"
	"github.com/certforge/certmailer/internal/config"
	"github.com/certforge/certmailer/internal/pkg/logger"
	"github.com/certforge/certmailer/internal/sendlog"
	"github.com/certforge/certmailer/internal/session"
	"github.com/certforge/certmailer/internal/template"
)

// Handlers holds the request handlers and their collaborators.
type Handlers struct {
	pacing   config.PacingConfig
	executor *batch.Executor
	sessions *session.Store // nil when Redis is disabled
	sendLog  *sendlog.Log   // nil disables history
	previews *template.Service
}

// NewHandlers creates the handler set.
func NewHandlers(pacing config.PacingConfig, executor *batch.Executor, sessions *session.Store, sendLog *sendlog.Log) *Handlers {
	return &Handlers{
		pacing:   pacing,
		executor: executor,
		sessions: sessions,
		sendLog:  sendLog,
		previews: template.NewService(),
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// batchRequest is the inbound contract for one send batch.
type batchRequest struct {
	AccessToken     string            `json:"accessToken"`
	Recipients      []batch.Recipient `json:"recipients"`
	Subject         string            `json:"subject"`
	BodyTemplate    string            `json:"bodyTemplate"`
	CertificatesDir string            `json:"certificatesDir"`
	LaneCount       int               `json:"laneCount"`
	MinDelaySeconds float64           `json:"minDelaySeconds"`
	MaxDelaySeconds float64           `json:"maxDelaySeconds"`
}

type batchResponse struct {
	BatchID string          `json:"batchId"`
	Sent    int             `json:"sent"`
	Failed  int             `json:"failed"`
	Results []batch.Outcome `json:"results"`
}

// RunBatch executes one certificate-email batch synchronously and
// returns the aggregated result. Requests that leave pacing parameters
// unset get the direct or bulk profile based on recipient count.
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.LaneCount == 0 && req.MinDelaySeconds == 0 && req.MaxDelaySeconds == 0 {
		p := h.pacing.ProfileFor(len(req.Recipients))
		req.LaneCount = p.Lanes
		req.MinDelaySeconds = p.MinDelaySeconds
		req.MaxDelaySeconds = p.MaxDelaySeconds
	}

	result, err := h.executor.Run(r.Context(), batch.Request{
		Token:           req.AccessToken,
		Recipients:      req.Recipients,
		Subject:         req.Subject,
		BodyTemplate:    req.BodyTemplate,
		CertificatesDir: req.CertificatesDir,
		LaneCount:       req.LaneCount,
		MinDelaySeconds: req.MinDelaySeconds,
		MaxDelaySeconds: req.MaxDelaySeconds,
	})
	if err != nil {
		// Every executor error is a batch-level precondition failure;
		// per-recipient problems come back inside the result.
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batchID := uuid.New()
	if err := h.sendLog.RecordBatch(r.Context(), batchID, req.Subject, result); err != nil {
		logger.Error("recording send log failed", "batch_id", batchID, "error", err)
	}

	respondJSON(w, http.StatusOK, batchResponse{
		BatchID: batchID.String(),
		Sent:    result.Sent,
		Failed:  result.Failed,
		Results: result.Results,
	})
}

// RecentBatches returns rolled-up send history.
func (h *Handlers) RecentBatches(w http.ResponseWriter, r *http.Request) {
	if h.sendLog == nil {
		respondError(w, http.StatusServiceUnavailable, "send history is not configured")
		return
	}
	summaries, err := h.sendLog.RecentBatches(r.Context(), 20)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"batches": summaries})
}

type previewRequest struct {
	Template string                 `json:"template"`
	Sample   map[string]interface{} `json:"sample"`
}

// PreviewTemplate renders a body template against sample data.
func (h *Handlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	out, err := h.previews.Preview(req.Template, req.Sample)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"output": out})
}

// CreateSession registers a new upload session.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "session store is not configured")
		return
	}
	st, err := h.sessions.Create(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, st)
}

// GetSession loads one upload session.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	st, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// UpdateSession replaces a session's tracked state, keeping its ID.
func (h *Handlers) UpdateSession(w http.ResponseWriter, r *http.Request) {
	st, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	var update session.State
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	update.ID = st.ID
	update.CreatedAt = st.CreatedAt

	if err := h.sessions.Save(r.Context(), &update); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, update)
}

// DeleteSession removes an upload session.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "session store is not configured")
		return
	}
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) loadSession(w http.ResponseWriter, r *http.Request) (*session.State, bool) {
	if h.sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "session store is not configured")
		return nil, false
	}
	st, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return st, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encoding response failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
