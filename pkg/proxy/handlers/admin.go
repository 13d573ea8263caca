package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/relay/pkg/archive"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/session"
)

// defaultTranscriptLimit caps transcript listings without an explicit limit.
const defaultTranscriptLimit = 100

// SessionAdmin is the part of the session registry exposed to operators.
type SessionAdmin interface {
	List() []session.Snapshot
	Abort(id string) bool
}

// SessionView is one live stream as returned by GET /admin/sessions.
type SessionView struct {
	SessionID string            `json:"session_id"`
	StartedAt time.Time         `json:"started_at"`
	ElapsedMS int64             `json:"elapsed_ms"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionList is the body of GET /admin/sessions.
type SessionList struct {
	Sessions []SessionView `json:"sessions"`
	Count    int           `json:"count"`
}

// AbortResponse is the body of DELETE /admin/sessions/{id}.
type AbortResponse struct {
	SessionID string `json:"session_id"`
	Aborted   bool   `json:"aborted"`
}

// TranscriptList is the body of GET /admin/transcripts.
type TranscriptList struct {
	Transcripts []*archive.Transcript `json:"transcripts"`
	Count       int                   `json:"count"`
}

// AdminHandler serves the operator API: listing and aborting live streams
// and, when an archive is configured, browsing transcripts.
type AdminHandler struct {
	Sessions SessionAdmin
	Archive  archive.Storage
}

// NewAdminHandler creates a new admin handler. store may be nil.
func NewAdminHandler(sessions SessionAdmin, store archive.Storage) *AdminHandler {
	return &AdminHandler{Sessions: sessions, Archive: store}
}

// ListSessions handles GET /admin/sessions.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	snapshots := h.Sessions.List()
	views := make([]SessionView, 0, len(snapshots))
	for _, s := range snapshots {
		views = append(views, SessionView{
			SessionID: s.SessionID,
			StartedAt: s.StartedAt,
			ElapsedMS: s.Elapsed.Milliseconds(),
			Metadata:  s.Metadata,
		})
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, SessionList{Sessions: views, Count: len(views)})
}

// AbortSession handles DELETE /admin/sessions/{id}. It answers 404 when no
// live stream has that id.
func (h *AdminHandler) AbortSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found := h.Sessions.Abort(id)

	slog.InfoContext(r.Context(), "abort requested", "session_id", id, "found", found)

	status := http.StatusOK
	if !found {
		status = http.StatusNotFound
	}
	_ = proxy.WriteJSONResponse(w, status, AbortResponse{SessionID: id, Aborted: found})
}

// ListTranscripts handles GET /admin/transcripts. Supported query
// parameters: session_id, model, since (RFC 3339) and limit.
func (h *AdminHandler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		writeArchiveDisabled(w)
		return
	}

	q, err := parseTranscriptQuery(r)
	if err != nil {
		_ = proxy.WriteErrorResponse(w, types.NewErrorResponse(err.Error(), types.CodeInvalidRequest, nil))
		return
	}

	transcripts, err := h.Archive.Query(r.Context(), q)
	if err != nil {
		slog.ErrorContext(r.Context(), "transcript query failed", "error", err)
		_ = proxy.WriteErrorResponse(w, types.NewInternalError("transcript query failed"))
		return
	}
	if transcripts == nil {
		transcripts = []*archive.Transcript{}
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, TranscriptList{Transcripts: transcripts, Count: len(transcripts)})
}

// GetTranscript handles GET /admin/transcripts/{id}.
func (h *AdminHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		writeArchiveDisabled(w)
		return
	}

	t, err := h.Archive.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, archive.ErrNotFound):
		_ = proxy.WriteJSONResponse(w, http.StatusNotFound, types.NewErrorResponse(err.Error(), "transcript_not_found", nil))
	case err != nil:
		slog.ErrorContext(r.Context(), "transcript lookup failed", "error", err)
		_ = proxy.WriteErrorResponse(w, types.NewInternalError("transcript lookup failed"))
	default:
		_ = proxy.WriteJSONResponse(w, http.StatusOK, t)
	}
}

func parseTranscriptQuery(r *http.Request) (*archive.Query, error) {
	values := r.URL.Query()
	q := &archive.Query{
		SessionID: values.Get("session_id"),
		Model:     values.Get("model"),
		Limit:     defaultTranscriptLimit,
	}

	if s := values.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, errors.New("since must be an RFC 3339 timestamp")
		}
		q.Since = &since
	}
	if s := values.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			return nil, errors.New("limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	return q, nil
}

func writeArchiveDisabled(w http.ResponseWriter) {
	_ = proxy.WriteJSONResponse(w, http.StatusNotFound,
		types.NewErrorResponse("transcript archive is disabled", "archive_disabled", nil))
}
