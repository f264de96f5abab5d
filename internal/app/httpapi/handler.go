// Package httpapi exposes the REST surface consumed by the dashboard and
// the submission intake. Everything except intake and the explicit lifecycle
// actions is read-only.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	app "github.com/Inscribe-Network/archive_layer/internal/app"
	"github.com/Inscribe-Network/archive_layer/internal/app/domain/contribution"
	"github.com/Inscribe-Network/archive_layer/internal/app/metrics"
	"github.com/Inscribe-Network/archive_layer/internal/app/services/archive"
	ledgersvc "github.com/Inscribe-Network/archive_layer/internal/app/services/ledger"
	"github.com/Inscribe-Network/archive_layer/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the core REST API. jwtSecret guards
// the mutating routes; an empty secret disables authentication (local
// development only).
func NewHandler(application *app.Application, jwtSecret string) http.Handler {
	h := &handler{app: application}
	auth := newAuthMiddleware(jwtSecret)

	r := mux.NewRouter()
	r.Handle("/contributions", auth(http.HandlerFunc(h.submit))).Methods(http.MethodPost)
	r.HandleFunc("/contributions", h.listContributions).Methods(http.MethodGet)
	r.HandleFunc("/contributions/{id}", h.getContribution).Methods(http.MethodGet)
	r.Handle("/contributions/{id}/submit", auth(http.HandlerFunc(h.markSubmitted))).Methods(http.MethodPost)
	r.Handle("/contributions/{id}/archive", auth(http.HandlerFunc(h.archiveContribution))).Methods(http.MethodPost)
	r.Handle("/contributions/{id}/supersede", auth(http.HandlerFunc(h.supersedeContribution))).Methods(http.MethodPost)
	r.HandleFunc("/ledger", h.ledgerStats).Methods(http.MethodGet)
	r.HandleFunc("/ledger/history", h.ledgerHistory).Methods(http.MethodGet)
	r.Handle("/ledger/epoch", auth(http.HandlerFunc(h.transitionEpoch))).Methods(http.MethodPost)
	r.HandleFunc("/network", h.networkSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content      string `json:"content"`
		Title        string `json:"title"`
		SubmitterID  string `json:"submitter_id"`
		CategoryHint string `json:"category_hint"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, existed, err := h.app.Archive.Submit(r.Context(), payload.Content, payload.Title, payload.SubmitterID, payload.CategoryHint)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if existed {
		// Duplicate submission: return the existing record untouched.
		writeJSON(w, http.StatusOK, c)
		return
	}

	// Fresh intake goes straight into the evaluation queue.
	c, err = h.app.Archive.Transition(r.Context(), c.ID, contribution.StatusSubmitted)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) listContributions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := archive.QueryFilter{
		Status:      contribution.Status(q.Get("status")),
		SubmitterID: q.Get("submitter"),
		Tag:         q.Get("tag"),
	}
	if filter.Status != "" && !filter.Status.Known() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", filter.Status))
		return
	}

	result, err := h.app.Archive.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getContribution(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Archive.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) markSubmitted(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, contribution.StatusSubmitted)
}

func (h *handler) archiveContribution(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, contribution.StatusArchived)
}

func (h *handler) supersedeContribution(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, contribution.StatusSuperseded)
}

func (h *handler) transition(w http.ResponseWriter, r *http.Request, next contribution.Status) {
	c, err := h.app.Archive.Transition(r.Context(), mux.Vars(r)["id"], next)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) ledgerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Ledger.Stats(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) ledgerHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.app.Ledger.History(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *handler) transitionEpoch(w http.ResponseWriter, r *http.Request) {
	name, err := h.app.Ledger.TransitionEpoch(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"current_epoch": name})
}

func (h *handler) networkSnapshot(w http.ResponseWriter, r *http.Request) {
	graph, err := h.app.Network.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, archive.ErrInvalidTransition),
		errors.Is(err, archive.ErrMetricsAlreadySet),
		errors.Is(err, ledgersvc.ErrInsufficientEpochBalance),
		errors.Is(err, ledgersvc.ErrTagNotEligible),
		errors.Is(err, ledgersvc.ErrLastEpoch):
		return http.StatusConflict
	case errors.Is(err, ledgersvc.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
