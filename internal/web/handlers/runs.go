package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/crossref-matcher/internal/audit"
	"github.com/crossref-matcher/internal/match"
)

// RunsHandler serves stored runs, their results and reviewer decisions.
type RunsHandler struct {
	Tracker *audit.Tracker
	Config  *Config
	Logger  *zap.Logger
}

// DecisionRequest is the JSON body of a review decision.
type DecisionRequest struct {
	Decision    string `json:"decision"`
	TargetValue string `json:"target_value"`
	DecidedBy   string `json:"decided_by"`
	Note        string `json:"note"`
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name + " parameter")
	}
	return n, nil
}

func writeStoreError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, audit.ErrRunNotFound), errors.Is(err, audit.ErrResultNotFound):
		writeError(w, http.StatusNotFound, "%v", err)
	case errors.Is(err, audit.ErrInvalidDecision):
		writeError(w, http.StatusBadRequest, "%v", err)
	default:
		logger.Error("audit store error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database error")
	}
}

func (h *RunsHandler) storeError(w http.ResponseWriter, err error) {
	writeStoreError(w, h.Logger, err)
}

// ListRuns handles GET /api/runs?limit=N.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	runs, err := h.Tracker.ListRuns(r.Context(), limit)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// GetRun handles GET /api/runs/{id}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Tracker.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetResults handles GET /api/runs/{id}/results with optional review=true,
// category, limit and offset parameters.
func (h *RunsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.ResultFilter{
		OnlyReview: q.Get("review") == "true" || q.Get("review") == "1",
		Category:   q.Get("category"),
	}
	if filter.Category != "" {
		var cat match.Category
		if err := cat.UnmarshalText([]byte(filter.Category)); err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
	}
	var err error
	if filter.Limit, err = intParam(r, "limit", 0); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if filter.Offset, err = intParam(r, "offset", 0); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	results, err := h.Tracker.Results(r.Context(), mux.Vars(r)["id"], filter)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// RecordDecision handles POST /api/runs/{id}/results/{index}/decision.
func (h *RunsHandler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid result index")
		return
	}

	var req DecisionRequest
	if err := decodeBody(w, r, h.Config.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request: %v", err)
		return
	}

	d := &audit.Decision{
		RunID:       vars["id"],
		ResultIndex: index,
		Decision:    req.Decision,
		TargetValue: req.TargetValue,
		DecidedBy:   req.DecidedBy,
		Note:        req.Note,
	}
	if err := h.Tracker.RecordDecision(r.Context(), d); err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// ListDecisions handles GET /api/runs/{id}/decisions.
func (h *RunsHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.Tracker.GetRun(r.Context(), id); err != nil {
		h.storeError(w, err)
		return
	}
	decisions, err := h.Tracker.Decisions(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions, "count": len(decisions)})
}

// DeleteRun handles DELETE /api/runs/{id}.
func (h *RunsHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.DeleteRun(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
