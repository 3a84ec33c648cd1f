package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/crossref-matcher/internal/audit"
	"github.com/crossref-matcher/internal/export"
)

// ExportHandler serves stored runs as CSV or Excel downloads.
type ExportHandler struct {
	Tracker *audit.Tracker
	Config  *Config
	Logger  *zap.Logger
}

// ExportRun handles GET /api/runs/{id}/export?format=csv|xlsx. Rows carry the
// latest reviewer decision; review=true limits the export to flagged rows.
func (h *ExportHandler) ExportRun(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Features.ExportEnabled {
		writeError(w, http.StatusForbidden, "export feature disabled")
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	id := mux.Vars(r)["id"]
	run, err := h.Tracker.GetRun(r.Context(), id)
	if err != nil {
		writeStoreError(w, h.Logger, err)
		return
	}
	stored, err := h.Tracker.Results(r.Context(), id, audit.ResultFilter{OnlyReview: r.URL.Query().Get("review") == "true"})
	if err != nil {
		writeStoreError(w, h.Logger, err)
		return
	}

	rows := make([]export.Row, len(stored))
	for i, s := range stored {
		rows[i] = export.Row{MatchResult: s.MatchResult}
		if s.Decision != nil {
			rows[i].Decision = s.Decision.Decision
			rows[i].DecisionTarget = s.Decision.TargetValue
		}
	}

	var buf bytes.Buffer
	switch format {
	case export.FormatXLSX:
		err = export.WriteXLSX(&buf, rows, run.Report)
	default:
		err = export.WriteCSV(&buf, rows)
	}
	if err != nil {
		h.Logger.Error("export failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.%s"`, id, format))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
