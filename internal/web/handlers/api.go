package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	import_pkg "github.com/crossref-matcher/internal/import"
	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/matcher"
)

// Config is the subset of server settings the handlers need.
type Config struct {
	Threshold float64
	Features  struct {
		ExportEnabled bool `json:"export_enabled"`
		ReviewEnabled bool `json:"review_enabled"`
	} `json:"features"`
	MaxUploadValues int
	MaxBodyBytes    int64
}

// APIHandler serves matching and engine endpoints.
type APIHandler struct {
	Processor *matcher.BatchProcessor
	Config    *Config
	Logger    *zap.Logger
	Version   string
}

// MatchRequest is the JSON body of POST /api/match.
type MatchRequest struct {
	Sources   []any    `json:"sources"`
	Targets   []any    `json:"targets"`
	Threshold *float64 `json:"threshold,omitempty"`
	Label     string   `json:"label,omitempty"`
	Save      *bool    `json:"save,omitempty"`
}

// IdentifierRequest is the JSON body of POST /api/match/identifiers.
type IdentifierRequest struct {
	Sources   []match.Record `json:"sources"`
	Targets   []match.Record `json:"targets"`
	Threshold *float64       `json:"threshold,omitempty"`
	Label     string         `json:"label,omitempty"`
	Save      *bool          `json:"save,omitempty"`
}

// MatchResponse is returned by both match endpoints.
type MatchResponse struct {
	RunID   string              `json:"run_id,omitempty"`
	Results []match.MatchResult `json:"results"`
	Report  any                 `json:"report"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

var errTooLarge = errors.New("request too large")

func (h *APIHandler) threshold(t *float64) float64 {
	if t != nil {
		return *t
	}
	return h.Config.Threshold
}

func save(s *bool) bool {
	return s == nil || *s
}

func (h *APIHandler) checkSize(n ...int) error {
	if h.Config.MaxUploadValues <= 0 {
		return nil
	}
	for _, v := range n {
		if v > h.Config.MaxUploadValues {
			return fmt.Errorf("%w: %d values exceeds limit of %d", errTooLarge, v, h.Config.MaxUploadValues)
		}
	}
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	return decodeBody(w, r, h.Config.MaxBodyBytes, v)
}

// Match handles POST /api/match. It accepts a JSON MatchRequest or a multipart
// form with "source" and "target" spreadsheet files.
func (h *APIHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := h.parseUpload(w, r, &req); err != nil {
			h.writeUploadError(w, err)
			return
		}
	} else if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request: %v", err)
		return
	}

	for i := range req.Sources {
		req.Sources[i] = fromJSON(req.Sources[i])
	}
	for i := range req.Targets {
		req.Targets[i] = fromJSON(req.Targets[i])
	}
	if err := h.checkSize(len(req.Sources), len(req.Targets)); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "%v", err)
		return
	}

	out, err := h.Processor.ProcessValues(r.Context(), matcher.Job{
		Label:     req.Label,
		Threshold: h.threshold(req.Threshold),
		Sources:   req.Sources,
		Targets:   req.Targets,
		Save:      save(req.Save),
	})
	h.respond(w, out, err)
}

// MatchIdentifiers handles POST /api/match/identifiers.
func (h *APIHandler) MatchIdentifiers(w http.ResponseWriter, r *http.Request) {
	var req IdentifierRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request: %v", err)
		return
	}
	for i := range req.Sources {
		req.Sources[i].ID = fromJSON(req.Sources[i].ID)
		req.Sources[i].Description = fromJSON(req.Sources[i].Description)
	}
	for i := range req.Targets {
		req.Targets[i].ID = fromJSON(req.Targets[i].ID)
		req.Targets[i].Description = fromJSON(req.Targets[i].Description)
	}
	if err := h.checkSize(len(req.Sources), len(req.Targets)); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "%v", err)
		return
	}

	out, err := h.Processor.ProcessIdentifiers(r.Context(), matcher.Job{
		Label:         req.Label,
		Threshold:     h.threshold(req.Threshold),
		SourceRecords: req.Sources,
		TargetRecords: req.Targets,
		Save:          save(req.Save),
	})
	h.respond(w, out, err)
}

func (h *APIHandler) respond(w http.ResponseWriter, out *matcher.Outcome, err error) {
	switch {
	case errors.Is(err, match.ErrInvalidThreshold):
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	case err != nil:
		h.Logger.Error("matching failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "matching failed")
		return
	}

	resp := MatchResponse{Results: out.Results, Report: out.Report}
	if out.Run != nil {
		resp.RunID = out.Run.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// fromJSON turns json.Number into int64 or float64 so identifiers like 1001
// compare equal to "1001" after coercion.
func fromJSON(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

const maxMemory = 32 << 20

func (h *APIHandler) parseUpload(w http.ResponseWriter, r *http.Request, req *MatchRequest) error {
	if h.Config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return fmt.Errorf("invalid upload: %w", err)
	}

	var err error
	if req.Sources, err = uploadedColumn(r, "source"); err != nil {
		return err
	}
	if req.Targets, err = uploadedColumn(r, "target"); err != nil {
		return err
	}

	if v := r.FormValue("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid threshold %q", v)
		}
		req.Threshold = &t
	}
	req.Label = r.FormValue("label")
	if v := r.FormValue("save"); v == "false" || v == "0" {
		f := false
		req.Save = &f
	}
	return nil
}

// uploadedColumn reads the file field name and extracts the column named by
// "<name>_column" (default: description column aliases) from "<name>_sheet".
func uploadedColumn(r *http.Request, name string) ([]any, error) {
	file, header, err := r.FormFile(name)
	if err != nil {
		return nil, fmt.Errorf("missing %s file: %w", name, err)
	}
	defer file.Close()

	table, err := readUpload(file, header, r.FormValue(name+"_sheet"))
	if err != nil {
		return nil, err
	}

	spec := import_pkg.DescriptionColumn
	if col := r.FormValue(name + "_column"); col != "" {
		spec = import_pkg.ColumnSpec{Name: col, Aliases: []string{col}}
	}
	return import_pkg.Values(table, spec)
}

func readUpload(file multipart.File, header *multipart.FileHeader, sheet string) (*import_pkg.Table, error) {
	format, err := import_pkg.FormatFromPath(filepath.Base(header.Filename))
	if err != nil {
		return nil, err
	}
	t, err := import_pkg.Read(file, format, sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", header.Filename, err)
	}
	return t, nil
}

func (h *APIHandler) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, import_pkg.ErrColumnNotFound), errors.Is(err, import_pkg.ErrUnsupportedFormat),
		errors.Is(err, import_pkg.ErrSheetNotFound):
		writeError(w, http.StatusUnprocessableEntity, "%v", err)
	default:
		writeError(w, http.StatusBadRequest, "%v", err)
	}
}

// GetStats handles GET /api/stats.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	engine := h.Processor.Engine()
	writeJSON(w, http.StatusOK, map[string]any{
		"engine": engine.Stats(),
		"config": engine.Config(),
	})
}

// ClearCache handles POST /api/cache/clear.
func (h *APIHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.Processor.Engine().ClearCache()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

// Health handles GET /healthz.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "version": h.Version}
	if tr := h.Processor.Tracker(); tr != nil {
		if err := tr.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, status)
}
