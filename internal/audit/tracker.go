// Package audit persists matching runs, their results and reviewer decisions.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crossref-matcher/internal/db"
	"github.com/crossref-matcher/internal/debug"
	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/report"
)

var (
	ErrRunNotFound     = errors.New("run not found")
	ErrResultNotFound  = errors.New("result not found")
	ErrInvalidDecision = errors.New("invalid decision")
)

// Run modes.
const (
	ModeValues      = "values"
	ModeIdentifiers = "identifiers"
)

// Decision values accepted by RecordDecision.
const (
	DecisionAccepted = "accepted"
	DecisionRejected = "rejected"
	DecisionRemapped = "remapped"
)

// timestamps are stored as fixed-width UTC text so they sort lexically on both drivers
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS match_run (
		run_id        TEXT PRIMARY KEY,
		label         TEXT NOT NULL DEFAULT '',
		mode          TEXT NOT NULL,
		threshold     DOUBLE PRECISION NOT NULL,
		config_json   TEXT NOT NULL,
		report_json   TEXT NOT NULL,
		total_count   INTEGER NOT NULL,
		matched_count INTEGER NOT NULL,
		review_count  INTEGER NOT NULL,
		created_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS match_result (
		run_id            TEXT NOT NULL REFERENCES match_run(run_id) ON DELETE CASCADE,
		result_index      INTEGER NOT NULL,
		source_index      INTEGER NOT NULL,
		source_value      TEXT NOT NULL,
		source_id         TEXT NOT NULL DEFAULT '',
		target_index      INTEGER NOT NULL,
		target_value      TEXT NOT NULL,
		target_id         TEXT NOT NULL DEFAULT '',
		id_status         TEXT NOT NULL DEFAULT '',
		category          TEXT NOT NULL,
		overall           DOUBLE PRECISION NOT NULL,
		confidence        DOUBLE PRECISION NOT NULL,
		data_type         TEXT NOT NULL,
		recommendation    TEXT NOT NULL,
		needs_review      BOOLEAN NOT NULL,
		coercion_failed   BOOLEAN NOT NULL,
		scores_json       TEXT NOT NULL,
		alternatives_json TEXT NOT NULL,
		PRIMARY KEY (run_id, result_index)
	)`,
	`CREATE TABLE IF NOT EXISTS match_decision (
		decision_id  TEXT PRIMARY KEY,
		run_id       TEXT NOT NULL,
		result_index INTEGER NOT NULL,
		decision     TEXT NOT NULL,
		target_value TEXT NOT NULL DEFAULT '',
		decided_by   TEXT NOT NULL DEFAULT '',
		note         TEXT NOT NULL DEFAULT '',
		decided_at   TEXT NOT NULL,
		FOREIGN KEY (run_id, result_index) REFERENCES match_result(run_id, result_index) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_match_run_created ON match_run(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_match_result_review ON match_result(run_id, needs_review)`,
	`CREATE INDEX IF NOT EXISTS idx_match_decision_result ON match_decision(run_id, result_index)`,
}

// Run is one stored matching run.
type Run struct {
	ID          string        `json:"id"`
	Label       string        `json:"label"`
	Mode        string        `json:"mode"`
	Threshold   float64       `json:"threshold"`
	Config      match.Config  `json:"config"`
	Report      report.Report `json:"report"`
	Total       int           `json:"total"`
	Matched     int           `json:"matched"`
	NeedsReview int           `json:"needs_review"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Decision is a reviewer verdict on one stored result.
type Decision struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	ResultIndex int       `json:"result_index"`
	Decision    string    `json:"decision"`
	TargetValue string    `json:"target_value,omitempty"` // required for "remapped"
	DecidedBy   string    `json:"decided_by,omitempty"`
	Note        string    `json:"note,omitempty"`
	DecidedAt   time.Time `json:"decided_at"`
}

// StoredResult is a persisted match result with its latest decision, if any.
type StoredResult struct {
	RunID string `json:"run_id"`
	Index int    `json:"index"`
	match.MatchResult
	Decision *Decision `json:"decision,omitempty"`
}

// ResultFilter narrows Results. Zero values select everything.
type ResultFilter struct {
	OnlyReview bool
	Category   string
	Limit      int
	Offset     int
}

// Tracker reads and writes the audit tables.
type Tracker struct {
	conn   *db.Connection
	logger *zap.Logger
	debug  bool
	now    func() time.Time
}

// NewTracker creates a tracker on conn. A nil logger uses the package logger.
func NewTracker(conn *db.Connection, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = debug.L()
	}
	return &Tracker{conn: conn, logger: logger, now: time.Now}
}

// SetDebug toggles verbose tracing of tracker operations.
func (t *Tracker) SetDebug(enabled bool) {
	t.debug = enabled
}

// Ping checks the database is reachable.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.conn.DB.PingContext(ctx)
}

// EnsureSchema creates the audit tables when they do not exist.
func (t *Tracker) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := t.conn.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create audit schema: %w", err)
		}
	}
	t.logger.Debug("audit schema ready", zap.String("driver", t.conn.Driver))
	return nil
}

// SaveRun stores run and its results in one transaction. A missing ID or
// creation time is filled in; counts are taken from the run report.
func (t *Tracker) SaveRun(ctx context.Context, run *Run, results []match.MatchResult) error {
	debug.DebugHeader(t.debug)
	defer debug.DebugFooter(t.debug)

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = t.now()
	}
	if run.Mode == "" {
		run.Mode = ModeValues
	}
	run.Total = run.Report.Total
	run.Matched = run.Report.Matched
	run.NeedsReview = run.Report.NeedsReview

	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to encode run config: %w", err)
	}
	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	tx, err := t.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, t.conn.Rebind(`
		INSERT INTO match_run (
			run_id, label, mode, threshold, config_json, report_json,
			total_count, matched_count, review_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), run.ID, run.Label, run.Mode, run.Threshold, string(configJSON), string(reportJSON),
		run.Total, run.Matched, run.NeedsReview, formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert match run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, t.conn.Rebind(`
		INSERT INTO match_result (
			run_id, result_index, source_index, source_value, source_id,
			target_index, target_value, target_id, id_status, category,
			overall, confidence, data_type, recommendation, needs_review,
			coercion_failed, scores_json, alternatives_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range results {
		scoresJSON, err := json.Marshal(r.Scores)
		if err != nil {
			return fmt.Errorf("failed to encode scores of result %d: %w", i, err)
		}
		alts := r.Alternatives
		if alts == nil {
			alts = []match.Alternative{}
		}
		altsJSON, err := json.Marshal(alts)
		if err != nil {
			return fmt.Errorf("failed to encode alternatives of result %d: %w", i, err)
		}

		_, err = stmt.ExecContext(ctx,
			run.ID, i, r.SourceIndex, r.SourceValue, r.SourceID,
			r.TargetIndex, r.TargetValue, r.TargetID, string(r.IDStatus), r.Category.String(),
			r.Scores.Overall, r.Confidence, string(r.DataType), r.Recommendation, r.NeedsReview,
			r.CoercionFailed, string(scoresJSON), string(altsJSON))
		if err != nil {
			return fmt.Errorf("failed to insert result %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	debug.DebugOutput(t.debug, "Saved run %s with %d results", run.ID, len(results))
	t.logger.Info("run saved",
		zap.String("run_id", run.ID),
		zap.String("mode", run.Mode),
		zap.Int("results", len(results)),
		zap.Int("needs_review", run.NeedsReview))
	return nil
}

const runColumns = `run_id, label, mode, threshold, config_json, report_json,
	total_count, matched_count, review_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run                    Run
		configJSON, reportJSON string
		createdAt              string
	)
	err := row.Scan(&run.ID, &run.Label, &run.Mode, &run.Threshold, &configJSON, &reportJSON,
		&run.Total, &run.Matched, &run.NeedsReview, &createdAt)
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return Run{}, fmt.Errorf("failed to decode config of run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(reportJSON), &run.Report); err != nil {
		return Run{}, fmt.Errorf("failed to decode report of run %s: %w", run.ID, err)
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (t *Tracker) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM match_run ORDER BY created_at DESC, run_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.conn.DB.QueryContext(ctx, t.conn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun loads one run by ID.
func (t *Tracker) GetRun(ctx context.Context, id string) (Run, error) {
	row := t.conn.DB.QueryRowContext(ctx,
		t.conn.Rebind(`SELECT `+runColumns+` FROM match_run WHERE run_id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return run, nil
}

// Results returns the stored results of a run in their original order, each
// carrying the latest reviewer decision.
func (t *Tracker) Results(ctx context.Context, runID string, filter ResultFilter) ([]StoredResult, error) {
	if _, err := t.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	var (
		where = []string{"run_id = ?"}
		args  = []any{runID}
	)
	if filter.OnlyReview {
		where = append(where, "needs_review = ?")
		args = append(args, true)
	}
	if filter.Category != "" {
		var cat match.Category
		if err := cat.UnmarshalText([]byte(filter.Category)); err != nil {
			return nil, err
		}
		where = append(where, "category = ?")
		args = append(args, cat.String())
	}

	query := `SELECT result_index, source_index, source_value, source_id,
		target_index, target_value, target_id, id_status, category,
		overall, confidence, data_type, recommendation, needs_review,
		coercion_failed, scores_json, alternatives_json
		FROM match_result WHERE ` + strings.Join(where, " AND ") + ` ORDER BY result_index`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := t.conn.DB.QueryContext(ctx, t.conn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}

	results := []StoredResult{}
	for rows.Next() {
		sr, err := scanResult(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sr.RunID = runID
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// decisions are read after the result cursor is closed; sqlite runs on one connection
	decisions, err := t.Decisions(ctx, runID)
	if err != nil {
		return nil, err
	}
	latest := make(map[int]Decision, len(decisions))
	for _, d := range decisions {
		latest[d.ResultIndex] = d
	}
	for i := range results {
		if d, ok := latest[results[i].Index]; ok {
			results[i].Decision = &d
		}
	}
	return results, nil
}

func scanResult(row rowScanner) (StoredResult, error) {
	var (
		sr                   StoredResult
		r                    = &sr.MatchResult
		idStatus, category   string
		dataType             string
		overall              float64
		scoresJSON, altsJSON string
	)
	err := row.Scan(&sr.Index, &r.SourceIndex, &r.SourceValue, &r.SourceID,
		&r.TargetIndex, &r.TargetValue, &r.TargetID, &idStatus, &category,
		&overall, &r.Confidence, &dataType, &r.Recommendation, &r.NeedsReview,
		&r.CoercionFailed, &scoresJSON, &altsJSON)
	if err != nil {
		return StoredResult{}, fmt.Errorf("failed to scan result: %w", err)
	}
	r.IDStatus = match.IDStatus(idStatus)
	r.DataType = match.DataType(dataType)
	if err := r.Category.UnmarshalText([]byte(category)); err != nil {
		return StoredResult{}, err
	}
	if err := json.Unmarshal([]byte(scoresJSON), &r.Scores); err != nil {
		return StoredResult{}, fmt.Errorf("failed to decode scores of result %d: %w", sr.Index, err)
	}
	r.Scores.Overall = overall
	if err := json.Unmarshal([]byte(altsJSON), &r.Alternatives); err != nil {
		return StoredResult{}, fmt.Errorf("failed to decode alternatives of result %d: %w", sr.Index, err)
	}
	if len(r.Alternatives) == 0 {
		r.Alternatives = nil
	}
	return sr, nil
}

// RecordDecision stores a reviewer verdict on one result. Earlier decisions are
// kept; the latest one wins when results are read.
func (t *Tracker) RecordDecision(ctx context.Context, d *Decision) error {
	debug.DebugHeader(t.debug)
	defer debug.DebugFooter(t.debug)

	d.Decision = strings.ToLower(strings.TrimSpace(d.Decision))
	switch d.Decision {
	case DecisionAccepted, DecisionRejected:
	case DecisionRemapped:
		if strings.TrimSpace(d.TargetValue) == "" {
			return fmt.Errorf("%w: remapped decision needs a target value", ErrInvalidDecision)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, d.Decision)
	}

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = t.now()
	}

	tx, err := t.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, t.conn.Rebind(
		`SELECT 1 FROM match_result WHERE run_id = ? AND result_index = ?`),
		d.RunID, d.ResultIndex).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: run %s index %d", ErrResultNotFound, d.RunID, d.ResultIndex)
	}
	if err != nil {
		return fmt.Errorf("failed to look up result: %w", err)
	}

	_, err = tx.ExecContext(ctx, t.conn.Rebind(`
		INSERT INTO match_decision (
			decision_id, run_id, result_index, decision, target_value, decided_by, note, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), d.ID, d.RunID, d.ResultIndex, d.Decision, d.TargetValue, d.DecidedBy, d.Note, formatTime(d.DecidedAt))
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}

	debug.DebugOutput(t.debug, "Recorded %s for run %s result %d", d.Decision, d.RunID, d.ResultIndex)
	t.logger.Info("decision recorded",
		zap.String("run_id", d.RunID),
		zap.Int("result_index", d.ResultIndex),
		zap.String("decision", d.Decision),
		zap.String("decided_by", d.DecidedBy))
	return nil
}

// Decisions lists every decision of a run, oldest first.
func (t *Tracker) Decisions(ctx context.Context, runID string) ([]Decision, error) {
	rows, err := t.conn.DB.QueryContext(ctx, t.conn.Rebind(`
		SELECT decision_id, run_id, result_index, decision, target_value, decided_by, note, decided_at
		FROM match_decision WHERE run_id = ?
		ORDER BY decided_at, decision_id
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	decisions := []Decision{}
	for rows.Next() {
		var (
			d         Decision
			decidedAt string
		)
		if err := rows.Scan(&d.ID, &d.RunID, &d.ResultIndex, &d.Decision, &d.TargetValue,
			&d.DecidedBy, &d.Note, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		if d.DecidedAt, err = parseTime(decidedAt); err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// DeleteRun removes a run with its results and decisions.
func (t *Tracker) DeleteRun(ctx context.Context, id string) error {
	tx, err := t.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM match_decision WHERE run_id = ?`,
		`DELETE FROM match_result WHERE run_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, t.conn.Rebind(stmt), id); err != nil {
			return fmt.Errorf("failed to delete run %s: %w", id, err)
		}
	}
	res, err := tx.ExecContext(ctx, t.conn.Rebind(`DELETE FROM match_run WHERE run_id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
