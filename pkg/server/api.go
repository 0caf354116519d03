package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/scoring"
	"mercator-hq/promptcanary/pkg/telemetry/logging"
	"mercator-hq/promptcanary/pkg/telemetry/metrics"
	"mercator-hq/promptcanary/pkg/telemetry/tracing"
)

// defaultEventLimit is used by GET /events when no limit is given.
const defaultEventLimit = 20

type api struct {
	ctrl    *canary.Controller
	pool    *scoring.Pool
	scorers []scoring.Scorer
	metrics *metrics.Collector
	logger  *slog.Logger
}

// Request bodies.
type (
	CreateReleaseRequest struct {
		PromptID string `json:"prompt_id"`
		Text     string `json:"text"`
	}

	CreateVersionRequest struct {
		Text string `json:"text"`
	}

	EvaluationRequest struct {
		VersionID string             `json:"version_id"`
		Scores    map[string]float64 `json:"scores"`
	}

	// ScoreRequest asks the server to run its scorers. Prompt defaults to
	// the version text. Rating is an optional 1-5 human rating; Scores are
	// precomputed categories that take precedence over scorer output.
	ScoreRequest struct {
		VersionID string             `json:"version_id"`
		Prompt    string             `json:"prompt,omitempty"`
		Response  string             `json:"response,omitempty"`
		Rating    *int               `json:"rating,omitempty"`
		Scores    map[string]float64 `json:"scores,omitempty"`
	}

	StartCanaryRequest struct {
		VersionID string `json:"version_id"`
		Percent   int    `json:"percent"`
	}

	PercentRequest struct {
		Percent int `json:"percent"`
	}

	PromoteRequest struct {
		Force  bool   `json:"force"`
		Reason string `json:"reason,omitempty"`
	}

	RollbackRequest struct {
		Reason string `json:"reason,omitempty"`
	}
)

// ScoreResponse is returned by POST /score.
type ScoreResponse struct {
	Evaluation *canary.EvaluationRecord `json:"evaluation"`
	Results    []ScorerResult           `json:"results"`
}

// ScorerResult reports one scorer run.
type ScorerResult struct {
	Scorer   string  `json:"scorer"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	Attempts int     `json:"attempts"`
	Error    string  `json:"error,omitempty"`
}

// ReleaseList is returned by GET /v1/releases.
type ReleaseList struct {
	Releases []canary.Release `json:"releases"`
}

// EventList is returned by GET /v1/releases/{id}/events.
type EventList struct {
	Events []canary.TransitionEvent `json:"events"`
}

// PolicyResponse is returned by GET /v1/policy.
type PolicyResponse struct {
	MinSamples   int64              `json:"min_samples"`
	Threshold    float64            `json:"threshold"`
	AutoRollback bool               `json:"auto_rollback"`
	AutoPromote  bool               `json:"auto_promote"`
	Weights      map[string]float64 `json:"weights"`
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/releases", a.createRelease)
	mux.HandleFunc("GET /v1/releases", a.listReleases)
	mux.HandleFunc("GET /v1/releases/{id}", a.getRelease)
	mux.HandleFunc("POST /v1/releases/{id}/versions", a.createVersion)
	mux.HandleFunc("GET /v1/releases/{id}/route", a.route)
	mux.HandleFunc("POST /v1/releases/{id}/evaluations", a.recordEvaluation)
	mux.HandleFunc("POST /v1/releases/{id}/score", a.score)
	mux.HandleFunc("GET /v1/releases/{id}/status", a.status)
	mux.HandleFunc("GET /v1/releases/{id}/events", a.events)
	mux.HandleFunc("POST /v1/releases/{id}/canary", a.startCanary)
	mux.HandleFunc("PUT /v1/releases/{id}/canary/percent", a.adjustPercent)
	mux.HandleFunc("POST /v1/releases/{id}/promote", a.promote)
	mux.HandleFunc("POST /v1/releases/{id}/rollback", a.rollback)
	mux.HandleFunc("POST /v1/releases/{id}/check", a.check)
	mux.HandleFunc("GET /v1/policy", a.policy)
}

// releaseID reads the {id} path value and tags the span and request context
// with it.
func (a *api) releaseID(r *http.Request) (string, *http.Request) {
	id := r.PathValue("id")
	tracing.SetRelease(trace.SpanFromContext(r.Context()), id)
	return id, r.WithContext(logging.WithReleaseID(r.Context(), id))
}

func (a *api) log(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context(), a.logger)
}

func (a *api) createRelease(w http.ResponseWriter, r *http.Request) {
	var req CreateReleaseRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	rel, err := a.ctrl.CreateRelease(r.Context(), req.PromptID, req.Text)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, rel)
}

func (a *api) listReleases(w http.ResponseWriter, r *http.Request) {
	releases := a.ctrl.ListReleases()
	if releases == nil {
		releases = []canary.Release{}
	}
	_ = writeJSON(w, http.StatusOK, ReleaseList{Releases: releases})
}

func (a *api) getRelease(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	rel, err := a.ctrl.GetRelease(id)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, rel)
}

func (a *api) createVersion(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	var req CreateVersionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	v, err := a.ctrl.CreateVersion(r.Context(), id, req.Text)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, v)
}

func (a *api) route(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	sel, err := a.ctrl.Route(r.Context(), id)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	tracing.SetSelection(trace.SpanFromContext(r.Context()), sel.VersionID, sel.IsCanary)
	_ = writeJSON(w, http.StatusOK, sel)
}

func (a *api) recordEvaluation(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	var req EvaluationRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	rec, err := a.ctrl.RecordEvaluation(r.Context(), id, req.VersionID, req.Scores)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, rec)
}

func (a *api) score(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	if a.pool == nil {
		writeError(w, http.StatusNotImplemented, ErrorTypeNotImplemented, "scoring is not configured")
		return
	}

	var req ScoreRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	prompt := req.Prompt
	if prompt == "" {
		v, err := a.ctrl.Registry().GetVersion(req.VersionID)
		if err != nil {
			writeCanaryError(w, err)
			return
		}
		prompt = v.Text
	}

	scores, results := a.pool.Evaluate(r.Context(), scoring.Request{
		ReleaseID: id,
		VersionID: req.VersionID,
		Prompt:    prompt,
		Response:  req.Response,
	}, a.scorers)

	if req.Rating != nil {
		fb, err := scoring.FeedbackScore(*req.Rating)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest, err.Error())
			return
		}
		scores[canary.CategoryHumanFeedback] = fb
	}
	for k, v := range req.Scores {
		scores[k] = v
	}

	out := make([]ScorerResult, len(results))
	for i, res := range results {
		out[i] = ScorerResult{Scorer: res.Scorer, Category: res.Category, Score: res.Score, Attempts: res.Attempts}
		if !res.OK() {
			out[i].Error = res.Err.Error()
		}
		if a.metrics != nil {
			a.metrics.RecordScorer(res.Scorer, res.OK(), res.Attempts)
		}
	}

	rec, err := a.ctrl.RecordEvaluation(r.Context(), id, req.VersionID, scores)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusCreated, ScoreResponse{Evaluation: rec, Results: out})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	st, err := a.ctrl.GetStatus(r.Context(), id)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, st)
}

func (a *api) events(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrorTypeInvalidRequest,
				fmt.Sprintf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = n
	}

	events, err := a.ctrl.Events(id, limit)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	if events == nil {
		events = []canary.TransitionEvent{}
	}
	_ = writeJSON(w, http.StatusOK, EventList{Events: events})
}

func (a *api) startCanary(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	var req StartCanaryRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	rel, err := a.ctrl.StartCanary(r.Context(), id, req.VersionID, req.Percent)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	a.log(r).Info("canary started via api", "version_id", req.VersionID, "percent", req.Percent)
	_ = writeJSON(w, http.StatusOK, rel)
}

func (a *api) adjustPercent(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	var req PercentRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	rel, err := a.ctrl.AdjustPercent(r.Context(), id, req.Percent)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, rel)
}

func (a *api) promote(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	var req PromoteRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	rel, err := a.ctrl.Promote(r.Context(), id, canary.PromoteOptions{Force: req.Force, Reason: req.Reason})
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	a.log(r).Info("release promoted via api", "force", req.Force)
	_ = writeJSON(w, http.StatusOK, rel)
}

func (a *api) rollback(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	var req RollbackRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	rel, err := a.ctrl.Rollback(r.Context(), id, req.Reason)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	a.log(r).Info("release rolled back via api", "reason", req.Reason)
	_ = writeJSON(w, http.StatusOK, rel)
}

func (a *api) check(w http.ResponseWriter, r *http.Request) {
	id, r := a.releaseID(r)
	res, err := a.ctrl.Check(r.Context(), id)
	if err != nil {
		writeCanaryError(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, res)
}

func (a *api) policy(w http.ResponseWriter, r *http.Request) {
	p := a.ctrl.Policy()
	_ = writeJSON(w, http.StatusOK, PolicyResponse{
		MinSamples:   p.MinSamples,
		Threshold:    p.Threshold,
		AutoRollback: p.AutoRollback,
		AutoPromote:  p.AutoPromote,
		Weights:      a.ctrl.Weights(),
	})
}
