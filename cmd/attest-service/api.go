// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/attest/lib/clock"
	"github.com/bureau-foundation/attest/lib/config"
	"github.com/bureau-foundation/attest/lib/export"
	"github.com/bureau-foundation/attest/lib/intake"
	"github.com/bureau-foundation/attest/lib/jobs"
	"github.com/bureau-foundation/attest/lib/service"
	"github.com/bureau-foundation/attest/lib/trail"
)

// maxSubmissionBodySize is the maximum size of a submission payload we
// will accept. Submissions carry full session transcripts; 32 MB gives
// comfortable headroom over anything observed in practice.
const maxSubmissionBodySize = 32 * 1024 * 1024

// api routes the audit service's HTTP endpoints. It verifies optional
// HMAC-SHA256 submission signatures, validates submissions at intake,
// and translates job manager errors into the status codes clients
// dispatch on: 404 for unknown jobs, 400 for jobs that exist but have
// no package yet.
type api struct {
	jobs             *jobs.Manager
	settings         *config.Settings
	recorder         *trail.Recorder
	registry         *export.Registry
	logger           *slog.Logger
	clock            clock.Clock
	submissionSecret []byte

	startedAt time.Time
	mux       *http.ServeMux
}

// apiConfig configures the api handler.
type apiConfig struct {
	// Jobs runs and tracks generation jobs. Required.
	Jobs *jobs.Manager

	// Settings is the runtime view of the tunable audit settings.
	// Required.
	Settings *config.Settings

	// Recorder is the config change trail. Required.
	Recorder *trail.Recorder

	// Registry holds the export renderers. Required.
	Registry *export.Registry

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Clock supplies the uptime baseline. Defaults to clock.Real().
	Clock clock.Clock

	// SubmissionSecret enables HMAC verification of submission bodies
	// when non-empty. Empty means submissions are accepted unsigned.
	SubmissionSecret []byte
}

// newAPI builds the service's http.Handler. Panics if a required
// dependency is missing.
func newAPI(config apiConfig) *api {
	if config.Jobs == nil {
		panic("api: Jobs is required")
	}
	if config.Settings == nil {
		panic("api: Settings is required")
	}
	if config.Recorder == nil {
		panic("api: Recorder is required")
	}
	if config.Registry == nil {
		panic("api: Registry is required")
	}
	if config.Logger == nil {
		panic("api: Logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	handler := &api{
		jobs:             config.Jobs,
		settings:         config.Settings,
		recorder:         config.Recorder,
		registry:         config.Registry,
		logger:           config.Logger,
		clock:            config.Clock,
		submissionSecret: config.SubmissionSecret,
		startedAt:        config.Clock.Now().UTC(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /audit/generate", handler.handleGenerate)
	mux.HandleFunc("GET /audit/jobs/{id}", handler.handleJob)
	mux.HandleFunc("GET /audit/download/{id}/{format}", handler.handleDownload)
	mux.HandleFunc("GET /audit/config", handler.handleConfigGet)
	mux.HandleFunc("PATCH /audit/config", handler.handleConfigPatch)
	mux.HandleFunc("GET /audit/config-changes", handler.handleConfigChanges)
	mux.HandleFunc("GET /health", handler.handleHealth)
	handler.mux = mux

	return handler
}

func (a *api) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	a.mux.ServeHTTP(writer, request)
}

// --- Submission ---

func (a *api) handleGenerate(writer http.ResponseWriter, request *http.Request) {
	// Read the body first; HMAC verification requires the raw bytes.
	body, err := io.ReadAll(io.LimitReader(request.Body, maxSubmissionBodySize))
	if err != nil {
		a.logger.Error("generate: failed to read body", "error", err)
		http.Error(writer, "", http.StatusInternalServerError)
		return
	}
	if len(body) == 0 {
		a.writeError(writer, http.StatusBadRequest, "request body is empty")
		return
	}

	if len(a.submissionSecret) > 0 {
		signature := request.Header.Get("X-Attest-Signature-256")
		if err := service.VerifySubmissionHMAC(a.submissionSecret, body, signature); err != nil {
			a.logger.Warn("generate: HMAC verification failed",
				"error", err,
				"remote_addr", request.RemoteAddr,
			)
			// 401 with no information disclosure.
			http.Error(writer, "", http.StatusUnauthorized)
			return
		}
	}

	var submission intake.Submission
	if err := json.Unmarshal(body, &submission); err != nil {
		a.writeError(writer, http.StatusBadRequest, fmt.Sprintf("parsing submission: %v", err))
		return
	}

	// Validate at intake so the submitter gets the full problem list
	// synchronously instead of polling a failed job.
	if err := submission.Validate(); err != nil {
		var validation *intake.ValidationError
		if errors.As(err, &validation) {
			a.writeJSON(writer, http.StatusBadRequest, map[string]any{
				"error":    "invalid submission",
				"problems": validation.Problems,
			})
			return
		}
		a.writeError(writer, http.StatusBadRequest, err.Error())
		return
	}

	id, err := a.jobs.Submit(request.Context(), &submission)
	if err != nil {
		if errors.Is(err, jobs.ErrClosed) {
			a.writeError(writer, http.StatusServiceUnavailable, "service is shutting down")
			return
		}
		a.logger.Error("generate: submit failed", "error", err)
		http.Error(writer, "", http.StatusInternalServerError)
		return
	}

	a.writeJSON(writer, http.StatusAccepted, map[string]any{
		"job_id": id,
		"status": jobs.StatusPending,
	})
}

// --- Job polling and download ---

func (a *api) handleJob(writer http.ResponseWriter, request *http.Request) {
	snapshot, err := a.jobs.Poll(request.PathValue("id"))
	if err != nil {
		a.writeError(writer, http.StatusNotFound, "unknown job")
		return
	}
	a.writeJSON(writer, http.StatusOK, snapshot)
}

func (a *api) handleDownload(writer http.ResponseWriter, request *http.Request) {
	id := request.PathValue("id")
	format := request.PathValue("format")

	sealed, err := a.jobs.Artifact(id)
	if err != nil {
		a.writeArtifactError(writer, id, err)
		return
	}

	renderer, ok := a.registry.Lookup(format)
	if !ok {
		a.writeError(writer, http.StatusBadRequest, fmt.Sprintf(
			"unknown export format %q (available: %s)",
			format, strings.Join(a.registry.Formats(), ", ")))
		return
	}

	data, err := renderer.Render(request.Context(), sealed)
	if err != nil {
		a.logger.Error("download: render failed",
			"job_id", id,
			"format", format,
			"error", err,
		)
		http.Error(writer, "", http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", renderer.ContentType())
	writer.WriteHeader(http.StatusOK)
	if _, err := writer.Write(data); err != nil {
		a.logger.Error("download: writing response", "job_id", id, "error", err)
	}
}

// writeArtifactError translates an Artifact error. Unknown jobs are
// 404. Jobs that exist but have not produced a package (still pending,
// still running, or failed) are 400 with the job's current status, so
// a client polling the wrong endpoint can tell "wrong ID" from "not
// done yet".
func (a *api) writeArtifactError(writer http.ResponseWriter, id string, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		a.writeError(writer, http.StatusNotFound, "unknown job")
		return
	}

	snapshot, pollErr := a.jobs.Poll(id)
	if pollErr != nil {
		// Swept between Artifact and Poll.
		a.writeError(writer, http.StatusNotFound, "unknown job")
		return
	}

	message := "audit package not ready"
	if !errors.Is(err, jobs.ErrNotReady) {
		// The job failed; surface the classified pipeline error.
		message = err.Error()
	}
	a.writeJSON(writer, http.StatusBadRequest, map[string]any{
		"error":  message,
		"status": snapshot.Status,
	})
}

// --- Runtime configuration ---

func (a *api) handleConfigGet(writer http.ResponseWriter, request *http.Request) {
	a.writeJSON(writer, http.StatusOK, a.settings.View())
}

// configPatch is the request body of PATCH /audit/config.
type configPatch struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (a *api) handleConfigPatch(writer http.ResponseWriter, request *http.Request) {
	body, err := io.ReadAll(io.LimitReader(request.Body, maxSubmissionBodySize))
	if err != nil {
		a.logger.Error("config patch: failed to read body", "error", err)
		http.Error(writer, "", http.StatusInternalServerError)
		return
	}

	var patch configPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		a.writeError(writer, http.StatusBadRequest, fmt.Sprintf("parsing config patch: %v", err))
		return
	}
	if patch.Field == "" {
		a.writeError(writer, http.StatusBadRequest, "field is required")
		return
	}
	// Updates without attribution are not accepted: the change trail
	// exists to answer "who changed this and why".
	if patch.Actor == "" {
		a.writeError(writer, http.StatusBadRequest, "actor is required")
		return
	}

	change, err := a.settings.Update(patch.Field, patch.Value, patch.Actor, patch.Reason)
	if err != nil {
		// The rejected attempt is already recorded in the trail; the
		// response carries the recorded change so the caller sees it.
		a.writeJSON(writer, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"change": change,
		})
		return
	}

	a.writeJSON(writer, http.StatusOK, change)
}

func (a *api) handleConfigChanges(writer http.ResponseWriter, request *http.Request) {
	limit := 0
	if raw := request.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			a.writeError(writer, http.StatusBadRequest, fmt.Sprintf("limit %q is not a non-negative integer", raw))
			return
		}
		limit = parsed
	}

	wantCSV := request.URL.Query().Get("format") == "csv" ||
		strings.Contains(request.Header.Get("Accept"), "text/csv")
	if wantCSV {
		writer.Header().Set("Content-Type", "text/csv; charset=utf-8")
		writer.WriteHeader(http.StatusOK)
		if err := a.recorder.WriteCSV(writer, limit); err != nil {
			// Headers are gone; all we can do is log.
			a.logger.Error("config changes: writing CSV", "error", err)
		}
		return
	}

	a.writeJSON(writer, http.StatusOK, a.recorder.List(limit))
}

// --- Health ---

func (a *api) handleHealth(writer http.ResponseWriter, request *http.Request) {
	uptime := a.clock.Now().UTC().Sub(a.startedAt)
	a.writeJSON(writer, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(uptime.Seconds()),
		"jobs":           a.jobs.Stats(),
	})
}

// --- Response helpers ---

func (a *api) writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		a.logger.Error("writing JSON response", "error", err)
	}
}

func (a *api) writeError(writer http.ResponseWriter, status int, message string) {
	a.writeJSON(writer, status, map[string]string{"error": message})
}
