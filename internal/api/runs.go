package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/adapters/specfile"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/service"
)

// RunSummary is the list view of a stored run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Goal       string        `json:"goal"`
	State      core.RunState `json:"state"`
	Success    bool          `json:"success"`
	OutputNode core.NodeID   `json:"output_node,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  string        `json:"started_at"`
	DurationMS int64         `json:"duration_ms"`
}

func summarize(r *core.RunRecord) RunSummary {
	return RunSummary{
		RunID:      r.RunID,
		Goal:       r.Goal,
		State:      r.State,
		Success:    r.Success,
		OutputNode: r.OutputNode,
		Error:      r.Error,
		StartedAt:  r.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		DurationMS: r.DurationMS(),
	}
}

// decodeSpec reads a task spec from the request body. YAML is accepted when
// the content type says so; everything else is decoded as JSON.
func decodeSpec(w http.ResponseWriter, r *http.Request) (core.TaskSpec, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return core.TaskSpec{}, core.ErrValidation(core.CodeInvalidTask, "request body too large or unreadable").WithCause(err)
	}

	format := specfile.FormatJSON
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		if strings.Contains(mediaType, "yaml") {
			format = specfile.FormatYAML
		}
	}
	return specfile.Parse(body, format)
}

// execute resolves and runs spec, then stores the record. Structural errors
// are returned before anything runs or is stored.
func (s *Server) execute(r *http.Request, spec core.TaskSpec, extra core.TraceSink) (*core.RunRecord, error) {
	task, err := spec.WithDefaultKind(s.defaultKind).Resolve()
	if err != nil {
		return nil, err
	}
	if _, _, err := s.orchestrator.Plan(task); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	memory := service.NewMemoryTrace()
	sinks := service.MultiTrace{memory}
	if extra != nil {
		sinks = append(sinks, extra)
	}

	fileTrace := service.NewTraceSink(s.traceCfg, s.logger)
	if fileTrace != nil {
		if err := fileTrace.StartRun(runID, task.TaskGoal()); err == nil {
			sinks = append(sinks, fileTrace)
		}
	}

	result, err := s.orchestrator.Orchestrate(r.Context(), service.Request{
		RunID: runID,
		Task:  task,
		Tools: s.registry,
		Trace: sinks,
	})
	if fileTrace != nil {
		fileTrace.EndRun()
	}
	if err != nil {
		return nil, err
	}

	record := core.NewRunRecord(result, task.TaskGoal(), &spec, memory.Events())
	if err := s.store.Save(r.Context(), record); err != nil {
		return record, fmt.Errorf("saving run %s: %w", runID, err)
	}
	return record, nil
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeSpec(w, r)
	if err != nil {
		s.respondDomainError(w, err, "invalid task")
		return
	}

	record, err := s.execute(r, spec, nil)
	if err != nil {
		if record != nil {
			s.logger.WithRun(record.RunID).Error("run finished but could not be stored", "error", err)
			s.respondError(w, http.StatusInternalServerError, "run could not be stored")
			return
		}
		s.respondDomainError(w, err, "run failed")
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+record.RunID)
	s.respondJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := core.RunFilter{State: core.RunState(r.URL.Query().Get("state"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	switch filter.State {
	case "", core.RunStateCompleted, core.RunStateFailed:
	default:
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", filter.State))
		return
	}

	records, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.respondDomainError(w, err, "listing runs failed")
		return
	}

	out := make([]RunSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, summarize(rec))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondDomainError(w, err, "loading run failed")
		return
	}

	body, err := json.Marshal(record)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "encoding run failed")
		return
	}
	etag := computeETag(body)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

func (s *Server) handleGetRunEvents(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondDomainError(w, err, "loading run failed")
		return
	}
	events := record.Events
	if events == nil {
		events = []core.TraceEvent{}
	}
	s.respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "runID")); err != nil {
		s.respondDomainError(w, err, "deleting run failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidationResponse describes a graph that passed structural validation.
type ValidationResponse struct {
	Valid        bool                          `json:"valid"`
	Waves        [][]core.NodeID               `json:"waves"`
	OutputNode   core.NodeID                   `json:"output_node"`
	MissingTools []MissingTool                 `json:"missing_tools,omitempty"`
	DanglingRefs map[core.NodeID][]core.NodeID `json:"dangling_refs,omitempty"`
}

// MissingTool names a node kind without a registered tool.
type MissingTool struct {
	Kind        string   `json:"kind"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (s *Server) handleValidateGraph(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeSpec(w, r)
	if err != nil {
		s.respondDomainError(w, err, "invalid task")
		return
	}
	task, err := spec.WithDefaultKind(s.defaultKind).Resolve()
	if err != nil {
		s.respondDomainError(w, err, "invalid task")
		return
	}
	plan, output, err := s.orchestrator.Plan(task)
	if err != nil {
		s.respondDomainError(w, err, "invalid task")
		return
	}

	resp := ValidationResponse{
		Valid:      true,
		Waves:      plan.Order,
		OutputNode: output,
	}
	for _, kind := range s.registry.Missing(task.AsGraph().Graph.Nodes) {
		resp.MissingTools = append(resp.MissingTools, MissingTool{
			Kind:        kind,
			Suggestions: s.registry.Suggest(kind, 3),
		})
	}
	if dangling := plan.DanglingReferences(); len(dangling) > 0 {
		resp.DanglingRefs = dangling
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(body))
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}
