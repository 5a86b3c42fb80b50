// Package querydriver wires the query parser, planner, executor, and
// result grouper into the two HTTP endpoints the engine exposes,
// playing the role pkg/query.Handler plays for the teacher's PromQL
// surface: request in, JSON (or plain-text error) out, with every
// shard refcount released on every exit path.
package querydriver

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/chronosdb/chronosdb/pkg/arena"
	"github.com/chronosdb/chronosdb/pkg/config"
	"github.com/chronosdb/chronosdb/pkg/executor"
	"github.com/chronosdb/chronosdb/pkg/httpx"
	"github.com/chronosdb/chronosdb/pkg/queryerr"
	"github.com/chronosdb/chronosdb/pkg/queryplan"
	"github.com/chronosdb/chronosdb/pkg/rate"
	"github.com/chronosdb/chronosdb/pkg/shard"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// Handler serves /api/query (GET and POST) and /api/config/filters
// against one shard.Store, using a shared Executor for fan-out.
type Handler struct {
	store    shard.Store
	exec     *executor.Executor
	res      timeutil.Resolution
	parallel bool
	maxBytes int

	planner queryplan.Planner
	grouper queryplan.ResultGrouper
}

// New builds a Handler from process configuration.
func New(store shard.Store, exec *executor.Executor, cfg config.Config) *Handler {
	res := timeutil.ResolutionSeconds
	if cfg.TimestampResolutionMs {
		res = timeutil.ResolutionMillis
	}
	return &Handler{
		store:    store,
		exec:     exec,
		res:      res,
		parallel: cfg.ExecutorParallel,
		maxBytes: config.DefaultMaxResponseBytes,
	}
}

// HandleQuery serves both GET and POST /api/query.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		httpx.RespondPlainError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// HandleConfigFilters serves GET /api/config/filters; this engine
// supports no extended filter types beyond exact and trailing-wildcard
// tag matches, so it always reports none.
func (h *Handler) HandleConfigFilters(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	query, err := h.ParseURLQuery(r.URL.Query())
	if err != nil {
		h.respondParseError(w, err)
		return
	}

	h.run(w, r.Context(), []*queryplan.Query{query})
}

// ParseURLQuery parses one OpenTSDB URL-form query ('start', 'end',
// 'm', 'msResolution') against this Handler's configured resolution.
// It is exported so pkg/livequery can parse the query once per
// websocket connection and then re-run Execute against the parsed
// form on every push tick, rather than re-parsing the request each
// time.
func (h *Handler) ParseURLQuery(q url.Values) (*queryplan.Query, error) {
	a := arena.New()
	now := timeutil.Now(h.res)

	startParam := q.Get("start")
	if startParam == "" {
		return nil, queryerr.BadRequestf("missing required parameter 'start'")
	}
	from, err := timeutil.ParseRelative(startParam, now, h.res)
	if err != nil {
		return nil, queryerr.BadRequestf("invalid 'start': %v", err)
	}
	to := now
	if endParam := q.Get("end"); endParam != "" {
		to, err = timeutil.ParseRelative(endParam, now, h.res)
		if err != nil {
			return nil, queryerr.BadRequestf("invalid 'end': %v", err)
		}
	}
	tr := timeutil.Range{From: from, To: to}
	if !tr.Valid() {
		return nil, queryerr.BadRequestf("start must be <= end")
	}

	mParam := q.Get("m")
	if mParam == "" {
		return nil, queryerr.BadRequestf("missing required parameter 'm'")
	}
	msResolution := q.Get("msResolution") == "true" || q.Get("msResolution") == "1"

	return queryplan.ParseURLForm(mParam, tr, msResolution, now, h.res, a)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	a := arena.New()
	now := timeutil.Now(h.res)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.RespondPlainError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}

	queries, err := queryplan.ParseJSONForm(body, now, h.res, a)
	if err != nil {
		h.respondParseError(w, err)
		return
	}

	h.run(w, r.Context(), queries)
}

func (h *Handler) respondParseError(w http.ResponseWriter, err error) {
	if qe, ok := queryerr.As(err); ok && qe.Kind == queryerr.BadRequest {
		httpx.RespondPlainError(w, http.StatusBadRequest, qe.Message)
		return
	}
	httpx.RespondPlainError(w, http.StatusBadRequest, err.Error())
}

// run plans, executes, groups, aggregates, and rate-transforms every
// query, then serializes the combined results. Shard refcounts
// acquired by the Planner are always released before returning,
// success or failure.
func (h *Handler) run(w http.ResponseWriter, ctx context.Context, queries []*queryplan.Query) {
	allResults, err := h.Execute(ctx, queries)
	if err != nil {
		log.Printf("querydriver: %v", err)
		httpx.RespondPlainError(w, http.StatusInternalServerError, "internal error planning query")
		return
	}

	body, err := buildResponse(allResults, h.maxBytes)
	if err != nil {
		httpx.RespondEmpty(w, http.StatusRequestEntityTooLarge)
		return
	}

	httpx.RespondRaw(w, http.StatusOK, body)
}

// Execute runs the plan -> fan-out -> group -> aggregate -> rate
// pipeline for queries and returns the combined, not-yet-serialized
// results. It is exported so pkg/livequery can re-run the same
// pipeline on each push tick without duplicating it. Shard refcounts
// acquired by the Planner are always released before returning,
// success or failure.
func (h *Handler) Execute(ctx context.Context, queries []*queryplan.Query) ([]*queryplan.ResultSet, error) {
	var allResults []*queryplan.ResultSet

	for _, q := range queries {
		tasks, shards, err := h.planner.Plan(ctx, q, h.store)
		if err != nil {
			for _, s := range shards {
				s.Release()
			}
			return nil, fmt.Errorf("plan failed for metric %q: %w", q.Metric, err)
		}

		execTasks := make([]executor.Task, len(tasks))
		for i, t := range tasks {
			execTasks[i] = t
		}
		h.exec.Execute(ctx, execTasks, h.parallel)

		results := h.grouper.CreateResults(tasks, q)
		for _, rs := range results {
			rs.Aggregate(q.Aggregate)
			if q.Rate != nil {
				rs.Points = rate.Apply(rs.Points, *q.Rate, h.res)
			}
		}
		allResults = append(allResults, results...)

		for _, s := range shards {
			s.Release()
		}
	}

	return allResults, nil
}

// BuildResponse exposes buildResponse for callers (pkg/livequery) that
// need the same wire encoding and size-ceiling check this handler uses
// for its HTTP responses.
func BuildResponse(results []*queryplan.ResultSet, maxBytes int) ([]byte, error) {
	return buildResponse(results, maxBytes)
}

// MaxBytes reports the response-size ceiling this Handler was built
// with, so callers building on top of it (pkg/livequery) apply the
// same limit.
func (h *Handler) MaxBytes() int { return h.maxBytes }
