package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/hybrid"
	"github.com/starford/rallylog/internal/indexer"
	"github.com/starford/rallylog/internal/models"
	"github.com/starford/rallylog/internal/recordservice"
)

const defaultSearchLimit = 20

// RecordService writes and reads records.
type RecordService interface {
	Create(ctx context.Context, rec models.Record) (*recordservice.WriteResult, error)
	Append(ctx context.Context, id, text, label string) (*recordservice.WriteResult, error)
	Get(ctx context.Context, id string) (*models.Record, error)
}

// Searcher is the lexical search surface.
type Searcher interface {
	Search(ctx context.Context, f models.SearchFilters, limit int) ([]models.Record, error)
	FindFuzzy(ctx context.Context, dateText string, keywords []string, scene string, limit int) ([]models.Record, error)
}

// QueryEngine answers the purpose-specific retrieval queries.
type QueryEngine interface {
	SimilarForComparison(ctx context.Context, text string, opts hybrid.ComparisonOptions) (*hybrid.Result, error)
	RecentForContradiction(ctx context.Context, n int, excludeID string) (*hybrid.Result, error)
	RelatedForQuestion(ctx context.Context, question string, k int) (*hybrid.Result, error)
	SensationSearch(ctx context.Context, query, scene string, limit int) (*hybrid.Result, error)
}

// Reindexer re-embeds the journal.
type Reindexer interface {
	Reindex(ctx context.Context, force bool) (indexer.Stats, error)
}

// Deps are the services behind the API. Reindexer may be nil when no
// embedding provider is configured.
type Deps struct {
	Records   RecordService
	Search    Searcher
	Query     QueryEngine
	Reindexer Reindexer
}

// Handler holds API route handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// CreateRecord handles POST /api/records.
//
//	@Summary		Create a journal record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateRecordRequest	true	"Record"
//	@Success		201		{object}	WriteResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [post]
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "create record", err)
		return
	}
	res, err := h.deps.Records.Create(r.Context(), req.record())
	if err != nil {
		writeError(w, "create record", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary		Get a record by id
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record id"
//	@Success		200	{object}	RecordResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// AppendRecord handles POST /api/records/{id}/append.
//
//	@Summary		Append a timestamped block to a record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Record id"
//	@Param			body	body		AppendRecordRequest	true	"Text to append"
//	@Success		200		{object}	WriteResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id}/append [post]
func (h *Handler) AppendRecord(w http.ResponseWriter, r *http.Request) {
	var req AppendRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "append record", err)
		return
	}
	res, err := h.deps.Records.Append(r.Context(), chi.URLParam(r, "id"), req.Text, req.Label)
	if err != nil {
		writeError(w, "append record", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Lexical search with filters
//	@Tags			search
//	@Produce		json
//	@Param			q			query		string	false	"Comma-separated keywords (any may match)"
//	@Param			tags		query		string	false	"Comma-separated tags"
//	@Param			match_all	query		bool	false	"Require every tag"
//	@Param			scene		query		string	false	"Scene"
//	@Param			from		query		string	false	"First day (YYYY-MM-DD)"
//	@Param			to			query		string	false	"Last day (YYYY-MM-DD)"
//	@Param			limit		query		int		false	"Maximum results"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.SearchFilters{
		Keywords:     splitList(q.Get("q")),
		Tags:         splitList(q.Get("tags")),
		Scene:        strings.TrimSpace(q.Get("scene")),
		MatchAllTags: q.Get("match_all") == "true",
	}
	dr, err := dateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, "search", err)
		return
	}
	f.DateRange = dr
	limit, err := intParam(q.Get("limit"), defaultSearchLimit)
	if err != nil {
		writeError(w, "search", err)
		return
	}

	recs, err := h.deps.Search.Search(r.Context(), f, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Records: recs, Total: len(recs)})
}

// FuzzySearch handles GET /api/search/fuzzy.
//
//	@Summary		Search by a loose date expression
//	@Tags			search
//	@Produce		json
//	@Param			date	query		string	false	"Date text such as 昨日, 3日前 or 1/15"
//	@Param			q		query		string	false	"Comma-separated keywords"
//	@Param			scene	query		string	false	"Scene"
//	@Param			limit	query		int		false	"Maximum results"
//	@Success		200		{object}	SearchResponse
//	@Security		BearerAuth
//	@Router			/search/fuzzy [get]
func (h *Handler) FuzzySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultSearchLimit)
	if err != nil {
		writeError(w, "fuzzy search", err)
		return
	}
	recs, err := h.deps.Search.FindFuzzy(r.Context(), q.Get("date"), splitList(q.Get("q")),
		strings.TrimSpace(q.Get("scene")), limit)
	if err != nil {
		writeError(w, "fuzzy search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Records: recs, Total: len(recs)})
}

// Similar handles POST /api/query/similar.
//
//	@Summary		Past records to compare against a new entry
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SimilarRequest	true	"Entry text"
//	@Success		200		{object}	QueryResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query/similar [post]
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	var req SimilarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "similar query", err)
		return
	}
	res, err := h.deps.Query.SimilarForComparison(r.Context(), req.Text, hybrid.ComparisonOptions{
		Scene:             req.Scene,
		Limit:             req.Limit,
		ExcludeRecentDays: req.ExcludeRecentDays,
	})
	if err != nil {
		writeError(w, "similar query", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Recent handles GET /api/query/recent.
//
//	@Summary		Newest records, for contradiction checks
//	@Tags			query
//	@Produce		json
//	@Param			n			query		int		false	"Record count"
//	@Param			exclude_id	query		string	false	"Record id to leave out"
//	@Success		200			{object}	QueryResponse
//	@Security		BearerAuth
//	@Router			/query/recent [get]
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := intParam(q.Get("n"), hybrid.DefaultRecentCount)
	if err != nil {
		writeError(w, "recent query", err)
		return
	}
	res, err := h.deps.Query.RecentForContradiction(r.Context(), n, q.Get("exclude_id"))
	if err != nil {
		writeError(w, "recent query", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Related handles POST /api/query/related.
//
//	@Summary		Records related to a question
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RelatedRequest	true	"Question"
//	@Success		200		{object}	QueryResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query/related [post]
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	var req RelatedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "related query", err)
		return
	}
	res, err := h.deps.Query.RelatedForQuestion(r.Context(), req.Question, req.K)
	if err != nil {
		writeError(w, "related query", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sensation handles POST /api/query/sensation.
//
//	@Summary		Synonym-expanded search for feel and technique words
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SensationRequest	true	"Query"
//	@Success		200		{object}	QueryResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query/sensation [post]
func (h *Handler) Sensation(w http.ResponseWriter, r *http.Request) {
	var req SensationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "sensation query", err)
		return
	}
	res, err := h.deps.Query.SensationSearch(r.Context(), req.Query, req.Scene, req.Limit)
	if err != nil {
		writeError(w, "sensation query", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reindex handles POST /api/admin/reindex.
//
//	@Summary		Re-embed changed records, or all with force=true
//	@Tags			admin
//	@Produce		json
//	@Param			force	query		bool	false	"Re-embed every record"
//	@Success		200		{object}	ReindexResponse
//	@Failure		409		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	if h.deps.Reindexer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("embedding is not configured"))
		return
	}
	st, err := h.deps.Reindexer.Reindex(r.Context(), r.URL.Query().Get("force") == "true")
	if err != nil {
		writeError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// splitList splits a comma-separated parameter, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer: %w", s, apperr.ErrInvalidInput)
	}
	if n == 0 {
		return def, nil
	}
	return n, nil
}

// dateRange builds an inclusive range from optional YYYY-MM-DD bounds. A
// missing bound is open.
func dateRange(from, to string) (*models.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	r := &models.DateRange{From: time.Time{}, To: time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)}
	if from != "" {
		d, err := time.Parse(models.DateLayout, from)
		if err != nil {
			return nil, fmt.Errorf("from: %q is not YYYY-MM-DD: %w", from, apperr.ErrInvalidInput)
		}
		r.From = d
	}
	if to != "" {
		d, err := time.Parse(models.DateLayout, to)
		if err != nil {
			return nil, fmt.Errorf("to: %q is not YYYY-MM-DD: %w", to, apperr.ErrInvalidInput)
		}
		r.To = d
	}
	if r.To.Before(r.From) {
		return nil, fmt.Errorf("from %s is after to %s: %w", from, to, apperr.ErrInvalidInput)
	}
	return r, nil
}
