// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Rallylog journal and retrieval queries to LLM clients
// via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/hybrid"
	"github.com/starford/rallylog/internal/models"
	"github.com/starford/rallylog/internal/recordservice"
)

// RecordFormatURI is the resource holding RecordFormatContract.
const RecordFormatURI = "rallylog://record-format"

const defaultSearchLimit = 20

// Records writes and reads journal records.
type Records interface {
	Create(ctx context.Context, rec models.Record) (*recordservice.WriteResult, error)
	Append(ctx context.Context, id, text, label string) (*recordservice.WriteResult, error)
	Get(ctx context.Context, id string) (*models.Record, error)
}

// Searcher is the lexical search surface.
type Searcher interface {
	Search(ctx context.Context, f models.SearchFilters, limit int) ([]models.Record, error)
	FindFuzzy(ctx context.Context, dateText string, keywords []string, scene string, limit int) ([]models.Record, error)
}

// Queries answers the purpose-specific retrieval queries.
type Queries interface {
	SimilarForComparison(ctx context.Context, text string, opts hybrid.ComparisonOptions) (*hybrid.Result, error)
	RecentForContradiction(ctx context.Context, n int, excludeID string) (*hybrid.Result, error)
	RelatedForQuestion(ctx context.Context, question string, k int) (*hybrid.Result, error)
	SensationSearch(ctx context.Context, query, scene string, limit int) (*hybrid.Result, error)
}

// Server wraps the MCP server with Rallylog tools.
type Server struct {
	mcp     *server.MCPServer
	records Records
	search  Searcher
	queries Queries
}

// New creates a new MCP server with all Rallylog tools registered.
func New(records Records, search Searcher, queries Queries) *Server {
	s := &Server{records: records, search: search, queries: queries}

	s.mcp = server.NewMCPServer(
		"Rallylog",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Filter journal records by keywords, tags, scene and date range. Newest first."),
		mcp.WithString("keywords", mcp.Description("Comma-separated keywords; any one may match")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags to filter by")),
		mcp.WithBoolean("match_all_tags", mcp.Description("Require every tag instead of any")),
		mcp.WithString("scene", mcp.Description("Scene such as practice, match or lesson")),
		mcp.WithString("from", mcp.Description("First day, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Last day, YYYY-MM-DD")),
		mcp.WithNumber("limit", mcp.Description("Maximum records (default 20)")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("find_records_by_date",
		mcp.WithDescription("Find records for a loose date expression such as 昨日, 3日前, yesterday or 1/15. "+
			"Without a recognisable date the last 30 days are searched."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date text")),
		mcp.WithString("keywords", mcp.Description("Comma-separated keywords")),
		mcp.WithString("scene", mcp.Description("Scene")),
		mcp.WithNumber("limit", mcp.Description("Maximum records (default 20)")),
	), s.findByDate)

	s.mcp.AddTool(mcp.NewTool("read_record",
		mcp.WithDescription("Read one record by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id, e.g. 2025-01-10-183000-match")),
	), s.readRecord)

	s.mcp.AddTool(mcp.NewTool("create_record",
		mcp.WithDescription("Create a new journal record. Read "+RecordFormatURI+" or get_record_contract first."),
		mcp.WithString("body", mcp.Required(), mcp.Description("Free text of the entry")),
		mcp.WithString("date", mcp.Description("Calendar day, YYYY-MM-DD (default today)")),
		mcp.WithString("scene", mcp.Description("Scene (default practice)")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags")),
		mcp.WithString("title", mcp.Description("Optional title")),
	), s.createRecord)

	s.mcp.AddTool(mcp.NewTool("append_record",
		mcp.WithDescription("Append a timestamped callout block to an existing record. Records are never rewritten."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to append")),
		mcp.WithString("label", mcp.Description("Callout label, e.g. Coach or Reflection")),
	), s.appendRecord)

	s.mcp.AddTool(mcp.NewTool("similar_records",
		mcp.WithDescription("Past records resembling the given text, for comparing today's entry with earlier ones."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Entry text to compare")),
		mcp.WithString("scene", mcp.Description("Restrict to one scene")),
		mcp.WithNumber("limit", mcp.Description("Maximum records (default 5)")),
		mcp.WithNumber("exclude_recent_days", mcp.Description("Skip records from the last N days (default 3, negative disables)")),
	), s.similarRecords)

	s.mcp.AddTool(mcp.NewTool("recent_records",
		mcp.WithDescription("The newest records, for checking a new entry against recent ones for contradictions."),
		mcp.WithNumber("n", mcp.Description("Record count (default 5)")),
		mcp.WithString("exclude_id", mcp.Description("Record id to leave out, typically the new entry")),
	), s.recentRecords)

	s.mcp.AddTool(mcp.NewTool("related_records",
		mcp.WithDescription("Records that help answer a question about past practice."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question")),
		mcp.WithNumber("k", mcp.Description("Record count (default 5)")),
	), s.relatedRecords)

	s.mcp.AddTool(mcp.NewTool("sensation_records",
		mcp.WithDescription("Search for feel words and technique names, expanded through the synonym tables."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Feel word or technique, e.g. スパッ or forehand")),
		mcp.WithString("scene", mcp.Description("Restrict to one scene")),
		mcp.WithNumber("limit", mcp.Description("Maximum records (default 5)")),
	), s.sensationRecords)

	s.mcp.AddTool(mcp.NewTool("get_record_contract",
		mcp.WithDescription("Returns the Rallylog record format. "+
			"Call this before creating or appending to records."),
	), s.getRecordContract)

	// Resource: record format contract.
	s.mcp.AddResource(
		mcp.NewResource(RecordFormatURI, "Record Format",
			mcp.WithResourceDescription("On-disk format of journal records and a guide to the retrieval tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := models.SearchFilters{
		Keywords:     splitList(req.GetString("keywords", "")),
		Tags:         req.GetStringSlice("tags", nil),
		MatchAllTags: req.GetBool("match_all_tags", false),
		Scene:        req.GetString("scene", ""),
	}
	dr, err := dateRange(req.GetString("from", ""), req.GetString("to", ""))
	if err != nil {
		return toolError(err), nil
	}
	f.DateRange = dr

	recs, err := s.search.Search(ctx, f, req.GetInt("limit", defaultSearchLimit))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(recs), nil
}

func (s *Server) findByDate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dateText, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recs, err := s.search.FindFuzzy(ctx, dateText, splitList(req.GetString("keywords", "")),
		req.GetString("scene", ""), req.GetInt("limit", defaultSearchLimit))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(recs), nil
}

func (s *Server) readRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return toolError(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) createRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec := models.Record{
		Scene: req.GetString("scene", ""),
		Tags:  req.GetStringSlice("tags", nil),
		Title: req.GetString("title", ""),
		Body:  body,
	}
	if d := req.GetString("date", ""); d != "" {
		day, err := time.Parse(models.DateLayout, d)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("date %q is not YYYY-MM-DD", d)), nil
		}
		rec.Date = day
	}

	res, err := s.records.Create(ctx, rec)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) appendRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.records.Append(ctx, id, text, req.GetString("label", ""))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) similarRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.queries.SimilarForComparison(ctx, text, hybrid.ComparisonOptions{
		Scene:             req.GetString("scene", ""),
		Limit:             req.GetInt("limit", 0),
		ExcludeRecentDays: req.GetInt("exclude_recent_days", 0),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) recentRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.queries.RecentForContradiction(ctx, req.GetInt("n", 0), req.GetString("exclude_id", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) relatedRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.queries.RelatedForQuestion(ctx, question, req.GetInt("k", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) sensationRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.queries.SensationSearch(ctx, query, req.GetString("scene", ""), req.GetInt("limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) getRecordContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormatContract), nil
}

func (s *Server) readRecordFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      RecordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// toolError reports err to the client. Upstream failures are summarised
// since the model cannot act on their detail.
func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrExternalService) {
		return mcp.NewToolResultError("upstream service unavailable, try again later")
	}
	return mcp.NewToolResultError(err.Error())
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dateRange(from, to string) (*models.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	r := &models.DateRange{To: time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)}
	for _, b := range []struct {
		name, val string
		dst       *time.Time
	}{{"from", from, &r.From}, {"to", to, &r.To}} {
		if b.val == "" {
			continue
		}
		d, err := time.Parse(models.DateLayout, b.val)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not YYYY-MM-DD: %w", b.name, b.val, apperr.ErrInvalidInput)
		}
		*b.dst = d
	}
	return r, nil
}
