package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/rallylog/internal/hybrid"
	"github.com/starford/rallylog/internal/indexer"
	"github.com/starford/rallylog/internal/models"
	"github.com/starford/rallylog/internal/recordservice"
)

// CreateRecordRequest is the request body for creating a record.
type CreateRecordRequest struct {
	Date  string         `json:"date,omitempty" example:"2025-01-10"`
	Scene string         `json:"scene,omitempty" example:"match"`
	Tags  []string       `json:"tags,omitempty" example:"serve,forehand"`
	Title string         `json:"title,omitempty" example:"Club league"`
	Body  string         `json:"body" example:"Serve toss drifted left in the second set" validate:"required"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Validate checks the request before it reaches the store.
func (r CreateRecordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Body, validation.Required),
		validation.Field(&r.Date, validation.Date(models.DateLayout)),
		validation.Field(&r.Scene, validation.Length(0, 64)),
		validation.Field(&r.Tags, validation.Each(validation.Required, validation.Length(1, 64))),
	)
}

func (r CreateRecordRequest) record() models.Record {
	rec := models.Record{
		Scene: r.Scene,
		Tags:  r.Tags,
		Title: r.Title,
		Body:  r.Body,
		Extra: r.Extra,
	}
	if d, err := time.Parse(models.DateLayout, r.Date); err == nil {
		rec.Date = d
	}
	return rec
}

// AppendRecordRequest is the request body for appending to a record.
type AppendRecordRequest struct {
	Text  string `json:"text" example:"Coach: toss further in front" validate:"required"`
	Label string `json:"label,omitempty" example:"Coach"`
}

// Validate checks the request.
func (r AppendRecordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required),
		validation.Field(&r.Label, validation.Length(0, 64)),
	)
}

// SimilarRequest is the request body for the comparison query.
type SimilarRequest struct {
	Text              string `json:"text" example:"second serve kept landing short" validate:"required"`
	Scene             string `json:"scene,omitempty" example:"match"`
	Limit             int    `json:"limit,omitempty" example:"5"`
	ExcludeRecentDays int    `json:"exclude_recent_days,omitempty" example:"3"`
}

// Validate checks the request.
func (r SimilarRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required),
		validation.Field(&r.Limit, validation.Min(0), validation.Max(100)),
	)
}

// RelatedRequest is the request body for the Q&A query.
type RelatedRequest struct {
	Question string `json:"question" example:"when did my backhand slice improve?" validate:"required"`
	K        int    `json:"k,omitempty" example:"5"`
}

// Validate checks the request.
func (r RelatedRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Question, validation.Required),
		validation.Field(&r.K, validation.Min(0), validation.Max(100)),
	)
}

// SensationRequest is the request body for the synonym-expanded search.
type SensationRequest struct {
	Query string `json:"query" example:"スパッ" validate:"required"`
	Scene string `json:"scene,omitempty" example:"practice"`
	Limit int    `json:"limit,omitempty" example:"5"`
}

// Validate checks the request.
func (r SensationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.Limit, validation.Min(0), validation.Max(100)),
	)
}

// RecordResponse is a single record (aliased from the domain layer).
type RecordResponse = models.Record

// WriteResponse reports a write and whether the record was embedded.
type WriteResponse = recordservice.WriteResult

// QueryResponse is a ranked façade result.
type QueryResponse = hybrid.Result

// ReindexResponse summarises a reindex run.
type ReindexResponse = indexer.Stats

// SearchResponse wraps lexical search results.
type SearchResponse struct {
	Records []models.Record `json:"records" validate:"required"`
	Total   int             `json:"total" example:"3" validate:"required"`
}
