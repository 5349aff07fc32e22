package models

import "time"

// FileMetadata is a lightweight view of a vault file returned by list operations.
type FileMetadata struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}
