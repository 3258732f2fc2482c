package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Status represents the lifecycle state of a staged file.
type Status string

const (
	StatusStaged    Status = "staged"
	StatusConverted Status = "converted"
	StatusFailed    Status = "failed"
)

// StagedFile represents an uploaded document persisted to temporary storage
// pending conversion. A file enters the store as StatusStaged and moves to
// StatusConverted or StatusFailed after exactly one conversion attempt.
// Removal (age-based sweep or explicit delete) is terminal; there is no
// transition back to staged.
type StagedFile struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	SizeBytes    int64     `json:"sizeBytes"`
	StoragePath  string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	Status       Status    `json:"status"`
}

// ConversionResult holds the outcome of the conversion attempt for one
// staged file. Markdown is set only on success, ErrorDetail only on failure.
// The result lives and dies with its staged file.
type ConversionResult struct {
	SourceID    string `json:"sourceId"`
	Markdown    string `json:"markdown,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`
	ErrorDetail string `json:"errorDetail,omitempty"`
}

// OutputName derives the download filename for a converted document:
// the original name with its extension replaced by .md.
func OutputName(originalName string) string {
	base := filepath.Base(originalName)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".md"
}
