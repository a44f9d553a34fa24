// Package store persists jobs, scan items, findings, SIT definitions, and
// rulepacks in SQLite.
package store

import "time"

// Job statuses. Terminal statuses are never overwritten.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobSkipped   = "skipped"
	JobFailed    = "failed"
)

// Job is one scan submission and its lifecycle counters.
type Job struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	FileName        string    `json:"file_name,omitempty"`
	FileHash        string    `json:"file_hash,omitempty"`
	Error           string    `json:"error,omitempty"`
	TotalFiles      int       `json:"total_files"`
	ProcessedFiles  int       `json:"processed_files"`
	EntitiesFound   int       `json:"entities_found"`
	FindingsCreated int       `json:"findings_created"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProcessedFile is the global content-digest dedup record.
type ProcessedFile struct {
	SHA256      string    `json:"sha256"`
	Path        string    `json:"path"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ScanItem is the per-file audit record of a job.
type ScanItem struct {
	ID               int64     `json:"id"`
	JobID            string    `json:"job_id"`
	VirtualPath      string    `json:"virtual_path"`
	SourcePath       string    `json:"source_path"`
	MIMEType         string    `json:"mime_type"`
	ExtractionMethod string    `json:"extraction_method"`
	OCRUsed          bool      `json:"ocr_used"`
	TextChars        int       `json:"text_chars"`
	TextPreview      string    `json:"text_preview,omitempty"`
	EntitiesFound    int       `json:"entities_found"`
	Warnings         []string  `json:"warnings,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Finding is one detected entity with its redacted context and inferred
// detection hints. EntityText stays empty so raw PII never reaches the
// database.
type Finding struct {
	ID                 string    `json:"id"`
	JobID              string    `json:"job_id"`
	FilePath           string    `json:"file_path"`
	EntityType         string    `json:"entity_type"`
	EntityText         string    `json:"entity_text,omitempty"`
	Score              float64   `json:"score"`
	Start              int       `json:"start"`
	End                int       `json:"end"`
	Context            string    `json:"context,omitempty"`
	PrimaryRegex       string    `json:"primary_regex,omitempty"`
	SupportingKeywords []string  `json:"supporting_keywords,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Element and item type vocabulary for SIT versions.
const (
	ElementRegex       = "regex"
	ElementKeyword     = "keyword"
	ElementKeywordList = "keyword_list"
)

// Supporting-logic modes.
const (
	LogicAny  = "ANY"
	LogicAll  = "ALL"
	LogicMinN = "MIN_N"
)

// SIT is a named Sensitive Information Type owning an ordered version
// history.
type SIT struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SITVersion is one immutable revision of a SIT: a primary element, a
// supporting-logic mode, and ordered supporting groups.
type SITVersion struct {
	ID             string    `json:"id"`
	SITID          string    `json:"sit_id"`
	SITName        string    `json:"sit_name,omitempty"`
	SITDescription string    `json:"sit_description,omitempty"`
	VersionNumber  int       `json:"version_number"`
	EntityType     string    `json:"entity_type,omitempty"`
	Confidence     string    `json:"confidence,omitempty"`
	Source         string    `json:"source,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	Primary PrimaryElement    `json:"primary"`
	Logic   SupportingLogic   `json:"logic"`
	Groups  []SupportingGroup `json:"groups,omitempty"`
}

// PrimaryElement is the mandatory matcher of a version.
type PrimaryElement struct {
	ElementType string `json:"element_type"`
	Value       string `json:"value"`
}

// SupportingLogic configures how supporting groups combine.
type SupportingLogic struct {
	Mode string `json:"mode"`
	MinN *int   `json:"min_n,omitempty"`
	MaxN *int   `json:"max_n,omitempty"`
}

// SupportingGroup is an ordered bag of supporting items.
type SupportingGroup struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Position int              `json:"position"`
	Items    []SupportingItem `json:"items,omitempty"`
}

// SupportingItem is one matcher in a group. KeywordListID is set only for
// item type keyword_list.
type SupportingItem struct {
	ID            string `json:"id"`
	ItemType      string `json:"item_type"`
	Value         string `json:"value,omitempty"`
	KeywordListID string `json:"keyword_list_id,omitempty"`
	Position      int    `json:"position"`
}

// KeywordList is a reusable ordered list of keywords referenced by
// supporting items.
type KeywordList struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Items       []string  `json:"items"`
	CreatedAt   time.Time `json:"created_at"`
}

// Rulepack bundles selected SIT versions for export.
type Rulepack struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	Locale      string    `json:"locale,omitempty"`
	Selections  []string  `json:"selections,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
