package models

import "time"

// GenerationRequest represents one end-to-end icon generation call
type GenerationRequest struct {
	SourceImage  []byte   `json:"-" validate:"required"`
	MimeType     string   `json:"mime_type"`
	DeclaredSize int64    `json:"declared_size"`
	PlatformIDs  []string `json:"platform_ids" validate:"required,min=1"`
}

// GenerationResult represents the output of a generation call
type GenerationResult struct {
	ID             string   `json:"id"`
	ArchiveBytes   []byte   `json:"-"`
	TotalFileCount int      `json:"total_file_count"`
	Warnings       []string `json:"warnings,omitempty"`
	Filename       string   `json:"filename"`
	Cached         bool     `json:"cached"`
}

// PlatformSummary is the read-only listing form of a platform
type PlatformSummary struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	IconCount        int    `json:"iconCount"`
	GenerateIco      bool   `json:"generateIco"`
	GenerateManifest bool   `json:"generateManifest"`
}

// GenerationEvent is published after a successful generation
type GenerationEvent struct {
	Type         string    `json:"type"`
	ID           string    `json:"id"`
	PlatformIDs  []string  `json:"platform_ids"`
	FileCount    int       `json:"file_count"`
	ArchiveBytes int       `json:"archive_bytes"`
	SourceFormat string    `json:"source_format"`
	SourceWidth  int       `json:"source_width"`
	SourceHeight int       `json:"source_height"`
	Cached       bool      `json:"cached"`
	DurationMS   int64     `json:"duration_ms"`
	ProcessedAt  time.Time `json:"processed_at"`
}
