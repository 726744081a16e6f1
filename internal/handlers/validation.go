package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/koios/iconforge/internal/imaging"
	"github.com/koios/iconforge/pkg/models"
)

// Rejection codes reported in ValidationError.Code
const (
	CodeMissingFile       = "missing_file"
	CodeUnsupportedFormat = "unsupported_format"
	CodeFileTooLarge      = "file_too_large"
	CodeNoPlatforms       = "no_platforms"
	CodeUnknownPlatform   = "unknown_platform"
	CodeInvalidPlatforms  = "invalid_platforms"
)

// DefaultMaxUploadBytes is the upload ceiling used when none is configured
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// SupportedMimeTypes lists the accepted upload content types
var SupportedMimeTypes = []string{"image/png", "image/jpeg", "image/jpg", "image/webp", "image/svg+xml"}

const supportedFormatNames = "PNG, JPG, JPEG, WEBP, SVG"

// ValidationError represents a rejected generation request
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validator checks uploads and platform selections before any image work happens
type Validator struct {
	catalog   *models.Catalog
	maxBytes  int64
	supported map[string]struct{}
	structs   *validator.Validate
}

// NewValidator creates a validator bound to catalog. A non-positive maxBytes
// selects DefaultMaxUploadBytes.
func NewValidator(catalog *models.Catalog, maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}

	supported := make(map[string]struct{}, len(SupportedMimeTypes))
	for _, mt := range SupportedMimeTypes {
		supported[mt] = struct{}{}
	}

	return &Validator{
		catalog:   catalog,
		maxBytes:  maxBytes,
		supported: supported,
		structs:   validator.New(),
	}
}

// MaxBytes returns the upload ceiling
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// ValidateRequest checks the file then the platform list, in that order, and
// returns the effective MIME type of the upload. The struct tags on
// GenerationRequest decide the presence checks; content checks follow.
func (v *Validator) ValidateRequest(req *models.GenerationRequest) (string, error) {
	var noSource, noPlatforms bool
	if err := v.structs.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return "", fmt.Errorf("failed to validate request: %w", err)
		}
		for _, fe := range fieldErrs {
			switch fe.StructField() {
			case "SourceImage":
				noSource = true
			case "PlatformIDs":
				noPlatforms = true
			}
		}
	}

	if noSource {
		return "", missingFile()
	}

	mimeType, err := v.ValidateFile(req.SourceImage, req.MimeType, req.DeclaredSize)
	if err != nil {
		return "", err
	}

	if noPlatforms {
		return "", noPlatformsSelected()
	}
	if err := v.ValidatePlatforms(req.PlatformIDs); err != nil {
		return "", err
	}

	return mimeType, nil
}

// ValidateFile checks presence, MIME type and size of an upload. The declared
// type is sniffed from content only when it is missing or generic. The
// declared size takes precedence over len(data) when positive.
func (v *Validator) ValidateFile(data []byte, mimeType string, size int64) (string, error) {
	if len(data) == 0 {
		return "", missingFile()
	}

	effective := normalizeMimeType(mimeType)
	if effective == "" || effective == "application/octet-stream" {
		effective = normalizeMimeType(imaging.DetectMimeType(data))
	}

	if _, ok := v.supported[effective]; !ok {
		return "", &ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("Unsupported file type: %s. Supported formats: %s", effective, supportedFormatNames),
			Code:    CodeUnsupportedFormat,
		}
	}

	if size <= 0 {
		size = int64(len(data))
	}
	if size > v.maxBytes {
		return "", &ValidationError{
			Field: "file",
			Message: fmt.Sprintf("File size exceeds %s limit. Your file: %.2f MiB",
				humanize.IBytes(uint64(v.maxBytes)), float64(size)/(1<<20)),
			Code: CodeFileTooLarge,
		}
	}

	return effective, nil
}

// ValidatePlatforms checks that ids is non-empty and every id is in the catalog.
// Duplicates are allowed.
func (v *Validator) ValidatePlatforms(ids []string) error {
	if len(ids) == 0 {
		return noPlatformsSelected()
	}

	var invalid []string
	for _, id := range ids {
		if _, ok := v.catalog.GetPlatform(id); !ok {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return &ValidationError{
			Field: "platforms",
			Message: fmt.Sprintf("Invalid platform IDs: %s. Valid platforms: %s",
				strings.Join(invalid, ", "), strings.Join(v.catalog.IDs(), ", ")),
			Code: CodeUnknownPlatform,
		}
	}

	return nil
}

// ParsePlatforms decodes the platforms form field, a JSON array of ids. An
// empty field yields an empty list.
func ParsePlatforms(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, &ValidationError{
			Field:   "platforms",
			Message: "Invalid platforms format. Expected a JSON array of platform IDs.",
			Code:    CodeInvalidPlatforms,
		}
	}

	return ids, nil
}

func missingFile() *ValidationError {
	return &ValidationError{
		Field:   "file",
		Message: "No file provided. Please upload an image file.",
		Code:    CodeMissingFile,
	}
}

func noPlatformsSelected() *ValidationError {
	return &ValidationError{
		Field:   "platforms",
		Message: "No platforms selected. Please select at least one platform.",
		Code:    CodeNoPlatforms,
	}
}

// normalizeMimeType lowercases a content type and drops its parameters
func normalizeMimeType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
