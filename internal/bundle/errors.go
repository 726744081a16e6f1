package bundle

import (
	"fmt"
	"strings"
)

// UnknownPlatformError reports a platform id with no catalog entry
type UnknownPlatformError struct {
	ID    string
	Valid []string
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("unknown platform %q (valid platforms: %s)", e.ID, strings.Join(e.Valid, ", "))
}

// ProcessingFailedError reports a rendition that could not be produced.
// Name is the size (or extra file) that failed.
type ProcessingFailedError struct {
	Name string
	Err  error
}

func (e *ProcessingFailedError) Error() string {
	return fmt.Sprintf("failed to process icon size %s: %v", e.Name, e.Err)
}

func (e *ProcessingFailedError) Unwrap() error {
	return e.Err
}
