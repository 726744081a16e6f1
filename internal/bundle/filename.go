package bundle

import (
	"fmt"
	"strings"
	"time"
)

const filenameTimeFormat = "2006-01-02T15-04-05"

// ArchiveFilename derives the download name of an archive: the platform ids
// joined with dashes when there are at most three, otherwise a count.
func ArchiveFilename(ids []string, at time.Time) string {
	summary := strings.Join(ids, "-")
	if len(ids) > 3 {
		summary = fmt.Sprintf("%d-platforms", len(ids))
	}
	return fmt.Sprintf("app-icons-%s-%s.zip", summary, at.UTC().Format(filenameTimeFormat))
}
