package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/guildbox/internal/domain/track"
)

// DuplicateTitleFilter rejects tracks already in the queue.
// Detects:
// - Exact track handle matches
// - Titles equal ignoring case
// - Remasters and alternate versions (normalized title + same author)
// Excludes:
// - Covers (same normalized title but different author)
type DuplicateTitleFilter struct{}

// NewDuplicateTitleFilter creates a new duplicate title filter.
func NewDuplicateTitleFilter() *DuplicateTitleFilter {
	return &DuplicateTitleFilter{}
}

// Name returns the filter name.
func (f *DuplicateTitleFilter) Name() string {
	return "duplicate_title_filter"
}

// Description returns the filter description.
func (f *DuplicateTitleFilter) Description() string {
	return "Rejects tracks already queued, including remasters and alternate versions by the same author"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTitleFilter) ReturnCodes() []string {
	return []string{CodeDuplicateTitle}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTitleFilter) ValidateConfig(config map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track duplicates a queued entry.
func (f *DuplicateTitleFilter) Check(ctx context.Context, t track.Track, queued []track.QueueEntry) Result {
	for _, e := range queued {
		if t.ID != "" && e.Track.ID == t.ID {
			return Reject(CodeDuplicateTitle)
		}
		if track.SameTitle(e.Track.Title, t.Title) {
			return Reject(CodeDuplicateTitle)
		}
		if isAlternateVersion(e.Track, t) {
			return Reject(CodeDuplicateTitle)
		}
	}
	return Accept()
}

// isAlternateVersion checks if two tracks are the same song in a different version.
func isAlternateVersion(a, b track.Track) bool {
	if normalizeTrackName(a.Title) != normalizeTrackName(b.Title) {
		return false
	}
	// Same normalized name by a different author is a cover
	return isSameAuthor(a, b)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}

	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*[\(\[]official\s+(music\s+)?(video|audio)[\)\]]`), // "(Official Video)"
		regexp.MustCompile(`\s*[\(\[](lyrics?|lyric\s+video|audio)[\)\]]`),       // "[Lyrics]"
		regexp.MustCompile(`\s*\(.*?version\)`),                                  // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),                                     // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live`),                                       // "- Live"
		regexp.MustCompile(`\s*\(live\)`),                                        // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),                               // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),                           // "- Single Version"
	}

	whitespacePattern = regexp.MustCompile(`\s+`)

	authorSuffixPattern = regexp.MustCompile(`(\s*-\s*topic|vevo|\s+official)$`)
)

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")

	// Remove trailing dashes
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

// normalizeAuthor strips the channel decorations YouTube adds to artist names.
func normalizeAuthor(author string) string {
	normalized := strings.ToLower(strings.TrimSpace(author))
	normalized = authorSuffixPattern.ReplaceAllString(normalized, "")
	return strings.TrimSpace(normalized)
}

// isSameAuthor checks if two tracks have the same author.
func isSameAuthor(a, b track.Track) bool {
	authorA := normalizeAuthor(a.Author)
	authorB := normalizeAuthor(b.Author)
	if authorA == "" || authorB == "" {
		return false
	}
	return authorA == authorB
}

func init() {
	Register("duplicate_title_filter", func() Filter {
		return NewDuplicateTitleFilter()
	})
}
