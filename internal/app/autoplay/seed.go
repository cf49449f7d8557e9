package autoplay

import (
	"regexp"
	"strings"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Seed is the artist and title guessed from a track's display fields.
type Seed struct {
	Artist string
	Title  string
}

var (
	// Trailing "(...)", "[...]" or "【...】" groups, e.g. "(Official Video)".
	bracketSuffix = regexp.MustCompile(`\s*(\([^()]*\)|\[[^\[\]]*\]|【[^【】]*】)\s*$`)
	channelSuffix = regexp.MustCompile(`(?i)(\s*-\s*topic|vevo|\s+official)$`)
	spaces        = regexp.MustCompile(`\s+`)
)

// ParseSeed guesses artist and title from a track. "Artist - Title" titles are
// split on the first dash; otherwise the author stands in for the artist.
// This is best effort: featured artists and already clean titles can come out wrong.
func ParseSeed(t track.Track) Seed {
	title := cleanTitle(t.Title)
	artist := ""

	if left, right, ok := strings.Cut(title, " - "); ok && strings.TrimSpace(left) != "" && strings.TrimSpace(right) != "" {
		artist = strings.TrimSpace(left)
		title = cleanTitle(right)
	} else {
		artist = cleanAuthor(t.Author)
	}

	return Seed{Artist: artist, Title: title}
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	for {
		stripped := bracketSuffix.ReplaceAllString(s, "")
		if stripped == s || strings.TrimSpace(stripped) == "" {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	return spaces.ReplaceAllString(s, " ")
}

func cleanAuthor(s string) string {
	s = strings.TrimSpace(s)
	s = channelSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
