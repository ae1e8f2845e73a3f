package generation

import (
	"strings"
	"unicode/utf8"
)

const (
	fallbackTitle     = "AI Generated Story"
	maxTitleLength    = 50
	maxFilenameLength = 50
)

// ExtractTitle picks a short heading for generated content: the first line
// when it is 4 to 49 characters long, else the first sentence when it is
// shorter than 50 characters, else a fixed fallback.
func ExtractTitle(content string) string {
	firstLine, _, _ := strings.Cut(content, "\n")
	firstLine = strings.TrimSpace(firstLine)
	if n := utf8.RuneCountInString(firstLine); n > 3 && n < maxTitleLength {
		if title := strings.TrimSpace(strings.TrimLeft(firstLine, "#")); title != "" {
			return title
		}
	}

	sentence := content
	if i := strings.IndexAny(content, ".!?"); i >= 0 {
		sentence = content[:i]
	}
	sentence = strings.TrimSpace(sentence)
	if sentence != "" && utf8.RuneCountInString(sentence) < maxTitleLength {
		return sentence
	}
	return fallbackTitle
}

// Filename derives the catalog filename from a title. Runs of characters
// other than ASCII letters, digits and CJK ideographs collapse to one dash.
func Filename(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if keepInFilename(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if utf8.RuneCountInString(slug) > maxFilenameLength {
		slug = string([]rune(slug)[:maxFilenameLength])
	}
	return slug + ".html"
}

func keepInFilename(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || (r >= 0x4E00 && r <= 0x9FFF)
}
