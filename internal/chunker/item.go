package chunker

import "strings"

// UnknownSection is the item name used when a section heading has no period.
const UnknownSection = "Unknown Section"

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// ExtractItemNumber returns the heading text before the first period of the
// section's first line, e.g. "Item 7" for "Item 7. Management's Discussion".
func ExtractItemNumber(text string) string {
	line := firstLine(text)
	if i := strings.IndexByte(line, '.'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// ExtractItemName returns the heading text after the first period of the
// section's first line, or UnknownSection when there is none.
func ExtractItemName(text string) string {
	line := firstLine(text)
	i := strings.IndexByte(line, '.')
	if i < 0 {
		return UnknownSection
	}
	return strings.TrimSpace(line[i+1:])
}
