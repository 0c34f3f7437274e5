package domain

import (
	"strings"
	"unicode"
)

// EntriesPerBill is the fixed length of the positives and negatives arrays.
const EntriesPerBill = 10

// Entry is a single positive or negative point about a bill.
type Entry struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
}

// Complete reports whether both parts of the entry were recovered.
func (e Entry) Complete() bool {
	return e.Title != "" && e.Explanation != ""
}

// ParseEntry reads one model output line of the form "title : explanation. anything".
// Lines without both a colon and a period produce an empty entry.
func ParseEntry(line string) Entry {
	if !strings.Contains(line, ":") || !strings.Contains(line, ".") {
		return Entry{}
	}

	title, rest, _ := strings.Cut(line, ":")
	explanation, _, _ := strings.Cut(rest, ".")

	return Entry{
		Title:       CleanText(title),
		Explanation: CleanText(explanation),
	}
}

// ParseEntries turns raw model output into exactly EntriesPerBill entries.
// Incomplete lines are dropped, extra lines ignored, and the tail padded with empty entries.
func ParseEntries(output string) []Entry {
	entries := make([]Entry, 0, EntriesPerBill)
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if len(entries) == EntriesPerBill {
			break
		}
		if entry := ParseEntry(line); entry.Complete() {
			entries = append(entries, entry)
		}
	}

	for len(entries) < EntriesPerBill {
		entries = append(entries, Entry{})
	}
	return entries
}

// CleanText strips list decoration from a model fragment: a leading "**" or ordinal ("3."),
// a trailing "**", any remaining leading "**", and surrounding whitespace.
func CleanText(s string) string {
	lead := strings.TrimLeftFunc(s, unicode.IsSpace)
	switch {
	case strings.HasPrefix(lead, "**"):
		s = strings.TrimLeftFunc(lead[2:], unicode.IsSpace)
	case ordinalPrefix(s) > 0:
		s = strings.TrimLeftFunc(s[ordinalPrefix(s):], unicode.IsSpace)
	}

	trail := strings.TrimRightFunc(s, unicode.IsSpace)
	if strings.HasSuffix(trail, "**") {
		s = strings.TrimRightFunc(trail[:len(trail)-2], unicode.IsSpace)
	}

	s = strings.TrimPrefix(s, "**")
	return strings.TrimSpace(s)
}

// ordinalPrefix returns the length of a leading "123." marker, or 0.
func ordinalPrefix(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) || s[i] != '.' {
		return 0
	}
	return i + 1
}
