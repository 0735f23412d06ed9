package domain

import (
	"strings"
	"unicode"

	"github.com/umahmood/soundex"
)

const (
	FilterAll     = "all"
	FilterStarred = "starred"
)

// NoteQuery narrows a list of notes the way the notes grid does: by the
// starred filter, then by a free-text query.
type NoteQuery struct {
	Filter string
	Text   string
}

func (q NoteQuery) Apply(notes []Note) []Note {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if q.Filter == FilterStarred && !n.Starred {
			continue
		}
		if text != "" && !Matches(n, text) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Matches reports whether the note's title or content contains the query,
// or whether every word of the query sounds like a word of the note.
// Dictated notes are often misspelled, so the phonetic pass lets "meating"
// find "meeting".
func Matches(n Note, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(n.Title), query) ||
		strings.Contains(strings.ToLower(n.Content), query) {
		return true
	}

	qWords := words(query)
	if len(qWords) == 0 {
		return false
	}
	codes := map[string]struct{}{}
	for _, w := range words(n.Title + " " + n.Content) {
		codes[code(w)] = struct{}{}
	}
	for _, w := range qWords {
		if _, ok := codes[code(w)]; !ok {
			return false
		}
	}
	return true
}

// words splits on anything that is not a letter; soundex only codes letters.
func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) || r > unicode.MaxASCII
	})
}

func code(word string) string {
	return soundex.Code(strings.ToUpper(word))
}
