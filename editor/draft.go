// Package editor holds the note being edited in a dictation session and
// merges dictated text into whichever field has focus.
package editor

import (
	"errors"
	"fmt"
	"strings"

	"voice-notes/domain"
)

type Field string

const (
	FieldTitle   Field = "title"
	FieldContent Field = "content"
)

func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(s)); f {
	case FieldTitle, FieldContent:
		return f, nil
	default:
		return "", fmt.Errorf("unknown field %q", s)
	}
}

var ErrInvalidDraft = errors.New("invalid draft")

// Transcriber is the part of a dictation controller a draft consumes.
// TakeTranscript returns the pending text and clears it in one step, so text
// appended while a merge is in progress stays pending.
type Transcriber interface {
	TakeTranscript() string
}

type Draft struct {
	NoteID  string `json:"noteId,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Color   string `json:"color"`
	Active  Field  `json:"activeField"`
	Starred bool   `json:"starred"`
}

func New() *Draft {
	return &Draft{Color: domain.DefaultColor, Active: FieldTitle}
}

// FromNote starts a draft editing an existing note.
func FromNote(n domain.Note) *Draft {
	d := New()
	d.NoteID = n.ID
	d.Title = n.Title
	d.Content = n.Content
	d.Starred = n.Starred
	if n.Color != "" {
		d.Color = n.Color
	}
	return d
}

func (d *Draft) Focus(f Field) { d.Active = f }

// Edit replaces the fields that are set.
func (d *Draft) Edit(title, content, color *string) error {
	if color != nil && !domain.ValidColor(*color) {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, domain.ErrUnknownColor)
	}
	if title != nil {
		d.Title = *title
	}
	if content != nil {
		d.Content = *content
	}
	if color != nil {
		d.Color = strings.ToLower(*color)
	}
	return nil
}

// Absorb moves the pending transcript into the focused field. It reports
// whether anything was merged.
func (d *Draft) Absorb(t Transcriber) bool {
	text := t.TakeTranscript()
	if text == "" {
		return false
	}
	switch d.Active {
	case FieldContent:
		d.Content += text
	default:
		d.Title += text
	}
	return true
}

func (d *Draft) Validate() error {
	n := d.Note(0)
	if err := n.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return nil
}

// Note returns the draft as a note owned by profileID, with title and
// content trimmed the way they are saved.
func (d *Draft) Note(profileID uint) domain.Note {
	return domain.Note{
		ID:        d.NoteID,
		Title:     strings.TrimSpace(d.Title),
		Content:   strings.TrimSpace(d.Content),
		Color:     d.Color,
		Starred:   d.Starred,
		ProfileID: profileID,
	}
}
