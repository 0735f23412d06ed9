package domain

import "time"

const (
	ProcessNoteCreated = "note_created"
	ProcessNoteUpdated = "note_updated"
	ProcessNoteDeleted = "note_deleted"
)

// Notification is published to the notification service when a profile's
// notes change.
type Notification struct {
	CreatedAt time.Time
	ProfileID uint

	Process string
	Content string
}
