package domain

import "time"

type Profile struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	Name  string `json:"name"`
	Email string `json:"email" gorm:"uniqueIndex;not null"`

	Notes []Note `json:"-"`
}
