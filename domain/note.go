package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultColor = "#ffffff"

type Color struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Palette lists the colors a note may be tagged with.
var Palette = []Color{
	{Name: "White", Value: "#ffffff"},
	{Name: "Red", Value: "#fee2e2"},
	{Name: "Orange", Value: "#ffedd5"},
	{Name: "Yellow", Value: "#fef9c3"},
	{Name: "Green", Value: "#dcfce7"},
	{Name: "Blue", Value: "#dbeafe"},
	{Name: "Purple", Value: "#f3e8ff"},
	{Name: "Pink", Value: "#fce7f3"},
}

var (
	ErrEmptyTitle   = errors.New("title is required")
	ErrEmptyContent = errors.New("content is required")
	ErrUnknownColor = errors.New("color is not in the palette")
)

func ValidColor(c string) bool {
	c = strings.ToLower(c)
	for _, p := range Palette {
		if p.Value == c {
			return true
		}
	}
	return false
}

type Note struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Title     string    `json:"title" gorm:"not null"`
	Content   string    `json:"content" gorm:"not null"`
	Starred   bool      `json:"starred" gorm:"not null;default:false"`
	Color     string    `json:"color" gorm:"size:7;not null;default:'#ffffff'"`
	ProfileID uint      `json:"profileId" gorm:"index;not null"`
	Profile   *Profile  `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (n *Note) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Color == "" {
		n.Color = DefaultColor
	}
	return nil
}

// Validate checks the fields a saved note must carry.
func (n *Note) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return ErrEmptyTitle
	}
	if strings.TrimSpace(n.Content) == "" {
		return ErrEmptyContent
	}
	if n.Color != "" && !ValidColor(n.Color) {
		return ErrUnknownColor
	}
	return nil
}
