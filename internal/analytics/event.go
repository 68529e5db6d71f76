// Package analytics records ad interaction events durably so campaign
// reporting can be rebuilt from the raw stream.
package analytics

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Kind classifies an ad interaction event.
type Kind string

const (
	KindImpression Kind = "impression"
	KindClick      Kind = "click"
	KindView       Kind = "view"
	KindConversion Kind = "conversion"
	KindDismissal  Kind = "dismissal"
)

// Prefix returns the short tag used in externally visible event ids.
func (k Kind) Prefix() string {
	switch k {
	case KindImpression:
		return "imp"
	case KindClick:
		return "click"
	case KindView:
		return "view"
	case KindConversion:
		return "conv"
	case KindDismissal:
		return "dismiss"
	default:
		return "event"
	}
}

// Valid reports whether k is one of the known event kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindImpression, KindClick, KindView, KindConversion, KindDismissal:
		return true
	}
	return false
}

// Event is one recorded ad interaction. The common identity fields are
// always set; the remaining fields apply only to particular kinds
// (click source, view duration, conversion type and value).
type Event struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	Kind      Kind      `gorm:"size:16;index" json:"kind"`
	AdID      string    `gorm:"size:128;index" json:"ad_id"`
	VideoID   string    `gorm:"size:128;index" json:"video_id"`
	ShowName  string    `gorm:"size:255" json:"show_name"`
	Product   string    `gorm:"size:255" json:"product"`
	Company   string    `gorm:"size:255" json:"company"`
	UserID    string    `gorm:"size:128;index" json:"user_id,omitempty"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`

	// Position of the ad in the video, in seconds from the start.
	AdPosition *float64 `json:"ad_position,omitempty"`

	// Click events: "popup", "progress_bar" or "marker".
	ClickSource string `gorm:"size:32" json:"click_source,omitempty"`

	// View events: seconds the ad was watched.
	ViewDuration *float64 `json:"view_duration,omitempty"`

	// Conversion events: action type and optional monetary value.
	ConversionType  string   `gorm:"size:32" json:"conversion_type,omitempty"`
	ConversionValue *float64 `json:"conversion_value,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a ULID primary key so rows sort by insertion
// time without a sequence.
func (e *Event) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	return nil
}

// EventID returns the externally visible identifier reported back to
// the player after a successful insert.
func (e *Event) EventID() string {
	return fmt.Sprintf("%s_%s_%d", e.Kind.Prefix(), e.AdID, e.Timestamp.Unix())
}
