package generic

import (
	"time"

	"github.com/google/uuid"
)

// Settings is the system-wide configuration the engine needs. It is loaded
// once at start-up and handed to the Engine; nothing reads it from globals.
type Settings struct {
	// EnforcePermissions turns the approval process on. When false every
	// new commitment starts approved.
	EnforcePermissions bool

	// DefaultEventDuration applies when an event is created without an end.
	DefaultEventDuration time.Duration

	// Location is the school's time zone. Event times are held in it, so
	// the day an event falls on does not depend on the store.
	Location *time.Location
}

func DefaultSettings() Settings {
	return Settings{
		EnforcePermissions:   true,
		DefaultEventDuration: time.Hour,
		Location:             time.UTC,
	}
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}
