package domain

import "time"

// ReporterProfile is a registered store employee who files tickets.
type ReporterProfile struct {
	UserID       int64
	DisplayName  string
	LocationID   string
	RegisteredAt time.Time
}

// Complete reports whether the profile allows starting an intake.
func (p *ReporterProfile) Complete() bool {
	return p != nil && p.DisplayName != "" && p.LocationID != ""
}

// Technician pairs a roster identity with its optional display name.
type Technician struct {
	UserID      int64
	DisplayName string
	InRoster    bool
	HasRecord   bool
}

// Actor is whoever triggered an event, with the name the messaging platform
// shows for them.
type Actor struct {
	ID           int64
	PlatformName string
}

// FallbackName returns the platform name or a generic label.
func (a Actor) FallbackName(generic string) string {
	if a.PlatformName != "" {
		return a.PlatformName
	}
	return generic
}
