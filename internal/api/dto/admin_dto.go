package dto

import (
	"time"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Password string `json:"password"`
}

// AuthResponse describes issued token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NameRequest sets a display name.
type NameRequest struct {
	Name string `json:"name"`
}

// AddTechnicianRequest payload.
type AddTechnicianRequest struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// BroadcastRequest payload.
type BroadcastRequest struct {
	Text string `json:"text"`
}

// WipeRequest payload; Confirm must be "CONFIRM".
type WipeRequest struct {
	Confirm string `json:"confirm"`
}

// ReporterResponse is a reporter profile.
type ReporterResponse struct {
	UserID       int64     `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	LocationID   string    `json:"location_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NewReporterResponse maps a profile.
func NewReporterResponse(p domain.ReporterProfile) ReporterResponse {
	return ReporterResponse{
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		LocationID:   p.LocationID,
		RegisteredAt: p.RegisteredAt,
	}
}

// TechnicianResponse is a roster entry.
type TechnicianResponse struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	InRoster    bool   `json:"in_roster"`
	HasName     bool   `json:"has_name"`
}

// NewTechnicianResponse maps a technician.
func NewTechnicianResponse(t domain.Technician) TechnicianResponse {
	return TechnicianResponse{
		UserID:      t.UserID,
		DisplayName: t.DisplayName,
		InRoster:    t.InRoster,
		HasName:     t.HasRecord,
	}
}

// TicketResponse is the admin view of a ticket.
type TicketResponse struct {
	ID           int64               `json:"id"`
	Status       domain.TicketStatus `json:"status"`
	LocationID   string              `json:"location_id"`
	ReporterID   int64               `json:"reporter_id"`
	ReporterName string              `json:"reporter_name"`
	Equipment    string              `json:"equipment"`
	Description  string              `json:"description"`
	Urgency      domain.Urgency      `json:"urgency"`
	HasPhoto     bool                `json:"has_photo"`
	ExecutorID   int64               `json:"executor_id,omitempty"`
	ExecutorName string              `json:"executor_name,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		Status:       t.Status,
		LocationID:   t.LocationID,
		ReporterID:   t.ReporterID,
		ReporterName: t.ReporterName,
		Equipment:    t.Equipment,
		Description:  t.Description,
		Urgency:      t.Urgency,
		HasPhoto:     t.PhotoRef != "",
		ExecutorID:   t.ExecutorID,
		ExecutorName: t.ExecutorName,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// HistoryEntryResponse is one audit trail row.
type HistoryEntryResponse struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	ActorID   int64          `json:"actor_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewHistoryEntryResponse maps a history entry.
func NewHistoryEntryResponse(e domain.TicketHistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:        e.ID,
		EventType: e.EventType,
		ActorID:   e.ActorID,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
}
