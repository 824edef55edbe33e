package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketClaimed   EventType = "ticket_claimed"
	EventTicketCompleted EventType = "ticket_completed"
	EventTicketCancelled EventType = "ticket_cancelled"
)

// AllEventTypes lists every type a sink may subscribe to.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketClaimed,
	EventTicketCompleted,
	EventTicketCancelled,
}

// Event represents a committed lifecycle change.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	ActorID   int64       `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	LocationID string         `json:"location_id"`
	Equipment  string         `json:"equipment"`
	Urgency    domain.Urgency `json:"urgency"`
	HasPhoto   bool           `json:"has_photo"`
}

// TicketTransitionPayload describes claim, completion and cancellation.
type TicketTransitionPayload struct {
	OldStatus    domain.TicketStatus `json:"old_status"`
	NewStatus    domain.TicketStatus `json:"new_status"`
	ExecutorID   int64               `json:"executor_id,omitempty"`
	ExecutorName string              `json:"executor_name,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, ticketID, actorID int64, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
