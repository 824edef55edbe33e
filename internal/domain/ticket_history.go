package domain

import "time"

// TicketHistoryEntry is one committed lifecycle event kept as the ticket's
// audit trail. Entries are never edited.
type TicketHistoryEntry struct {
	ID        string
	TicketID  int64
	EventType string
	ActorID   int64
	Payload   map[string]any
	CreatedAt time.Time
}
