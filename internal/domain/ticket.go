package domain

import (
	"strings"
	"time"
)

// FirstTicketID is assigned when the store holds no tickets yet.
const FirstTicketID int64 = 1001

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusCreated         TicketStatus = "created"
	TicketStatusInProgress      TicketStatus = "in_progress"
	TicketStatusDone            TicketStatus = "done"
	TicketStatusCancelledByUser TicketStatus = "cancelled_by_user"
)

// AllTicketStatuses lists statuses in lifecycle order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusCreated,
	TicketStatusInProgress,
	TicketStatusDone,
	TicketStatusCancelledByUser,
}

// Terminal reports whether no further transition is allowed.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusDone || s == TicketStatusCancelledByUser
}

// Cancellable reports whether the reporter may still withdraw the ticket.
func (s TicketStatus) Cancellable() bool {
	return s == TicketStatusCreated || s == TicketStatusInProgress
}

// Urgency is the reporter's priority marker.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// ParseUrgency maps free text onto an urgency, defaulting to normal.
func ParseUrgency(text string) Urgency {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case string(UrgencyHigh), "urgent":
		return UrgencyHigh
	default:
		return UrgencyNormal
	}
}

// Fixed equipment categories offered during intake.
const (
	EquipmentScale        = "Scale"
	EquipmentCCTV         = "CCTV"
	EquipmentInternet     = "Internet"
	EquipmentCashRegister = "Cash register"
	EquipmentOther        = "Other"
)

// EquipmentChoices is the fixed enumeration, "Other" last.
var EquipmentChoices = []string{
	EquipmentScale,
	EquipmentCCTV,
	EquipmentInternet,
	EquipmentCashRegister,
	EquipmentOther,
}

// IsEquipmentChoice reports whether text names one of the fixed categories
// other than the free-text variant.
func IsEquipmentChoice(text string) bool {
	for _, choice := range EquipmentChoices {
		if choice != EquipmentOther && choice == text {
			return true
		}
	}
	return false
}

// OtherEquipment formats the free-text equipment variant.
func OtherEquipment(text string) string {
	return "other: " + strings.TrimSpace(text)
}

// MessageRef identifies a delivered message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
	HasImage  bool
}

// IsZero reports whether the reference points at nothing.
func (r MessageRef) IsZero() bool {
	return r.MessageID == 0
}

// Ticket is a single equipment-failure report.
type Ticket struct {
	ID            int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LocationID    string
	ReporterID    int64
	ReporterName  string
	Equipment     string
	Description   string
	Urgency       Urgency
	PhotoRef      string
	Status        TicketStatus
	ExecutorID    int64
	ExecutorName  string
	ManagementRef MessageRef
	ReporterRef   MessageRef
}

// HasExecutor reports whether a technician is attached.
func (t *Ticket) HasExecutor() bool {
	return t.ExecutorID != 0
}

// Guard captures the row state a conditional update expects to find.
type Guard struct {
	Status     TicketStatus
	ExecutorID int64
}

// GuardOf returns the guard matching the ticket as read.
func GuardOf(t *Ticket) Guard {
	return Guard{Status: t.Status, ExecutorID: t.ExecutorID}
}

// Transition is the field set a lifecycle step writes.
type Transition struct {
	Status       TicketStatus
	ExecutorID   int64
	ExecutorName string
}

// TicketRequest is what a finished intake hands to the lifecycle engine.
type TicketRequest struct {
	Equipment   string
	Description string
	Urgency     Urgency
	PhotoRef    string
}
