// Package session keeps conversation drafts keyed by user id. Drafts are
// transient: they expire after a TTL and never reach the ticket store.
package session

import (
	"context"
	"time"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// Flow names the conversation a draft belongs to.
type Flow string

const (
	FlowRegistration Flow = "registration"
	FlowTicket       Flow = "ticket"
)

// Step is the cursor inside a flow.
type Step string

const (
	StepName        Step = "name"
	StepLocation    Step = "location"
	StepEquipment   Step = "equipment"
	StepDescription Step = "description"
	StepUrgency     Step = "urgency"
	StepPhoto       Step = "photo"
)

// TicketSteps is the ticket flow in order.
var TicketSteps = []Step{StepEquipment, StepDescription, StepUrgency, StepPhoto}

// RegistrationSteps is the registration flow in order.
var RegistrationSteps = []Step{StepName, StepLocation}

// Draft is one user's in-progress answers.
type Draft struct {
	Flow          Flow           `json:"flow"`
	Step          Step           `json:"step"`
	Name          string         `json:"name,omitempty"`
	LocationID    string         `json:"location_id,omitempty"`
	Equipment     string         `json:"equipment,omitempty"`
	Description   string         `json:"description,omitempty"`
	Urgency       domain.Urgency `json:"urgency,omitempty"`
	PhotoRef      string         `json:"photo_ref,omitempty"`
	AwaitingOther bool           `json:"awaiting_other,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Request converts a finished ticket draft into an engine request.
func (d *Draft) Request() domain.TicketRequest {
	return domain.TicketRequest{
		Equipment:   d.Equipment,
		Description: d.Description,
		Urgency:     d.Urgency,
		PhotoRef:    d.PhotoRef,
	}
}

// ClearFrom wipes the answer of step and of every later step in the flow.
func (d *Draft) ClearFrom(step Step) {
	steps := TicketSteps
	if d.Flow == FlowRegistration {
		steps = RegistrationSteps
	}
	clearing := false
	for _, s := range steps {
		if s == step {
			clearing = true
		}
		if clearing {
			d.clear(s)
		}
	}
}

func (d *Draft) clear(step Step) {
	switch step {
	case StepName:
		d.Name = ""
	case StepLocation:
		d.LocationID = ""
	case StepEquipment:
		d.Equipment = ""
		d.AwaitingOther = false
	case StepDescription:
		d.Description = ""
	case StepUrgency:
		d.Urgency = ""
	case StepPhoto:
		d.PhotoRef = ""
	}
}

// PreviousStep returns the step before the current one, or false at the
// first step of the flow.
func (d *Draft) PreviousStep() (Step, bool) {
	steps := TicketSteps
	if d.Flow == FlowRegistration {
		steps = RegistrationSteps
	}
	for i, s := range steps {
		if s == d.Step && i > 0 {
			return steps[i-1], true
		}
	}
	return "", false
}

// Store holds at most one draft per user.
type Store interface {
	// Get returns the draft, or nil when none is active.
	Get(ctx context.Context, userID int64) (*Draft, error)
	// Put creates or overwrites the user's draft and refreshes its expiry.
	Put(ctx context.Context, userID int64, draft *Draft) error
	Delete(ctx context.Context, userID int64) error
	// FirstSeenBatch records a media batch id and reports whether this is the
	// first time it was seen.
	FirstSeenBatch(ctx context.Context, batchID string) (bool, error)
}
