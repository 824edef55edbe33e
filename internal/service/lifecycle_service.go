package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/events"
	"github.com/spec-kit/repairdesk/internal/messaging"
	"github.com/spec-kit/repairdesk/internal/observability"
	"github.com/spec-kit/repairdesk/internal/registry"
	"github.com/spec-kit/repairdesk/internal/repository"
	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

// swapAttempts bounds the read-check-write loop. A ticket moves forward at
// most twice, so a third lost race means the store is misbehaving.
const swapAttempts = 4

// Outcome reports an accepted lifecycle event.
type Outcome struct {
	Ticket  *domain.Ticket
	Changed bool
	Message string
}

// LifecycleService is the ticket state machine. It is the only writer of
// ticket status and executor fields.
type LifecycleService struct {
	tickets     repository.TicketRepository
	technicians repository.TechnicianRepository
	registry    *registry.Registry
	notifier    Notifier
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo     repository.TicketRepository
	TechnicianRepo repository.TechnicianRepository
	Registry       *registry.Registry
	Notifier       Notifier
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		tickets:     deps.TicketRepo,
		technicians: deps.TechnicianRepo,
		registry:    deps.Registry,
		notifier:    deps.Notifier,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// Create persists a new ticket and only then broadcasts it. Notification
// references are stored afterwards; failing to store them is logged.
func (s *LifecycleService) Create(ctx context.Context, reporter *domain.ReporterProfile, req domain.TicketRequest) (*domain.Ticket, error) {
	if !reporter.Complete() {
		return nil, s.reject("create", apperrors.NewValidationError("Registration is required before creating tickets.", nil))
	}
	equipment := strings.TrimSpace(req.Equipment)
	description := strings.TrimSpace(req.Description)
	if equipment == "" || description == "" {
		return nil, s.reject("create", apperrors.NewValidationError("Equipment and description are required.", map[string]any{
			"equipment":   equipment,
			"description": description,
		}))
	}
	urgency := req.Urgency
	if urgency != domain.UrgencyHigh {
		urgency = domain.UrgencyNormal
	}

	ticket := &domain.Ticket{
		LocationID:   reporter.LocationID,
		ReporterID:   reporter.UserID,
		ReporterName: reporter.DisplayName,
		Equipment:    equipment,
		Description:  description,
		Urgency:      urgency,
		PhotoRef:     req.PhotoRef,
		Status:       domain.TicketStatusCreated,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.logger.Error("ticket create failed", zap.Int64("user_id", reporter.UserID), zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}
	s.metrics.RecordTransition("create")
	s.logger.Info("ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("user_id", ticket.ReporterID),
		zap.String("location_id", ticket.LocationID))

	refs := s.notifier.Broadcast(ctx, ticket)
	ticket.ManagementRef = refs.Management
	ticket.ReporterRef = refs.Reporter

	s.publish(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, ticket.ReporterID, events.TicketCreatedPayload{
		LocationID: ticket.LocationID,
		Equipment:  ticket.Equipment,
		Urgency:    ticket.Urgency,
		HasPhoto:   ticket.PhotoRef != "",
	}))
	return ticket, nil
}

// Claim assigns a created ticket to the calling technician. A repeated claim
// by the current executor is accepted without change.
func (s *LifecycleService) Claim(ctx context.Context, ticketID int64, actor domain.Actor) (*Outcome, error) {
	if !s.registry.Snapshot().IsTechnician(actor.ID) {
		return nil, s.reject("claim", apperrors.NewForbidden("Technicians only."))
	}

	for attempt := 0; attempt < swapAttempts; attempt++ {
		ticket, err := s.load(ctx, ticketID)
		if err != nil {
			return nil, s.reject("claim", err)
		}

		switch ticket.Status {
		case domain.TicketStatusDone, domain.TicketStatusCancelledByUser:
			return nil, s.reject("claim", terminalRejection(ticket, "claim"))
		case domain.TicketStatusInProgress:
			if ticket.ExecutorID == actor.ID {
				return &Outcome{Ticket: ticket, Message: "You are already the executor of this ticket."}, nil
			}
			return nil, s.reject("claim", apperrors.NewConflict(
				fmt.Sprintf("Ticket is already in progress: %s.", executorLabel(ticket)),
				map[string]any{"executor_id": ticket.ExecutorID, "executor_name": ticket.ExecutorName}))
		}

		name := s.TechnicianName(ctx, actor)
		next := domain.Transition{Status: domain.TicketStatusInProgress, ExecutorID: actor.ID, ExecutorName: name}
		ok, err := s.tickets.CompareAndSwap(ctx, ticket.ID, domain.GuardOf(ticket), next)
		if err != nil {
			return nil, s.storeFailure("claim", ticket.ID, err)
		}
		if !ok {
			s.logger.Debug("claim lost a race; re-reading", zap.Int64("ticket_id", ticket.ID), zap.Int64("user_id", actor.ID))
			continue
		}
		return s.committed(ctx, ticket, next, messaging.ActionClaim, actor, "Ticket taken. You are the executor."), nil
	}
	return nil, s.storeFailure("claim", ticketID, errRetriesExhausted)
}

// Complete closes an in-progress ticket. Only its executor may do so, and a
// ticket that was never claimed cannot be completed.
func (s *LifecycleService) Complete(ctx context.Context, ticketID int64, actor domain.Actor) (*Outcome, error) {
	if !s.registry.Snapshot().IsTechnician(actor.ID) {
		return nil, s.reject("complete", apperrors.NewForbidden("Technicians only."))
	}

	for attempt := 0; attempt < swapAttempts; attempt++ {
		ticket, err := s.load(ctx, ticketID)
		if err != nil {
			return nil, s.reject("complete", err)
		}

		switch ticket.Status {
		case domain.TicketStatusDone, domain.TicketStatusCancelledByUser:
			return nil, s.reject("complete", terminalRejection(ticket, "complete"))
		case domain.TicketStatusCreated:
			return nil, s.reject("complete", apperrors.NewConflict("Claim the ticket first (the Claim button).", nil))
		}
		if ticket.ExecutorID != actor.ID {
			return nil, s.reject("complete", apperrors.NewForbidden(
				fmt.Sprintf("This ticket is being handled by %s. Only they can complete it.", executorLabel(ticket))))
		}

		next := domain.Transition{Status: domain.TicketStatusDone, ExecutorID: ticket.ExecutorID, ExecutorName: ticket.ExecutorName}
		ok, err := s.tickets.CompareAndSwap(ctx, ticket.ID, domain.GuardOf(ticket), next)
		if err != nil {
			return nil, s.storeFailure("complete", ticket.ID, err)
		}
		if !ok {
			continue
		}
		return s.committed(ctx, ticket, next, messaging.ActionComplete, actor, "Ticket marked as done."), nil
	}
	return nil, s.storeFailure("complete", ticketID, errRetriesExhausted)
}

// Cancel withdraws a ticket on behalf of its reporter. Ownership is checked
// before status, so strangers are refused whatever the ticket's state.
func (s *LifecycleService) Cancel(ctx context.Context, ticketID int64, actor domain.Actor) (*Outcome, error) {
	for attempt := 0; attempt < swapAttempts; attempt++ {
		ticket, err := s.load(ctx, ticketID)
		if err != nil {
			return nil, s.reject("cancel", err)
		}
		if ticket.ReporterID != actor.ID {
			return nil, s.reject("cancel", apperrors.NewForbidden("Only the reporter can cancel this ticket."))
		}
		if ticket.Status.Terminal() {
			return nil, s.reject("cancel", terminalRejection(ticket, "cancel"))
		}

		next := domain.Transition{Status: domain.TicketStatusCancelledByUser, ExecutorID: ticket.ExecutorID, ExecutorName: ticket.ExecutorName}
		ok, err := s.tickets.CompareAndSwap(ctx, ticket.ID, domain.GuardOf(ticket), next)
		if err != nil {
			return nil, s.storeFailure("cancel", ticket.ID, err)
		}
		if !ok {
			continue
		}
		return s.committed(ctx, ticket, next, messaging.ActionCancel, actor, "Ticket cancelled."), nil
	}
	return nil, s.storeFailure("cancel", ticketID, errRetriesExhausted)
}

// Get returns a ticket by id.
func (s *LifecycleService) Get(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	return s.load(ctx, ticketID)
}

// TechnicianName resolves the name shown for a technician: the stored name,
// then the platform name, then a generic label.
func (s *LifecycleService) TechnicianName(ctx context.Context, actor domain.Actor) string {
	tech, err := s.technicians.Get(ctx, actor.ID)
	if err == nil && strings.TrimSpace(tech.DisplayName) != "" {
		return tech.DisplayName
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("technician name lookup failed", zap.Int64("user_id", actor.ID), zap.Error(err))
	}
	return actor.FallbackName("Technician")
}

var (
	errRetriesExhausted = errors.New("conditional update kept losing")
	errExecutorMissing  = errors.New("in-progress ticket has no executor")
)

// load reads a ticket and checks the executor invariant. An in-progress
// ticket without an executor cannot arise through this service, so it is
// reported instead of repaired.
func (s *LifecycleService) load(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("Ticket", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, s.storeFailure("read", ticketID, err)
	}
	if ticket.Status == domain.TicketStatusInProgress && !ticket.HasExecutor() {
		s.logger.Error("ticket invariant violated", zap.Int64("ticket_id", ticketID), zap.Error(errExecutorMissing))
		return nil, apperrors.NewInternalError(errExecutorMissing)
	}
	return ticket, nil
}

func (s *LifecycleService) committed(ctx context.Context, before *domain.Ticket, next domain.Transition, action messaging.ActionKind, actor domain.Actor, message string) *Outcome {
	after := *before
	after.Status = next.Status
	after.ExecutorID = next.ExecutorID
	after.ExecutorName = next.ExecutorName

	s.metrics.RecordTransition(string(action))
	s.logger.Info("ticket transition",
		zap.Int64("ticket_id", after.ID),
		zap.Int64("user_id", actor.ID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(after.Status)))

	s.notifier.Reconcile(ctx, &after, Change{Action: action, Actor: actor})
	s.publish(ctx, events.NewEvent(eventFor(action), after.ID, actor.ID, events.TicketTransitionPayload{
		OldStatus:    before.Status,
		NewStatus:    after.Status,
		ExecutorID:   after.ExecutorID,
		ExecutorName: after.ExecutorName,
	}))
	return &Outcome{Ticket: &after, Changed: true, Message: message}
}

func eventFor(action messaging.ActionKind) events.EventType {
	switch action {
	case messaging.ActionClaim:
		return events.EventTicketClaimed
	case messaging.ActionComplete:
		return events.EventTicketCompleted
	default:
		return events.EventTicketCancelled
	}
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", zap.Int64("ticket_id", event.TicketID), zap.Error(err))
	}
}

func (s *LifecycleService) reject(op string, err error) error {
	if de := apperrors.ToDomainError(err); de != nil && apperrors.IsRejection(err) {
		s.metrics.RecordRejection(de.Code)
		s.logger.Debug("lifecycle event rejected", zap.String("op", op), zap.String("code", de.Code), zap.String("reason", de.Message))
	}
	return err
}

func (s *LifecycleService) storeFailure(op string, ticketID int64, err error) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	s.logger.Error("ticket store failure", zap.String("op", op), zap.Int64("ticket_id", ticketID), zap.Error(err))
	return apperrors.NewInternalError(err)
}

func terminalRejection(ticket *domain.Ticket, op string) error {
	details := map[string]any{"status": string(ticket.Status)}
	if ticket.Status == domain.TicketStatusDone {
		if op == "cancel" {
			return apperrors.NewTerminalState("Ticket is already done and cannot be cancelled.", details)
		}
		return apperrors.NewTerminalState("Ticket is already done.", details)
	}
	if op == "cancel" {
		return apperrors.NewTerminalState("Ticket is already cancelled.", details)
	}
	return apperrors.NewTerminalState("Ticket was cancelled by the reporter.", details)
}

func executorLabel(ticket *domain.Ticket) string {
	if ticket.ExecutorName != "" {
		return ticket.ExecutorName
	}
	return "another technician"
}
