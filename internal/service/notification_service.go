package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/messaging"
	"github.com/spec-kit/repairdesk/internal/observability"
	"github.com/spec-kit/repairdesk/internal/registry"
	"github.com/spec-kit/repairdesk/internal/render"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/worker"
)

// Delivery surfaces, used as metric and log labels.
const (
	surfaceManagement = "management"
	surfaceTechnician = "technician"
	surfaceReporter   = "reporter"
	surfaceExecutor   = "executor"
)

// Reporter-facing labels shared with the intake conversation.
const (
	NewTicketLabel = "📝 New ticket"
)

// Change describes the transition a reconcile follows.
type Change struct {
	Action messaging.ActionKind
	Actor  domain.Actor
}

// BroadcastResult carries the references captured while broadcasting.
type BroadcastResult struct {
	Management domain.MessageRef
	Reporter   domain.MessageRef
}

// Notifier keeps every copy of a ticket in line with the store.
type Notifier interface {
	Broadcast(ctx context.Context, ticket *domain.Ticket) BroadcastResult
	Reconcile(ctx context.Context, ticket *domain.Ticket, change Change)
}

// NotificationService fans ticket state out to the management chat, the
// technicians and the reporter. Delivery failures are logged and counted,
// never returned.
//
// Management edits for one ticket run one at a time and render the stored
// ticket, so the last edit to land always shows the latest committed state.
type NotificationService struct {
	channel          messaging.Channel
	tickets          repository.TicketRepository
	registry         *registry.Registry
	pool             *worker.Pool
	metrics          *observability.Metrics
	logger           *zap.Logger
	managementChatID int64

	editLocks [lockStripes]sync.Mutex
}

// NotificationDependencies bundles collaborators for the fanout.
type NotificationDependencies struct {
	Channel          messaging.Channel
	TicketRepo       repository.TicketRepository
	Registry         *registry.Registry
	Pool             *worker.Pool
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	ManagementChatID int64
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		channel:          deps.Channel,
		tickets:          deps.TicketRepo,
		registry:         deps.Registry,
		pool:             deps.Pool,
		metrics:          deps.Metrics,
		logger:           deps.Logger,
		managementChatID: deps.ManagementChatID,
	}
}

// Broadcast publishes a freshly created ticket. The management copy goes out
// first and its reference is stored before any technician copy is scattered,
// so a claim racing the broadcast always finds a copy to edit. The reporter's
// cancel control is sent inline for the same reason.
func (n *NotificationService) Broadcast(ctx context.Context, ticket *domain.Ticket) BroadcastResult {
	snap := n.registry.Snapshot()
	text := render.Ticket(ticket, snap)
	var result BroadcastResult

	if n.managementChatID == 0 {
		n.logger.Warn("management chat not configured; skipping management copy", zap.Int64("ticket_id", ticket.ID))
	} else {
		ref, err := n.send(ctx, n.managementChatID, ticket.PhotoRef, text, render.ManagementControls(ticket))
		n.record(surfaceManagement, ticket.ID, n.managementChatID, err)
		if err == nil {
			result.Management = ref
			n.storeRef(ctx, ticket.ID, surfaceManagement, ref)
		}
	}

	techControls := render.TechnicianControls(ticket)
	for _, techID := range snap.Technicians() {
		n.pool.Go(ctx, "broadcast technician copy", func(ctx context.Context) error {
			_, err := n.send(ctx, techID, ticket.PhotoRef, text, techControls)
			n.metrics.RecordDelivery(surfaceTechnician, err)
			return err
		}, zap.Int64("ticket_id", ticket.ID), zap.Int64("recipient", techID))
	}

	_, err := n.channel.SendText(ctx, ticket.ReporterID, createdNotice(ticket), messaging.Keyboard([]string{NewTicketLabel}))
	n.record(surfaceReporter, ticket.ID, ticket.ReporterID, err)
	if err == nil {
		ref, err := n.channel.SendText(ctx, ticket.ReporterID, "To cancel the ticket, press the button below.", render.ReporterControls(ticket))
		n.record(surfaceReporter, ticket.ID, ticket.ReporterID, err)
		if err == nil {
			result.Reporter = ref
			n.storeRef(ctx, ticket.ID, surfaceReporter, ref)
		}
	}
	return result
}

func (n *NotificationService) storeRef(ctx context.Context, ticketID int64, surface string, ref domain.MessageRef) {
	if n.tickets == nil || ref.IsZero() {
		return
	}
	var err error
	if surface == surfaceManagement {
		err = n.tickets.SetManagementRef(ctx, ticketID, ref)
	} else {
		err = n.tickets.SetReporterRef(ctx, ticketID, ref)
	}
	if err != nil {
		n.logger.Error("store message reference failed",
			zap.String("surface", surface),
			zap.Int64("ticket_id", ticketID),
			zap.Error(err))
	}
}

func createdNotice(ticket *domain.Ticket) string {
	return fmt.Sprintf("Ticket #%d created.\n"+
		"If the problem went away or the ticket was sent by mistake, you can cancel it.", ticket.ID)
}

// Reconcile brings the surfaces in line with a committed transition. All
// work runs on the pool; nothing is reported back to the caller.
func (n *NotificationService) Reconcile(ctx context.Context, ticket *domain.Ticket, change Change) {
	snapshot := *ticket
	fields := []zap.Field{zap.Int64("ticket_id", ticket.ID), zap.String("action", string(change.Action))}

	if n.tickets != nil || !snapshot.ManagementRef.IsZero() {
		n.pool.Go(ctx, "reconcile management copy", func(ctx context.Context) error {
			return n.editManagement(ctx, &snapshot)
		}, fields...)
	}

	switch change.Action {
	case messaging.ActionClaim:
		n.notify(ctx, surfaceReporter, snapshot.ReporterID, render.ClaimedNotice(&snapshot), fields)
	case messaging.ActionComplete:
		n.notify(ctx, surfaceReporter, snapshot.ReporterID, render.CompletedNotice(&snapshot), fields)
	case messaging.ActionCancel:
		if snapshot.HasExecutor() {
			n.notify(ctx, surfaceExecutor, snapshot.ExecutorID, render.CancelledNotice(&snapshot), fields)
		}
	}

	if !snapshot.Status.Cancellable() && !snapshot.ReporterRef.IsZero() {
		n.pool.Go(ctx, "remove reporter cancel control", func(ctx context.Context) error {
			err := n.channel.RemoveControls(ctx, snapshot.ReporterRef)
			n.metrics.RecordDelivery(surfaceReporter, err)
			return err
		}, fields...)
	}
}

// Wait blocks until all scheduled deliveries have finished.
func (n *NotificationService) Wait() {
	n.pool.Wait()
}

func (n *NotificationService) notify(ctx context.Context, surface string, chatID int64, text string, fields []zap.Field) {
	n.pool.Go(ctx, "notify "+surface, func(ctx context.Context) error {
		_, err := n.channel.SendText(ctx, chatID, text, nil)
		n.metrics.RecordDelivery(surface, err)
		return err
	}, append(fields, zap.Int64("recipient", chatID))...)
}

// editManagement renders the ticket as currently stored, falling back to the
// committed snapshot when the store cannot be read. It tries the edit matching
// the stored copy first and falls back to the other one, since a copy's
// format can differ from what the reference recorded.
func (n *NotificationService) editManagement(ctx context.Context, snapshot *domain.Ticket) error {
	defer n.lockEdits(snapshot.ID)()

	ticket := n.current(ctx, snapshot)
	ref := ticket.ManagementRef
	if ref.IsZero() {
		return nil
	}
	text := render.Ticket(ticket, n.registry.Snapshot())
	controls := render.ManagementControls(ticket)

	editCaption := func() error { return n.channel.EditCaption(ctx, ref, text, controls) }
	editText := func() error { return n.channel.EditText(ctx, ref, text, controls) }
	strategies := []func() error{editText, editCaption}
	if ref.HasImage {
		strategies = []func() error{editCaption, editText}
	}

	var err error
	for _, edit := range strategies {
		if err = edit(); err == nil {
			n.metrics.RecordDelivery(surfaceManagement, nil)
			return nil
		}
	}
	n.metrics.RecordDelivery(surfaceManagement, err)
	return err
}

func (n *NotificationService) lockEdits(ticketID int64) func() {
	idx := ticketID % lockStripes
	if idx < 0 {
		idx = -idx
	}
	mu := &n.editLocks[idx]
	mu.Lock()
	return mu.Unlock
}

func (n *NotificationService) current(ctx context.Context, snapshot *domain.Ticket) *domain.Ticket {
	if n.tickets == nil {
		return snapshot
	}
	stored, err := n.tickets.GetByID(ctx, snapshot.ID)
	if err != nil {
		n.logger.Debug("rendering committed snapshot", zap.Int64("ticket_id", snapshot.ID), zap.Error(err))
		return snapshot
	}
	if stored.ManagementRef.IsZero() {
		stored.ManagementRef = snapshot.ManagementRef
	}
	return stored
}

func (n *NotificationService) send(ctx context.Context, chatID int64, photoRef, text string, controls *messaging.Controls) (domain.MessageRef, error) {
	if photoRef != "" {
		return n.channel.SendImage(ctx, chatID, photoRef, text, controls)
	}
	return n.channel.SendText(ctx, chatID, text, controls)
}

func (n *NotificationService) record(surface string, ticketID, recipient int64, err error) {
	n.metrics.RecordDelivery(surface, err)
	if err != nil {
		n.logger.Warn("delivery failed",
			zap.String("surface", surface),
			zap.Int64("ticket_id", ticketID),
			zap.Int64("recipient", recipient),
			zap.Error(err))
	}
}
