package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/messaging"
	"github.com/spec-kit/repairdesk/internal/registry"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/session"
)

// Intake keyboard labels.
const (
	CancelLabel  = "❌ Cancel"
	BackLabel    = "⬅ Back"
	NoPhotoLabel = "Continue without photo"
)

// lockStripes bounds the per-reporter lock table.
const lockStripes = 64

// TicketCreator accepts finished intake drafts.
type TicketCreator interface {
	Create(ctx context.Context, reporter *domain.ReporterProfile, req domain.TicketRequest) (*domain.Ticket, error)
}

// Inbound is one message from a user, reduced to what the conversation reads.
type Inbound struct {
	UserID       int64
	ChatID       int64
	PlatformName string
	Text         string
	Caption      string
	PhotoRef     string
	BatchID      string
}

// answer returns the textual content, taking a photo caption when the
// message has no text of its own.
func (in Inbound) answer() string {
	if text := strings.TrimSpace(in.Text); text != "" {
		return text
	}
	return strings.TrimSpace(in.Caption)
}

// IntakeService runs the registration and ticket conversations. Messages
// from one user are handled one at a time.
type IntakeService struct {
	sessions  session.Store
	reporters repository.ReporterRepository
	registry  *registry.Registry
	creator   TicketCreator
	channel   messaging.Channel
	admins    map[int64]struct{}
	logger    *zap.Logger
	locks     [lockStripes]sync.Mutex
}

// IntakeDependencies bundles collaborators for the intake service.
type IntakeDependencies struct {
	Sessions     session.Store
	ReporterRepo repository.ReporterRepository
	Registry     *registry.Registry
	Creator      TicketCreator
	Channel      messaging.Channel
	AdminIDs     []int64
	Logger       *zap.Logger
}

// NewIntakeService constructs the service.
func NewIntakeService(deps IntakeDependencies) *IntakeService {
	admins := make(map[int64]struct{}, len(deps.AdminIDs))
	for _, id := range deps.AdminIDs {
		admins[id] = struct{}{}
	}
	return &IntakeService{
		sessions:  deps.Sessions,
		reporters: deps.ReporterRepo,
		registry:  deps.Registry,
		creator:   deps.Creator,
		channel:   deps.Channel,
		admins:    admins,
		logger:    deps.Logger,
	}
}

func (s *IntakeService) lock(userID int64) func() {
	idx := userID % lockStripes
	if idx < 0 {
		idx = -idx
	}
	mu := &s.locks[idx]
	mu.Lock()
	return mu.Unlock
}

func (s *IntakeService) isAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

func (s *IntakeService) isStaff(userID int64) bool {
	return s.isAdmin(userID) || s.registry.Snapshot().IsTechnician(userID)
}

// Start greets the user and opens registration when the profile is missing
// or incomplete. Any draft in progress is discarded.
func (s *IntakeService) Start(ctx context.Context, in Inbound) error {
	defer s.lock(in.UserID)()

	if err := s.sessions.Delete(ctx, in.UserID); err != nil {
		return err
	}

	if s.isStaff(in.UserID) {
		role := "an administrator"
		if s.registry.Snapshot().IsTechnician(in.UserID) {
			role = "a technician"
		}
		text := fmt.Sprintf("You are registered as %s.\nYou don't need to register a store; tickets will come to you.", role)
		if s.isAdmin(in.UserID) {
			text += "\nUse /admin to open the admin panel."
		}
		return s.reply(ctx, in, text, messaging.RemoveKeyboard())
	}

	profile, err := s.profile(ctx, in.UserID)
	if err != nil {
		return err
	}
	if profile.Complete() {
		return s.reply(ctx, in, fmt.Sprintf("Hello, %s!\n\nYour store: #%s.\n\n"+
			"This is the technical support bot. Press \"%s\" to report a problem.",
			html.EscapeString(profile.DisplayName), profile.LocationID, NewTicketLabel), newTicketKeyboard())
	}

	if err := s.sessions.Put(ctx, in.UserID, &session.Draft{Flow: session.FlowRegistration, Step: session.StepName}); err != nil {
		return err
	}
	return s.reply(ctx, in, "Welcome to the technical support bot.\n\nFirst, please tell us your name.", messaging.RemoveKeyboard())
}

// NewTicket opens a ticket draft for a registered reporter, replacing any
// draft already in progress.
func (s *IntakeService) NewTicket(ctx context.Context, in Inbound) error {
	defer s.lock(in.UserID)()

	if s.isStaff(in.UserID) {
		return s.reply(ctx, in, "Only store staff can create tickets.", nil)
	}
	profile, err := s.profile(ctx, in.UserID)
	if err != nil {
		return err
	}
	if !profile.Complete() {
		return s.reply(ctx, in, "You need to register first.\n\nSend /start and enter your name and store number.", nil)
	}

	if err := s.sessions.Put(ctx, in.UserID, &session.Draft{Flow: session.FlowTicket, Step: session.StepEquipment}); err != nil {
		return err
	}
	return s.prompt(ctx, in, session.StepEquipment)
}

// Handle feeds a message into the user's active conversation. It reports
// false when the user has no draft.
func (s *IntakeService) Handle(ctx context.Context, in Inbound) (bool, error) {
	defer s.lock(in.UserID)()

	draft, err := s.sessions.Get(ctx, in.UserID)
	if err != nil {
		return false, err
	}
	if draft == nil {
		return false, nil
	}

	switch draft.Flow {
	case session.FlowRegistration:
		return true, s.handleRegistration(ctx, in, draft)
	case session.FlowTicket:
		return true, s.handleTicket(ctx, in, draft)
	default:
		s.logger.Warn("dropping draft with unknown flow", zap.Int64("user_id", in.UserID), zap.String("flow", string(draft.Flow)))
		return false, s.sessions.Delete(ctx, in.UserID)
	}
}

func (s *IntakeService) handleRegistration(ctx context.Context, in Inbound, draft *session.Draft) error {
	text := strings.TrimSpace(in.Text)

	if text == CancelLabel {
		if err := s.sessions.Delete(ctx, in.UserID); err != nil {
			return err
		}
		return s.reply(ctx, in, "Registration cancelled. Send /start when you are ready.", messaging.RemoveKeyboard())
	}

	switch draft.Step {
	case session.StepName:
		if text == "" {
			return s.reply(ctx, in, "Please type your name as text.", nil)
		}
		draft.Name = text
		draft.Step = session.StepLocation
		if err := s.sessions.Put(ctx, in.UserID, draft); err != nil {
			return err
		}
		return s.reply(ctx, in, "Now enter your store number using digits.\n\nExample: 1 or 12.\n"+
			"If you don't know the number, ask your manager.", nil)

	case session.StepLocation:
		if !isDigits(text) {
			return s.reply(ctx, in, "The store number must contain digits only.\nTry again, for example: 1, 5 or 12.", nil)
		}
		if !s.registry.Snapshot().ValidLocation(text) {
			return s.reply(ctx, in, "This store number is not in the list.\nCheck the number and enter it again.", nil)
		}

		profile := &domain.ReporterProfile{UserID: in.UserID, DisplayName: draft.Name, LocationID: text}
		if profile.DisplayName == "" {
			profile.DisplayName = in.PlatformName
		}
		if err := s.reporters.Upsert(ctx, profile); err != nil {
			return err
		}
		if err := s.sessions.Delete(ctx, in.UserID); err != nil {
			return err
		}
		s.logger.Info("reporter registered", zap.Int64("user_id", in.UserID), zap.String("location_id", text))

		s.notifyAdmins(ctx, fmt.Sprintf("🆕 New registration:\nName: %s\nStore: #%s\nUser ID: <code>%d</code>",
			html.EscapeString(profile.DisplayName), profile.LocationID, profile.UserID))
		return s.reply(ctx, in, fmt.Sprintf("Done, %s!\nYour store: #%s.\n\nPress \"%s\" to report a problem.",
			html.EscapeString(profile.DisplayName), profile.LocationID, NewTicketLabel), newTicketKeyboard())
	}

	return s.sessions.Delete(ctx, in.UserID)
}

func (s *IntakeService) handleTicket(ctx context.Context, in Inbound, draft *session.Draft) error {
	answer := in.answer()

	if strings.TrimSpace(in.Text) == CancelLabel {
		if err := s.sessions.Delete(ctx, in.UserID); err != nil {
			return err
		}
		return s.reply(ctx, in, "Ticket creation cancelled.", newTicketKeyboard())
	}
	if strings.TrimSpace(in.Text) == BackLabel {
		return s.back(ctx, in, draft)
	}

	switch draft.Step {
	case session.StepEquipment:
		if answer == "" {
			return s.reply(ctx, in, "First tell us which equipment has the problem: press a button or type it in a word.\n"+
				"We will ask for a photo later.", nil)
		}
		switch {
		case draft.AwaitingOther:
			draft.Equipment = domain.OtherEquipment(answer)
			draft.AwaitingOther = false
		case answer == domain.EquipmentOther:
			draft.AwaitingOther = true
			if err := s.sessions.Put(ctx, in.UserID, draft); err != nil {
				return err
			}
			return s.reply(ctx, in, "Type what kind of equipment it is.", messaging.Keyboard([]string{BackLabel, CancelLabel}))
		case domain.IsEquipmentChoice(answer):
			draft.Equipment = answer
		default:
			draft.Equipment = domain.OtherEquipment(answer)
		}
		return s.advance(ctx, in, draft, session.StepDescription)

	case session.StepDescription:
		if answer == "" {
			return s.reply(ctx, in, "Please describe the problem in words: what doesn't work, where, and since when.\n"+
				"You can send a photo at the next step.", nil)
		}
		draft.Description = answer
		return s.advance(ctx, in, draft, session.StepUrgency)

	case session.StepUrgency:
		if answer == "" {
			return s.prompt(ctx, in, session.StepUrgency)
		}
		draft.Urgency = domain.ParseUrgency(answer)
		return s.advance(ctx, in, draft, session.StepPhoto)

	case session.StepPhoto:
		return s.handlePhoto(ctx, in, draft)
	}

	return s.sessions.Delete(ctx, in.UserID)
}

func (s *IntakeService) handlePhoto(ctx context.Context, in Inbound, draft *session.Draft) error {
	if in.BatchID != "" {
		first, err := s.sessions.FirstSeenBatch(ctx, in.BatchID)
		if err != nil {
			return err
		}
		if first {
			return s.reply(ctx, in, "Only one photo per ticket is accepted.\nPlease send a single key photo or a collage.", nil)
		}
		return nil
	}

	text := strings.TrimSpace(in.Text)
	switch {
	case in.PhotoRef != "":
		draft.PhotoRef = in.PhotoRef
	case text == NoPhotoLabel || strings.EqualFold(text, "no"):
		draft.PhotoRef = ""
	default:
		return s.reply(ctx, in, fmt.Sprintf("Send a photo or press \"%s\" if no photo is needed.\n"+
			"You can also use \"%s\" or \"%s\".", NoPhotoLabel, BackLabel, CancelLabel), nil)
	}
	return s.submit(ctx, in, draft)
}

// submit clears the draft before handing it over, so a failed creation never
// leaves the reporter stuck at the last step.
func (s *IntakeService) submit(ctx context.Context, in Inbound, draft *session.Draft) error {
	if err := s.sessions.Delete(ctx, in.UserID); err != nil {
		s.logger.Warn("draft delete failed", zap.Int64("user_id", in.UserID), zap.Error(err))
	}

	profile, err := s.profile(ctx, in.UserID)
	if err != nil {
		return err
	}
	if !profile.Complete() {
		return s.reply(ctx, in, "You need to register first.\n\nSend /start and enter your name and store number.", nil)
	}

	if _, err := s.creator.Create(ctx, profile, draft.Request()); err != nil {
		s.logger.Error("ticket submit failed", zap.Int64("user_id", in.UserID), zap.Error(err))
		return s.reply(ctx, in, "The ticket could not be created. Please try again later.", newTicketKeyboard())
	}
	return nil
}

func (s *IntakeService) back(ctx context.Context, in Inbound, draft *session.Draft) error {
	if draft.Step == session.StepEquipment && draft.AwaitingOther {
		draft.AwaitingOther = false
		return s.advance(ctx, in, draft, session.StepEquipment)
	}
	prev, ok := draft.PreviousStep()
	if !ok {
		return s.prompt(ctx, in, draft.Step)
	}
	draft.ClearFrom(prev)
	return s.advance(ctx, in, draft, prev)
}

func (s *IntakeService) advance(ctx context.Context, in Inbound, draft *session.Draft, next session.Step) error {
	draft.Step = next
	if err := s.sessions.Put(ctx, in.UserID, draft); err != nil {
		return err
	}
	return s.prompt(ctx, in, next)
}

func (s *IntakeService) prompt(ctx context.Context, in Inbound, step session.Step) error {
	switch step {
	case session.StepEquipment:
		return s.reply(ctx, in, "What is broken? Pick an option below or type your own.\n\n"+
			fmt.Sprintf("You can cancel at any time with \"%s\".", CancelLabel), equipmentKeyboard())
	case session.StepDescription:
		return s.reply(ctx, in, "Describe the problem as clearly as you can: what doesn't work, "+
			"which register, scale or camera, and since when.", messaging.Keyboard([]string{BackLabel, CancelLabel}))
	case session.StepUrgency:
		return s.reply(ctx, in, "Choose the urgency: normal or high.", messaging.Keyboard(
			[]string{string(domain.UrgencyNormal), string(domain.UrgencyHigh)},
			[]string{BackLabel, CancelLabel},
		))
	case session.StepPhoto:
		return s.reply(ctx, in, fmt.Sprintf("Send a photo of the problem if you have one.\n"+
			"If not, press \"%s\".", NoPhotoLabel), messaging.Keyboard(
			[]string{NoPhotoLabel},
			[]string{BackLabel, CancelLabel},
		))
	}
	return nil
}

func (s *IntakeService) notifyAdmins(ctx context.Context, text string) {
	for id := range s.admins {
		if _, err := s.channel.SendText(ctx, id, text, nil); err != nil {
			s.logger.Warn("admin notification failed", zap.Int64("recipient", id), zap.Error(err))
		}
	}
}

func (s *IntakeService) profile(ctx context.Context, userID int64) (*domain.ReporterProfile, error) {
	profile, err := s.reporters.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return profile, err
}

func (s *IntakeService) reply(ctx context.Context, in Inbound, text string, controls *messaging.Controls) error {
	_, err := s.channel.SendText(ctx, in.ChatID, text, controls)
	return err
}

func equipmentKeyboard() *messaging.Controls {
	return messaging.Keyboard(
		[]string{domain.EquipmentScale, domain.EquipmentCCTV},
		[]string{domain.EquipmentInternet, domain.EquipmentCashRegister},
		[]string{domain.EquipmentOther},
		[]string{CancelLabel},
	)
}

func newTicketKeyboard() *messaging.Controls {
	return messaging.Keyboard([]string{NewTicketLabel})
}

func isDigits(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
