package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/messaging"
	"github.com/spec-kit/repairdesk/internal/registry"
	"github.com/spec-kit/repairdesk/internal/repository"
	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

// RecentReportersLimit caps the recent registrations listing.
const RecentReportersLimit = 15

// WipeConfirmation must accompany a wipe request.
const WipeConfirmation = "CONFIRM"

// AnnouncementPrefix heads every broadcast announcement.
const AnnouncementPrefix = "📢 <b>Support announcement:</b>\n\n"

// Stats summarizes the stores for the admin panel.
type Stats struct {
	Reporters        int                         `json:"reporters"`
	NamedTechnicians int                         `json:"named_technicians"`
	RosterSize       int                         `json:"roster_size"`
	TicketsTotal     int                         `json:"tickets_total"`
	Tickets          map[domain.TicketStatus]int `json:"tickets"`
}

// BroadcastReport counts announcement deliveries.
type BroadcastReport struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// AdminService backs the administrative commands and the HTTP admin API.
type AdminService struct {
	tickets     repository.TicketRepository
	reporters   repository.ReporterRepository
	technicians repository.TechnicianRepository
	history     repository.TicketHistoryRepository
	registry    *registry.Registry
	channel     messaging.Channel
	logger      *zap.Logger
}

// AdminDependencies bundles collaborators for the admin service.
type AdminDependencies struct {
	TicketRepo     repository.TicketRepository
	ReporterRepo   repository.ReporterRepository
	TechnicianRepo repository.TechnicianRepository
	HistoryRepo    repository.TicketHistoryRepository
	Registry       *registry.Registry
	Channel        messaging.Channel
	Logger         *zap.Logger
}

// NewAdminService constructs the service.
func NewAdminService(deps AdminDependencies) *AdminService {
	return &AdminService{
		tickets:     deps.TicketRepo,
		reporters:   deps.ReporterRepo,
		technicians: deps.TechnicianRepo,
		history:     deps.HistoryRepo,
		registry:    deps.Registry,
		channel:     deps.Channel,
		logger:      deps.Logger,
	}
}

// Stats counts reporters, technicians and tickets by status.
func (s *AdminService) Stats(ctx context.Context) (*Stats, error) {
	reporters, err := s.reporters.Count(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	named, err := s.technicians.Count(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	counts, err := s.tickets.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	stats := &Stats{
		Reporters:        reporters,
		NamedTechnicians: named,
		RosterSize:       len(s.registry.Snapshot().Technicians()),
		Tickets:          counts,
	}
	for _, n := range counts {
		stats.TicketsTotal += n
	}
	return stats, nil
}

// RecentReporters lists the latest registrations.
func (s *AdminService) RecentReporters(ctx context.Context) ([]domain.ReporterProfile, error) {
	list, err := s.reporters.List(ctx, RecentReportersLimit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// Technicians merges named technicians with roster ids that have no name.
// Named entries come first, each flagged with its roster membership.
func (s *AdminService) Technicians(ctx context.Context) ([]domain.Technician, error) {
	named, err := s.technicians.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	snapshot := s.registry.Snapshot()

	seen := make(map[int64]struct{}, len(named))
	result := make([]domain.Technician, 0, len(named))
	for _, tech := range named {
		tech.InRoster = snapshot.IsTechnician(tech.UserID)
		seen[tech.UserID] = struct{}{}
		result = append(result, tech)
	}

	var extra []int64
	for _, id := range snapshot.Technicians() {
		if _, ok := seen[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, id := range extra {
		result = append(result, domain.Technician{UserID: id, InRoster: true})
	}
	return result, nil
}

// AddTechnician puts userID on the roster and stores the name when one is
// given. It reports whether the id was newly added.
func (s *AdminService) AddTechnician(ctx context.Context, userID int64, name string) (bool, error) {
	if userID <= 0 {
		return false, apperrors.NewValidationError("A numeric user id is required.", nil)
	}
	added, err := s.registry.AddTechnician(userID)
	if err != nil {
		s.logger.Error("roster update failed", zap.Int64("user_id", userID), zap.Error(err))
		return false, apperrors.NewInternalError(err)
	}
	if name = strings.TrimSpace(name); name != "" {
		if err := s.technicians.SetName(ctx, userID, name); err != nil {
			return added, apperrors.MapError(err)
		}
	}
	s.logger.Info("technician added", zap.Int64("user_id", userID), zap.Bool("new", added))
	return added, nil
}

// RemoveTechnician takes userID off the roster. The stored name is kept.
func (s *AdminService) RemoveTechnician(_ context.Context, userID int64) error {
	removed, err := s.registry.RemoveTechnician(userID)
	if err != nil {
		s.logger.Error("roster update failed", zap.Int64("user_id", userID), zap.Error(err))
		return apperrors.NewInternalError(err)
	}
	if !removed {
		return apperrors.NewNotFound("Technician", map[string]any{"user_id": userID})
	}
	s.logger.Info("technician removed", zap.Int64("user_id", userID))
	return nil
}

// SetTechnicianName names a technician already on the roster.
func (s *AdminService) SetTechnicianName(ctx context.Context, userID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewValidationError("A name is required.", nil)
	}
	if !s.registry.Snapshot().IsTechnician(userID) {
		return apperrors.NewValidationError("This user is not on the technician roster. Add them with /addtech first.",
			map[string]any{"user_id": userID})
	}
	return apperrors.MapError(s.technicians.SetName(ctx, userID, name))
}

// SetReporterName renames a reporter, keeping the location.
func (s *AdminService) SetReporterName(ctx context.Context, userID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewValidationError("A name is required.", nil)
	}
	return apperrors.MapError(s.reporters.SetName(ctx, userID, name))
}

// DeleteReporter removes a profile. The reporter's tickets stay.
func (s *AdminService) DeleteReporter(ctx context.Context, userID int64) error {
	deleted, err := s.reporters.Delete(ctx, userID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !deleted {
		return apperrors.NewNotFound("Reporter", map[string]any{"user_id": userID})
	}
	s.logger.Info("reporter deleted", zap.Int64("user_id", userID))
	return nil
}

// TicketHistory returns the audit trail of one ticket, oldest first.
func (s *AdminService) TicketHistory(ctx context.Context, ticketID int64) ([]domain.TicketHistoryEntry, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("Ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if s.history == nil {
		return nil, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// ReloadRoster re-reads the technician roster file and returns its size.
func (s *AdminService) ReloadRoster(_ context.Context) (int, error) {
	snapshot, err := s.registry.ReloadTechnicians()
	if err != nil {
		s.logger.Error("roster reload failed", zap.Error(err))
		return 0, apperrors.NewInternalError(err)
	}
	return len(snapshot.Technicians()), nil
}

// ReloadRegistry re-reads both the location directory and the roster.
func (s *AdminService) ReloadRegistry(_ context.Context) (*registry.Snapshot, error) {
	snapshot, err := s.registry.Reload()
	if err != nil {
		s.logger.Error("registry reload failed", zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}
	return snapshot, nil
}

// Broadcast sends an announcement to every registered reporter. Individual
// delivery failures are counted, not returned.
func (s *AdminService) Broadcast(ctx context.Context, text string) (*BroadcastReport, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("Announcement text is required.", nil)
	}
	reporters, err := s.reporters.List(ctx, 0)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	report := &BroadcastReport{}
	for _, reporter := range reporters {
		if _, err := s.channel.SendText(ctx, reporter.UserID, AnnouncementPrefix+text, nil); err != nil {
			s.logger.Warn("announcement delivery failed", zap.Int64("recipient", reporter.UserID), zap.Error(err))
			report.Failed++
			continue
		}
		report.Sent++
	}
	s.logger.Info("announcement sent", zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
	return report, nil
}

// ErrWipeNotConfirmed rejects a wipe without the confirmation token.
var ErrWipeNotConfirmed = apperrors.NewValidationError("Wiping requires the CONFIRM token.", nil)

// Wipe deletes every ticket with its history, every reporter and every
// technician name. The roster file is left alone.
func (s *AdminService) Wipe(ctx context.Context, confirmation string) error {
	if strings.TrimSpace(confirmation) != WipeConfirmation {
		return ErrWipeNotConfirmed
	}
	var errs []error
	if err := s.tickets.DeleteAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.reporters.DeleteAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.technicians.DeleteAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.history != nil {
		if err := s.history.DeleteAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("wipe failed", zap.Error(err))
		return apperrors.NewInternalError(err)
	}
	s.logger.Warn("all tables wiped")
	return nil
}
