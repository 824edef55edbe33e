package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// In-memory implementations back the service when no POSTGRES_DSN is set and
// serve as fakes in tests. Each repository guards its rows with one mutex, so
// CompareAndSwap has the same per-row atomicity as the SQL version.

type memoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[int64]domain.Ticket
	now     func() time.Time
}

// NewMemoryTicketRepository returns an empty in-memory ticket store.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{tickets: make(map[int64]domain.Ticket), now: time.Now}
}

func (r *memoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := domain.FirstTicketID
	for id := range r.tickets {
		if id >= next {
			next = id + 1
		}
	}
	now := r.now()
	ticket.ID = next
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.tickets[next] = *ticket
	return nil
}

func (r *memoryTicketRepository) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ticket, nil
}

func (r *memoryTicketRepository) CompareAndSwap(_ context.Context, id int64, expect domain.Guard, next domain.Transition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok || ticket.Status != expect.Status || ticket.ExecutorID != expect.ExecutorID {
		return false, nil
	}
	ticket.Status = next.Status
	ticket.ExecutorID = next.ExecutorID
	ticket.ExecutorName = next.ExecutorName
	ticket.UpdatedAt = r.now()
	r.tickets[id] = ticket
	return true, nil
}

func (r *memoryTicketRepository) SetManagementRef(_ context.Context, id int64, ref domain.MessageRef) error {
	return r.mutate(id, func(t *domain.Ticket) { t.ManagementRef = ref })
}

func (r *memoryTicketRepository) SetReporterRef(_ context.Context, id int64, ref domain.MessageRef) error {
	return r.mutate(id, func(t *domain.Ticket) { t.ReporterRef = ref })
}

func (r *memoryTicketRepository) mutate(id int64, fn func(*domain.Ticket)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return ErrNotFound
	}
	fn(&ticket)
	r.tickets[id] = ticket
	return nil
}

func (r *memoryTicketRepository) CountByStatus(_ context.Context) (map[domain.TicketStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[domain.TicketStatus]int, len(domain.AllTicketStatuses))
	for _, status := range domain.AllTicketStatuses {
		counts[status] = 0
	}
	for _, ticket := range r.tickets {
		counts[ticket.Status]++
	}
	return counts, nil
}

func (r *memoryTicketRepository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = make(map[int64]domain.Ticket)
	return nil
}

type memoryReporterRepository struct {
	mu        sync.Mutex
	reporters map[int64]domain.ReporterProfile
	now       func() time.Time
}

// NewMemoryReporterRepository returns an empty in-memory profile store.
func NewMemoryReporterRepository() ReporterRepository {
	return &memoryReporterRepository{reporters: make(map[int64]domain.ReporterProfile), now: time.Now}
}

func (r *memoryReporterRepository) Upsert(_ context.Context, profile *domain.ReporterProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.reporters[profile.UserID]
	if !ok {
		stored = domain.ReporterProfile{UserID: profile.UserID, RegisteredAt: r.now()}
	}
	stored.DisplayName = profile.DisplayName
	stored.LocationID = profile.LocationID
	r.reporters[profile.UserID] = stored
	profile.RegisteredAt = stored.RegisteredAt
	return nil
}

func (r *memoryReporterRepository) Get(_ context.Context, userID int64) (*domain.ReporterProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.reporters[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &profile, nil
}

func (r *memoryReporterRepository) SetName(_ context.Context, userID int64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.reporters[userID]
	if !ok {
		profile = domain.ReporterProfile{UserID: userID, RegisteredAt: r.now()}
	}
	profile.DisplayName = name
	r.reporters[userID] = profile
	return nil
}

func (r *memoryReporterRepository) List(_ context.Context, limit int) ([]domain.ReporterProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.ReporterProfile, 0, len(r.reporters))
	for _, profile := range r.reporters {
		result = append(result, profile)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RegisteredAt.Equal(result[j].RegisteredAt) {
			return result[i].UserID < result[j].UserID
		}
		return result[i].RegisteredAt.After(result[j].RegisteredAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memoryReporterRepository) Delete(_ context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.reporters[userID]
	delete(r.reporters, userID)
	return ok, nil
}

func (r *memoryReporterRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reporters), nil
}

func (r *memoryReporterRepository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reporters = make(map[int64]domain.ReporterProfile)
	return nil
}

type memoryTechnicianRepository struct {
	mu    sync.Mutex
	names map[int64]string
}

// NewMemoryTechnicianRepository returns an empty in-memory name store.
func NewMemoryTechnicianRepository() TechnicianRepository {
	return &memoryTechnicianRepository{names: make(map[int64]string)}
}

func (r *memoryTechnicianRepository) SetName(_ context.Context, userID int64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[userID] = name
	return nil
}

func (r *memoryTechnicianRepository) Get(_ context.Context, userID int64) (*domain.Technician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.names[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &domain.Technician{UserID: userID, DisplayName: name, HasRecord: true}, nil
}

func (r *memoryTechnicianRepository) List(_ context.Context) ([]domain.Technician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Technician, 0, len(r.names))
	for id, name := range r.names {
		result = append(result, domain.Technician{UserID: id, DisplayName: name, HasRecord: true})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (r *memoryTechnicianRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names), nil
}

func (r *memoryTechnicianRepository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = make(map[int64]string)
	return nil
}

type memoryTicketHistoryRepository struct {
	mu      sync.Mutex
	entries []domain.TicketHistoryEntry
	seen    map[string]struct{}
}

// NewMemoryTicketHistoryRepository returns an empty in-memory audit trail.
func NewMemoryTicketHistoryRepository() TicketHistoryRepository {
	return &memoryTicketHistoryRepository{seen: make(map[string]struct{})}
}

func (r *memoryTicketHistoryRepository) Append(_ context.Context, entry *domain.TicketHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[entry.ID]; ok {
		return nil
	}
	r.seen[entry.ID] = struct{}{}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memoryTicketHistoryRepository) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.TicketHistoryEntry
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *memoryTicketHistoryRepository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.seen = make(map[string]struct{})
	return nil
}
