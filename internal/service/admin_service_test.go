package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/repository"
	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

func newAdmin(h *harness) *AdminService {
	return NewAdminService(AdminDependencies{
		TicketRepo:     h.tickets,
		ReporterRepo:   h.reporters,
		TechnicianRepo: h.technicians,
		HistoryRepo:    h.history,
		Registry:       h.registry,
		Channel:        h.channel,
		Logger:         zap.NewNop(),
	})
}

func TestAdmin_Stats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin := newAdmin(h)

	first := h.create(t)
	h.create(t)
	_, err := h.engine.Claim(ctx, first.ID, actor(techA, "Ilya"))
	require.NoError(t, err)
	require.NoError(t, h.reporters.Upsert(ctx, h.reporter()))
	require.NoError(t, h.technicians.SetName(ctx, techA, "Ilya (cameras)"))

	stats, err := admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reporters)
	assert.Equal(t, 1, stats.NamedTechnicians)
	assert.Equal(t, 2, stats.RosterSize)
	assert.Equal(t, 2, stats.TicketsTotal)
	assert.Equal(t, 1, stats.Tickets[domain.TicketStatusCreated])
	assert.Equal(t, 1, stats.Tickets[domain.TicketStatusInProgress])
	assert.Equal(t, 0, stats.Tickets[domain.TicketStatusDone])
}

func TestAdmin_Technicians(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin := newAdmin(h)

	require.NoError(t, h.technicians.SetName(ctx, techB, "Vasya"))
	require.NoError(t, h.technicians.SetName(ctx, 77, "Former tech"))

	list, err := admin.Technicians(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, domain.Technician{UserID: techB, DisplayName: "Vasya", InRoster: true, HasRecord: true}, list[0])
	assert.Equal(t, domain.Technician{UserID: 77, DisplayName: "Former tech", InRoster: false, HasRecord: true}, list[1])
	assert.Equal(t, domain.Technician{UserID: techA, InRoster: true}, list[2])
}

func TestAdmin_RosterEdits(t *testing.T) {
	ctx := context.Background()

	t.Run("add with name", func(t *testing.T) {
		h := newHarness(t)
		admin := newAdmin(h)

		added, err := admin.AddTechnician(ctx, 42, "Oleg")
		require.NoError(t, err)
		assert.True(t, added)
		assert.True(t, h.registry.Snapshot().IsTechnician(42))

		tech, err := h.technicians.Get(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "Oleg", tech.DisplayName)

		added, err = admin.AddTechnician(ctx, 42, "")
		require.NoError(t, err)
		assert.False(t, added)
	})

	t.Run("add rejects bad id", func(t *testing.T) {
		h := newHarness(t)
		_, err := newAdmin(h).AddTechnician(ctx, 0, "x")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	})

	t.Run("remove keeps name", func(t *testing.T) {
		h := newHarness(t)
		admin := newAdmin(h)
		require.NoError(t, h.technicians.SetName(ctx, techA, "Ilya"))

		require.NoError(t, admin.RemoveTechnician(ctx, techA))
		assert.False(t, h.registry.Snapshot().IsTechnician(techA))
		_, err := h.technicians.Get(ctx, techA)
		assert.NoError(t, err)

		err = admin.RemoveTechnician(ctx, techA)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	})

	t.Run("name requires roster membership", func(t *testing.T) {
		h := newHarness(t)
		admin := newAdmin(h)

		err := admin.SetTechnicianName(ctx, strangerID, "Nobody")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

		require.NoError(t, admin.SetTechnicianName(ctx, techA, "Ilya"))
		assert.Equal(t, "Ilya", h.engine.TechnicianName(ctx, actor(techA, "platform")))
	})
}

func TestAdmin_Reporters(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin := newAdmin(h)
	require.NoError(t, h.reporters.Upsert(ctx, h.reporter()))

	require.NoError(t, admin.SetReporterName(ctx, reporterID, "Masha"))
	profile, err := h.reporters.Get(ctx, reporterID)
	require.NoError(t, err)
	assert.Equal(t, "Masha", profile.DisplayName)
	assert.Equal(t, "12", profile.LocationID)

	assert.True(t, apperrors.HasCode(admin.SetReporterName(ctx, reporterID, "  "), apperrors.CodeValidation))

	ticket := h.create(t)
	require.NoError(t, admin.DeleteReporter(ctx, reporterID))
	_, err = h.reporters.Get(ctx, reporterID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	h.stored(t, ticket.ID)

	assert.True(t, apperrors.HasCode(admin.DeleteReporter(ctx, reporterID), apperrors.CodeNotFound))
}

func TestAdmin_RecentReportersLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for i := int64(1); i <= 20; i++ {
		require.NoError(t, h.reporters.Upsert(ctx, &domain.ReporterProfile{UserID: 1000 + i, DisplayName: "r", LocationID: "12"}))
	}
	list, err := newAdmin(h).RecentReporters(ctx)
	require.NoError(t, err)
	assert.Len(t, list, RecentReportersLimit)
}

func TestAdmin_Broadcast(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin := newAdmin(h)
	for _, id := range []int64{501, 502, 503} {
		require.NoError(t, h.reporters.Upsert(ctx, &domain.ReporterProfile{UserID: id, DisplayName: "r", LocationID: "12"}))
	}
	h.channel.FailChat(502)

	report, err := admin.Broadcast(ctx, "Internet maintenance at 9:00")
	require.NoError(t, err)
	assert.Equal(t, &BroadcastReport{Sent: 2, Failed: 1}, report)

	last, ok := h.channel.Last(501)
	require.True(t, ok)
	assert.Equal(t, AnnouncementPrefix+"Internet maintenance at 9:00", last.Text)

	_, err = admin.Broadcast(ctx, " ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestAdmin_TicketHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin := newAdmin(h)
	ticket := h.create(t)
	_, err := h.engine.Claim(ctx, ticket.ID, actor(techA, "Ilya"))
	require.NoError(t, err)
	_, err = h.engine.Complete(ctx, ticket.ID, actor(techA, "Ilya"))
	require.NoError(t, err)
	h.fanout.Wait()

	entries, err := admin.TicketHistory(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "ticket_created", entries[0].EventType)
	assert.Equal(t, "ticket_claimed", entries[1].EventType)
	assert.Equal(t, "ticket_completed", entries[2].EventType)
	assert.Equal(t, techA, entries[2].ActorID)

	_, err = admin.TicketHistory(ctx, 4242)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAdmin_Wipe(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin := newAdmin(h)
	require.NoError(t, h.reporters.Upsert(ctx, h.reporter()))
	require.NoError(t, h.technicians.SetName(ctx, techA, "Ilya"))
	ticket := h.create(t)

	for _, token := range []string{"", "confirm", "yes"} {
		assert.ErrorIs(t, admin.Wipe(ctx, token), ErrWipeNotConfirmed)
	}
	h.stored(t, ticket.ID)

	require.NoError(t, admin.Wipe(ctx, WipeConfirmation))
	stats, err := admin.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Reporters)
	assert.Zero(t, stats.NamedTechnicians)
	assert.Zero(t, stats.TicketsTotal)
	assert.Equal(t, 2, stats.RosterSize, "roster survives a wipe")
	entries, err := h.history.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
