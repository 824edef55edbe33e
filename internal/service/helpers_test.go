package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/events"
	"github.com/spec-kit/repairdesk/internal/messaging"
	"github.com/spec-kit/repairdesk/internal/messaging/messagingtest"
	"github.com/spec-kit/repairdesk/internal/observability"
	"github.com/spec-kit/repairdesk/internal/registry"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/worker"
)

const (
	managementChat int64 = -1000
	techA          int64 = 11
	techB          int64 = 12
	reporterID     int64 = 500
	strangerID     int64 = 900
	adminID        int64 = 1
)

type harness struct {
	tickets     repository.TicketRepository
	reporters   repository.ReporterRepository
	technicians repository.TechnicianRepository
	history     repository.TicketHistoryRepository
	registry    *registry.Registry
	channel     *messagingtest.Recorder
	fanout      *NotificationService
	engine      *LifecycleService
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics

	mu        sync.Mutex
	published []events.Event
}

// newHarness builds the services over in-memory stores. Wrappers decorate the
// channel the fanout delivers through; assertions still read the recorder.
func newHarness(t *testing.T, wrap ...func(messaging.Channel) messaging.Channel) *harness {
	t.Helper()
	logger := zap.NewNop()
	h := &harness{
		tickets:     repository.NewMemoryTicketRepository(),
		reporters:   repository.NewMemoryReporterRepository(),
		technicians: repository.NewMemoryTechnicianRepository(),
		history:     repository.NewMemoryTicketHistoryRepository(),
		registry:    registry.NewStatic(map[string]string{"12": "Main St 4"}, []int64{techA, techB}, logger),
		channel:     messagingtest.NewRecorder(),
		dispatcher:  events.NewInMemoryDispatcher(logger),
		metrics:     observability.NewMetrics(),
	}
	events.SubscribeAll(h.dispatcher, func(_ context.Context, e events.Event) error {
		h.mu.Lock()
		h.published = append(h.published, e)
		h.mu.Unlock()
		return nil
	})
	events.SubscribeAll(h.dispatcher, events.NewHistorySink(h.history))
	var channel messaging.Channel = h.channel
	for _, w := range wrap {
		channel = w(channel)
	}
	h.fanout = NewNotificationService(NotificationDependencies{
		Channel:          channel,
		TicketRepo:       h.tickets,
		Registry:         h.registry,
		Pool:             worker.NewPool(4, logger),
		Metrics:          h.metrics,
		Logger:           logger,
		ManagementChatID: managementChat,
	})
	h.engine = NewLifecycleService(LifecycleDependencies{
		TicketRepo:     h.tickets,
		TechnicianRepo: h.technicians,
		Registry:       h.registry,
		Notifier:       h.fanout,
		Dispatcher:     h.dispatcher,
		Metrics:        h.metrics,
		Logger:         logger,
	})
	return h
}

func (h *harness) reporter() *domain.ReporterProfile {
	return &domain.ReporterProfile{UserID: reporterID, DisplayName: "Maria", LocationID: "12"}
}

func (h *harness) create(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := h.engine.Create(context.Background(), h.reporter(), domain.TicketRequest{
		Equipment:   domain.EquipmentScale,
		Description: "won't power on",
		Urgency:     domain.UrgencyHigh,
	})
	require.NoError(t, err)
	h.fanout.Wait()
	return ticket
}

func (h *harness) stored(t *testing.T, id int64) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func actor(id int64, name string) domain.Actor {
	return domain.Actor{ID: id, PlatformName: name}
}
