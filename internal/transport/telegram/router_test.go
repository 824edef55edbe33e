package telegram

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/config"
	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/events"
	"github.com/spec-kit/repairdesk/internal/messaging/messagingtest"
	"github.com/spec-kit/repairdesk/internal/observability"
	"github.com/spec-kit/repairdesk/internal/registry"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/service"
	"github.com/spec-kit/repairdesk/internal/session"
	"github.com/spec-kit/repairdesk/internal/worker"
)

const (
	managementChat int64 = -1000
	adminID        int64 = 1
	techID         int64 = 11
	reporterID     int64 = 500
)

type routerHarness struct {
	router   *Router
	channel  *messagingtest.Recorder
	tickets  repository.TicketRepository
	registry *registry.Registry
	fanout   *service.NotificationService
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	logger := zap.NewNop()
	tickets := repository.NewMemoryTicketRepository()
	reporters := repository.NewMemoryReporterRepository()
	technicians := repository.NewMemoryTechnicianRepository()
	reg := registry.NewStatic(map[string]string{"12": "Main St 4"}, []int64{techID}, logger)
	rec := messagingtest.NewRecorder()
	metrics := observability.NewMetrics()

	fanout := service.NewNotificationService(service.NotificationDependencies{
		Channel:          rec,
		TicketRepo:       tickets,
		Registry:         reg,
		Pool:             worker.NewPool(4, logger),
		Metrics:          metrics,
		Logger:           logger,
		ManagementChatID: managementChat,
	})
	engine := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:     tickets,
		TechnicianRepo: technicians,
		Registry:       reg,
		Notifier:       fanout,
		Dispatcher:     events.NewInMemoryDispatcher(logger),
		Metrics:        metrics,
		Logger:         logger,
	})
	intake := service.NewIntakeService(service.IntakeDependencies{
		Sessions:     session.NewMemoryStore(time.Hour, time.Hour),
		ReporterRepo: reporters,
		Registry:     reg,
		Creator:      engine,
		Channel:      rec,
		AdminIDs:     []int64{adminID},
		Logger:       logger,
	})
	admin := service.NewAdminService(service.AdminDependencies{
		TicketRepo:     tickets,
		ReporterRepo:   reporters,
		TechnicianRepo: technicians,
		Registry:       reg,
		Channel:        rec,
		Logger:         logger,
	})
	router := NewRouter(RouterDependencies{
		Engine:   engine,
		Intake:   intake,
		Admin:    admin,
		Channel:  rec,
		Telegram: config.TelegramConfig{AdminUserIDs: []int64{adminID}, ManagementChatID: managementChat},
		Logger:   logger,
	})
	return &routerHarness{router: router, channel: rec, tickets: tickets, registry: reg, fanout: fanout}
}

func textMessage(from int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, FirstName: "Maria"},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
	}
	if len(text) > 0 && text[0] == '/' {
		length := len(text)
		for i, r := range text {
			if r == ' ' {
				length = i
				break
			}
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	}
	return tgbotapi.Update{Message: msg}
}

func press(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "q-" + data,
		From:    &tgbotapi.User{ID: from, FirstName: "Ilya"},
		Message: &tgbotapi.Message{MessageID: 2, Chat: &tgbotapi.Chat{ID: from, Type: "private"}},
		Data:    data,
	}}
}

func (h *routerHarness) send(updates ...tgbotapi.Update) {
	for _, u := range updates {
		h.router.Handle(context.Background(), u)
	}
	h.fanout.Wait()
}

func (h *routerHarness) lastText(t *testing.T, chatID int64) string {
	t.Helper()
	call, ok := h.channel.Last(chatID)
	require.True(t, ok, "no message to %d", chatID)
	return call.Text
}

func (h *routerHarness) lastAnswer(t *testing.T) messagingtest.Call {
	t.Helper()
	answers := h.channel.Ops(messagingtest.OpAnswer)
	require.NotEmpty(t, answers)
	return answers[len(answers)-1]
}

func TestRouter_RegistrationToCompletion(t *testing.T) {
	h := newRouterHarness(t)

	h.send(
		textMessage(reporterID, "/start"),
		textMessage(reporterID, "Maria"),
		textMessage(reporterID, "12"),
		textMessage(reporterID, service.NewTicketLabel),
		textMessage(reporterID, "Scale"),
		textMessage(reporterID, "won't power on"),
		textMessage(reporterID, "high"),
		textMessage(reporterID, service.NoPhotoLabel),
	)

	ticket, err := h.tickets.GetByID(context.Background(), domain.FirstTicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCreated, ticket.Status)
	assert.Contains(t, h.lastText(t, managementChat), "Main St 4")

	h.send(press(techID, "claim:1001"))
	answer := h.lastAnswer(t)
	assert.False(t, answer.Alert)
	assert.Equal(t, "q-claim:1001", answer.ActionID)
	assert.Equal(t, "You are assigned to ticket #1001.", h.lastText(t, techID))

	h.send(press(techID, "done_1001"))
	assert.Equal(t, "Ticket #1001 is closed. Thank you!", h.lastText(t, techID))

	ticket, err = h.tickets.GetByID(context.Background(), domain.FirstTicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusDone, ticket.Status)
	assert.Equal(t, techID, ticket.ExecutorID)
}

func TestRouter_CallbackRejections(t *testing.T) {
	tests := []struct {
		name string
		from int64
		data string
		want string
	}{
		{name: "unknown token", from: techID, data: "explode:1", want: "Unknown action."},
		{name: "not a technician", from: 900, data: "claim:1001", want: "Technicians only."},
		{name: "missing ticket", from: techID, data: "claim:4242", want: "Ticket not found"},
		{name: "complete before claim", from: techID, data: "complete:1001", want: "Claim the ticket first (the Claim button)."},
		{name: "stranger cancels", from: 900, data: "cancel:1001", want: "Only the reporter can cancel this ticket."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newRouterHarness(t)
			h.send(
				textMessage(reporterID, "/start"),
				textMessage(reporterID, "Maria"),
				textMessage(reporterID, "12"),
				textMessage(reporterID, service.NewTicketLabel),
				textMessage(reporterID, "CCTV"),
				textMessage(reporterID, "dark"),
				textMessage(reporterID, "normal"),
				textMessage(reporterID, "no"),
			)
			h.channel.Reset()

			h.send(press(tc.from, tc.data))
			answer := h.lastAnswer(t)
			assert.True(t, answer.Alert)
			assert.Equal(t, tc.want, answer.Text)
			assert.Empty(t, h.channel.Ops(messagingtest.OpSendText), "rejections send nothing else")
		})
	}
}

func TestRouter_AdminCommands(t *testing.T) {
	t.Run("refused for non-admins", func(t *testing.T) {
		h := newRouterHarness(t)
		h.send(textMessage(reporterID, "/admin"))
		assert.Equal(t, "This command is available to administrators only.", h.lastText(t, reporterID))
	})

	t.Run("panel", func(t *testing.T) {
		h := newRouterHarness(t)
		h.send(textMessage(adminID, "/admin"))
		text := h.lastText(t, adminID)
		assert.Contains(t, text, "Admin panel")
		assert.Contains(t, text, "Technicians on roster: <b>1</b>")
	})

	t.Run("addtech by id", func(t *testing.T) {
		h := newRouterHarness(t)
		h.send(textMessage(adminID, "/addtech 42 Oleg (scales)"))
		assert.True(t, h.registry.Snapshot().IsTechnician(42))
		assert.Contains(t, h.lastText(t, adminID), "Oleg (scales)")

		h.send(textMessage(adminID, "/addtech oleg"))
		assert.Contains(t, h.lastText(t, adminID), "Usage")
	})

	t.Run("deltech unknown id", func(t *testing.T) {
		h := newRouterHarness(t)
		h.send(textMessage(adminID, "/deltech 77"))
		assert.Contains(t, h.lastText(t, adminID), "is not on the technician roster")
	})

	t.Run("settechname by reply", func(t *testing.T) {
		h := newRouterHarness(t)
		update := textMessage(adminID, "/settechname Ilya (cameras)")
		update.Message.ReplyToMessage = &tgbotapi.Message{From: &tgbotapi.User{ID: techID}}
		h.send(update)
		assert.Contains(t, h.lastText(t, adminID), "Ilya (cameras)")
	})

	t.Run("wipe needs confirmation", func(t *testing.T) {
		h := newRouterHarness(t)
		h.send(textMessage(adminID, "/wipe_db"))
		assert.Contains(t, h.lastText(t, adminID), "/wipe_db CONFIRM")
		h.send(textMessage(adminID, "/wipe_db CONFIRM"))
		assert.Contains(t, h.lastText(t, adminID), "Database wiped")
	})
}

func TestRouter_Messages(t *testing.T) {
	t.Run("unhandled text gets a hint", func(t *testing.T) {
		h := newRouterHarness(t)
		h.send(textMessage(reporterID, "hello?"))
		assert.Contains(t, h.lastText(t, reporterID), service.NewTicketLabel)
	})

	t.Run("unknown command", func(t *testing.T) {
		h := newRouterHarness(t)
		h.send(textMessage(reporterID, "/frobnicate"))
		assert.Equal(t, "Unknown command.", h.lastText(t, reporterID))
	})

	t.Run("group chats are ignored", func(t *testing.T) {
		h := newRouterHarness(t)
		update := textMessage(reporterID, "hello")
		update.Message.Chat = &tgbotapi.Chat{ID: managementChat, Type: "supergroup"}
		h.send(update)
		assert.Empty(t, h.channel.Calls())
	})
}

func TestRouter_RunStopsOnContextCancel(t *testing.T) {
	h := newRouterHarness(t)
	updates := make(chan tgbotapi.Update, 1)
	updates <- textMessage(reporterID, "hello?")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.router.Run(ctx, updates)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := h.channel.Last(reporterID)
		return ok
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("router did not stop")
	}
}
