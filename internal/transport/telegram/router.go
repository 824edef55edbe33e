package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/config"
	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/messaging"
	"github.com/spec-kit/repairdesk/internal/service"
	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

const failureNotice = "Something went wrong. Please try again later."

// Engine applies lifecycle events coming from buttons.
type Engine interface {
	Claim(ctx context.Context, ticketID int64, actor domain.Actor) (*service.Outcome, error)
	Complete(ctx context.Context, ticketID int64, actor domain.Actor) (*service.Outcome, error)
	Cancel(ctx context.Context, ticketID int64, actor domain.Actor) (*service.Outcome, error)
}

// Intake runs the reporter conversations.
type Intake interface {
	Start(ctx context.Context, in service.Inbound) error
	NewTicket(ctx context.Context, in service.Inbound) error
	Handle(ctx context.Context, in service.Inbound) (bool, error)
}

// Router dispatches updates: button presses to the engine, commands to the
// admin surface and everything else to the intake conversation.
type Router struct {
	engine   Engine
	intake   Intake
	admin    *service.AdminService
	channel  messaging.Channel
	telegram config.TelegramConfig
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// RouterDependencies bundles collaborators for the router.
type RouterDependencies struct {
	Engine   Engine
	Intake   Intake
	Admin    *service.AdminService
	Channel  messaging.Channel
	Telegram config.TelegramConfig
	Logger   *zap.Logger
}

// NewRouter constructs the router.
func NewRouter(deps RouterDependencies) *Router {
	return &Router{
		engine:   deps.Engine,
		intake:   deps.Intake,
		admin:    deps.Admin,
		channel:  deps.Channel,
		telegram: deps.Telegram,
		logger:   deps.Logger,
	}
}

// Run handles every update on its own goroutine until ctx is done or the
// channel closes, then waits for handlers still running.
func (r *Router) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer r.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.Handle(ctx, update)
			}()
		}
	}
}

// Handle processes one update. Panics are logged and swallowed.
func (r *Router) Handle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("update handler panicked", zap.Int("update_id", update.UpdateID), zap.Any("panic", rec))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		r.handleMessage(ctx, update.Message)
	}
}

func (r *Router) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}
	action, err := messaging.ParseAction(query.Data)
	if err != nil {
		r.logger.Debug("unknown callback", zap.String("data", query.Data), zap.Int64("user_id", query.From.ID))
		r.answer(ctx, query.ID, "Unknown action.", true)
		return
	}

	actor := domain.Actor{ID: query.From.ID, PlatformName: displayName(query.From)}
	var outcome *service.Outcome
	switch action.Kind {
	case messaging.ActionClaim:
		outcome, err = r.engine.Claim(ctx, action.TicketID, actor)
	case messaging.ActionComplete:
		outcome, err = r.engine.Complete(ctx, action.TicketID, actor)
	case messaging.ActionCancel:
		outcome, err = r.engine.Cancel(ctx, action.TicketID, actor)
	}
	if err != nil {
		text := failureNotice
		if apperrors.IsRejection(err) {
			text = apperrors.ToDomainError(err).Message
		} else {
			r.logger.Error("lifecycle event failed",
				zap.String("action", string(action.Kind)),
				zap.Int64("ticket_id", action.TicketID),
				zap.Int64("user_id", actor.ID),
				zap.Error(err))
		}
		r.answer(ctx, query.ID, text, true)
		return
	}

	r.answer(ctx, query.ID, outcome.Message, false)
	if !outcome.Changed || query.Message == nil || query.Message.Chat == nil {
		return
	}
	var ack string
	switch action.Kind {
	case messaging.ActionClaim:
		ack = fmt.Sprintf("You are assigned to ticket #%d.", action.TicketID)
	case messaging.ActionComplete:
		ack = fmt.Sprintf("Ticket #%d is closed. Thank you!", action.TicketID)
	default:
		return
	}
	if _, err := r.channel.SendText(ctx, query.Message.Chat.ID, ack, nil); err != nil {
		r.logger.Warn("technician acknowledgement failed", zap.Int64("recipient", query.Message.Chat.ID), zap.Error(err))
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	in := service.Inbound{
		UserID:       msg.From.ID,
		ChatID:       msg.Chat.ID,
		PlatformName: displayName(msg.From),
		Text:         msg.Text,
		Caption:      msg.Caption,
		PhotoRef:     largestPhoto(msg.Photo),
		BatchID:      msg.MediaGroupID,
	}

	var err error
	switch {
	case msg.IsCommand():
		err = r.command(ctx, msg, in)
	case strings.TrimSpace(msg.Text) == service.NewTicketLabel:
		err = r.intake.NewTicket(ctx, in)
	default:
		var handled bool
		handled, err = r.intake.Handle(ctx, in)
		if err == nil && !handled {
			err = r.reply(ctx, in.ChatID, fmt.Sprintf("Press \"%s\" to report a problem, or send /start to register.", service.NewTicketLabel))
		}
	}
	if err != nil {
		r.logger.Error("message handling failed", zap.Int64("user_id", in.UserID), zap.Error(err))
		_ = r.reply(ctx, in.ChatID, failureNotice)
	}
}

func (r *Router) command(ctx context.Context, msg *tgbotapi.Message, in service.Inbound) error {
	name := msg.Command()
	if name == "start" {
		return r.intake.Start(ctx, in)
	}
	handler, ok := adminCommands[name]
	if !ok {
		return r.reply(ctx, in.ChatID, "Unknown command.")
	}
	if !r.telegram.IsAdmin(in.UserID) {
		return r.reply(ctx, in.ChatID, "This command is available to administrators only.")
	}
	return handler(ctx, r, commandCall{
		chatID:  in.ChatID,
		args:    strings.TrimSpace(msg.CommandArguments()),
		replyTo: msg.ReplyToMessage,
	})
}

func (r *Router) answer(ctx context.Context, queryID, text string, alert bool) {
	if err := r.channel.AnswerAction(ctx, queryID, text, alert); err != nil {
		r.logger.Warn("callback answer failed", zap.Error(err))
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) error {
	_, err := r.channel.SendText(ctx, chatID, text, nil)
	return err
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.UserName
}

// largestPhoto picks the last size, which Telegram orders largest.
func largestPhoto(sizes []tgbotapi.PhotoSize) string {
	if len(sizes) == 0 {
		return ""
	}
	return sizes[len(sizes)-1].FileID
}
