package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/service"
	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

type commandCall struct {
	chatID  int64
	args    string
	replyTo *tgbotapi.Message
}

// target is the author of the message the command replies to, if any.
func (c commandCall) target() *tgbotapi.User {
	if c.replyTo == nil {
		return nil
	}
	return c.replyTo.From
}

type commandHandler func(ctx context.Context, r *Router, call commandCall) error

var adminCommands map[string]commandHandler

func init() {
	adminCommands = map[string]commandHandler{
		"admin":       cmdAdmin,
		"list_users":  cmdListUsers,
		"list_techs":  cmdListTechs,
		"addtech":     cmdAddTech,
		"deltech":     cmdDelTech,
		"reloadtechs": cmdReloadTechs,
		"setusername": cmdSetUserName,
		"settechname": cmdSetTechName,
		"deluser":     cmdDelUser,
		"broadcast":   cmdBroadcast,
		"wipe_db":     cmdWipe,
	}
}

const adminHelp = "Admin commands:\n" +
	"• /list_users – recent registrations\n" +
	"• /list_techs – technicians\n" +
	"• /addtech – add a technician (reply, or /addtech &lt;id&gt; [name])\n" +
	"• /deltech – remove a technician from the roster\n" +
	"• /reloadtechs – re-read the roster file\n" +
	"• /setusername – rename a reporter (reply)\n" +
	"• /settechname – name a technician (reply)\n" +
	"• /deluser – delete a reporter (reply)\n" +
	"• /broadcast text – announce to all reporters\n" +
	"• /wipe_db CONFIRM – <b>wipe the whole database</b>\n"

func cmdAdmin(ctx context.Context, r *Router, call commandCall) error {
	stats, err := r.admin.Stats(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("🛠 <b>Admin panel</b>\n\n"+
		"Reporters: <b>%d</b>\n"+
		"Named technicians: <b>%d</b>\n"+
		"Technicians on roster: <b>%d</b>\n"+
		"Tickets total: <b>%d</b>\n"+
		" • created: <b>%d</b>\n"+
		" • in progress: <b>%d</b>\n"+
		" • done: <b>%d</b>\n"+
		" • cancelled by reporter: <b>%d</b>\n\n%s",
		stats.Reporters, stats.NamedTechnicians, stats.RosterSize, stats.TicketsTotal,
		stats.Tickets[domain.TicketStatusCreated],
		stats.Tickets[domain.TicketStatusInProgress],
		stats.Tickets[domain.TicketStatusDone],
		stats.Tickets[domain.TicketStatusCancelledByUser],
		adminHelp)
	return r.reply(ctx, call.chatID, text)
}

func cmdListUsers(ctx context.Context, r *Router, call commandCall) error {
	reporters, err := r.admin.RecentReporters(ctx)
	if err != nil {
		return err
	}
	if len(reporters) == 0 {
		return r.reply(ctx, call.chatID, "No reporters registered yet.")
	}
	var b strings.Builder
	b.WriteString("👥 <b>Recent registrations:</b>\n")
	for _, p := range reporters {
		fmt.Fprintf(&b, "• <code>%d</code> %s, store #%s, %s\n",
			p.UserID, html.EscapeString(p.DisplayName), html.EscapeString(p.LocationID),
			p.RegisteredAt.Format("2006-01-02 15:04"))
	}
	return r.reply(ctx, call.chatID, b.String())
}

func cmdListTechs(ctx context.Context, r *Router, call commandCall) error {
	techs, err := r.admin.Technicians(ctx)
	if err != nil {
		return err
	}
	if len(techs) == 0 {
		return r.reply(ctx, call.chatID, "No technicians configured yet.")
	}
	var b strings.Builder
	b.WriteString("🧑‍🔧 <b>Technicians:</b>\n")
	for _, t := range techs {
		mark := "✅"
		if !t.InRoster {
			mark = "⚠️"
		}
		name := html.EscapeString(t.DisplayName)
		if !t.HasRecord || name == "" {
			name = "no name (use /settechname)"
		}
		fmt.Fprintf(&b, "%s <code>%d</code> %s\n", mark, t.UserID, name)
	}
	return r.reply(ctx, call.chatID, b.String())
}

func cmdAddTech(ctx context.Context, r *Router, call commandCall) error {
	var (
		userID int64
		name   string
	)
	if target := call.target(); target != nil {
		userID = target.ID
		name = call.args
		if name == "" {
			name = displayName(target)
		}
	} else {
		idPart, rest, _ := strings.Cut(call.args, " ")
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil || id <= 0 {
			return r.reply(ctx, call.chatID, "Usage: reply to the technician with <code>/addtech [name]</code>\n"+
				"or send <code>/addtech 123456789 [name]</code>.")
		}
		userID, name = id, strings.TrimSpace(rest)
	}

	if _, err := r.admin.AddTechnician(ctx, userID, name); err != nil {
		return rejectionReply(ctx, r, call, err)
	}
	shown := html.EscapeString(name)
	if shown == "" {
		shown = "not set"
	}
	stats, err := r.admin.Stats(ctx)
	if err != nil {
		return err
	}
	return r.reply(ctx, call.chatID, fmt.Sprintf("Technician added.\nID: <code>%d</code>\nName: <b>%s</b>\nOn roster: <b>%d</b>",
		userID, shown, stats.RosterSize))
}

func cmdDelTech(ctx context.Context, r *Router, call commandCall) error {
	var userID int64
	if target := call.target(); target != nil {
		userID = target.ID
	} else {
		id, err := strconv.ParseInt(call.args, 10, 64)
		if err != nil || id <= 0 {
			return r.reply(ctx, call.chatID, "Give the technician id or reply to their message.\nExample: <code>/deltech 123456789</code>")
		}
		userID = id
	}
	if err := r.admin.RemoveTechnician(ctx, userID); err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return r.reply(ctx, call.chatID, fmt.Sprintf("ID <code>%d</code> is not on the technician roster.", userID))
		}
		return err
	}
	return r.reply(ctx, call.chatID, fmt.Sprintf("ID <code>%d</code> removed from the roster.\nTheir stored name is kept.", userID))
}

func cmdReloadTechs(ctx context.Context, r *Router, call commandCall) error {
	n, err := r.admin.ReloadRoster(ctx)
	if err != nil {
		return err
	}
	return r.reply(ctx, call.chatID, fmt.Sprintf("Roster re-read from file.\nTechnicians on roster: <b>%d</b>", n))
}

func cmdSetUserName(ctx context.Context, r *Router, call commandCall) error {
	target := call.target()
	if target == nil || call.args == "" {
		return r.reply(ctx, call.chatID, "Reply to the reporter's message with <code>/setusername Name</code>.")
	}
	if err := r.admin.SetReporterName(ctx, target.ID, call.args); err != nil {
		return rejectionReply(ctx, r, call, err)
	}
	return r.reply(ctx, call.chatID, fmt.Sprintf("Reporter <code>%d</code> is now called <b>%s</b>.", target.ID, html.EscapeString(call.args)))
}

func cmdSetTechName(ctx context.Context, r *Router, call commandCall) error {
	target := call.target()
	if target == nil || call.args == "" {
		return r.reply(ctx, call.chatID, "Reply to the technician's message with <code>/settechname Name</code>.")
	}
	if err := r.admin.SetTechnicianName(ctx, target.ID, call.args); err != nil {
		return rejectionReply(ctx, r, call, err)
	}
	return r.reply(ctx, call.chatID, fmt.Sprintf("Technician <code>%d</code> is now called <b>%s</b>.", target.ID, html.EscapeString(call.args)))
}

func cmdDelUser(ctx context.Context, r *Router, call commandCall) error {
	target := call.target()
	if target == nil {
		return r.reply(ctx, call.chatID, "Reply to the message of the reporter you want to delete.")
	}
	if err := r.admin.DeleteReporter(ctx, target.ID); err != nil {
		return rejectionReply(ctx, r, call, err)
	}
	return r.reply(ctx, call.chatID, fmt.Sprintf("Reporter <code>%d</code> deleted.\nTheir tickets are kept.", target.ID))
}

func cmdBroadcast(ctx context.Context, r *Router, call commandCall) error {
	if call.args == "" {
		return r.reply(ctx, call.chatID, "Add the announcement text.\n\nExample:\n<code>/broadcast Internet maintenance tomorrow 9:00-10:00.</code>")
	}
	report, err := r.admin.Broadcast(ctx, call.args)
	if err != nil {
		return rejectionReply(ctx, r, call, err)
	}
	if report.Sent+report.Failed == 0 {
		return r.reply(ctx, call.chatID, "There are no reporters to announce to.")
	}
	return r.reply(ctx, call.chatID, fmt.Sprintf("Announcement sent.\nDelivered: <b>%d</b>\nFailed: <b>%d</b>", report.Sent, report.Failed))
}

func cmdWipe(ctx context.Context, r *Router, call commandCall) error {
	if err := r.admin.Wipe(ctx, call.args); err != nil {
		if apperrors.HasCode(err, apperrors.CodeValidation) {
			return r.reply(ctx, call.chatID, "⚠️ <b>Warning!</b>\n\n"+
				"/wipe_db deletes every ticket, reporter and technician name. It cannot be undone.\n\n"+
				"If you are sure, send:\n<code>/wipe_db "+service.WipeConfirmation+"</code>")
		}
		return err
	}
	return r.reply(ctx, call.chatID, "Database wiped. All tickets, reporters and technician names are gone.")
}

// rejectionReply shows expected refusals to the admin and passes failures up.
func rejectionReply(ctx context.Context, r *Router, call commandCall, err error) error {
	if !apperrors.IsRejection(err) {
		return err
	}
	return r.reply(ctx, call.chatID, html.EscapeString(apperrors.ToDomainError(err).Message))
}
