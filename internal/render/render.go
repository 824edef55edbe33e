// Package render produces the canonical HTML text of a ticket and the
// controls attached to each copy of it.
package render

import (
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/messaging"
)

// AddressBook resolves a location id to its street address.
type AddressBook interface {
	Address(locationID string) (string, bool)
}

const (
	defaultReporterLabel = "Reporter"
	defaultTechLabel     = "Technician"
)

// UserLink renders a mention of a platform user.
func UserLink(userID int64, name string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, ProfileURL(userID), html.EscapeString(name))
}

// ProfileURL opens a chat with the user.
func ProfileURL(userID int64) string {
	return "tg://user?id=" + strconv.FormatInt(userID, 10)
}

// StatusLabel is the human form of a status, naming the executor when set.
func StatusLabel(t *domain.Ticket) string {
	switch t.Status {
	case domain.TicketStatusCreated:
		return "Created"
	case domain.TicketStatusInProgress:
		return withExecutor("In progress", t)
	case domain.TicketStatusDone:
		return withExecutor("Done", t)
	case domain.TicketStatusCancelledByUser:
		return "Cancelled by reporter"
	default:
		return html.EscapeString(string(t.Status))
	}
}

func withExecutor(label string, t *domain.Ticket) string {
	if t.ExecutorName == "" {
		return label
	}
	if !t.HasExecutor() {
		return label + " " + html.EscapeString(t.ExecutorName)
	}
	return label + " " + UserLink(t.ExecutorID, t.ExecutorName)
}

// AddressBlock renders the address and map links, or "" when the location
// has no known address.
func AddressBlock(locationID string, book AddressBook) string {
	if book == nil || locationID == "" {
		return ""
	}
	address, ok := book.Address(locationID)
	if !ok {
		return ""
	}
	q := url.QueryEscape(address)
	links := []string{
		mapLink("Yandex", "https://yandex.ru/maps/?text="+q),
		mapLink("2GIS", "https://2gis.ru/search/"+q),
		mapLink("Google", "https://maps.google.com/?q="+q),
	}
	return fmt.Sprintf("<b>Address:</b> %s\nOpen in: %s\n",
		html.EscapeString(address), strings.Join(links, " | "))
}

func mapLink(label, href string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), label)
}

// Ticket renders the canonical text shared by every copy of a ticket.
func Ticket(t *domain.Ticket, book AddressBook) string {
	reporter := t.ReporterName
	if reporter == "" {
		reporter = defaultReporterLabel
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#%d\n", t.ID)
	fmt.Fprintf(&b, "<b>Location:</b> %s / %s\n", html.EscapeString(t.LocationID), UserLink(t.ReporterID, reporter))
	b.WriteString(AddressBlock(t.LocationID, book))
	fmt.Fprintf(&b, "<b>Equipment:</b> %s\n", html.EscapeString(t.Equipment))
	fmt.Fprintf(&b, "<b>Description:</b> %s\n", html.EscapeString(t.Description))
	fmt.Fprintf(&b, "<b>Urgency:</b> %s\n", t.Urgency)
	fmt.Fprintf(&b, "<b>Status:</b> %s\n", StatusLabel(t))
	return b.String()
}

// TechnicianControls go on each technician's copy.
func TechnicianControls(t *domain.Ticket) *messaging.Controls {
	return &messaging.Controls{Inline: [][]messaging.Button{
		{
			{Label: "Claim", Action: messaging.Action{Kind: messaging.ActionClaim, TicketID: t.ID}.Token()},
			{Label: "Complete", Action: messaging.Action{Kind: messaging.ActionComplete, TicketID: t.ID}.Token()},
		},
		{
			{Label: "Contact reporter", URL: ProfileURL(t.ReporterID)},
		},
	}}
}

// ManagementControls go on the management copy; it carries no actions.
func ManagementControls(t *domain.Ticket) *messaging.Controls {
	return messaging.InlineRow(messaging.Button{Label: defaultReporterLabel, URL: ProfileURL(t.ReporterID)})
}

// ReporterControls carry the reporter's cancel button.
func ReporterControls(t *domain.Ticket) *messaging.Controls {
	return messaging.InlineRow(messaging.Button{
		Label:  "Cancel ticket",
		Action: messaging.Action{Kind: messaging.ActionCancel, TicketID: t.ID}.Token(),
	})
}

// ClaimedNotice tells the reporter who took the ticket.
func ClaimedNotice(t *domain.Ticket) string {
	return fmt.Sprintf("Your ticket #%d has been taken.\nTechnician: %s.\n\n"+
		"If there are new details, reply to this message.",
		t.ID, UserLink(t.ExecutorID, t.ExecutorName))
}

// CompletedNotice tells the reporter the ticket is closed.
func CompletedNotice(t *domain.Ticket) string {
	return fmt.Sprintf("Your ticket #%d is marked as done.\nTechnician: %s.\n"+
		"If the problem persists, create a new ticket or reply to the technician.",
		t.ID, UserLink(t.ExecutorID, t.ExecutorName))
}

// CancelledNotice tells the executor the reporter withdrew the ticket.
func CancelledNotice(t *domain.Ticket) string {
	return fmt.Sprintf("Ticket #%d was cancelled by the reporter.", t.ID)
}
