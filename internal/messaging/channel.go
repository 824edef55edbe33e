// Package messaging defines the outbound contract the core uses to reach
// people, independent of the chat platform carrying the messages.
package messaging

import (
	"context"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// Button is either an action button carrying a token or a link button.
type Button struct {
	Label  string
	Action string
	URL    string
}

// Controls attach to a message. Inline buttons ride on the message itself;
// Keyboard replaces the recipient's reply keyboard with fixed choices.
type Controls struct {
	Inline         [][]Button
	Keyboard       [][]string
	RemoveKeyboard bool
}

// InlineRow is a convenience for a single row of inline buttons.
func InlineRow(buttons ...Button) *Controls {
	return &Controls{Inline: [][]Button{buttons}}
}

// Keyboard builds reply-keyboard controls from rows of labels.
func Keyboard(rows ...[]string) *Controls {
	return &Controls{Keyboard: rows}
}

// RemoveKeyboard hides any reply keyboard the recipient currently has.
func RemoveKeyboard() *Controls {
	return &Controls{RemoveKeyboard: true}
}

// Channel sends and edits messages. Edit methods return an error when the
// platform refuses the edit, for instance because the target message is an
// image and only its caption can change.
type Channel interface {
	SendText(ctx context.Context, chatID int64, text string, controls *Controls) (domain.MessageRef, error)
	SendImage(ctx context.Context, chatID int64, imageRef, caption string, controls *Controls) (domain.MessageRef, error)
	EditText(ctx context.Context, ref domain.MessageRef, text string, controls *Controls) error
	EditCaption(ctx context.Context, ref domain.MessageRef, caption string, controls *Controls) error
	RemoveControls(ctx context.Context, ref domain.MessageRef) error
	// AnswerAction acknowledges a button press. With alert set the text is
	// shown as a modal rather than a transient notice.
	AnswerAction(ctx context.Context, actionID, text string, alert bool) error
}
