package messaging

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ActionKind is the verb carried by a button token.
type ActionKind string

const (
	ActionClaim    ActionKind = "claim"
	ActionComplete ActionKind = "complete"
	ActionCancel   ActionKind = "cancel"
)

// ErrUnknownAction is returned for tokens this service did not issue.
var ErrUnknownAction = errors.New("unknown action token")

// Action is a decoded button token.
type Action struct {
	Kind     ActionKind
	TicketID int64
}

// Token encodes the action as `<kind>:<ticket id>`.
func (a Action) Token() string {
	return string(a.Kind) + ":" + strconv.FormatInt(a.TicketID, 10)
}

// legacyPrefixes maps tokens found on messages sent by earlier deployments.
var legacyPrefixes = []struct {
	prefix string
	kind   ActionKind
}{
	{"user_cancel_", ActionCancel},
	{"take_", ActionClaim},
	{"done_", ActionComplete},
}

// ParseAction decodes a button token.
func ParseAction(token string) (Action, error) {
	kind, rawID, ok := strings.Cut(token, ":")
	if !ok {
		for _, legacy := range legacyPrefixes {
			if rest, found := strings.CutPrefix(token, legacy.prefix); found {
				kind, rawID, ok = string(legacy.kind), rest, true
				break
			}
		}
	}
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, token)
	}

	switch ActionKind(kind) {
	case ActionClaim, ActionComplete, ActionCancel:
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, token)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, token)
	}
	return Action{Kind: ActionKind(kind), TicketID: id}, nil
}
