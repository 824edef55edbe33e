// Package messagingtest provides a recording messaging.Channel for tests.
package messagingtest

import (
	"context"
	"errors"
	"sync"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/messaging"
)

// ErrRefused is returned by scripted failures.
var ErrRefused = errors.New("recipient refused delivery")

// Op names a recorded channel call.
type Op string

const (
	OpSendText       Op = "send_text"
	OpSendImage      Op = "send_image"
	OpEditText       Op = "edit_text"
	OpEditCaption    Op = "edit_caption"
	OpRemoveControls Op = "remove_controls"
	OpAnswer         Op = "answer"
)

// Call is one recorded interaction.
type Call struct {
	Op       Op
	ChatID   int64
	Ref      domain.MessageRef
	Text     string
	ImageRef string
	Controls *messaging.Controls
	ActionID string
	Alert    bool
}

// Recorder records every call and can be told to fail per chat or per op.
type Recorder struct {
	mu          sync.Mutex
	calls       []Call
	nextID      int
	failChats   map[int64]bool
	failOps     map[Op]bool
	failImageOn map[Op]bool
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		failChats:   map[int64]bool{},
		failOps:     map[Op]bool{},
		failImageOn: map[Op]bool{},
	}
}

// FailChat makes every delivery to chatID fail.
func (r *Recorder) FailChat(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failChats[chatID] = true
}

// FailOp makes every call of op fail.
func (r *Recorder) FailOp(op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOps[op] = true
}

// RejectTextEditsOnImages mimics platforms that refuse text edits of image
// messages and caption edits of text messages.
func (r *Recorder) RejectTextEditsOnImages() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failImageOn[OpEditText] = true
	r.failImageOn[OpEditCaption] = true
}

func (r *Recorder) record(call Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.failChats[call.ChatID] || r.failOps[call.Op] {
		return ErrRefused
	}
	if call.Op == OpEditText && r.failImageOn[OpEditText] && call.Ref.HasImage {
		return ErrRefused
	}
	if call.Op == OpEditCaption && r.failImageOn[OpEditCaption] && !call.Ref.HasImage {
		return ErrRefused
	}
	return nil
}

func (r *Recorder) newRef(chatID int64, image bool) domain.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return domain.MessageRef{ChatID: chatID, MessageID: r.nextID, HasImage: image}
}

func (r *Recorder) SendText(_ context.Context, chatID int64, text string, controls *messaging.Controls) (domain.MessageRef, error) {
	if err := r.record(Call{Op: OpSendText, ChatID: chatID, Text: text, Controls: controls}); err != nil {
		return domain.MessageRef{}, err
	}
	return r.newRef(chatID, false), nil
}

func (r *Recorder) SendImage(_ context.Context, chatID int64, imageRef, caption string, controls *messaging.Controls) (domain.MessageRef, error) {
	if err := r.record(Call{Op: OpSendImage, ChatID: chatID, ImageRef: imageRef, Text: caption, Controls: controls}); err != nil {
		return domain.MessageRef{}, err
	}
	return r.newRef(chatID, true), nil
}

func (r *Recorder) EditText(_ context.Context, ref domain.MessageRef, text string, controls *messaging.Controls) error {
	return r.record(Call{Op: OpEditText, ChatID: ref.ChatID, Ref: ref, Text: text, Controls: controls})
}

func (r *Recorder) EditCaption(_ context.Context, ref domain.MessageRef, caption string, controls *messaging.Controls) error {
	return r.record(Call{Op: OpEditCaption, ChatID: ref.ChatID, Ref: ref, Text: caption, Controls: controls})
}

func (r *Recorder) RemoveControls(_ context.Context, ref domain.MessageRef) error {
	return r.record(Call{Op: OpRemoveControls, ChatID: ref.ChatID, Ref: ref})
}

func (r *Recorder) AnswerAction(_ context.Context, actionID, text string, alert bool) error {
	return r.record(Call{Op: OpAnswer, ActionID: actionID, Text: text, Alert: alert})
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// To returns the calls addressed to chatID.
func (r *Recorder) To(chatID int64) []Call {
	var out []Call
	for _, call := range r.Calls() {
		if call.ChatID == chatID {
			out = append(out, call)
		}
	}
	return out
}

// Ops returns the calls of a given kind.
func (r *Recorder) Ops(op Op) []Call {
	var out []Call
	for _, call := range r.Calls() {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Last returns the most recent call to chatID and whether there was one.
func (r *Recorder) Last(chatID int64) (Call, bool) {
	calls := r.To(chatID)
	if len(calls) == 0 {
		return Call{}, false
	}
	return calls[len(calls)-1], true
}

// Reset forgets recorded calls but keeps scripted failures.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

var _ messaging.Channel = (*Recorder)(nil)
