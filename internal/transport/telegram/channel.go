// Package telegram carries the messaging contract over the Telegram Bot API
// and routes incoming updates to the services.
package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/messaging"
)

// BotAPI is the subset of *tgbotapi.BotAPI the channel calls.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Channel implements messaging.Channel. Text is sent as HTML.
type Channel struct {
	bot BotAPI
}

var _ messaging.Channel = (*Channel)(nil)

// NewChannel wraps a bot client.
func NewChannel(bot BotAPI) *Channel {
	return &Channel{bot: bot}
}

func (c *Channel) SendText(_ context.Context, chatID int64, text string, controls *messaging.Controls) (domain.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup := replyMarkup(controls); markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (c *Channel) SendImage(_ context.Context, chatID int64, imageRef, caption string, controls *messaging.Controls) (domain.MessageRef, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(imageRef))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if markup := replyMarkup(controls); markup != nil {
		photo.ReplyMarkup = markup
	}
	sent, err := c.bot.Send(photo)
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: chatID, MessageID: sent.MessageID, HasImage: true}, nil
}

func (c *Channel) EditText(_ context.Context, ref domain.MessageRef, text string, controls *messaging.Controls) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = inlineMarkup(controls)
	return c.request(edit)
}

func (c *Channel) EditCaption(_ context.Context, ref domain.MessageRef, caption string, controls *messaging.Controls) error {
	edit := tgbotapi.NewEditMessageCaption(ref.ChatID, ref.MessageID, caption)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = inlineMarkup(controls)
	return c.request(edit)
}

func (c *Channel) RemoveControls(_ context.Context, ref domain.MessageRef) error {
	return c.request(tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}))
}

func (c *Channel) AnswerAction(_ context.Context, actionID, text string, alert bool) error {
	answer := tgbotapi.NewCallback(actionID, text)
	if alert {
		answer = tgbotapi.NewCallbackWithAlert(actionID, text)
	}
	return c.request(answer)
}

// request sends a call whose result carries no message. An edit that would
// leave the message unchanged counts as done.
func (c *Channel) request(call tgbotapi.Chattable) error {
	_, err := c.bot.Request(call)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

func replyMarkup(controls *messaging.Controls) interface{} {
	switch {
	case controls == nil:
		return nil
	case controls.RemoveKeyboard:
		return tgbotapi.NewRemoveKeyboard(true)
	case len(controls.Keyboard) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(controls.Keyboard))
		for _, labels := range controls.Keyboard {
			row := make([]tgbotapi.KeyboardButton, 0, len(labels))
			for _, label := range labels {
				row = append(row, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, row)
		}
		keyboard := tgbotapi.NewReplyKeyboard(rows...)
		keyboard.ResizeKeyboard = true
		return keyboard
	case len(controls.Inline) > 0:
		return inlineMarkup(controls)
	}
	return nil
}

func inlineMarkup(controls *messaging.Controls) *tgbotapi.InlineKeyboardMarkup {
	if controls == nil || len(controls.Inline) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(controls.Inline))
	for _, buttons := range controls.Inline {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			if b.URL != "" {
				row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		rows = append(rows, row)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
