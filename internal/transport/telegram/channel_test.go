package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/messaging"
)

type fakeBot struct {
	mu         sync.Mutex
	sent       []tgbotapi.Chattable
	requests   []tgbotapi.Chattable
	nextID     int
	requestErr error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: f.requestErr == nil}, f.requestErr
}

func TestChannel_SendText(t *testing.T) {
	ctx := context.Background()
	bot := &fakeBot{}
	ch := NewChannel(bot)

	ref, err := ch.SendText(ctx, 500, "<b>hi</b>", messaging.Keyboard([]string{"A", "B"}, []string{"C"}))
	require.NoError(t, err)
	assert.Equal(t, domain.MessageRef{ChatID: 500, MessageID: 1}, ref)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, keyboard.ResizeKeyboard)
	require.Len(t, keyboard.Keyboard, 2)
	assert.Equal(t, "B", keyboard.Keyboard[0][1].Text)

	_, err = ch.SendText(ctx, 500, "bye", messaging.RemoveKeyboard())
	require.NoError(t, err)
	_, ok = bot.sent[1].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.ReplyKeyboardRemove)
	assert.True(t, ok)

	_, err = ch.SendText(ctx, 500, "plain", nil)
	require.NoError(t, err)
	assert.Nil(t, bot.sent[2].(tgbotapi.MessageConfig).ReplyMarkup)
}

func TestChannel_SendImageWithInlineControls(t *testing.T) {
	bot := &fakeBot{}
	ch := NewChannel(bot)

	controls := messaging.InlineRow(
		messaging.Button{Label: "Claim", Action: "claim:1001"},
		messaging.Button{Label: "Contact", URL: "tg://user?id=500"},
	)
	ref, err := ch.SendImage(context.Background(), -1000, "file-1", "caption", controls)
	require.NoError(t, err)
	assert.True(t, ref.HasImage)

	photo, ok := bot.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, tgbotapi.FileID("file-1"), photo.File)
	assert.Equal(t, "caption", photo.Caption)

	markup, ok := photo.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	row := markup.InlineKeyboard[0]
	require.Len(t, row, 2)
	require.NotNil(t, row[0].CallbackData)
	assert.Equal(t, "claim:1001", *row[0].CallbackData)
	require.NotNil(t, row[1].URL)
	assert.Equal(t, "tg://user?id=500", *row[1].URL)
}

func TestChannel_Edits(t *testing.T) {
	ctx := context.Background()
	ref := domain.MessageRef{ChatID: -1000, MessageID: 9}

	t.Run("text edit without controls drops the keyboard", func(t *testing.T) {
		bot := &fakeBot{}
		require.NoError(t, NewChannel(bot).EditText(ctx, ref, "new", nil))
		edit, ok := bot.requests[0].(tgbotapi.EditMessageTextConfig)
		require.True(t, ok)
		assert.Equal(t, 9, edit.MessageID)
		assert.Nil(t, edit.ReplyMarkup)
	})

	t.Run("caption edit keeps controls", func(t *testing.T) {
		bot := &fakeBot{}
		controls := messaging.InlineRow(messaging.Button{Label: "Reporter", URL: "tg://user?id=1"})
		require.NoError(t, NewChannel(bot).EditCaption(ctx, ref, "new", controls))
		edit, ok := bot.requests[0].(tgbotapi.EditMessageCaptionConfig)
		require.True(t, ok)
		require.NotNil(t, edit.ReplyMarkup)
		assert.Len(t, edit.ReplyMarkup.InlineKeyboard, 1)
	})

	t.Run("remove controls", func(t *testing.T) {
		bot := &fakeBot{}
		require.NoError(t, NewChannel(bot).RemoveControls(ctx, ref))
		edit, ok := bot.requests[0].(tgbotapi.EditMessageReplyMarkupConfig)
		require.True(t, ok)
		assert.Empty(t, edit.ReplyMarkup.InlineKeyboard)
	})

	t.Run("unchanged message is not an error", func(t *testing.T) {
		bot := &fakeBot{requestErr: errors.New("Bad Request: message is not modified: specified new message content is the same")}
		assert.NoError(t, NewChannel(bot).EditText(ctx, ref, "same", nil))
	})

	t.Run("other failures surface", func(t *testing.T) {
		bot := &fakeBot{requestErr: errors.New("Bad Request: there is no text in the message to edit")}
		assert.Error(t, NewChannel(bot).EditText(ctx, ref, "x", nil))
	})
}

func TestChannel_AnswerAction(t *testing.T) {
	bot := &fakeBot{}
	ch := NewChannel(bot)

	require.NoError(t, ch.AnswerAction(context.Background(), "q1", "Done", false))
	require.NoError(t, ch.AnswerAction(context.Background(), "q2", "Technicians only.", true))

	first := bot.requests[0].(tgbotapi.CallbackConfig)
	second := bot.requests[1].(tgbotapi.CallbackConfig)
	assert.Equal(t, "q1", first.CallbackQueryID)
	assert.False(t, first.ShowAlert)
	assert.True(t, second.ShowAlert)
	assert.Equal(t, "Technicians only.", second.Text)
}
