package telegram

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestParseChatID(t *testing.T) {
	id, err := ParseChatID("tg:123456")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), id)

	id, err = ParseChatID("tg:-100200")
	require.NoError(t, err)
	assert.Equal(t, int64(-100200), id)

	_, err = ParseChatID("user@example.com")
	assert.Error(t, err)

	_, err = ParseChatID("tg:abc")
	assert.Error(t, err)
}

func TestSendMessage(t *testing.T) {
	sender := &fakeSender{}
	bot := &Bot{Bot: sender}

	require.NoError(t, bot.SendMessage(Message{ChatID: 42, Text: "hello"}))
	require.Len(t, sender.sent, 1)

	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "MarkdownV2", msg.ParseMode)
	assert.True(t, msg.DisableWebPagePreview)
}

func TestSendMessageError(t *testing.T) {
	bot := &Bot{Bot: &fakeSender{err: errors.New("blocked")}}

	err := bot.SendMessage(Message{ChatID: 1, Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}
