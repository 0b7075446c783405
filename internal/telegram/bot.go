package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// AddressPrefix marks a notification address as a telegram chat id, e.g. "tg:123456".
const AddressPrefix = "tg:"

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug
	log.Infof("🤖 Authorized on telegram account %s", bot.Self.UserName)

	return &Bot{
		Bot:    bot,
		Config: c,
	}, nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

// IsAddress reports whether address targets a telegram chat.
func IsAddress(address string) bool {
	return strings.HasPrefix(address, AddressPrefix)
}

// ParseChatID extracts the chat id from a "tg:<id>" address.
func ParseChatID(address string) (int64, error) {
	if !IsAddress(address) {
		return 0, errors.Errorf("not a telegram address: %q", address)
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(address, AddressPrefix), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid telegram chat id in %q", address)
	}

	return id, nil
}
