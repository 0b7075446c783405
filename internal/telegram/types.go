package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// BotConfig configuration of the bot
type BotConfig struct {
	Token string
	Debug bool
}

// Sender is the subset of the telegram client used for delivery
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot telegram delivery client
type Bot struct {
	Bot    Sender
	Config BotConfig
}

// Message a telegram message struct
type Message struct {
	ChatID int64
	Text   string
}
