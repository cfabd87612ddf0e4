package notify

import (
	"context"
	"fmt"

	"masterhand/internal/domain"
	"masterhand/internal/models"
	"masterhand/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// ErrNoChat is returned when the recipient has no linked Telegram chat.
var ErrNoChat = fmt.Errorf("recipient has no telegram chat: %w", worker.ErrPermanent)

// TelegramNotifier delivers notifications as Telegram messages.
type TelegramNotifier struct {
	bot domain.TelegramSender
}

func NewTelegramNotifier(bot domain.TelegramSender) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

// NewTelegramBot connects to the Bot API with the given token.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func (n *TelegramNotifier) Deliver(_ context.Context, msg models.Notification) error {
	if msg.ChatID == 0 {
		return ErrNoChat
	}
	text := msg.Body
	if msg.Title != "" {
		text = "*" + tgbotapi.EscapeText(tgbotapi.ModeMarkdown, msg.Title) + "*\n" +
			tgbotapi.EscapeText(tgbotapi.ModeMarkdown, msg.Body)
	}
	out := tgbotapi.NewMessage(msg.ChatID, text)
	if msg.Title != "" {
		out.ParseMode = tgbotapi.ModeMarkdown
	}
	if _, err := n.bot.Send(out); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// LogNotifier writes notifications to the log. Used when no bot token is configured.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(_ context.Context, msg models.Notification) error {
	n.logger.Info().
		Int64("user_id", msg.UserID).
		Str("title", msg.Title).
		Str("body", msg.Body).
		Msg("notification")
	return nil
}
