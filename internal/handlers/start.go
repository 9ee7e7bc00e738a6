package handlers

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// StartHandler handles the /start command
type StartHandler struct {
	logger *logrus.Logger
}

// NewStartHandler creates a new start command handler
func NewStartHandler(logger *logrus.Logger) *StartHandler {
	return &StartHandler{
		logger: logger,
	}
}

// Handle processes the /start command
func (h *StartHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	welcomeText := `🎁 *Welcome to WishPool!*

I track your family's shared wishlist. Every item has a target cost; you
can claim an item outright or chip in money together until it is funded.

*Available Commands:*
• /items - Show the wishlist with funding progress
• /claim <id> - Claim an item for yourself (no money split)
• /chip <id> <amount> - Chip in toward an item
• /help - Show this help message

Check what's still open with /items!`

	msg := tgbotapi.NewMessage(message.Chat.ID, welcomeText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
	}).Info("Sent start message")

	return nil
}
