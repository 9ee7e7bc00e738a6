package handlers

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// HelpHandler handles the /help command
type HelpHandler struct {
	logger *logrus.Logger
}

func NewHelpHandler(logger *logrus.Logger) *HelpHandler {
	return &HelpHandler{logger: logger}
}

func (h *HelpHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	helpText := `📚 *WishPool Help*

*Wishlist:*
• /items - Show all items with funding progress
• /claim <id> - Claim an exclusive item (one buyer, no split)
• /chip <id> <amount> - Contribute money to a shared item

An item id is the short code shown by /items; a unique prefix works too.

*How funding works:*
• _Exclusive_ items are taken by the first person to /claim them.
• _Shared_ items collect contributions until the target cost is reached.
• Some shared items only accept the exact remaining amount.
• Contributions never push an item past its target; pick an amount up
  to the shown remainder.

Items are created and edited by the family admins via the web UI.`

	msg := tgbotapi.NewMessage(message.Chat.ID, helpText)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send help message: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
	}).Info("Sent help message")

	return nil
}
