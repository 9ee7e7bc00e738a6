package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/WishPool/internal/ledger"
	"github.com/Kerhoff/WishPool/internal/models"
)

// ---------------------------------------------------------------------------
// ClaimHandler – /claim <id>
// ---------------------------------------------------------------------------

// ClaimHandler handles the /claim command: an exclusive contribution,
// first caller wins.
type ClaimHandler struct {
	coordinator *ledger.Coordinator
	admin       *ledger.Admin
	logger      *logrus.Logger
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(coordinator *ledger.Coordinator, admin *ledger.Admin, logger *logrus.Logger) *ClaimHandler {
	return &ClaimHandler{coordinator: coordinator, admin: admin, logger: logger}
}

// Handle processes the /claim command.
func (h *ClaimHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) != 1 {
		msg := tgbotapi.NewMessage(message.Chat.ID,
			"❌ Usage: `/claim <id>` - the id comes from /items")
		msg.ParseMode = tgbotapi.ModeMarkdown
		bot.Send(msg)
		return nil
	}

	ctx := context.Background()
	item, err := resolveItem(ctx, h.admin, args[0])
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "❌ "+err.Error()))
		return nil
	}

	committed, _, err := h.coordinator.Contribute(ctx, ledger.ContributeRequest{
		ItemID:          item.ID,
		ContributorID:   strconv.FormatInt(message.From.ID, 10),
		ContributorName: displayName(message.From),
	})
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "❌ "+userFacing(err)))
		return nil
	}

	text := fmt.Sprintf("🔒 *%s* is yours, %s! Nobody else can claim it now.",
		committed.Name, displayName(message.From))
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	bot.Send(msg)

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
		"item_id": committed.ID,
	}).Info("Item claimed")

	return nil
}

// ---------------------------------------------------------------------------
// ChipHandler – /chip <id> <amount>
// ---------------------------------------------------------------------------

// ChipHandler handles the /chip command: a cumulative monetary
// contribution toward a shared item.
type ChipHandler struct {
	coordinator *ledger.Coordinator
	admin       *ledger.Admin
	logger      *logrus.Logger
}

// NewChipHandler creates a new ChipHandler.
func NewChipHandler(coordinator *ledger.Coordinator, admin *ledger.Admin, logger *logrus.Logger) *ChipHandler {
	return &ChipHandler{coordinator: coordinator, admin: admin, logger: logger}
}

// Handle processes the /chip command.
func (h *ChipHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) != 2 {
		msg := tgbotapi.NewMessage(message.Chat.ID,
			"❌ Usage: `/chip <id> <amount>` - e.g. `/chip 3f2a 25.00`")
		msg.ParseMode = tgbotapi.ModeMarkdown
		bot.Send(msg)
		return nil
	}

	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "❌ Amount must be a number, e.g. 25.00"))
		return nil
	}

	ctx := context.Background()
	item, err := resolveItem(ctx, h.admin, args[0])
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "❌ "+err.Error()))
		return nil
	}

	committed, record, err := h.coordinator.Contribute(ctx, ledger.ContributeRequest{
		ItemID:          item.ID,
		ContributorID:   strconv.FormatInt(message.From.ID, 10),
		ContributorName: displayName(message.From),
		Amount:          &amount,
	})
	if err != nil {
		bot.Send(tgbotapi.NewMessage(message.Chat.ID, "❌ "+userFacing(err)))
		return nil
	}

	var text string
	if committed.Status == models.StatusFulfilled {
		text = fmt.Sprintf("🎉 *%s* is fully funded! %s chipped in the final %s.",
			committed.Name, displayName(message.From), record.Amount.Decimal)
	} else {
		text = fmt.Sprintf("💰 %s chipped in %s toward *%s* - %s of %s so far.",
			displayName(message.From), record.Amount.Decimal, committed.Name,
			committed.TotalContributed, committed.TargetCost)
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	bot.Send(msg)

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"user_id": message.From.ID,
		"item_id": committed.ID,
		"amount":  record.Amount.Decimal,
	}).Info("Contribution added")

	return nil
}

// userFacing turns ledger errors into a short chat-friendly message.
func userFacing(err error) string {
	switch {
	case errors.Is(err, ledger.ErrAlreadyFulfilled):
		return "Too late - that item is already taken care of."
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "That amount doesn't work: " + err.Error()
	case errors.Is(err, ledger.ErrNotFound):
		return "That item no longer exists."
	case errors.Is(err, ledger.ErrConflict):
		return "The wishlist is busy right now, please try again."
	default:
		return "Something went wrong, please try again later."
	}
}

// displayName mirrors how Telegram shows the user.
func displayName(user *tgbotapi.User) string {
	if user.UserName != "" {
		return "@" + user.UserName
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	return name
}
