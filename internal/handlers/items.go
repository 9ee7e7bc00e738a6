package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/WishPool/internal/ledger"
	"github.com/Kerhoff/WishPool/internal/models"
)

// ---------------------------------------------------------------------------
// ItemsHandler – /items
// ---------------------------------------------------------------------------

// ItemsHandler handles the /items command: it renders the wishlist with
// funding progress, one line per item, using a short id code members can
// pass to /claim and /chip.
type ItemsHandler struct {
	admin  *ledger.Admin
	logger *logrus.Logger
}

// NewItemsHandler creates a new ItemsHandler.
func NewItemsHandler(admin *ledger.Admin, logger *logrus.Logger) *ItemsHandler {
	return &ItemsHandler{admin: admin, logger: logger}
}

// Handle processes the /items command.
func (h *ItemsHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	items, err := h.admin.ListItems(context.Background())
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	if len(items) == 0 {
		msg := tgbotapi.NewMessage(message.Chat.ID, "The wishlist is empty. Ask an admin to add items!")
		bot.Send(msg)
		return nil
	}

	var sb strings.Builder
	sb.WriteString("🎁 *Wishlist*\n\n")
	for _, item := range items {
		sb.WriteString(formatItem(item))
		sb.WriteString("\n")
	}
	sb.WriteString("\n_Claim with /claim <id>, chip in with /chip <id> <amount>._")

	msg := tgbotapi.NewMessage(message.Chat.ID, sb.String())
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("send items list: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id": message.Chat.ID,
		"count":   len(items),
	}).Info("Sent wishlist")

	return nil
}

// formatItem renders one wishlist line.
func formatItem(item *models.WishlistItem) string {
	code := shortID(item.ID)

	switch {
	case item.Status == models.StatusFulfilled && item.Mode == models.ModeExclusive:
		return fmt.Sprintf("`%s` ✅ %s - claimed", code, item.Name)
	case item.Status == models.StatusFulfilled:
		return fmt.Sprintf("`%s` ✅ %s - fully funded (%s)", code, item.Name, item.TargetCost)
	case item.Mode == models.ModeExclusive:
		return fmt.Sprintf("`%s` 🔒 %s - %s, up for grabs", code, item.Name, item.TargetCost)
	default:
		note := ""
		if !item.PartialAllowed {
			note = ", exact remainder only"
		}
		return fmt.Sprintf("`%s` 💰 %s - %s of %s funded, %s to go%s",
			code, item.Name, item.TotalContributed, item.TargetCost, item.Remaining(), note)
	}
}

// shortID is the code shown to chat members: the first UUID group.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// resolveItem matches a user-supplied id or unique prefix against the
// live items.
func resolveItem(ctx context.Context, admin *ledger.Admin, ref string) (*models.WishlistItem, error) {
	items, err := admin.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	ref = strings.ToLower(ref)
	var match *models.WishlistItem
	for _, item := range items {
		if !strings.HasPrefix(strings.ToLower(item.ID), ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("id %q is ambiguous", ref)
		}
		match = item
	}
	if match == nil {
		return nil, fmt.Errorf("no item matches id %q", ref)
	}
	return match, nil
}
