package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/WishPool/internal/models"
)

// MessageSender is the slice of the Telegram bot the announcer needs.
type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

// Announcer consumes the broker's wildcard stream and posts committed
// transitions to a group chat. It is a plain subscriber: losing it (or
// its chat) never affects the ledger.
type Announcer struct {
	broker *Broker
	sender MessageSender
	chatID int64
	logger *logrus.Logger
}

// NewAnnouncer creates an Announcer posting to chatID.
func NewAnnouncer(broker *Broker, sender MessageSender, chatID int64, logger *logrus.Logger) *Announcer {
	return &Announcer{broker: broker, sender: sender, chatID: chatID, logger: logger}
}

// Run subscribes to all items and announces until ctx is done.
func (a *Announcer) Run(ctx context.Context) {
	sub := a.broker.Subscribe(AllItems, 64)
	defer sub.Cancel()

	a.logger.Info("Announcer started")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			text := announcement(ev)
			if text == "" {
				continue
			}
			if err := a.sender.SendMessage(a.chatID, text); err != nil {
				a.logger.WithError(err).Warn("Failed to announce change")
			}
		}
	}
}

// announcement renders an event, or returns "" for transitions not worth
// a chat message (admin metadata edits that change no status).
func announcement(ev ChangeEvent) string {
	item := ev.Item

	switch {
	case ev.Deleted:
		return fmt.Sprintf("🗑 *%s* was removed from the wishlist.", item.Name)

	case ev.Record != nil && item.Mode == models.ModeExclusive:
		return fmt.Sprintf("🔒 %s claimed *%s*!", ev.Record.ContributorName, item.Name)

	case ev.Record != nil && item.Status == models.StatusFulfilled:
		return fmt.Sprintf("🎉 *%s* is fully funded! %s chipped in the final %s.",
			item.Name, ev.Record.ContributorName, ev.Record.Amount.Decimal)

	case ev.Record != nil:
		return fmt.Sprintf("💰 %s chipped in %s toward *%s* (%s of %s).",
			ev.Record.ContributorName, ev.Record.Amount.Decimal, item.Name,
			item.TotalContributed, item.TargetCost)

	case item.Status == models.StatusFulfilled:
		// Admin edit that retroactively fulfilled the item.
		return fmt.Sprintf("🎉 *%s* is now fully funded after a target change!", item.Name)

	default:
		return ""
	}
}
